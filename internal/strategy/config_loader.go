package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tradepipe/pkg/db"
)

// Config represents a strategy configuration entry in YAML.
type Config struct {
	Name       string                 `yaml:"name"`
	Type       string                 `yaml:"type"`
	Symbol     string                 `yaml:"symbol"`
	Interval   string                 `yaml:"interval"`
	Parameters map[string]interface{} `yaml:"parameters"`
	IsActive   bool                   `yaml:"is_active"`
}

// ConfigFile represents the top-level YAML structure.
type ConfigFile struct {
	Strategies []Config `yaml:"strategies"`
}

// LoadConfig reads strategy definitions from a YAML file.
func LoadConfig(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse strategy config: %w", err)
	}
	return file.Strategies, nil
}

// SyncConfigToDB upserts strategies from config into the database and
// returns the row id for each config name.
func SyncConfigToDB(ctx context.Context, d *db.Database, configs []Config) (map[string]string, error) {
	ids := make(map[string]string, len(configs))
	for _, cfg := range configs {
		paramsJSON, err := json.Marshal(cfg.Parameters)
		if err != nil {
			return nil, fmt.Errorf("marshal parameters for strategy %s: %w", cfg.Name, err)
		}
		id, err := d.UpsertStrategyConfig(ctx, cfg.Name, cfg.Type, string(paramsJSON), cfg.IsActive)
		if err != nil {
			return nil, fmt.Errorf("sync strategy %s: %w", cfg.Name, err)
		}
		ids[cfg.Name] = id
	}
	return ids, nil
}

// New builds a strategy instance from a config entry.
func New(cfg Config) (Strategy, error) {
	switch cfg.Type {
	case "green_candle":
		return NewGreenCandle(intParam(cfg.Parameters, "confirm_bars", 1)), nil
	case "ma_cross":
		return NewMACross(
			intParam(cfg.Parameters, "fast_period", 10),
			intParam(cfg.Parameters, "slow_period", 30),
		), nil
	case "rsi_reversion":
		return NewRSIReversion(
			intParam(cfg.Parameters, "period", 14),
			floatParam(cfg.Parameters, "oversold", 30),
			floatParam(cfg.Parameters, "overbought", 70),
		), nil
	default:
		return nil, fmt.Errorf("unknown strategy type: %s", cfg.Type)
	}
}

func floatParam(params map[string]interface{}, key string, fallback float64) float64 {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return fallback
}

func intParam(params map[string]interface{}, key string, fallback int) int {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return fallback
}
