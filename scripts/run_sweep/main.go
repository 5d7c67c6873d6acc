package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"tradepipe/internal/backtest"
	"tradepipe/internal/strategy"
	"tradepipe/pkg/config"
	"tradepipe/pkg/db"
)

// run_sweep replays stored candles through the fast in-memory backtest
// engine for every (strategy, stop, take) combination and prints a
// leaderboard sorted by final equity.
//
// Usage (from the repo root):
//   go run ./scripts/run_sweep -symbol BTC-USD -start 2026-01-01 -end 2026-03-01
//
// Strategies come from the same YAML file the live pipeline uses; the
// sweep evaluates every entry in it, including inactive ones.

func main() {
	log.SetFlags(0)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config error: %v", err)
	}

	var (
		dbPath      = flag.String("db", cfg.DBPath, "sqlite database path")
		configPath  = flag.String("config", cfg.StrategyConfigPath, "strategy YAML path")
		symbol      = flag.String("symbol", cfg.Symbol, "asset symbol")
		timeframe   = flag.String("timeframe", cfg.Timeframe, "candle timeframe")
		startStr    = flag.String("start", "", "start date YYYY-MM-DD (default: all history)")
		endStr      = flag.String("end", "", "end date YYYY-MM-DD, inclusive (default: all history)")
		stops       = flag.String("stops", "1,2,3", "comma-separated stop-loss percents")
		takes       = flag.String("takes", "2,4,6", "comma-separated take-profit percents")
		startEquity = flag.Float64("equity", cfg.StartingEquity, "starting equity per run")
		workers     = flag.Int("workers", 4, "parallel workers")
		top         = flag.Int("top", 20, "results to print")
	)
	flag.Parse()

	start := time.Time{}
	end := time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	if *startStr != "" {
		if start, err = time.Parse("2006-01-02", *startStr); err != nil {
			log.Fatalf("bad -start: %v", err)
		}
	}
	if *endStr != "" {
		d, err := time.Parse("2006-01-02", *endStr)
		if err != nil {
			log.Fatalf("bad -end: %v", err)
		}
		end = d.Add(24 * time.Hour)
	}

	stopGrid, err := parseGrid(*stops)
	if err != nil {
		log.Fatalf("bad -stops: %v", err)
	}
	takeGrid, err := parseGrid(*takes)
	if err != nil {
		log.Fatalf("bad -takes: %v", err)
	}

	ctx := context.Background()

	database, err := db.New(*dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	base, quote := *symbol, "USD"
	if parts := strings.SplitN(*symbol, "-", 2); len(parts) == 2 {
		base, quote = parts[0], parts[1]
	}
	asset, err := database.GetOrCreateAsset(ctx, *symbol, base, quote)
	if err != nil {
		log.Fatalf("asset lookup: %v", err)
	}

	bars, err := backtest.LoadBars(ctx, database, asset.ID, *timeframe, start, end)
	if err != nil {
		log.Fatalf("load bars: %v", err)
	}
	if len(bars) == 0 {
		log.Fatalf("no %s candles stored for %s in the requested range", *timeframe, *symbol)
	}
	log.Printf("sweeping %d bars of %s %s", len(bars), *symbol, *timeframe)

	strategies, err := strategy.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load strategies: %v", err)
	}

	var combos []backtest.SweepCombo
	for _, sc := range strategies {
		if sc.Symbol != "" && sc.Symbol != *symbol {
			continue
		}
		for _, sl := range stopGrid {
			for _, tp := range takeGrid {
				combos = append(combos, backtest.SweepCombo{
					Label:    fmt.Sprintf("%s sl=%.1f tp=%.1f", sc.Name, sl, tp),
					Strategy: sc,
					Cfg: backtest.FastConfig{
						StartEquity:     *startEquity,
						MaxRiskPct:      cfg.MaxRiskPerTradePct,
						StopLossPct:     sl,
						TakeProfitPct:   tp,
						MaxDailyLossPct: cfg.MaxDailyLossPct,
					},
				})
			}
		}
	}
	if len(combos) == 0 {
		log.Fatalf("no strategies in %s match symbol %s", *configPath, *symbol)
	}
	log.Printf("%d combinations, %d workers", len(combos), *workers)

	started := time.Now()
	results := backtest.RunSweep(bars, combos, *workers)
	log.Printf("sweep finished in %v", time.Since(started).Round(time.Millisecond))
	log.Println()
	log.Printf("%-40s %12s %8s %8s %8s %8s", "combo", "final", "trades", "win%", "maxdd", "signals")

	for i, r := range results {
		if i >= *top {
			break
		}
		if r.Err != nil {
			log.Printf("%-40s ERROR: %v", r.Label, r.Err)
			continue
		}
		log.Printf("%-40s %12.2f %8d %7.1f%% %7.2f%% %8d",
			r.Label, r.Result.FinalEquity, len(r.Result.Trades),
			r.Result.WinRatePct, r.Result.MaxDrawdown*100, r.Result.Signals)
	}
}

func parseGrid(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", part, err)
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty grid")
	}
	return out, nil
}
