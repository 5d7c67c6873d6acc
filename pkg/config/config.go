package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the pipeline.
type Config struct {
	Port string

	// Database
	DBPath string

	// Market data
	Symbol         string
	Timeframe      string
	UseMockFeed    bool
	MockStartPrice float64
	MockStepPct    float64
	BarInterval    time.Duration

	// Risk surface
	MaxRiskPerTradePct float64 // % of equity risked per entry
	MaxDailyLossPct    float64 // halt entries past this daily loss
	MaxTradesPerDay    int
	MaxSlippagePct     float64
	StopLossPct        float64
	TakeProfitPct      float64

	// Execution
	SimFeeBps       float64 // simulated fee, basis points of notional
	PollMaxAttempts int
	PollInterval    time.Duration
	PollBackoff     float64
	PollTimeout     time.Duration

	// Portfolio bootstrap
	PortfolioName  string
	PortfolioMode  string // live | paper | backtest
	StartingEquity float64

	// Strategies
	StrategyConfigPath string

	// Auth
	JWTSecret string
	APIToken  string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:   getEnv("PORT", "8080"),
		DBPath: getEnv("DB_PATH", "./data/tradepipe.db"),

		Symbol:         getEnv("SYMBOL", "BTC-USD"),
		Timeframe:      getEnv("TIMEFRAME", "1m"),
		UseMockFeed:    getEnv("USE_MOCK_FEED", "true") == "true",
		MockStartPrice: getEnvFloat("MOCK_START_PRICE", 100.0),
		MockStepPct:    getEnvFloat("MOCK_STEP_PCT", 0.5),
		BarInterval:    getEnvDuration("BAR_INTERVAL_MS", 1000),

		MaxRiskPerTradePct: getEnvFloat("MAX_RISK_PER_TRADE_PCT", 2.0),
		MaxDailyLossPct:    getEnvFloat("MAX_DAILY_LOSS_PCT", 3.0),
		MaxTradesPerDay:    getEnvInt("MAX_TRADES_PER_DAY", 6),
		MaxSlippagePct:     getEnvFloat("MAX_SLIPPAGE_PCT", 1.0),
		StopLossPct:        getEnvFloat("STOP_LOSS_PCT", 0),
		TakeProfitPct:      getEnvFloat("TAKE_PROFIT_PCT", 0),

		SimFeeBps:       getEnvFloat("SIM_FEE_BPS", 5.0),
		PollMaxAttempts: getEnvInt("POLL_MAX_ATTEMPTS", 30),
		PollInterval:    getEnvDuration("POLL_INTERVAL_MS", 500),
		PollBackoff:     getEnvFloat("POLL_BACKOFF", 1.5),
		PollTimeout:     getEnvDuration("POLL_TIMEOUT_MS", 30000),

		PortfolioName:  getEnv("PORTFOLIO_NAME", "default"),
		PortfolioMode:  strings.ToLower(getEnv("PORTFOLIO_MODE", "paper")),
		StartingEquity: getEnvFloat("STARTING_EQUITY", 10000.0),

		StrategyConfigPath: getEnv("STRATEGY_CONFIG_PATH", "./strategies.yaml"),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret"),
		APIToken:  getEnv("API_TOKEN", ""),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, defMillis int) time.Duration {
	return time.Duration(getEnvInt(key, defMillis)) * time.Millisecond
}
