package risk

// Config holds the risk limits applied before every entry. Percentage
// fields are expressed as percents (2.0 means 2%).
type Config struct {
	MaxRiskPerTradePct float64
	MaxDailyLossPct    float64
	// MaxTradesPerDay caps currently open trades, not daily turnover.
	MaxTradesPerDay int
	// WarnBarRangePct flags unusually wide bars without vetoing.
	WarnBarRangePct float64
}

// DefaultConfig returns conservative limits for paper trading.
func DefaultConfig() Config {
	return Config{
		MaxRiskPerTradePct: 2.0,
		MaxDailyLossPct:    3.0,
		MaxTradesPerDay:    6,
		WarnBarRangePct:    2.0,
	}
}

// Decision is the outcome of one entry evaluation. A veto carries a
// Reason; an approval carries the position Size. Warnings are advisory
// and never block the entry.
type Decision struct {
	Allowed  bool
	Size     float64
	Reason   string
	Warnings []string
}

// Veto reason codes persisted to risk events.
const (
	VetoNoPortfolio   = "no_portfolio"
	VetoNoEquity      = "no_equity"
	VetoDailyLoss     = "daily_loss_limit"
	VetoTradeCap      = "daily_trade_cap"
	WarnVolatileBar   = "volatile_bar"
	EventSlippageHigh = "slippage_abort"
)
