package events

import "time"

// Event enumerates high-level topics inside the pipeline.
type Event string

const (
	EventBar            Event = "market.bar"
	EventSignal         Event = "strategy.signal"
	EventOrderSubmitted Event = "order.submitted"
	EventOrderFilled    Event = "order.filled"
	EventOrderRejected  Event = "order.rejected"
	EventOrderCancelled Event = "order.cancelled"
	EventRiskAlert      Event = "risk.alert"
	EventTradeOpened    Event = "trade.opened"
	EventTradeClosed    Event = "trade.closed"
	EventBacktestDone   Event = "backtest.done"
)

// BarPayload is published for every closed candle the pipeline consumes.
type BarPayload struct {
	Symbol    string
	Timeframe string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// SignalPayload is published after a strategy decision is persisted.
type SignalPayload struct {
	Symbol     string
	Strategy   string
	SignalType string
	Price      float64
	Timestamp  time.Time
}

// OrderPayload is published on order status transitions.
type OrderPayload struct {
	OrderID     string
	Symbol      string
	Side        string
	Size        float64
	Price       float64
	Status      string
	IsSimulated bool
}

// RiskAlertPayload is published when the risk gate vetoes or warns.
type RiskAlertPayload struct {
	PortfolioID string
	EventType   string
	Details     string
	Timestamp   time.Time
}

// TradePayload is published when a trade opens or closes.
type TradePayload struct {
	TradeID     string
	PortfolioID string
	Symbol      string
	EntryPrice  float64
	ExitPrice   float64
	Size        float64
	RealizedPnL float64
	ExitReason  string
}

// BacktestPayload is published when a backtest run finishes.
type BacktestPayload struct {
	RunID       string
	Strategy    string
	TotalTrades int
	FinalEquity float64
	MaxDrawdown float64
}
