package backtest

import (
	"context"
	"fmt"
	"log"
	"time"

	"tradepipe/internal/events"
	"tradepipe/internal/execution"
	"tradepipe/internal/market"
	"tradepipe/internal/order"
	"tradepipe/internal/risk"
	"tradepipe/internal/runner"
	"tradepipe/internal/strategy"
	"tradepipe/pkg/db"
)

// Params configures one full-fidelity backtest run.
type Params struct {
	Scope      order.Scope
	Strategy   strategy.Strategy
	Bars       []market.Bar
	RiskCfg    risk.Config
	OrderCfg   order.Config
	FeeBps     float64
	StartDate  string
	EndDate    string
	DataSource string
	// Label is stored on the summary row's notes column.
	Label string
	// Reset wipes the scope's prior orders, trades, signals and audit
	// rows so reruns over the same range are deterministic.
	Reset bool
}

// Result summarizes a full-fidelity run.
type Result struct {
	Run    db.BacktestRun
	Trades []db.Trade
}

// RunFull replays historical bars through the same runner, risk gate
// and lifecycle manager used for live trading, against the simulated
// execution backend, and persists a summary row.
func RunFull(ctx context.Context, d *db.Database, bus *events.Bus, p Params) (Result, error) {
	if len(p.Bars) == 0 {
		return Result{}, fmt.Errorf("no bars to backtest")
	}
	market.SortBars(p.Bars)
	if err := market.ValidateAscending(p.Bars); err != nil {
		return Result{}, fmt.Errorf("bad bar sequence: %w", err)
	}

	if p.Reset {
		if err := d.ResetStrategyScope(ctx, p.Scope.PortfolioID, p.Scope.AssetID, p.Scope.StrategyConfigID); err != nil {
			return Result{}, err
		}
		if err := d.ResetPortfolioAudit(ctx, p.Scope.PortfolioID); err != nil {
			return Result{}, err
		}
	}

	portfolio, err := d.GetPortfolio(ctx, p.Scope.PortfolioID)
	if err != nil {
		return Result{}, fmt.Errorf("load backtest portfolio: %w", err)
	}

	// The simulator quotes the bar under replay and stamps fills with
	// its timestamp so persisted rows carry historical time.
	var current market.Bar
	sim := execution.NewSimulator(func(string) (float64, error) {
		if current.Close <= 0 {
			return 0, fmt.Errorf("no bar under replay")
		}
		return current.Close, nil
	}, p.FeeBps)
	sim.Clock = func() time.Time { return current.Timestamp }

	gate := risk.NewGate(d, bus, p.RiskCfg)
	if p.OrderCfg.Poll.MaxAttempts == 0 && p.OrderCfg.Poll.Timeout == 0 {
		p.OrderCfg.Poll = execution.PollPolicy{MaxAttempts: 3, Interval: time.Millisecond, Backoff: 1, Timeout: 5 * time.Second}
	}
	mgr := order.NewManager(d, sim, bus, gate, p.Scope, p.OrderCfg)
	run := runner.New(d, bus, p.Strategy, gate, mgr)
	run.Reset()

	for _, bar := range p.Bars {
		current = bar
		if err := run.ProcessBar(ctx, bar); err != nil {
			return Result{}, fmt.Errorf("bar %s: %w", bar.Timestamp, err)
		}
	}

	trades, err := d.ListTrades(ctx, p.Scope.PortfolioID, p.Scope.AssetID, p.Scope.StrategyConfigID)
	if err != nil {
		return Result{}, fmt.Errorf("collect trades: %w", err)
	}

	stats := computeStats(portfolio.StartingEquity, trades)
	startDate := p.StartDate
	if startDate == "" {
		startDate = p.Bars[0].Timestamp.Format("2006-01-02")
	}
	endDate := p.EndDate
	if endDate == "" {
		endDate = p.Bars[len(p.Bars)-1].Timestamp.Format("2006-01-02")
	}

	row, err := d.CreateBacktestRun(ctx, db.BacktestRun{
		PortfolioID:      p.Scope.PortfolioID,
		AssetID:          p.Scope.AssetID,
		StrategyConfigID: p.Scope.StrategyConfigID,
		StartDate:        startDate,
		EndDate:          endDate,
		InitialEquity:    portfolio.StartingEquity,
		FinalEquity:      stats.finalEquity,
		TotalTrades:      stats.closed,
		WinRate:          stats.winRatePct,
		MaxDrawdown:      stats.maxDrawdown,
		Notes:            p.Label,
		DataSource:       p.DataSource,
	})
	if err != nil {
		return Result{}, err
	}

	log.Printf("backtest %s: %d trades, final equity %.2f, max dd %.4f",
		p.Strategy.Name(), stats.closed, stats.finalEquity, stats.maxDrawdown)
	if bus != nil {
		bus.Publish(events.EventBacktestDone, events.BacktestPayload{
			RunID:       row.ID,
			Strategy:    p.Strategy.Name(),
			TotalTrades: stats.closed,
			FinalEquity: stats.finalEquity,
			MaxDrawdown: stats.maxDrawdown,
		})
	}
	return Result{Run: row, Trades: trades}, nil
}

type runStats struct {
	closed      int
	winRatePct  float64
	finalEquity float64
	maxDrawdown float64
}

// computeStats folds closed trades into an equity curve. Max drawdown
// is measured from the curve's peak to the final equity.
func computeStats(startEquity float64, trades []db.Trade) runStats {
	equity := startEquity
	peak := startEquity
	closed, wins := 0, 0
	for _, t := range trades {
		if t.Open() {
			continue
		}
		closed++
		if t.RealizedPnL > 0 {
			wins++
		}
		equity += t.RealizedPnL
		if equity > peak {
			peak = equity
		}
	}

	stats := runStats{closed: closed, finalEquity: equity}
	if closed > 0 {
		stats.winRatePct = float64(wins) / float64(closed) * 100
	}
	if peak > 0 {
		stats.maxDrawdown = (peak - equity) / peak
	}
	return stats
}

// LoadBars pulls candles for a range and converts them to bars.
func LoadBars(ctx context.Context, d *db.Database, assetID, timeframe string, start, end time.Time) ([]market.Bar, error) {
	candles, err := d.ListCandles(ctx, assetID, timeframe, start, end)
	if err != nil {
		return nil, err
	}
	bars := make([]market.Bar, len(candles))
	for i, c := range candles {
		bars[i] = market.Bar{
			Timestamp: c.Timestamp,
			Open:      c.Open, High: c.High, Low: c.Low,
			Close: c.Close, Volume: c.Volume,
		}
	}
	return bars, nil
}
