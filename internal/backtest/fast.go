package backtest

import (
	"fmt"
	"time"

	"tradepipe/internal/market"
	"tradepipe/internal/strategy"
)

// FastConfig mirrors the risk surface the full engine applies, so the
// two engines reach the same entry and exit decisions. Percent fields
// are percents. The open-trade cap has no counterpart here: a replay
// that enters only when flat can never exceed it.
type FastConfig struct {
	StartEquity     float64
	MaxRiskPct      float64
	StopLossPct     float64
	TakeProfitPct   float64
	MaxDailyLossPct float64
}

// FastTrade is one in-memory round trip.
type FastTrade struct {
	EntryIndex int
	ExitIndex  int
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	Size       float64
	PnL        float64
	Reason     string
}

// FastResult is the in-memory backtest summary.
type FastResult struct {
	StartEquity float64
	FinalEquity float64
	Trades      []FastTrade
	WinRatePct  float64
	MaxDrawdown float64
	Signals     int
}

// RunFast replays bars without persistence or an execution backend.
// Sizing, stop-loss/take-profit, debounce and the daily risk limits
// are inlined against in-memory state. It trades audit fidelity for
// speed; parameter sweeps run thousands of these cheaply.
func RunFast(bars []market.Bar, strat strategy.Strategy, cfg FastConfig) (FastResult, error) {
	if len(bars) == 0 {
		return FastResult{}, fmt.Errorf("no bars to backtest")
	}
	if cfg.StartEquity <= 0 {
		return FastResult{}, fmt.Errorf("start equity must be positive, got %.2f", cfg.StartEquity)
	}
	market.SortBars(bars)
	if err := market.ValidateAscending(bars); err != nil {
		return FastResult{}, fmt.Errorf("bad bar sequence: %w", err)
	}

	strat.Reset()

	equity := cfg.StartEquity
	peak := equity
	var trades []FastTrade
	var open *FastTrade
	signals := 0

	// Realized pnl keyed by YYYY-MM-DD, matching the gate's daily loss
	// floor. The gate's trade cap counts currently open trades; this
	// replay holds at most one position and only enters when flat, so
	// the cap cannot veto here and needs no bookkeeping.
	dailyPnL := map[string]float64{}

	var lastSignalType strategy.SignalType

	closeTrade := func(i int, bar market.Bar, price float64, reason string) {
		open.ExitIndex = i
		open.ExitTime = bar.Timestamp
		open.ExitPrice = price
		open.PnL = (price - open.EntryPrice) * open.Size
		open.Reason = reason
		equity += open.PnL
		if equity > peak {
			peak = equity
		}
		dailyPnL[bar.Timestamp.Format("2006-01-02")] += open.PnL
		trades = append(trades, *open)
		open = nil
	}

	for i, bar := range bars {
		autoExited := false

		if open != nil {
			price := bar.Close
			if cfg.StopLossPct > 0 && price <= open.EntryPrice*(1-cfg.StopLossPct/100) {
				closeTrade(i, bar, price, "stop_loss")
				autoExited = true
			} else if cfg.TakeProfitPct > 0 && price >= open.EntryPrice*(1+cfg.TakeProfitPct/100) {
				closeTrade(i, bar, price, "take_profit")
				autoExited = true
			}
		}

		pos := strategy.PositionState{}
		if open != nil {
			pos.InPosition = true
			pos.EntryPrice = open.EntryPrice
		}
		sig := strat.OnBar(bar, pos)
		if sig == nil {
			continue
		}
		signals++

		if sig.Type == lastSignalType {
			continue
		}
		lastSignalType = sig.Type

		switch sig.Type {
		case strategy.SignalEnter:
			if open != nil {
				continue
			}
			date := bar.Timestamp.Format("2006-01-02")
			if cfg.MaxDailyLossPct > 0 && dailyPnL[date] <= -cfg.StartEquity*cfg.MaxDailyLossPct/100 {
				continue
			}
			size := cfg.StartEquity * cfg.MaxRiskPct / 100 / sig.Price
			if size <= 0 {
				continue
			}
			open = &FastTrade{
				EntryIndex: i,
				EntryTime:  bar.Timestamp,
				EntryPrice: sig.Price,
				Size:       size,
			}

		case strategy.SignalExit:
			if open == nil || autoExited {
				continue
			}
			closeTrade(i, bar, sig.Price, "exit_signal")
		}
	}

	result := FastResult{
		StartEquity: cfg.StartEquity,
		FinalEquity: equity,
		Trades:      trades,
		Signals:     signals,
	}
	wins := 0
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
		}
	}
	if len(trades) > 0 {
		result.WinRatePct = float64(wins) / float64(len(trades)) * 100
	}
	if peak > 0 {
		result.MaxDrawdown = (peak - equity) / peak
	}
	return result, nil
}
