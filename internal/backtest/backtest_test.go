package backtest

import (
	"context"
	"testing"
	"time"

	"tradepipe/internal/market"
	"tradepipe/internal/order"
	"tradepipe/internal/risk"
	"tradepipe/internal/strategy"
	"tradepipe/pkg/db"
)

func barsFromCloses(closes ...float64) []market.Bar {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, len(closes))
	prev := closes[0]
	for i, c := range closes {
		open := prev
		high := open
		if c > high {
			high = c
		}
		low := open
		if c < low {
			low = c
		}
		bars[i] = market.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      open, High: high, Low: low, Close: c, Volume: 10,
		}
		prev = c
	}
	return bars
}

func newBacktestDB(t *testing.T) (*db.Database, order.Scope) {
	t.Helper()
	d, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := db.ApplyMigrations(d); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	p, err := d.CreatePortfolio(ctx, db.Portfolio{
		Name: "bt", Mode: "backtest", StartingEquity: 10000, BaseCurrency: "USDT",
	})
	if err != nil {
		t.Fatalf("create portfolio: %v", err)
	}
	a, err := d.GetOrCreateAsset(ctx, "BTC/USDT", "BTC", "USDT")
	if err != nil {
		t.Fatalf("create asset: %v", err)
	}
	return d, order.Scope{PortfolioID: p.ID, AssetID: a.ID, Symbol: "BTC/USDT"}
}

// A price path with two stop-loss rounds and one take-profit round for
// a two-bar green candle strategy with sl=2% tp=4%.
var parityCloses = []float64{100, 101, 102, 103, 99, 100, 101, 102, 96, 97, 98, 99, 100, 106, 97}

func TestEnginesAgreeOnDecisions(t *testing.T) {
	bars := barsFromCloses(parityCloses...)

	fastRes, err := RunFast(barsFromCloses(parityCloses...), strategy.NewGreenCandle(2), FastConfig{
		StartEquity:     10000,
		MaxRiskPct:      2,
		StopLossPct:     2,
		TakeProfitPct:   4,
		MaxDailyLossPct: 3,
	})
	if err != nil {
		t.Fatalf("fast run: %v", err)
	}

	d, scope := newBacktestDB(t)
	fullRes, err := RunFull(context.Background(), d, nil, Params{
		Scope:    scope,
		Strategy: strategy.NewGreenCandle(2),
		Bars:     bars,
		RiskCfg: risk.Config{
			MaxRiskPerTradePct: 2, MaxDailyLossPct: 3, MaxTradesPerDay: 6, WarnBarRangePct: 2,
		},
		OrderCfg: order.Config{MaxSlippagePct: 0, StopLossPct: 2, TakeProfitPct: 4},
		Reset:    true,
	})
	if err != nil {
		t.Fatalf("full run: %v", err)
	}

	var fullClosed []db.Trade
	for _, tr := range fullRes.Trades {
		if !tr.Open() {
			fullClosed = append(fullClosed, tr)
		}
	}

	if len(fullClosed) != len(fastRes.Trades) {
		t.Fatalf("trade count mismatch: full=%d fast=%d", len(fullClosed), len(fastRes.Trades))
	}
	for i, fast := range fastRes.Trades {
		full := fullClosed[i]
		if !full.OpenedAt.Equal(fast.EntryTime) {
			t.Errorf("trade %d: entry bar mismatch full=%s fast=%s", i, full.OpenedAt, fast.EntryTime)
		}
		if full.ClosedAt == nil || !full.ClosedAt.Equal(fast.ExitTime) {
			t.Errorf("trade %d: exit bar mismatch full=%v fast=%s", i, full.ClosedAt, fast.ExitTime)
		}
		if full.ExitReason != fast.Reason {
			t.Errorf("trade %d: reason mismatch full=%s fast=%s", i, full.ExitReason, fast.Reason)
		}
	}
}

func TestRunFastStopLossAndTakeProfit(t *testing.T) {
	res, err := RunFast(barsFromCloses(parityCloses...), strategy.NewGreenCandle(2), FastConfig{
		StartEquity:   10000,
		MaxRiskPct:    2,
		StopLossPct:   2,
		TakeProfitPct: 4,
	})
	if err != nil {
		t.Fatalf("fast run: %v", err)
	}
	// The take-profit at bar 13 frees the slot for a same-bar re-entry
	// on the still-running bullish streak, stopped out on the last bar.
	if len(res.Trades) != 4 {
		t.Fatalf("expected 4 trades, got %d", len(res.Trades))
	}
	wantReasons := []string{"stop_loss", "stop_loss", "take_profit", "stop_loss"}
	wantEntries := []int{2, 6, 10, 13}
	wantExits := []int{4, 8, 13, 14}
	for i, tr := range res.Trades {
		if tr.Reason != wantReasons[i] {
			t.Errorf("trade %d: reason %s, want %s", i, tr.Reason, wantReasons[i])
		}
		if tr.EntryIndex != wantEntries[i] {
			t.Errorf("trade %d: entry index %d, want %d", i, tr.EntryIndex, wantEntries[i])
		}
		if tr.ExitIndex != wantExits[i] {
			t.Errorf("trade %d: exit index %d, want %d", i, tr.ExitIndex, wantExits[i])
		}
	}
}

func TestRunFastMaxDrawdown(t *testing.T) {
	// Two losing stops and a winning target; final below peak.
	res, err := RunFast(barsFromCloses(parityCloses...), strategy.NewGreenCandle(2), FastConfig{
		StartEquity:   10000,
		MaxRiskPct:    2,
		StopLossPct:   2,
		TakeProfitPct: 4,
	})
	if err != nil {
		t.Fatalf("fast run: %v", err)
	}
	if res.MaxDrawdown < 0 || res.MaxDrawdown > 1 {
		t.Errorf("drawdown out of range: %.4f", res.MaxDrawdown)
	}
	// peak - final relation must hold exactly.
	peak := res.StartEquity
	equity := res.StartEquity
	for _, tr := range res.Trades {
		equity += tr.PnL
		if equity > peak {
			peak = equity
		}
	}
	want := (peak - equity) / peak
	if diff := res.MaxDrawdown - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("drawdown %.6f, want %.6f", res.MaxDrawdown, want)
	}
}

func TestRunFastSameDayReentryAfterClose(t *testing.T) {
	// The trade cap bounds concurrent positions, so closing a trade
	// frees the slot for another entry on the same calendar day.
	res, err := RunFast(barsFromCloses(parityCloses...), strategy.NewGreenCandle(2), FastConfig{
		StartEquity:   10000,
		MaxRiskPct:    2,
		StopLossPct:   2,
		TakeProfitPct: 4,
	})
	if err != nil {
		t.Fatalf("fast run: %v", err)
	}
	if len(res.Trades) != 4 {
		t.Fatalf("expected 4 round trips, got %d", len(res.Trades))
	}
	day := res.Trades[0].EntryTime.Format("2006-01-02")
	for i, tr := range res.Trades {
		if tr.EntryTime.Format("2006-01-02") != day {
			t.Errorf("trade %d entered on %s, expected all entries on %s",
				i, tr.EntryTime.Format("2006-01-02"), day)
		}
	}
}

func TestRunFastRejectsEmptyBars(t *testing.T) {
	if _, err := RunFast(nil, strategy.NewGreenCandle(1), FastConfig{StartEquity: 1000}); err == nil {
		t.Error("expected error for empty bar slice")
	}
}

func TestRunFullPersistsSummary(t *testing.T) {
	d, scope := newBacktestDB(t)
	res, err := RunFull(context.Background(), d, nil, Params{
		Scope:    scope,
		Strategy: strategy.NewGreenCandle(2),
		Bars:     barsFromCloses(parityCloses...),
		RiskCfg:  risk.DefaultConfig(),
		OrderCfg: order.Config{MaxSlippagePct: 0, StopLossPct: 2, TakeProfitPct: 4},
		Reset:    true,
	})
	if err != nil {
		t.Fatalf("full run: %v", err)
	}
	if res.Run.ID == "" {
		t.Fatal("expected persisted run id")
	}
	if res.Run.TotalTrades != 4 {
		t.Errorf("expected 4 trades in summary, got %d", res.Run.TotalTrades)
	}

	runs, err := d.ListBacktestRuns(context.Background(), scope.PortfolioID, 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected one stored run, got %d", len(runs))
	}
	if runs[0].InitialEquity != 10000 {
		t.Errorf("expected initial equity 10000, got %.2f", runs[0].InitialEquity)
	}
}

func TestRunFullResetIsReproducible(t *testing.T) {
	d, scope := newBacktestDB(t)
	params := Params{
		Scope:    scope,
		Strategy: strategy.NewGreenCandle(2),
		Bars:     barsFromCloses(parityCloses...),
		RiskCfg:  risk.DefaultConfig(),
		OrderCfg: order.Config{MaxSlippagePct: 0, StopLossPct: 2, TakeProfitPct: 4},
		Reset:    true,
	}

	first, err := RunFull(context.Background(), d, nil, params)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	params.Strategy = strategy.NewGreenCandle(2)
	second, err := RunFull(context.Background(), d, nil, params)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if first.Run.TotalTrades != second.Run.TotalTrades {
		t.Errorf("reruns disagree on trades: %d vs %d", first.Run.TotalTrades, second.Run.TotalTrades)
	}
	if first.Run.FinalEquity != second.Run.FinalEquity {
		t.Errorf("reruns disagree on equity: %.2f vs %.2f", first.Run.FinalEquity, second.Run.FinalEquity)
	}

	trades, err := d.ListTrades(context.Background(), scope.PortfolioID, scope.AssetID, "")
	if err != nil {
		t.Fatalf("list trades: %v", err)
	}
	if len(trades) != second.Run.TotalTrades {
		t.Errorf("reset should leave only the latest run's trades, got %d", len(trades))
	}
}

func TestRunSweepOrdersByFinalEquity(t *testing.T) {
	bars := barsFromCloses(parityCloses...)
	combos := []SweepCombo{
		{
			Label:    "confirm=2",
			Strategy: strategy.Config{Type: "green_candle", Parameters: map[string]interface{}{"confirm_bars": 2}},
			Cfg:      FastConfig{StartEquity: 10000, MaxRiskPct: 2, StopLossPct: 2, TakeProfitPct: 4},
		},
		{
			Label:    "confirm=5",
			Strategy: strategy.Config{Type: "green_candle", Parameters: map[string]interface{}{"confirm_bars": 5}},
			Cfg:      FastConfig{StartEquity: 10000, MaxRiskPct: 2, StopLossPct: 2, TakeProfitPct: 4},
		},
		{
			Label:    "bad",
			Strategy: strategy.Config{Type: "nope"},
			Cfg:      FastConfig{StartEquity: 10000},
		},
	}

	results := RunSweep(bars, combos, 2)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[len(results)-1].Err == nil {
		t.Error("failed combo should sort last")
	}
	for i := 1; i < len(results); i++ {
		if results[i].Err != nil {
			continue
		}
		if results[i-1].Result.FinalEquity < results[i].Result.FinalEquity {
			t.Error("results not sorted by final equity descending")
		}
	}
}
