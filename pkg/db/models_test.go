package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	d, err := New(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := ApplyMigrations(d); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return d
}

func seedScope(t *testing.T, d *Database) (Portfolio, Asset) {
	t.Helper()
	ctx := context.Background()
	p, err := d.CreatePortfolio(ctx, Portfolio{
		Name: "test", Mode: "paper", StartingEquity: 10000, BaseCurrency: "USDT",
	})
	if err != nil {
		t.Fatalf("create portfolio: %v", err)
	}
	a, err := d.GetOrCreateAsset(ctx, "BTC/USDT", "BTC", "USDT")
	if err != nil {
		t.Fatalf("create asset: %v", err)
	}
	return p, a
}

func TestGetOrCreateAssetIdempotent(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	a1, err := d.GetOrCreateAsset(ctx, "ETH/USDT", "ETH", "USDT")
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	a2, err := d.GetOrCreateAsset(ctx, "ETH/USDT", "ETH", "USDT")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if a1.ID != a2.ID {
		t.Errorf("expected same asset id, got %s and %s", a1.ID, a2.ID)
	}
}

func TestGetOrCreatePortfolioReuses(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	p1, err := d.GetOrCreatePortfolio(ctx, "main", "paper", "USDT", 10000)
	if err != nil {
		t.Fatalf("first bootstrap: %v", err)
	}
	p2, err := d.GetOrCreatePortfolio(ctx, "main", "paper", "USDT", 99999)
	if err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	if p1.ID != p2.ID {
		t.Errorf("expected same portfolio id, got %s and %s", p1.ID, p2.ID)
	}
	if p2.StartingEquity != 10000 {
		t.Errorf("expected original starting equity 10000, got %.2f", p2.StartingEquity)
	}
}

func TestOrderLifecycle(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	p, a := seedScope(t, d)

	o := Order{
		ID: uuid.NewString(), PortfolioID: p.ID, AssetID: a.ID,
		Side: "buy", OrderType: "limit", Size: 0.5, Price: 100,
		Status: OrderSubmitted, IsSimulated: true, OpenedAt: time.Now().UTC(),
	}
	if err := d.CreateOrder(ctx, o); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := d.SetOrderExchangeID(ctx, o.ID, "sim-1"); err != nil {
		t.Fatalf("set exchange id: %v", err)
	}
	if err := d.UpdateOrderStatus(ctx, o.ID, OrderFilled); err != nil {
		t.Fatalf("update status: %v", err)
	}

	got, err := d.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != OrderFilled {
		t.Errorf("expected status FILLED, got %s", got.Status)
	}
	if got.ExchangeOrderID != "sim-1" {
		t.Errorf("expected exchange id sim-1, got %s", got.ExchangeOrderID)
	}
	if !got.IsSimulated {
		t.Error("expected simulated flag to persist")
	}
}

func TestTerminalStatus(t *testing.T) {
	cases := []struct {
		status string
		want   bool
	}{
		{OrderSubmitted, false},
		{OrderFilled, true},
		{OrderCancelled, true},
		{OrderRejected, true},
	}
	for _, tc := range cases {
		if got := TerminalStatus(tc.status); got != tc.want {
			t.Errorf("TerminalStatus(%s) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestDailyActivityMatchesCalendarDate(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	p, a := seedScope(t, d)

	// Timestamps arrive in whatever zone the host runs in; stored rows
	// must still group under the right UTC calendar date.
	loc := time.FixedZone("UTC+9", 9*3600)
	now := time.Now().In(loc)

	closed := Trade{
		ID: uuid.NewString(), PortfolioID: p.ID, AssetID: a.ID,
		EntryOrderID: uuid.NewString(), EntryPrice: 100, Size: 1, OpenedAt: now,
	}
	if err := d.CreateTrade(ctx, closed); err != nil {
		t.Fatalf("create closed trade: %v", err)
	}
	err := d.FinalizeExitFill(ctx, uuid.NewString(), 98.5, 0.05, now,
		closed.ID, 98.5, -150, -1.5, "stop_loss", now, 60)
	if err != nil {
		t.Fatalf("close trade: %v", err)
	}

	open := Trade{
		ID: uuid.NewString(), PortfolioID: p.ID, AssetID: a.ID,
		EntryOrderID: uuid.NewString(), EntryPrice: 101, Size: 1, OpenedAt: now,
	}
	if err := d.CreateTrade(ctx, open); err != nil {
		t.Fatalf("create open trade: %v", err)
	}

	today := now.UTC().Format("2006-01-02")
	pnl, trades, err := d.DailyActivity(ctx, p.ID, today)
	if err != nil {
		t.Fatalf("daily activity: %v", err)
	}
	if pnl != -150 {
		t.Errorf("expected realized pnl -150 for %s, got %.2f", today, pnl)
	}
	if trades != 2 {
		t.Errorf("expected 2 trades opened on %s, got %d", today, trades)
	}

	yesterday := now.UTC().AddDate(0, 0, -1).Format("2006-01-02")
	pnl, trades, err = d.DailyActivity(ctx, p.ID, yesterday)
	if err != nil {
		t.Fatalf("daily activity for prior date: %v", err)
	}
	if pnl != 0 || trades != 0 {
		t.Errorf("expected no activity on %s, got pnl %.2f and %d trades", yesterday, pnl, trades)
	}
}

func TestUpsertDailySnapshotReplacesSameDate(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	p, _ := seedScope(t, d)

	snap := DailySnapshot{
		PortfolioID: p.ID, Date: "2026-08-30",
		StartingEquity: 10000, EndingEquity: 10100, RealizedPnL: 100, NumTrades: 2,
	}
	if err := d.UpsertDailySnapshot(ctx, snap); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	snap.EndingEquity = 10250
	snap.NumTrades = 3
	if err := d.UpsertDailySnapshot(ctx, snap); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var count int
	var ending float64
	err := d.DB.QueryRowContext(ctx, `
		SELECT COUNT(*), MAX(ending_equity) FROM daily_snapshots WHERE portfolio_id = ?
	`, p.ID).Scan(&count, &ending)
	if err != nil {
		t.Fatalf("query snapshots: %v", err)
	}
	if count != 1 {
		t.Errorf("expected one snapshot row, got %d", count)
	}
	if ending != 10250 {
		t.Errorf("expected ending equity 10250, got %.2f", ending)
	}
}

func TestUpsertCandlesIdempotent(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	_, a := seedScope(t, d)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []Candle{
		{AssetID: a.ID, Timeframe: "1h", Timestamp: base, Open: 100, High: 105, Low: 99, Close: 104, Volume: 10},
		{AssetID: a.ID, Timeframe: "1h", Timestamp: base.Add(time.Hour), Open: 104, High: 106, Low: 103, Close: 105, Volume: 12},
	}
	if err := d.UpsertCandles(ctx, candles); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	candles[1].Close = 107
	if err := d.UpsertCandles(ctx, candles); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := d.ListCandles(ctx, a.ID, "1h", base, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("list candles: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(got))
	}
	if got[1].Close != 107 {
		t.Errorf("expected updated close 107, got %.2f", got[1].Close)
	}
	if !got[0].Timestamp.Before(got[1].Timestamp) {
		t.Error("expected ascending timestamp order")
	}
}

func TestUpsertStrategyConfigKeyedByName(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	id1, err := d.UpsertStrategyConfig(ctx, "green-1h", "green_candle", `{"confirm_bars":1}`, true)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	id2, err := d.UpsertStrategyConfig(ctx, "green-1h", "green_candle", `{"confirm_bars":2}`, true)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected stable config id, got %s then %s", id1, id2)
	}

	var params string
	if err := d.DB.QueryRowContext(ctx, `SELECT params FROM strategy_configs WHERE id = ?`, id1).Scan(&params); err != nil {
		t.Fatalf("query params: %v", err)
	}
	if params != `{"confirm_bars":2}` {
		t.Errorf("expected updated params, got %s", params)
	}
}
