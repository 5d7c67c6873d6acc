package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("record not found")

// Timestamps are normalized to UTC before binding so the stored text
// sorts lexically and SQLite's date functions see one zone.
func utcOrNil(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// Order status state machine: SUBMITTED -> {FILLED, CANCELLED, REJECTED}.
const (
	OrderSubmitted = "SUBMITTED"
	OrderFilled    = "FILLED"
	OrderCancelled = "CANCELLED"
	OrderRejected  = "REJECTED"
)

// TerminalStatus reports whether an order status admits no further transitions.
func TerminalStatus(status string) bool {
	return status == OrderFilled || status == OrderCancelled || status == OrderRejected
}

// Asset represents a tradeable instrument.
type Asset struct {
	ID         string
	Symbol     string
	BaseAsset  string
	QuoteAsset string
	IsActive   bool
	CreatedAt  time.Time
}

// Portfolio represents one isolated trading scope.
type Portfolio struct {
	ID             string
	Name           string
	Mode           string // live | paper | backtest
	StartingEquity float64
	BaseCurrency   string
	CreatedAt      time.Time
}

// StrategyConfig is a named, parameterized strategy row.
type StrategyConfig struct {
	ID           string
	Name         string
	StrategyType string
	Params       string // JSON blob of strategy parameters
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Order represents an order stored in the DB. Mutated only through
// status transitions; rows are never deleted outside backtest resets.
type Order struct {
	ID               string
	PortfolioID      string
	AssetID          string
	StrategyConfigID string
	Side             string // buy | sell
	OrderType        string // limit | market
	Size             float64
	Price            float64
	Status           string
	ExchangeOrderID  string
	IsSimulated      bool
	Fee              float64
	OpenedAt         time.Time
	FilledAt         *time.Time
	CreatedAt        time.Time
}

// Trade links an entry order to an (eventual) exit order with running
// per-bar excursion analytics.
type Trade struct {
	ID               string
	PortfolioID      string
	AssetID          string
	StrategyConfigID string
	EntryOrderID     string
	ExitOrderID      string
	EntryPrice       float64
	ExitPrice        float64
	Size             float64
	RealizedPnL      float64
	RealizedPnLPct   float64
	OpenedAt         time.Time
	ClosedAt         *time.Time
	ExitReason       string
	EntryReason      string
	EntryVolatility  float64
	MFE              float64
	MAE              float64
	RunUp            float64
	Drawdown         float64
	TimeInTradeSecs  float64
	CreatedAt        time.Time
}

// Open reports whether the trade has not been closed yet.
func (t Trade) Open() bool { return t.ClosedAt == nil }

// SignalRecord is one persisted strategy decision.
type SignalRecord struct {
	ID               string
	PortfolioID      string
	AssetID          string
	StrategyConfigID string
	Timestamp        time.Time
	SignalType       string // enter | exit | hold
	Price            float64
	Extra            string // JSON diagnostic metadata
	CreatedAt        time.Time
}

// RiskEvent is an append-only audit entry for vetoes and warnings.
type RiskEvent struct {
	ID          string
	PortfolioID string
	EventType   string
	Details     string // JSON
	TriggeredAt time.Time
	CreatedAt   time.Time
}

// DailySnapshot is equity bookkeeping, one row per (portfolio, date).
type DailySnapshot struct {
	ID             string
	PortfolioID    string
	Date           string // YYYY-MM-DD
	StartingEquity float64
	EndingEquity   float64
	RealizedPnL    float64
	UnrealizedPnL  float64
	NumTrades      int
	CreatedAt      time.Time
}

// Candle is one OHLCV bar keyed by (asset, timeframe, timestamp).
type Candle struct {
	ID        string
	AssetID   string
	Timeframe string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Source    string
}

// BacktestRun is a persisted summary of one full-fidelity backtest.
type BacktestRun struct {
	ID               string
	PortfolioID      string
	AssetID          string
	StrategyConfigID string
	StartDate        string
	EndDate          string
	InitialEquity    float64
	FinalEquity      float64
	TotalTrades      int
	WinRate          float64 // percent
	MaxDrawdown      float64 // fraction of peak equity
	Notes            string
	DataSource       string
	CreatedAt        time.Time
}

// ----------------------------------------
// Assets & portfolios
// ----------------------------------------

// GetOrCreateAsset returns the asset row for symbol, inserting it if missing.
func (d *Database) GetOrCreateAsset(ctx context.Context, symbol, base, quote string) (Asset, error) {
	var a Asset
	err := d.DB.QueryRowContext(ctx, `
		SELECT id, symbol, COALESCE(base_asset,''), COALESCE(quote_asset,''), is_active, created_at
		FROM assets WHERE symbol = ?
	`, symbol).Scan(&a.ID, &a.Symbol, &a.BaseAsset, &a.QuoteAsset, &a.IsActive, &a.CreatedAt)
	if err == nil {
		return a, nil
	}
	if err != sql.ErrNoRows {
		return Asset{}, fmt.Errorf("get asset %s: %w", symbol, err)
	}

	a = Asset{ID: uuid.NewString(), Symbol: symbol, BaseAsset: base, QuoteAsset: quote, IsActive: true}
	_, err = d.DB.ExecContext(ctx, `
		INSERT INTO assets (id, symbol, base_asset, quote_asset, is_active)
		VALUES (?, ?, ?, ?, 1)
	`, a.ID, a.Symbol, a.BaseAsset, a.QuoteAsset)
	if err != nil {
		return Asset{}, fmt.Errorf("create asset %s: %w", symbol, err)
	}
	return a, nil
}

// CreatePortfolio inserts a new portfolio row.
func (d *Database) CreatePortfolio(ctx context.Context, p Portfolio) (Portfolio, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO portfolios (id, name, mode, starting_equity, base_currency)
		VALUES (?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Mode, p.StartingEquity, p.BaseCurrency)
	if err != nil {
		return Portfolio{}, fmt.Errorf("create portfolio: %w", err)
	}
	return p, nil
}

// GetPortfolio returns a portfolio by id or ErrNotFound.
func (d *Database) GetPortfolio(ctx context.Context, id string) (Portfolio, error) {
	var p Portfolio
	err := d.DB.QueryRowContext(ctx, `
		SELECT id, name, mode, COALESCE(starting_equity,0), COALESCE(base_currency,''), created_at
		FROM portfolios WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.Mode, &p.StartingEquity, &p.BaseCurrency, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return Portfolio{}, ErrNotFound
	}
	if err != nil {
		return Portfolio{}, fmt.Errorf("get portfolio %s: %w", id, err)
	}
	return p, nil
}

// GetOrCreatePortfolio finds a portfolio by (name, mode) or creates it.
func (d *Database) GetOrCreatePortfolio(ctx context.Context, name, mode, currency string, startingEquity float64) (Portfolio, error) {
	var p Portfolio
	err := d.DB.QueryRowContext(ctx, `
		SELECT id, name, mode, COALESCE(starting_equity,0), COALESCE(base_currency,''), created_at
		FROM portfolios WHERE name = ? AND mode = ?
	`, name, mode).Scan(&p.ID, &p.Name, &p.Mode, &p.StartingEquity, &p.BaseCurrency, &p.CreatedAt)
	if err == nil {
		return p, nil
	}
	if err != sql.ErrNoRows {
		return Portfolio{}, fmt.Errorf("find portfolio %s/%s: %w", name, mode, err)
	}
	return d.CreatePortfolio(ctx, Portfolio{
		Name: name, Mode: mode, BaseCurrency: currency, StartingEquity: startingEquity,
	})
}

// ----------------------------------------
// Strategy configs
// ----------------------------------------

// UpsertStrategyConfig syncs one named strategy config, keyed by name.
// Returns the row id so callers can tag orders and trades with it.
func (d *Database) UpsertStrategyConfig(ctx context.Context, name, strategyType, params string, active bool) (string, error) {
	var id string
	err := d.DB.QueryRowContext(ctx, `SELECT id FROM strategy_configs WHERE name = ?`, name).Scan(&id)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("find strategy config %s: %w", name, err)
	}
	if err == sql.ErrNoRows {
		id = uuid.NewString()
		_, err = d.DB.ExecContext(ctx, `
			INSERT INTO strategy_configs (id, name, strategy_type, params, is_active)
			VALUES (?, ?, ?, ?, ?)
		`, id, name, strategyType, params, active)
		if err != nil {
			return "", fmt.Errorf("create strategy config %s: %w", name, err)
		}
		return id, nil
	}
	_, err = d.DB.ExecContext(ctx, `
		UPDATE strategy_configs
		SET strategy_type = ?, params = ?, is_active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, strategyType, params, active, id)
	if err != nil {
		return "", fmt.Errorf("update strategy config %s: %w", name, err)
	}
	return id, nil
}

// ----------------------------------------
// Orders
// ----------------------------------------

// CreateOrder inserts a new order row.
func (d *Database) CreateOrder(ctx context.Context, o Order) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (
			id, portfolio_id, asset_id, strategy_config_id, side, order_type,
			size, price, status, exchange_order_id, is_simulated, fee, opened_at, filled_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.ID, o.PortfolioID, o.AssetID, o.StrategyConfigID, o.Side, o.OrderType,
		o.Size, o.Price, o.Status, o.ExchangeOrderID, o.IsSimulated, o.Fee, o.OpenedAt.UTC(), utcOrNil(o.FilledAt),
	)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// SetOrderExchangeID stores the exchange-assigned id on an order.
func (d *Database) SetOrderExchangeID(ctx context.Context, id, exchangeID string) error {
	_, err := d.DB.ExecContext(ctx, `UPDATE orders SET exchange_order_id = ? WHERE id = ?`, exchangeID, id)
	return err
}

// UpdateOrderStatus sets the status of an order.
func (d *Database) UpdateOrderStatus(ctx context.Context, id, status string) error {
	_, err := d.DB.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, status, id)
	return err
}

// GetOrder returns an order by id or ErrNotFound.
func (d *Database) GetOrder(ctx context.Context, id string) (Order, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, portfolio_id, asset_id, COALESCE(strategy_config_id,''), side,
		       COALESCE(order_type,''), size, COALESCE(price,0), status,
		       COALESCE(exchange_order_id,''), is_simulated, COALESCE(fee,0),
		       opened_at, filled_at, created_at
		FROM orders WHERE id = ?
	`, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(r rowScanner) (Order, error) {
	var o Order
	var filledAt sql.NullTime
	err := r.Scan(&o.ID, &o.PortfolioID, &o.AssetID, &o.StrategyConfigID, &o.Side,
		&o.OrderType, &o.Size, &o.Price, &o.Status,
		&o.ExchangeOrderID, &o.IsSimulated, &o.Fee,
		&o.OpenedAt, &filledAt, &o.CreatedAt)
	if err != nil {
		return Order{}, err
	}
	if filledAt.Valid {
		t := filledAt.Time
		o.FilledAt = &t
	}
	return o, nil
}

// ListOrders returns recent orders for a portfolio+asset, newest first.
func (d *Database) ListOrders(ctx context.Context, portfolioID, assetID string, limit int) ([]Order, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, portfolio_id, asset_id, COALESCE(strategy_config_id,''), side,
		       COALESCE(order_type,''), size, COALESCE(price,0), status,
		       COALESCE(exchange_order_id,''), is_simulated, COALESCE(fee,0),
		       opened_at, filled_at, created_at
		FROM orders
		WHERE portfolio_id = ? AND asset_id = ?
		ORDER BY opened_at DESC
		LIMIT ?
	`, portfolioID, assetID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var res []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// ----------------------------------------
// Trades
// ----------------------------------------

// CreateTrade inserts the entry leg of a trade.
func (d *Database) CreateTrade(ctx context.Context, t Trade) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (
			id, portfolio_id, asset_id, strategy_config_id, entry_order_id,
			entry_price, size, opened_at, entry_reason, entry_volatility,
			mfe, mae, run_up, drawdown
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.PortfolioID, t.AssetID, t.StrategyConfigID, t.EntryOrderID,
		t.EntryPrice, t.Size, t.OpenedAt.UTC(), t.EntryReason, t.EntryVolatility,
		t.MFE, t.MAE, t.RunUp, t.Drawdown,
	)
	if err != nil {
		return fmt.Errorf("create trade: %w", err)
	}
	return nil
}

// UpdateTradeExcursions stores the running MFE/MAE/run-up/drawdown fields.
func (d *Database) UpdateTradeExcursions(ctx context.Context, tradeID string, mfe, mae, runUp, drawdown float64) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE trades SET mfe = ?, mae = ?, run_up = ?, drawdown = ?
		WHERE id = ?
	`, mfe, mae, runUp, drawdown, tradeID)
	return err
}

func scanTrade(r rowScanner) (Trade, error) {
	var t Trade
	var closedAt sql.NullTime
	var timeInTrade sql.NullFloat64
	err := r.Scan(&t.ID, &t.PortfolioID, &t.AssetID, &t.StrategyConfigID,
		&t.EntryOrderID, &t.ExitOrderID, &t.EntryPrice, &t.ExitPrice,
		&t.Size, &t.RealizedPnL, &t.RealizedPnLPct, &t.OpenedAt, &closedAt,
		&t.ExitReason, &t.EntryReason, &t.EntryVolatility,
		&t.MFE, &t.MAE, &t.RunUp, &t.Drawdown, &timeInTrade, &t.CreatedAt)
	if err != nil {
		return Trade{}, err
	}
	if closedAt.Valid {
		ts := closedAt.Time
		t.ClosedAt = &ts
	}
	if timeInTrade.Valid {
		t.TimeInTradeSecs = timeInTrade.Float64
	}
	return t, nil
}

const tradeColumns = `
	id, portfolio_id, asset_id, COALESCE(strategy_config_id,''),
	entry_order_id, COALESCE(exit_order_id,''), COALESCE(entry_price,0), COALESCE(exit_price,0),
	COALESCE(size,0), COALESCE(realized_pnl,0), COALESCE(realized_pnl_pct,0), opened_at, closed_at,
	COALESCE(exit_reason,''), COALESCE(entry_reason,''), COALESCE(entry_volatility,0),
	COALESCE(mfe,0), COALESCE(mae,0), COALESCE(run_up,0), COALESCE(drawdown,0),
	time_in_trade_secs, created_at`

// GetTrade returns a trade by id or ErrNotFound.
func (d *Database) GetTrade(ctx context.Context, id string) (Trade, error) {
	row := d.DB.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id)
	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return Trade{}, ErrNotFound
	}
	if err != nil {
		return Trade{}, fmt.Errorf("get trade %s: %w", id, err)
	}
	return t, nil
}

// ListTrades returns all trades in a (portfolio, asset, strategy) scope
// ordered by open time.
func (d *Database) ListTrades(ctx context.Context, portfolioID, assetID, strategyConfigID string) ([]Trade, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE portfolio_id = ? AND asset_id = ?
		  AND (? = '' OR strategy_config_id = ?)
		ORDER BY opened_at ASC
	`, portfolioID, assetID, strategyConfigID, strategyConfigID)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var res []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// DailyActivity returns realized pnl and trade count for one portfolio
// on a given date (YYYY-MM-DD). Realized pnl comes from trades closed
// on the date; the trade count covers trades opened on the date and
// feeds the daily snapshot bookkeeping.
func (d *Database) DailyActivity(ctx context.Context, portfolioID, date string) (pnl float64, trades int, err error) {
	err = d.DB.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(realized_pnl), 0)
		FROM trades
		WHERE portfolio_id = ? AND closed_at IS NOT NULL AND DATE(closed_at) = ?
	`, portfolioID, date).Scan(&pnl)
	if err != nil {
		return 0, 0, fmt.Errorf("daily realized pnl: %w", err)
	}
	err = d.DB.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM trades
		WHERE portfolio_id = ? AND DATE(opened_at) = ?
	`, portfolioID, date).Scan(&trades)
	if err != nil {
		return 0, 0, fmt.Errorf("daily trade count: %w", err)
	}
	return pnl, trades, nil
}

// ----------------------------------------
// Signals & risk events
// ----------------------------------------

// CreateSignal inserts a persisted strategy decision.
func (d *Database) CreateSignal(ctx context.Context, s SignalRecord) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO signals (id, portfolio_id, asset_id, strategy_config_id, timestamp, signal_type, price, extra)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.PortfolioID, s.AssetID, s.StrategyConfigID, s.Timestamp.UTC(), s.SignalType, s.Price, s.Extra)
	if err != nil {
		return fmt.Errorf("create signal: %w", err)
	}
	return nil
}

// ListSignals returns recent signals for a portfolio+asset, newest first.
func (d *Database) ListSignals(ctx context.Context, portfolioID, assetID string, limit int) ([]SignalRecord, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, portfolio_id, asset_id, COALESCE(strategy_config_id,''), timestamp,
		       signal_type, COALESCE(price,0), COALESCE(extra,''), created_at
		FROM signals
		WHERE portfolio_id = ? AND asset_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, portfolioID, assetID, limit)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var res []SignalRecord
	for rows.Next() {
		var s SignalRecord
		if err := rows.Scan(&s.ID, &s.PortfolioID, &s.AssetID, &s.StrategyConfigID,
			&s.Timestamp, &s.SignalType, &s.Price, &s.Extra, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// CreateRiskEvent appends an audit entry; rows are never mutated.
func (d *Database) CreateRiskEvent(ctx context.Context, e RiskEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO risk_events (id, portfolio_id, event_type, details, triggered_at)
		VALUES (?, ?, ?, ?, ?)
	`, e.ID, e.PortfolioID, e.EventType, e.Details, e.TriggeredAt.UTC())
	if err != nil {
		return fmt.Errorf("create risk event: %w", err)
	}
	return nil
}

// ListRiskEvents returns recent risk events for a portfolio, newest first.
func (d *Database) ListRiskEvents(ctx context.Context, portfolioID string, limit int) ([]RiskEvent, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, portfolio_id, event_type, COALESCE(details,''), triggered_at, created_at
		FROM risk_events
		WHERE portfolio_id = ?
		ORDER BY triggered_at DESC
		LIMIT ?
	`, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("list risk events: %w", err)
	}
	defer rows.Close()

	var res []RiskEvent
	for rows.Next() {
		var e RiskEvent
		if err := rows.Scan(&e.ID, &e.PortfolioID, &e.EventType, &e.Details, &e.TriggeredAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan risk event: %w", err)
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// ----------------------------------------
// Daily snapshots
// ----------------------------------------

// UpsertDailySnapshot stores equity bookkeeping for (portfolio, date).
func (d *Database) UpsertDailySnapshot(ctx context.Context, s DailySnapshot) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO daily_snapshots (id, portfolio_id, date, starting_equity, ending_equity, realized_pnl, unrealized_pnl, num_trades)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, date) DO UPDATE SET
			ending_equity = excluded.ending_equity,
			realized_pnl = excluded.realized_pnl,
			unrealized_pnl = excluded.unrealized_pnl,
			num_trades = excluded.num_trades
	`, s.ID, s.PortfolioID, s.Date, s.StartingEquity, s.EndingEquity, s.RealizedPnL, s.UnrealizedPnL, s.NumTrades)
	if err != nil {
		return fmt.Errorf("upsert daily snapshot: %w", err)
	}
	return nil
}

// ----------------------------------------
// Candles
// ----------------------------------------

// UpsertCandles bulk-inserts historical bars; re-loading the same range
// is idempotent on (asset, timeframe, timestamp).
func (d *Database) UpsertCandles(ctx context.Context, candles []Candle) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin candle upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (id, asset_id, timeframe, timestamp, open, high, low, close, volume, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(asset_id, timeframe, timestamp) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			source = excluded.source
	`)
	if err != nil {
		return fmt.Errorf("prepare candle upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, id, c.AssetID, c.Timeframe, c.Timestamp.UTC(),
			c.Open, c.High, c.Low, c.Close, c.Volume, c.Source); err != nil {
			return fmt.Errorf("upsert candle %s/%s: %w", c.Timeframe, c.Timestamp, err)
		}
	}
	return tx.Commit()
}

// ListCandles returns candles for an asset/timeframe within [start, end],
// ordered ascending by timestamp.
func (d *Database) ListCandles(ctx context.Context, assetID, timeframe string, start, end time.Time) ([]Candle, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, asset_id, timeframe, timestamp,
		       COALESCE(open,0), COALESCE(high,0), COALESCE(low,0), COALESCE(close,0),
		       COALESCE(volume,0), COALESCE(source,'')
		FROM candles
		WHERE asset_id = ? AND timeframe = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, assetID, timeframe, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("list candles: %w", err)
	}
	defer rows.Close()

	var res []Candle
	for rows.Next() {
		var c Candle
		if err := rows.Scan(&c.ID, &c.AssetID, &c.Timeframe, &c.Timestamp,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Source); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ----------------------------------------
// Backtest runs
// ----------------------------------------

// CreateBacktestRun persists a backtest summary row.
func (d *Database) CreateBacktestRun(ctx context.Context, r BacktestRun) (BacktestRun, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO backtest_runs (
			id, portfolio_id, asset_id, strategy_config_id, start_date, end_date,
			initial_equity, final_equity, total_trades, win_rate, max_drawdown, notes, data_source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.PortfolioID, r.AssetID, r.StrategyConfigID, r.StartDate, r.EndDate,
		r.InitialEquity, r.FinalEquity, r.TotalTrades, r.WinRate, r.MaxDrawdown, r.Notes, r.DataSource,
	)
	if err != nil {
		return BacktestRun{}, fmt.Errorf("create backtest run: %w", err)
	}
	return r, nil
}

// ListBacktestRuns returns recent backtest summaries, newest first.
func (d *Database) ListBacktestRuns(ctx context.Context, portfolioID string, limit int) ([]BacktestRun, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, portfolio_id, COALESCE(asset_id,''), COALESCE(strategy_config_id,''),
		       COALESCE(start_date,''), COALESCE(end_date,''),
		       COALESCE(initial_equity,0), COALESCE(final_equity,0), COALESCE(total_trades,0),
		       COALESCE(win_rate,0), COALESCE(max_drawdown,0), COALESCE(notes,''), COALESCE(data_source,''),
		       created_at
		FROM backtest_runs
		WHERE portfolio_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("list backtest runs: %w", err)
	}
	defer rows.Close()

	var res []BacktestRun
	for rows.Next() {
		var r BacktestRun
		if err := rows.Scan(&r.ID, &r.PortfolioID, &r.AssetID, &r.StrategyConfigID,
			&r.StartDate, &r.EndDate, &r.InitialEquity, &r.FinalEquity, &r.TotalTrades,
			&r.WinRate, &r.MaxDrawdown, &r.Notes, &r.DataSource, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan backtest run: %w", err)
		}
		res = append(res, r)
	}
	return res, rows.Err()
}
