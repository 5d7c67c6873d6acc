package db

import (
	"database/sql"
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS assets (
    id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL UNIQUE,
    base_asset TEXT,
    quote_asset TEXT,
    is_active BOOLEAN DEFAULT 1,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS portfolios (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    mode TEXT NOT NULL,
    starting_equity REAL,
    base_currency TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS strategy_configs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    strategy_type TEXT NOT NULL,
    params TEXT NOT NULL,
    is_active BOOLEAN DEFAULT 1,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS orders (
    id TEXT PRIMARY KEY,
    portfolio_id TEXT NOT NULL,
    asset_id TEXT NOT NULL,
    strategy_config_id TEXT,
    side TEXT NOT NULL,
    order_type TEXT,
    size REAL NOT NULL,
    price REAL,
    status TEXT NOT NULL,
    exchange_order_id TEXT,
    is_simulated BOOLEAN DEFAULT 0,
    fee REAL DEFAULT 0,
    opened_at DATETIME NOT NULL,
    filled_at DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY(portfolio_id) REFERENCES portfolios(id),
    FOREIGN KEY(asset_id) REFERENCES assets(id)
);

CREATE TABLE IF NOT EXISTS trades (
    id TEXT PRIMARY KEY,
    portfolio_id TEXT NOT NULL,
    asset_id TEXT NOT NULL,
    strategy_config_id TEXT,
    entry_order_id TEXT NOT NULL,
    exit_order_id TEXT,
    entry_price REAL,
    exit_price REAL,
    size REAL,
    realized_pnl REAL,
    realized_pnl_pct REAL,
    opened_at DATETIME,
    closed_at DATETIME,
    exit_reason TEXT,
    entry_reason TEXT,
    entry_volatility REAL DEFAULT 0,
    mfe REAL DEFAULT 0,
    mae REAL DEFAULT 0,
    run_up REAL DEFAULT 0,
    drawdown REAL DEFAULT 0,
    time_in_trade_secs REAL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY(portfolio_id) REFERENCES portfolios(id),
    FOREIGN KEY(entry_order_id) REFERENCES orders(id),
    FOREIGN KEY(exit_order_id) REFERENCES orders(id)
);

CREATE TABLE IF NOT EXISTS signals (
    id TEXT PRIMARY KEY,
    portfolio_id TEXT NOT NULL,
    asset_id TEXT NOT NULL,
    strategy_config_id TEXT,
    timestamp DATETIME NOT NULL,
    signal_type TEXT NOT NULL,
    price REAL,
    extra TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY(portfolio_id) REFERENCES portfolios(id)
);

CREATE TABLE IF NOT EXISTS risk_events (
    id TEXT PRIMARY KEY,
    portfolio_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    details TEXT,
    triggered_at DATETIME NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY(portfolio_id) REFERENCES portfolios(id)
);

CREATE TABLE IF NOT EXISTS daily_snapshots (
    id TEXT PRIMARY KEY,
    portfolio_id TEXT NOT NULL,
    date TEXT NOT NULL,
    starting_equity REAL,
    ending_equity REAL,
    realized_pnl REAL,
    unrealized_pnl REAL,
    num_trades INTEGER,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(portfolio_id, date),
    FOREIGN KEY(portfolio_id) REFERENCES portfolios(id)
);

CREATE TABLE IF NOT EXISTS candles (
    id TEXT PRIMARY KEY,
    asset_id TEXT NOT NULL,
    timeframe TEXT NOT NULL,
    timestamp DATETIME NOT NULL,
    open REAL,
    high REAL,
    low REAL,
    close REAL,
    volume REAL,
    source TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(asset_id, timeframe, timestamp),
    FOREIGN KEY(asset_id) REFERENCES assets(id)
);

CREATE TABLE IF NOT EXISTS backtest_runs (
    id TEXT PRIMARY KEY,
    portfolio_id TEXT NOT NULL,
    asset_id TEXT,
    strategy_config_id TEXT,
    start_date TEXT,
    end_date TEXT,
    initial_equity REAL,
    final_equity REAL,
    total_trades INTEGER,
    win_rate REAL,
    max_drawdown REAL,
    notes TEXT,
    data_source TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY(portfolio_id) REFERENCES portfolios(id)
);

CREATE INDEX IF NOT EXISTS idx_orders_portfolio ON orders(portfolio_id, asset_id);
CREATE INDEX IF NOT EXISTS idx_trades_portfolio ON trades(portfolio_id, asset_id);
CREATE INDEX IF NOT EXISTS idx_signals_portfolio ON signals(portfolio_id, asset_id);
CREATE INDEX IF NOT EXISTS idx_candles_lookup ON candles(asset_id, timeframe, timestamp);
`

// ApplyMigrations bootstraps the schema; keep lightweight for fast startup.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	// Lightweight, idempotent migrations for older DB files.
	if err := ensureColumn(d.DB, "trades", "entry_reason", "TEXT"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "trades", "time_in_trade_secs", "REAL"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "orders", "is_simulated", "BOOLEAN DEFAULT 0"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "backtest_runs", "data_source", "TEXT"); err != nil {
		return err
	}

	return nil
}

// ensureColumn adds a column if it does not already exist.
func ensureColumn(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := db.Exec(alter); err != nil {
		return fmt.Errorf("alter table %s add column %s: %w", table, column, err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, fmt.Errorf("pragma table_info(%s): %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
