package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PortfolioState is the consistent view the risk gate and order manager
// work from: the portfolio row, its non-terminal orders, its open trades
// and the most recent daily snapshot (nil when none exists yet).
type PortfolioState struct {
	Portfolio    Portfolio
	OpenOrders   []Order
	OpenTrades   []Trade
	LastSnapshot *DailySnapshot
}

// Equity returns the current equity basis: the last snapshot's ending
// equity when one exists, otherwise the portfolio's starting equity.
func (s *PortfolioState) Equity() float64 {
	if s.LastSnapshot != nil {
		return s.LastSnapshot.EndingEquity
	}
	return s.Portfolio.StartingEquity
}

// OpenTradeFor returns the open trade in a strategy scope, or nil.
func (s *PortfolioState) OpenTradeFor(assetID, strategyConfigID string) *Trade {
	for i := range s.OpenTrades {
		t := &s.OpenTrades[i]
		if t.AssetID == assetID && (strategyConfigID == "" || t.StrategyConfigID == strategyConfigID) {
			return t
		}
	}
	return nil
}

// LoadPortfolioState reads portfolio, open orders, open trades and the
// latest snapshot inside one read transaction so the caller sees a
// single point-in-time view.
func (d *Database) LoadPortfolioState(ctx context.Context, portfolioID string) (*PortfolioState, error) {
	tx, err := d.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin state read: %w", err)
	}
	defer tx.Rollback()

	state := &PortfolioState{}

	err = tx.QueryRowContext(ctx, `
		SELECT id, name, mode, COALESCE(starting_equity,0), COALESCE(base_currency,''), created_at
		FROM portfolios WHERE id = ?
	`, portfolioID).Scan(&state.Portfolio.ID, &state.Portfolio.Name, &state.Portfolio.Mode,
		&state.Portfolio.StartingEquity, &state.Portfolio.BaseCurrency, &state.Portfolio.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load portfolio %s: %w", portfolioID, err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, portfolio_id, asset_id, COALESCE(strategy_config_id,''), side,
		       COALESCE(order_type,''), size, COALESCE(price,0), status,
		       COALESCE(exchange_order_id,''), is_simulated, COALESCE(fee,0),
		       opened_at, filled_at, created_at
		FROM orders
		WHERE portfolio_id = ? AND status NOT IN (?, ?, ?)
		ORDER BY opened_at ASC
	`, portfolioID, OrderFilled, OrderCancelled, OrderRejected)
	if err != nil {
		return nil, fmt.Errorf("load open orders: %w", err)
	}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan open order: %w", err)
		}
		state.OpenOrders = append(state.OpenOrders, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = tx.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE portfolio_id = ? AND closed_at IS NULL
		ORDER BY opened_at ASC
	`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("load open trades: %w", err)
	}
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan open trade: %w", err)
		}
		state.OpenTrades = append(state.OpenTrades, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var snap DailySnapshot
	err = tx.QueryRowContext(ctx, `
		SELECT id, portfolio_id, date, COALESCE(starting_equity,0), COALESCE(ending_equity,0),
		       COALESCE(realized_pnl,0), COALESCE(unrealized_pnl,0), COALESCE(num_trades,0), created_at
		FROM daily_snapshots
		WHERE portfolio_id = ?
		ORDER BY date DESC
		LIMIT 1
	`, portfolioID).Scan(&snap.ID, &snap.PortfolioID, &snap.Date, &snap.StartingEquity,
		&snap.EndingEquity, &snap.RealizedPnL, &snap.UnrealizedPnL, &snap.NumTrades, &snap.CreatedAt)
	if err == nil {
		state.LastSnapshot = &snap
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("load last snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit state read: %w", err)
	}
	return state, nil
}

// FinalizeEntryFill marks the entry order filled and opens its trade in
// one transaction so a crash leaves no half-open position.
func (d *Database) FinalizeEntryFill(ctx context.Context, orderID string, fillPrice, fee float64, filledAt time.Time, t Trade) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin entry finalize: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = ?, price = ?, fee = ?, filled_at = ?
		WHERE id = ?
	`, OrderFilled, fillPrice, fee, filledAt.UTC(), orderID)
	if err != nil {
		return fmt.Errorf("mark order filled: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
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
		return fmt.Errorf("open trade: %w", err)
	}
	return tx.Commit()
}

// FinalizeExitFill marks the exit order filled and closes the trade with
// realized pnl and time-in-trade in one transaction.
func (d *Database) FinalizeExitFill(ctx context.Context, orderID string, fillPrice, fee float64, filledAt time.Time,
	tradeID string, exitPrice, realizedPnL, realizedPnLPct float64, exitReason string, closedAt time.Time, timeInTradeSecs float64) error {

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin exit finalize: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = ?, price = ?, fee = ?, filled_at = ?
		WHERE id = ?
	`, OrderFilled, fillPrice, fee, filledAt.UTC(), orderID)
	if err != nil {
		return fmt.Errorf("mark exit order filled: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE trades SET
			exit_order_id = ?, exit_price = ?, realized_pnl = ?, realized_pnl_pct = ?,
			exit_reason = ?, closed_at = ?, time_in_trade_secs = ?
		WHERE id = ?
	`, orderID, exitPrice, realizedPnL, realizedPnLPct, exitReason, closedAt.UTC(), timeInTradeSecs, tradeID)
	if err != nil {
		return fmt.Errorf("close trade: %w", err)
	}
	return tx.Commit()
}

// ResetPortfolioAudit deletes risk events and daily snapshots for a
// portfolio. Backtest portfolios own their audit rows exclusively, so
// wiping them alongside the strategy scope keeps reruns reproducible.
func (d *Database) ResetPortfolioAudit(ctx context.Context, portfolioID string) error {
	for _, table := range []string{"risk_events", "daily_snapshots"} {
		if _, err := d.DB.ExecContext(ctx, `DELETE FROM `+table+` WHERE portfolio_id = ?`, portfolioID); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

// ResetStrategyScope deletes orders, trades and signals for one
// (portfolio, asset, strategy) scope. Backtests call this before a run
// so repeated runs over the same range stay deterministic.
func (d *Database) ResetStrategyScope(ctx context.Context, portfolioID, assetID, strategyConfigID string) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin scope reset: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"trades", "orders", "signals"} {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM `+table+`
			WHERE portfolio_id = ? AND asset_id = ?
			  AND (? = '' OR strategy_config_id = ?)
		`, portfolioID, assetID, strategyConfigID, strategyConfigID)
		if err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return tx.Commit()
}
