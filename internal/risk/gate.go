package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"tradepipe/internal/events"
	"tradepipe/internal/market"
	"tradepipe/pkg/db"
)

// Gate sits between strategy signals and order placement. Every entry
// signal passes through EvaluateEntry; exits are never vetoed.
type Gate struct {
	DB  *db.Database
	Bus *events.Bus
	Cfg Config
}

// NewGate builds a gate with the given limits.
func NewGate(database *db.Database, bus *events.Bus, cfg Config) *Gate {
	return &Gate{DB: database, Bus: bus, Cfg: cfg}
}

// EvaluateEntry applies the veto chain in a fixed order and, when the
// entry is allowed, sizes the position off the equity basis:
//
//	size = equity * max_risk_per_trade_pct / 100 / price
//
// The equity basis is the last snapshot's ending equity, falling back
// to the portfolio's starting equity when no snapshot exists.
func (g *Gate) EvaluateEntry(ctx context.Context, state *db.PortfolioState, bar market.Bar, price float64, now time.Time) (Decision, error) {
	if state == nil {
		return g.veto(ctx, "", VetoNoPortfolio, "no portfolio loaded", now)
	}

	equity := state.Equity()
	if equity <= 0 {
		return g.veto(ctx, state.Portfolio.ID, VetoNoEquity,
			fmt.Sprintf("equity basis %.2f is not positive", equity), now)
	}

	dailyPnL, _, err := g.DB.DailyActivity(ctx, state.Portfolio.ID, now.UTC().Format("2006-01-02"))
	if err != nil {
		return Decision{}, fmt.Errorf("daily activity lookup: %w", err)
	}

	lossFloor := -equity * g.Cfg.MaxDailyLossPct / 100
	if dailyPnL <= lossFloor {
		return g.veto(ctx, state.Portfolio.ID, VetoDailyLoss,
			fmt.Sprintf("daily pnl %.2f breached floor %.2f", dailyPnL, lossFloor), now)
	}

	// The cap limits concurrent exposure, not turnover: it counts trades
	// that are open right now, so closed trades free up a slot.
	if g.Cfg.MaxTradesPerDay > 0 && len(state.OpenTrades) >= g.Cfg.MaxTradesPerDay {
		return g.veto(ctx, state.Portfolio.ID, VetoTradeCap,
			fmt.Sprintf("open trades %d reached cap %d", len(state.OpenTrades), g.Cfg.MaxTradesPerDay), now)
	}

	dec := Decision{
		Allowed: true,
		Size:    equity * g.Cfg.MaxRiskPerTradePct / 100 / price,
	}

	if g.Cfg.WarnBarRangePct > 0 && bar.Close > 0 &&
		bar.Range() > bar.Close*g.Cfg.WarnBarRangePct/100 {
		warning := fmt.Sprintf("bar range %.2f exceeds %.1f%% of close %.2f",
			bar.Range(), g.Cfg.WarnBarRangePct, bar.Close)
		dec.Warnings = append(dec.Warnings, warning)
		g.record(ctx, state.Portfolio.ID, WarnVolatileBar, warning, now)
	}

	return dec, nil
}

// RecordSlippageAbort logs a slippage veto raised by the order manager.
// The gate owns risk event persistence so all audit rows share a path.
func (g *Gate) RecordSlippageAbort(ctx context.Context, portfolioID, details string, now time.Time) {
	g.record(ctx, portfolioID, EventSlippageHigh, details, now)
}

func (g *Gate) veto(ctx context.Context, portfolioID, reason, details string, now time.Time) (Decision, error) {
	log.Printf("risk veto [%s]: %s", reason, details)
	if portfolioID != "" {
		g.record(ctx, portfolioID, reason, details, now)
	}
	return Decision{Allowed: false, Reason: reason}, nil
}

func (g *Gate) record(ctx context.Context, portfolioID, eventType, details string, now time.Time) {
	payload, _ := json.Marshal(map[string]string{"details": details})
	err := g.DB.CreateRiskEvent(ctx, db.RiskEvent{
		PortfolioID: portfolioID,
		EventType:   eventType,
		Details:     string(payload),
		TriggeredAt: now.UTC(),
	})
	if err != nil {
		log.Printf("risk event persist failed: %v", err)
	}
	if g.Bus != nil {
		g.Bus.Publish(events.EventRiskAlert, events.RiskAlertPayload{
			PortfolioID: portfolioID,
			EventType:   eventType,
			Details:     details,
			Timestamp:   now.UTC(),
		})
	}
}
