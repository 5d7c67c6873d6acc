package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"tradepipe/internal/events"
	"tradepipe/internal/market"
	"tradepipe/internal/order"
	"tradepipe/internal/risk"
	"tradepipe/internal/strategy"
	"tradepipe/pkg/db"
)

// Runner sequences one strategy scope bar by bar: load state, update
// trade tracking, check auto-exits, ask the strategy, debounce, gate,
// then hand off to the lifecycle manager. One bar completes fully
// before the next begins.
type Runner struct {
	DB       *db.Database
	Bus      *events.Bus
	Strategy strategy.Strategy
	Gate     *risk.Gate
	Manager  *order.Manager
	Scope    order.Scope

	// lastSignalType implements the per-instance debounce: a signal
	// matching the previous emitted type is dropped before persistence.
	lastSignalType strategy.SignalType
}

// New builds a runner for one scope.
func New(database *db.Database, bus *events.Bus, strat strategy.Strategy, gate *risk.Gate, mgr *order.Manager) *Runner {
	return &Runner{
		DB:       database,
		Bus:      bus,
		Strategy: strat,
		Gate:     gate,
		Manager:  mgr,
		Scope:    mgr.Scope,
	}
}

// Reset clears debounce and strategy state for a fresh pass.
func (r *Runner) Reset() {
	r.lastSignalType = ""
	r.Strategy.Reset()
}

// ProcessBar handles one closed bar end to end.
func (r *Runner) ProcessBar(ctx context.Context, bar market.Bar) error {
	state, err := r.DB.LoadPortfolioState(ctx, r.Scope.PortfolioID)
	if err != nil {
		return fmt.Errorf("load portfolio state: %w", err)
	}

	if err := r.Manager.UpdateTradeTracking(ctx, bar, state); err != nil {
		return err
	}

	autoExited, err := r.Manager.CheckAutoExits(ctx, bar, state)
	if err != nil {
		return err
	}
	if autoExited {
		// The close mutated orders and trades; re-read before deciding.
		state, err = r.DB.LoadPortfolioState(ctx, r.Scope.PortfolioID)
		if err != nil {
			return fmt.Errorf("reload portfolio state: %w", err)
		}
	}

	pos := strategy.PositionState{}
	if t := state.OpenTradeFor(r.Scope.AssetID, r.Scope.StrategyConfigID); t != nil {
		pos.InPosition = true
		pos.EntryPrice = t.EntryPrice
	}

	sig := r.Strategy.OnBar(bar, pos)
	if sig == nil {
		return nil
	}

	if sig.Type == r.lastSignalType {
		return nil
	}
	r.lastSignalType = sig.Type

	if err := r.persistSignal(ctx, sig); err != nil {
		return err
	}

	switch sig.Type {
	case strategy.SignalEnter:
		decision, err := r.Gate.EvaluateEntry(ctx, state, bar, sig.Price, bar.Timestamp)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			log.Printf("entry vetoed [%s] %s @ %.4f", decision.Reason, r.Scope.Symbol, sig.Price)
			return nil
		}
		_, err = r.Manager.HandleEnter(ctx, sig.Price, sig.Timestamp, bar, state, decision.Size)
		return err

	case strategy.SignalExit:
		// An auto-exit this bar already closed the trade; the strategy
		// exit would only hit the no-open-trade path.
		if autoExited {
			return nil
		}
		_, err := r.Manager.HandleExit(ctx, sig.Price, sig.Timestamp, state, order.ExitSignal)
		return err
	}
	return nil
}

// Run consumes bars from the event bus until the context is cancelled.
// Bars for other symbols are ignored.
func (r *Runner) Run(ctx context.Context) {
	ch, unsub := r.Bus.Subscribe(events.EventBar, 64)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			bp, ok := payload.(events.BarPayload)
			if !ok || bp.Symbol != r.Scope.Symbol {
				continue
			}
			bar := market.Bar{
				Timestamp: bp.Timestamp,
				Open:      bp.Open, High: bp.High, Low: bp.Low,
				Close: bp.Close, Volume: bp.Volume,
			}
			if err := r.ProcessBar(ctx, bar); err != nil {
				log.Printf("process bar %s: %v", bar.Timestamp, err)
			}
		}
	}
}

func (r *Runner) persistSignal(ctx context.Context, sig *strategy.Signal) error {
	extra := ""
	if sig.Note != "" {
		b, _ := json.Marshal(map[string]string{"note": sig.Note})
		extra = string(b)
	}
	err := r.DB.CreateSignal(ctx, db.SignalRecord{
		PortfolioID:      r.Scope.PortfolioID,
		AssetID:          r.Scope.AssetID,
		StrategyConfigID: r.Scope.StrategyConfigID,
		Timestamp:        sig.Timestamp.UTC(),
		SignalType:       string(sig.Type),
		Price:            sig.Price,
		Extra:            extra,
	})
	if err != nil {
		return fmt.Errorf("persist signal: %w", err)
	}
	if r.Bus != nil {
		r.Bus.Publish(events.EventSignal, events.SignalPayload{
			Symbol:     r.Scope.Symbol,
			Strategy:   r.Strategy.Name(),
			SignalType: string(sig.Type),
			Price:      sig.Price,
			Timestamp:  sig.Timestamp,
		})
	}
	return nil
}
