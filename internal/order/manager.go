package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"tradepipe/internal/events"
	"tradepipe/internal/execution"
	"tradepipe/internal/market"
	"tradepipe/internal/risk"
	"tradepipe/pkg/db"
)

// Scope pins a manager to one (portfolio, asset, strategy) triple.
type Scope struct {
	PortfolioID      string
	AssetID          string
	StrategyConfigID string
	Symbol           string
}

// Config holds lifecycle limits. Percent fields are percents.
type Config struct {
	MaxSlippagePct float64
	StopLossPct    float64
	TakeProfitPct  float64
	// DefaultRiskPct sizes entries when no risk-approved size is given.
	DefaultRiskPct float64
	Poll           execution.PollPolicy
}

// Exit reason codes written to closed trades.
const (
	ExitSignal     = "exit_signal"
	ExitStopLoss   = "stop_loss"
	ExitTakeProfit = "take_profit"
)

// Manager owns the ENTER/EXIT workflow for one scope: slippage
// validation, marketable limit pricing, order submission, polling to a
// terminal state and trade bookkeeping.
type Manager struct {
	DB    *db.Database
	Eng   execution.Engine
	Bus   *events.Bus
	Gate  *risk.Gate
	Scope Scope
	Cfg   Config
}

// NewManager builds a lifecycle manager.
func NewManager(database *db.Database, eng execution.Engine, bus *events.Bus, gate *risk.Gate, scope Scope, cfg Config) *Manager {
	if cfg.DefaultRiskPct == 0 {
		cfg.DefaultRiskPct = 2.0
	}
	if cfg.Poll.MaxAttempts == 0 && cfg.Poll.Timeout == 0 {
		cfg.Poll = execution.DefaultPollPolicy()
	}
	return &Manager{DB: database, Eng: eng, Bus: bus, Gate: gate, Scope: scope, Cfg: cfg}
}

// slippageAndLimit compares the previewed price against the signal
// price and builds the marketable limit bound. The bound is keyed on
// the preview direction, not the order side: the limit always brackets
// the worst acceptable fill relative to the decision price.
func (m *Manager) slippageAndLimit(signalPrice, previewPrice float64) (deltaPct, limitPrice float64, ok bool) {
	deltaPct = math.Abs(previewPrice-signalPrice) / signalPrice * 100
	ok = deltaPct <= m.Cfg.MaxSlippagePct

	if previewPrice >= signalPrice {
		limitPrice = signalPrice * (1 + m.Cfg.MaxSlippagePct/100)
	} else {
		limitPrice = signalPrice * (1 - m.Cfg.MaxSlippagePct/100)
	}
	return deltaPct, limitPrice, ok
}

// preview asks the engine for an expected fill price, falling back to
// the signal price when the backend has none.
func (m *Manager) preview(ctx context.Context, signalPrice float64) float64 {
	p, err := m.Eng.Preview(ctx, m.Scope.Symbol)
	if err != nil || p <= 0 {
		return signalPrice
	}
	return p
}

// HandleEnter runs the full entry workflow. A nil order with a nil
// error means the entry was skipped (slippage abort, existing open
// trade, zero size); those are expected outcomes, not failures.
func (m *Manager) HandleEnter(ctx context.Context, signalPrice float64, ts time.Time, bar market.Bar, state *db.PortfolioState, sizeOverride float64) (*db.Order, error) {
	if t := state.OpenTradeFor(m.Scope.AssetID, m.Scope.StrategyConfigID); t != nil {
		log.Printf("enter skipped: open trade %s already exists", t.ID)
		return nil, nil
	}

	size := sizeOverride
	if size <= 0 {
		size = state.Equity() * m.Cfg.DefaultRiskPct / 100 / signalPrice
	}
	if size <= 0 {
		log.Printf("enter skipped: resolved size %.8f", size)
		return nil, nil
	}

	previewPrice := m.preview(ctx, signalPrice)
	deltaPct, limitPrice, ok := m.slippageAndLimit(signalPrice, previewPrice)
	if !ok {
		details := fmt.Sprintf("enter blocked: preview=%.4f signal=%.4f delta=%.4f%% max=%.2f%%",
			previewPrice, signalPrice, deltaPct, m.Cfg.MaxSlippagePct)
		log.Print(details)
		if m.Gate != nil {
			m.Gate.RecordSlippageAbort(ctx, m.Scope.PortfolioID, details, ts)
		}
		return nil, nil
	}

	ord := db.Order{
		ID:               uuid.NewString(),
		PortfolioID:      m.Scope.PortfolioID,
		AssetID:          m.Scope.AssetID,
		StrategyConfigID: m.Scope.StrategyConfigID,
		Side:             "buy",
		OrderType:        "limit",
		Size:             size,
		Price:            limitPrice,
		Status:           db.OrderSubmitted,
		IsSimulated:      m.Eng.Simulated(),
		OpenedAt:         ts.UTC(),
	}
	if err := m.DB.CreateOrder(ctx, ord); err != nil {
		return nil, fmt.Errorf("record entry order: %w", err)
	}
	m.publishOrder(ord, events.EventOrderSubmitted)

	res, err := m.driveToTerminal(ctx, &ord)
	if err != nil {
		return nil, err
	}
	if res.Status != execution.StatusFilled {
		return &ord, nil
	}

	filledAt := res.FilledAt
	if filledAt.IsZero() {
		filledAt = ts.UTC()
	}
	trade := db.Trade{
		ID:               uuid.NewString(),
		PortfolioID:      m.Scope.PortfolioID,
		AssetID:          m.Scope.AssetID,
		StrategyConfigID: m.Scope.StrategyConfigID,
		EntryOrderID:     ord.ID,
		EntryPrice:       res.FillPrice,
		Size:             res.FillSize,
		OpenedAt:         filledAt,
		EntryReason:      "enter_signal",
	}
	if bar.Close > 0 {
		trade.EntryVolatility = bar.Range() / bar.Close
	}
	if err := m.DB.FinalizeEntryFill(ctx, ord.ID, res.FillPrice, res.Fee, filledAt, trade); err != nil {
		return nil, fmt.Errorf("finalize entry fill: %w", err)
	}
	ord.Status = db.OrderFilled
	ord.Price = res.FillPrice
	ord.Fee = res.Fee
	ord.FilledAt = &filledAt

	log.Printf("entered %s size=%.8f fill=%.4f fee=%.4f", m.Scope.Symbol, res.FillSize, res.FillPrice, res.Fee)
	m.publishOrder(ord, events.EventOrderFilled)
	if m.Bus != nil {
		m.Bus.Publish(events.EventTradeOpened, events.TradePayload{
			TradeID: trade.ID, PortfolioID: m.Scope.PortfolioID, Symbol: m.Scope.Symbol,
			EntryPrice: trade.EntryPrice, Size: trade.Size,
		})
	}
	return &ord, nil
}

// HandleExit closes the scope's open trade. A nil order with nil error
// means there was nothing to exit or the exit was slippage-blocked.
func (m *Manager) HandleExit(ctx context.Context, signalPrice float64, ts time.Time, state *db.PortfolioState, reason string) (*db.Order, error) {
	trade := state.OpenTradeFor(m.Scope.AssetID, m.Scope.StrategyConfigID)
	if trade == nil {
		log.Print("exit signal with no open trade")
		return nil, nil
	}
	if reason == "" {
		reason = ExitSignal
	}

	previewPrice := m.preview(ctx, signalPrice)
	deltaPct, limitPrice, ok := m.slippageAndLimit(signalPrice, previewPrice)
	if !ok {
		details := fmt.Sprintf("exit blocked: preview=%.4f signal=%.4f delta=%.4f%% max=%.2f%%",
			previewPrice, signalPrice, deltaPct, m.Cfg.MaxSlippagePct)
		log.Print(details)
		if m.Gate != nil {
			m.Gate.RecordSlippageAbort(ctx, m.Scope.PortfolioID, details, ts)
		}
		return nil, nil
	}

	ord := db.Order{
		ID:               uuid.NewString(),
		PortfolioID:      m.Scope.PortfolioID,
		AssetID:          m.Scope.AssetID,
		StrategyConfigID: m.Scope.StrategyConfigID,
		Side:             "sell",
		OrderType:        "limit",
		Size:             trade.Size,
		Price:            limitPrice,
		Status:           db.OrderSubmitted,
		IsSimulated:      m.Eng.Simulated(),
		OpenedAt:         ts.UTC(),
	}
	if err := m.DB.CreateOrder(ctx, ord); err != nil {
		return nil, fmt.Errorf("record exit order: %w", err)
	}
	m.publishOrder(ord, events.EventOrderSubmitted)

	res, err := m.driveToTerminal(ctx, &ord)
	if err != nil {
		return nil, err
	}
	if res.Status != execution.StatusFilled {
		return &ord, nil
	}

	filledAt := res.FilledAt
	if filledAt.IsZero() {
		filledAt = ts.UTC()
	}
	realizedPnL := (res.FillPrice - trade.EntryPrice) * trade.Size
	realizedPct := realizedPnL / (trade.EntryPrice * trade.Size)
	timeInTrade := filledAt.Sub(trade.OpenedAt).Seconds()

	if err := m.DB.FinalizeExitFill(ctx, ord.ID, res.FillPrice, res.Fee, filledAt,
		trade.ID, res.FillPrice, realizedPnL, realizedPct, reason, filledAt, timeInTrade); err != nil {
		return nil, fmt.Errorf("finalize exit fill: %w", err)
	}
	ord.Status = db.OrderFilled
	ord.Price = res.FillPrice
	ord.Fee = res.Fee
	ord.FilledAt = &filledAt

	log.Printf("exited %s [%s] pnl=%.4f (%.2f%%)", m.Scope.Symbol, reason, realizedPnL, realizedPct*100)
	m.publishOrder(ord, events.EventOrderFilled)
	if m.Bus != nil {
		m.Bus.Publish(events.EventTradeClosed, events.TradePayload{
			TradeID: trade.ID, PortfolioID: m.Scope.PortfolioID, Symbol: m.Scope.Symbol,
			EntryPrice: trade.EntryPrice, ExitPrice: res.FillPrice,
			Size: trade.Size, RealizedPnL: realizedPnL, ExitReason: reason,
		})
	}
	return &ord, nil
}

// CheckAutoExits evaluates stop-loss and take-profit against the bar
// close. Stop-loss is checked first; at most one fires. Returns true
// when an exit was triggered.
func (m *Manager) CheckAutoExits(ctx context.Context, bar market.Bar, state *db.PortfolioState) (bool, error) {
	trade := state.OpenTradeFor(m.Scope.AssetID, m.Scope.StrategyConfigID)
	if trade == nil {
		return false, nil
	}

	price := bar.Close
	if m.Cfg.StopLossPct > 0 && price <= trade.EntryPrice*(1-m.Cfg.StopLossPct/100) {
		_, err := m.HandleExit(ctx, price, bar.Timestamp, state, ExitStopLoss)
		return true, err
	}
	if m.Cfg.TakeProfitPct > 0 && price >= trade.EntryPrice*(1+m.Cfg.TakeProfitPct/100) {
		_, err := m.HandleExit(ctx, price, bar.Timestamp, state, ExitTakeProfit)
		return true, err
	}
	return false, nil
}

// UpdateTradeTracking maintains running excursion extrema for an open
// trade. MFE never decreases and MAE never increases.
func (m *Manager) UpdateTradeTracking(ctx context.Context, bar market.Bar, state *db.PortfolioState) error {
	trade := state.OpenTradeFor(m.Scope.AssetID, m.Scope.StrategyConfigID)
	if trade == nil || trade.EntryPrice <= 0 {
		return nil
	}

	pctChange := (bar.Close - trade.EntryPrice) / trade.EntryPrice
	mfe := math.Max(trade.MFE, pctChange)
	mae := math.Min(trade.MAE, pctChange)
	if mfe == trade.MFE && mae == trade.MAE {
		return nil
	}
	// Run-up and drawdown mirror the excursion extrema.
	if err := m.DB.UpdateTradeExcursions(ctx, trade.ID, mfe, mae, mfe, mae); err != nil {
		return fmt.Errorf("update trade tracking: %w", err)
	}
	trade.MFE, trade.MAE = mfe, mae
	trade.RunUp, trade.Drawdown = mfe, mae
	return nil
}

// driveToTerminal submits the recorded order and polls it to a
// terminal state. Poll exhaustion marks the order CANCELLED locally so
// an unresponsive backend cannot wedge the loop.
func (m *Manager) driveToTerminal(ctx context.Context, ord *db.Order) (execution.Result, error) {
	res, err := m.Eng.Submit(ctx, execution.Request{
		Symbol:    m.Scope.Symbol,
		Side:      ord.Side,
		OrderType: ord.OrderType,
		Size:      ord.Size,
		Price:     ord.Price,
	})
	if err != nil {
		if uerr := m.DB.UpdateOrderStatus(ctx, ord.ID, db.OrderRejected); uerr != nil {
			log.Printf("mark rejected failed: %v", uerr)
		}
		ord.Status = db.OrderRejected
		m.publishOrder(*ord, events.EventOrderRejected)
		return execution.Result{}, fmt.Errorf("submit order: %w", err)
	}
	if err := m.DB.SetOrderExchangeID(ctx, ord.ID, res.OrderID); err != nil {
		return execution.Result{}, fmt.Errorf("store exchange id: %w", err)
	}
	ord.ExchangeOrderID = res.OrderID

	res, err = execution.AwaitTerminal(ctx, m.Eng, res.OrderID, m.Cfg.Poll)
	if err != nil {
		if errors.Is(err, execution.ErrPollExhausted) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Printf("order %s still pending, cancelling locally", ord.ID)
			if uerr := m.DB.UpdateOrderStatus(ctx, ord.ID, db.OrderCancelled); uerr != nil {
				log.Printf("mark cancelled failed: %v", uerr)
			}
			ord.Status = db.OrderCancelled
			m.publishOrder(*ord, events.EventOrderCancelled)
			res.Status = execution.StatusCancelled
			return res, nil
		}
		if uerr := m.DB.UpdateOrderStatus(ctx, ord.ID, db.OrderRejected); uerr != nil {
			log.Printf("mark rejected failed: %v", uerr)
		}
		ord.Status = db.OrderRejected
		m.publishOrder(*ord, events.EventOrderRejected)
		return res, fmt.Errorf("poll order %s: %w", ord.ID, err)
	}

	if res.Status != execution.StatusFilled {
		status := db.OrderCancelled
		evt := events.EventOrderCancelled
		if res.Status == execution.StatusRejected {
			status = db.OrderRejected
			evt = events.EventOrderRejected
		}
		if uerr := m.DB.UpdateOrderStatus(ctx, ord.ID, status); uerr != nil {
			log.Printf("mark %s failed: %v", status, uerr)
		}
		ord.Status = status
		m.publishOrder(*ord, evt)
	}
	return res, nil
}

func (m *Manager) publishOrder(ord db.Order, evt events.Event) {
	if m.Bus == nil {
		return
	}
	m.Bus.Publish(evt, events.OrderPayload{
		OrderID: ord.ID, Symbol: m.Scope.Symbol, Side: ord.Side,
		Size: ord.Size, Price: ord.Price, Status: ord.Status,
		IsSimulated: ord.IsSimulated,
	})
}
