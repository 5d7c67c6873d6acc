package execution

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// PriceSource provides the current market price for the simulator.
// The runner points it at the latest closed bar.
type PriceSource func(symbol string) (float64, error)

// Simulator is an in-process execution backend. Orders fill instantly
// at their limit price on the first poll, with a configurable fee in
// basis points of notional.
type Simulator struct {
	Prices PriceSource
	FeeBps float64
	// Clock allows backtests to stamp fills with bar time.
	Clock func() time.Time

	mu     sync.Mutex
	seq    int
	orders map[string]Result
}

// NewSimulator builds a simulator over the given price source.
func NewSimulator(prices PriceSource, feeBps float64) *Simulator {
	return &Simulator{
		Prices: prices,
		FeeBps: feeBps,
		Clock:  time.Now,
		orders: make(map[string]Result),
	}
}

func (s *Simulator) Simulated() bool { return true }

// Preview echoes the current price from the source.
func (s *Simulator) Preview(ctx context.Context, symbol string) (float64, error) {
	if s.Prices == nil {
		return 0, fmt.Errorf("simulator has no price source")
	}
	return s.Prices(symbol)
}

// Submit accepts the order and parks it as SUBMITTED. The fill happens
// on the first poll so callers exercise the same poll loop as a real
// backend.
func (s *Simulator) Submit(ctx context.Context, req Request) (Result, error) {
	if req.Size <= 0 {
		return Result{}, fmt.Errorf("invalid order size %.8f", req.Size)
	}
	if req.OrderType == "limit" && req.Price <= 0 {
		return Result{}, fmt.Errorf("invalid limit price %.8f", req.Price)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := fmt.Sprintf("sim-%d", s.seq)

	price := req.Price
	if req.OrderType == "market" {
		p, err := s.Prices(req.Symbol)
		if err != nil {
			return Result{}, fmt.Errorf("price market order: %w", err)
		}
		price = p
	}

	res := Result{
		OrderID:   id,
		Status:    StatusSubmitted,
		FillPrice: price,
		FillSize:  req.Size,
	}
	s.orders[id] = res
	return res, nil
}

// Poll fills a pending order at its recorded price and returns the
// terminal result. Unknown ids are REJECTED with ErrUnknownOrder.
// Polling a terminal order returns the same result again.
func (s *Simulator) Poll(ctx context.Context, orderID string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.orders[orderID]
	if !ok {
		return Result{OrderID: orderID, Status: StatusRejected}, ErrUnknownOrder
	}
	if res.Status.Terminal() {
		return res, nil
	}

	notional := math.Abs(res.FillPrice * res.FillSize)
	res.Status = StatusFilled
	res.Fee = notional * s.FeeBps / 10000
	res.FilledAt = s.Clock().UTC()
	s.orders[orderID] = res
	return res, nil
}
