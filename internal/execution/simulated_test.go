package execution

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fixedPrice(p float64) PriceSource {
	return func(string) (float64, error) { return p, nil }
}

func TestSimulatorPreviewEchoesSource(t *testing.T) {
	s := NewSimulator(fixedPrice(105.5), 10)
	got, err := s.Preview(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if got != 105.5 {
		t.Errorf("expected 105.5, got %.2f", got)
	}
}

func TestSimulatorSubmitAssignsSequentialIDs(t *testing.T) {
	s := NewSimulator(fixedPrice(100), 0)
	ctx := context.Background()

	r1, err := s.Submit(ctx, Request{Symbol: "BTC/USDT", Side: "buy", OrderType: "limit", Size: 1, Price: 100})
	if err != nil {
		t.Fatalf("submit 1: %v", err)
	}
	r2, err := s.Submit(ctx, Request{Symbol: "BTC/USDT", Side: "sell", OrderType: "limit", Size: 1, Price: 101})
	if err != nil {
		t.Fatalf("submit 2: %v", err)
	}
	if r1.OrderID != "sim-1" || r2.OrderID != "sim-2" {
		t.Errorf("expected sim-1, sim-2, got %s, %s", r1.OrderID, r2.OrderID)
	}
	if r1.Status != StatusSubmitted {
		t.Errorf("expected SUBMITTED on submit, got %s", r1.Status)
	}
}

func TestSimulatorFillsAtLimitWithFee(t *testing.T) {
	s := NewSimulator(fixedPrice(100), 10) // 10 bps
	ctx := context.Background()

	r, err := s.Submit(ctx, Request{Symbol: "BTC/USDT", Side: "buy", OrderType: "limit", Size: 2, Price: 101})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	res, err := s.Poll(ctx, r.OrderID)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if res.Status != StatusFilled {
		t.Fatalf("expected FILLED on first poll, got %s", res.Status)
	}
	if res.FillPrice != 101 {
		t.Errorf("expected fill at limit 101, got %.2f", res.FillPrice)
	}
	// fee = |101 * 2| * 10 / 10000 = 0.202
	if want := 0.202; res.Fee < want-1e-9 || res.Fee > want+1e-9 {
		t.Errorf("expected fee %.4f, got %.4f", want, res.Fee)
	}
	if res.FilledAt.IsZero() {
		t.Error("expected fill timestamp")
	}
}

func TestSimulatorPollTerminalIsIdempotent(t *testing.T) {
	s := NewSimulator(fixedPrice(100), 5)
	ctx := context.Background()

	r, _ := s.Submit(ctx, Request{Symbol: "BTC/USDT", Side: "buy", OrderType: "limit", Size: 1, Price: 100})
	first, err := s.Poll(ctx, r.OrderID)
	if err != nil {
		t.Fatalf("first poll: %v", err)
	}
	second, err := s.Poll(ctx, r.OrderID)
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if first != second {
		t.Errorf("terminal poll should repeat the same result: %+v vs %+v", first, second)
	}
}

func TestSimulatorUnknownOrderRejected(t *testing.T) {
	s := NewSimulator(fixedPrice(100), 0)
	res, err := s.Poll(context.Background(), "sim-999")
	if !errors.Is(err, ErrUnknownOrder) {
		t.Fatalf("expected ErrUnknownOrder, got %v", err)
	}
	if res.Status != StatusRejected {
		t.Errorf("expected REJECTED for unknown id, got %s", res.Status)
	}
}

func TestSimulatorRejectsInvalidRequests(t *testing.T) {
	s := NewSimulator(fixedPrice(100), 0)
	ctx := context.Background()

	if _, err := s.Submit(ctx, Request{Side: "buy", OrderType: "limit", Size: 0, Price: 100}); err == nil {
		t.Error("expected error for zero size")
	}
	if _, err := s.Submit(ctx, Request{Side: "buy", OrderType: "limit", Size: 1, Price: 0}); err == nil {
		t.Error("expected error for zero limit price")
	}
}

func TestSimulatorMarketOrderUsesSourcePrice(t *testing.T) {
	s := NewSimulator(fixedPrice(99.5), 0)
	ctx := context.Background()

	r, err := s.Submit(ctx, Request{Symbol: "BTC/USDT", Side: "buy", OrderType: "market", Size: 1})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	res, err := s.Poll(ctx, r.OrderID)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if res.FillPrice != 99.5 {
		t.Errorf("expected market fill at 99.5, got %.2f", res.FillPrice)
	}
}

func TestAwaitTerminalFillsSimulatedOrder(t *testing.T) {
	s := NewSimulator(fixedPrice(100), 0)
	ctx := context.Background()

	r, _ := s.Submit(ctx, Request{Symbol: "BTC/USDT", Side: "buy", OrderType: "limit", Size: 1, Price: 100})
	policy := PollPolicy{MaxAttempts: 3, Interval: time.Millisecond, Backoff: 1, Timeout: time.Second}
	res, err := AwaitTerminal(ctx, s, r.OrderID, policy)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if res.Status != StatusFilled {
		t.Errorf("expected FILLED, got %s", res.Status)
	}
}

func TestAwaitTerminalExhaustsOnPendingOrder(t *testing.T) {
	eng := &pendingEngine{}
	policy := PollPolicy{MaxAttempts: 3, Interval: time.Millisecond, Backoff: 1, Timeout: time.Second}
	_, err := AwaitTerminal(context.Background(), eng, "x-1", policy)
	if !errors.Is(err, ErrPollExhausted) {
		t.Fatalf("expected ErrPollExhausted, got %v", err)
	}
	if eng.polls != 3 {
		t.Errorf("expected 3 polls, got %d", eng.polls)
	}
}

// pendingEngine never fills; it exercises the poll budget.
type pendingEngine struct{ polls int }

func (e *pendingEngine) Preview(ctx context.Context, symbol string) (float64, error) { return 100, nil }
func (e *pendingEngine) Submit(ctx context.Context, req Request) (Result, error) {
	return Result{OrderID: "x-1", Status: StatusSubmitted}, nil
}
func (e *pendingEngine) Poll(ctx context.Context, orderID string) (Result, error) {
	e.polls++
	return Result{OrderID: orderID, Status: StatusSubmitted}, nil
}
func (e *pendingEngine) Simulated() bool { return true }
