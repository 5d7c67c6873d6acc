package execution

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// PollPolicy bounds how long AwaitTerminal keeps asking the backend
// about a pending order.
type PollPolicy struct {
	MaxAttempts int
	Interval    time.Duration
	// Backoff multiplies the interval after each attempt; 1.0 keeps
	// the pacing flat.
	Backoff float64
	Timeout time.Duration
}

// DefaultPollPolicy suits the in-process simulator, which fills on the
// first poll.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		MaxAttempts: 10,
		Interval:    200 * time.Millisecond,
		Backoff:     1.5,
		Timeout:     30 * time.Second,
	}
}

// ErrPollExhausted is returned when an order is still pending after
// the policy's attempts or timeout ran out. The caller decides the
// local disposition (the order manager cancels its row).
var ErrPollExhausted = fmt.Errorf("order still pending after poll budget")

// AwaitTerminal polls until the order reaches a terminal status or the
// policy is exhausted. The last observed result is always returned so
// callers can record partial information alongside the error.
func AwaitTerminal(ctx context.Context, eng Engine, orderID string, policy PollPolicy) (Result, error) {
	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	interval := policy.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	var last Result
	for attempt := 0; policy.MaxAttempts <= 0 || attempt < policy.MaxAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return last, fmt.Errorf("poll wait: %w", err)
		}

		res, err := eng.Poll(ctx, orderID)
		if err != nil {
			return res, fmt.Errorf("poll %s: %w", orderID, err)
		}
		last = res
		if res.Status.Terminal() {
			return res, nil
		}

		if policy.Backoff > 1 {
			interval = time.Duration(float64(interval) * policy.Backoff)
			limiter.SetLimit(rate.Every(interval))
		}
	}
	return last, ErrPollExhausted
}
