package execution

import (
	"context"
	"errors"
	"time"
)

// Status is the backend-reported lifecycle state of an order.
type Status string

const (
	StatusSubmitted Status = "SUBMITTED"
	StatusFilled    Status = "FILLED"
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
)

// Terminal reports whether a status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// Request is what the order manager submits to a backend.
type Request struct {
	Symbol    string
	Side      string // buy | sell
	OrderType string // limit | market
	Size      float64
	Price     float64 // limit price; ignored for market orders
}

// Result is the backend's view of an order after submit or poll.
type Result struct {
	OrderID   string
	Status    Status
	FillPrice float64
	FillSize  float64
	Fee       float64
	FilledAt  time.Time
}

// ErrUnknownOrder is returned by Poll for ids the backend never issued.
var ErrUnknownOrder = errors.New("unknown order id")

// Engine abstracts the execution backend. A preview quote never places
// an order; Submit places one and returns the backend order id; Poll
// reports current status and is safe to repeat on terminal orders.
type Engine interface {
	// Preview returns the current executable price for the symbol.
	Preview(ctx context.Context, symbol string) (float64, error)
	// Submit places an order and returns its initial result.
	Submit(ctx context.Context, req Request) (Result, error)
	// Poll returns the current state of a previously submitted order.
	Poll(ctx context.Context, orderID string) (Result, error)
	// Simulated reports whether fills are synthetic.
	Simulated() bool
}
