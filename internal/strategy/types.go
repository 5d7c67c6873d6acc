package strategy

import (
	"time"

	"tradepipe/internal/market"
)

// SignalType is a strategy decision kind.
type SignalType string

const (
	SignalEnter SignalType = "enter"
	SignalExit  SignalType = "exit"
	SignalHold  SignalType = "hold"
)

// Signal is a decision emitted by a strategy for one closed bar.
type Signal struct {
	Timestamp time.Time
	Type      SignalType
	Price     float64
	Note      string
}

// PositionState tells a strategy whether its scope currently holds an
// open trade. Strategies never read the database directly.
type PositionState struct {
	InPosition bool
	EntryPrice float64
}

// Strategy defines the interface all strategies implement. OnBar may
// return nil when the strategy has no opinion (for example while its
// indicators are still warming up).
type Strategy interface {
	// Name returns the human-readable strategy name.
	Name() string
	// OnBar processes one closed bar and the current position state.
	OnBar(bar market.Bar, pos PositionState) *Signal
	// Reset discards accumulated indicator state.
	Reset()
}
