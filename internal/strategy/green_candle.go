package strategy

import (
	"fmt"

	"tradepipe/internal/market"
)

// GreenCandle enters after a run of consecutive bullish closes and
// exits on the first bearish close while in a position.
type GreenCandle struct {
	confirmBars int
	streak      int
}

// NewGreenCandle builds the strategy; confirmBars is the number of
// consecutive bullish bars required before entering.
func NewGreenCandle(confirmBars int) *GreenCandle {
	if confirmBars < 1 {
		confirmBars = 1
	}
	return &GreenCandle{confirmBars: confirmBars}
}

func (s *GreenCandle) Name() string {
	return fmt.Sprintf("green_candle_%d", s.confirmBars)
}

func (s *GreenCandle) OnBar(bar market.Bar, pos PositionState) *Signal {
	if bar.Bullish() {
		s.streak++
	} else {
		s.streak = 0
	}

	if pos.InPosition {
		if !bar.Bullish() {
			return &Signal{
				Timestamp: bar.Timestamp,
				Type:      SignalExit,
				Price:     bar.Close,
				Note:      "bearish close",
			}
		}
		return &Signal{Timestamp: bar.Timestamp, Type: SignalHold, Price: bar.Close}
	}

	if s.streak >= s.confirmBars {
		return &Signal{
			Timestamp: bar.Timestamp,
			Type:      SignalEnter,
			Price:     bar.Close,
			Note:      fmt.Sprintf("%d consecutive bullish closes", s.streak),
		}
	}
	return &Signal{Timestamp: bar.Timestamp, Type: SignalHold, Price: bar.Close}
}

func (s *GreenCandle) Reset() { s.streak = 0 }
