package strategy

import (
	"fmt"

	"tradepipe/internal/indicators"
	"tradepipe/internal/market"
)

// MACross enters on a golden cross (fast EMA crossing above slow EMA)
// and exits on a death cross.
type MACross struct {
	fastPeriod int
	slowPeriod int

	fast *indicators.EMA
	slow *indicators.EMA
	seen int
}

// NewMACross builds an EMA crossover strategy.
func NewMACross(fastPeriod, slowPeriod int) *MACross {
	if fastPeriod >= slowPeriod {
		fastPeriod, slowPeriod = slowPeriod, fastPeriod
	}
	return &MACross{
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		fast:       indicators.NewEMA(fastPeriod),
		slow:       indicators.NewEMA(slowPeriod),
	}
}

func (s *MACross) Name() string {
	return fmt.Sprintf("ma_cross_%d_%d", s.fastPeriod, s.slowPeriod)
}

func (s *MACross) OnBar(bar market.Bar, pos PositionState) *Signal {
	oldFast := s.fast.Value()
	oldSlow := s.slow.Value()
	fast := s.fast.Update(bar.Close)
	slow := s.slow.Update(bar.Close)
	s.seen++

	// Crossovers are meaningless until the slow EMA has warmed up.
	if s.seen <= s.slowPeriod {
		return nil
	}

	if !pos.InPosition && oldFast <= oldSlow && fast > slow {
		return &Signal{
			Timestamp: bar.Timestamp,
			Type:      SignalEnter,
			Price:     bar.Close,
			Note:      fmt.Sprintf("golden cross ema%d=%.2f ema%d=%.2f", s.fastPeriod, fast, s.slowPeriod, slow),
		}
	}
	if pos.InPosition && oldFast >= oldSlow && fast < slow {
		return &Signal{
			Timestamp: bar.Timestamp,
			Type:      SignalExit,
			Price:     bar.Close,
			Note:      fmt.Sprintf("death cross ema%d=%.2f ema%d=%.2f", s.fastPeriod, fast, s.slowPeriod, slow),
		}
	}
	return &Signal{Timestamp: bar.Timestamp, Type: SignalHold, Price: bar.Close}
}

func (s *MACross) Reset() {
	s.fast.Reset()
	s.slow.Reset()
	s.seen = 0
}
