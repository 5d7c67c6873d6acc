package strategy

import (
	"fmt"

	"tradepipe/internal/indicators"
	"tradepipe/internal/market"
)

// RSIReversion enters when RSI drops below the oversold threshold and
// exits when it rises above the overbought threshold.
type RSIReversion struct {
	period     int
	oversold   float64
	overbought float64

	rsi *indicators.RSI
}

// NewRSIReversion builds an RSI mean-reversion strategy.
func NewRSIReversion(period int, oversold, overbought float64) *RSIReversion {
	return &RSIReversion{
		period:     period,
		oversold:   oversold,
		overbought: overbought,
		rsi:        indicators.NewRSI(period),
	}
}

func (s *RSIReversion) Name() string {
	return fmt.Sprintf("rsi_reversion_%d", s.period)
}

func (s *RSIReversion) OnBar(bar market.Bar, pos PositionState) *Signal {
	value := s.rsi.Update(bar.Close)
	if !s.rsi.Ready() {
		return nil
	}

	if !pos.InPosition && value < s.oversold {
		return &Signal{
			Timestamp: bar.Timestamp,
			Type:      SignalEnter,
			Price:     bar.Close,
			Note:      fmt.Sprintf("rsi oversold %.2f < %.2f", value, s.oversold),
		}
	}
	if pos.InPosition && value > s.overbought {
		return &Signal{
			Timestamp: bar.Timestamp,
			Type:      SignalExit,
			Price:     bar.Close,
			Note:      fmt.Sprintf("rsi overbought %.2f > %.2f", value, s.overbought),
		}
	}
	return &Signal{
		Timestamp: bar.Timestamp,
		Type:      SignalHold,
		Price:     bar.Close,
		Note:      fmt.Sprintf("rsi neutral %.2f", value),
	}
}

func (s *RSIReversion) Reset() { s.rsi.Reset() }
