package market

import (
	"context"
	"log"
	"math/rand"
	"time"

	"tradepipe/internal/events"
)

// MockFeed generates synthetic closed bars for local development and
// paper trading. Each interval tick produces one bar built from a
// small random walk around the previous close.
type MockFeed struct {
	Bus       *events.Bus
	Symbol    string
	Timeframe string
	Start     float64
	StepPct   float64
	Interval  time.Duration

	rng *rand.Rand
}

func (m *MockFeed) Run(ctx context.Context) {
	if m.Bus == nil {
		log.Println("mock feed: bus not set")
		return
	}
	if m.Symbol == "" {
		m.Symbol = "BTC/USDT"
	}
	price := m.Start
	if price == 0 {
		price = 100.0
	}
	if m.StepPct == 0 {
		m.StepPct = 0.5
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	t := time.NewTicker(m.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			bar := m.nextBar(now.UTC(), price)
			price = bar.Close
			m.Bus.Publish(events.EventBar, events.BarPayload{
				Symbol:    m.Symbol,
				Timeframe: m.Timeframe,
				Timestamp: bar.Timestamp,
				Open:      bar.Open,
				High:      bar.High,
				Low:       bar.Low,
				Close:     bar.Close,
				Volume:    bar.Volume,
			})
		}
	}
}

// nextBar walks the close by up to StepPct percent and wraps it in a
// plausible OHLC envelope.
func (m *MockFeed) nextBar(ts time.Time, prev float64) Bar {
	step := prev * m.StepPct / 100
	close := prev + (m.rng.Float64()*2-1)*step
	open := prev
	high := open
	if close > high {
		high = close
	}
	high += m.rng.Float64() * step * 0.5
	low := open
	if close < low {
		low = close
	}
	low -= m.rng.Float64() * step * 0.5

	return Bar{
		Timestamp: ts,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    10 + m.rng.Float64()*90,
	}
}
