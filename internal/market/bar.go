package market

import (
	"fmt"
	"sort"
	"time"
)

// Bar is one closed OHLCV candle. Strategies only ever see closed bars.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Range returns the high-low spread of the bar.
func (b Bar) Range() float64 { return b.High - b.Low }

// Bullish reports whether the bar closed above its open.
func (b Bar) Bullish() bool { return b.Close > b.Open }

// SortBars orders bars ascending by timestamp in place.
func SortBars(bars []Bar) {
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
}

// ValidateAscending checks bars are strictly ordered with no duplicate
// timestamps. Backtest engines refuse unsorted input.
func ValidateAscending(bars []Bar) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("bars out of order at index %d: %s !> %s",
				i, bars[i].Timestamp, bars[i-1].Timestamp)
		}
	}
	return nil
}
