package market

import (
	"testing"
	"time"
)

func TestSortBarsAscending(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := []Bar{
		{Timestamp: base.Add(2 * time.Hour), Close: 3},
		{Timestamp: base, Close: 1},
		{Timestamp: base.Add(time.Hour), Close: 2},
	}
	SortBars(bars)
	for i, want := range []float64{1, 2, 3} {
		if bars[i].Close != want {
			t.Errorf("position %d: expected close %.0f, got %.0f", i, want, bars[i].Close)
		}
	}
	if err := ValidateAscending(bars); err != nil {
		t.Errorf("sorted bars should validate: %v", err)
	}
}

func TestValidateAscendingRejectsDuplicates(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := []Bar{
		{Timestamp: base},
		{Timestamp: base},
	}
	if err := ValidateAscending(bars); err == nil {
		t.Error("expected duplicate timestamps to be rejected")
	}
}

func TestBarHelpers(t *testing.T) {
	b := Bar{Open: 100, High: 106, Low: 98, Close: 104}
	if !b.Bullish() {
		t.Error("expected bullish bar")
	}
	if got := b.Range(); got != 8 {
		t.Errorf("expected range 8, got %.2f", got)
	}
}
