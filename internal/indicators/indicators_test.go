package indicators

import (
	"math"
	"testing"
)

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	cases := []struct {
		period int
		want   float64
	}{
		{period: 5, want: 3},
		{period: 2, want: 4.5},
		{period: 6, want: 0}, // not enough data
		{period: 0, want: 0},
	}
	for _, tc := range cases {
		if got := SMA(values, tc.period); got != tc.want {
			t.Errorf("SMA(period=%d) = %.2f, want %.2f", tc.period, got, tc.want)
		}
	}
}

func TestEMASeedsWithFirstPrice(t *testing.T) {
	e := NewEMA(3)
	if e.Ready() {
		t.Error("fresh EMA should not be ready")
	}
	if got := e.Update(100); got != 100 {
		t.Errorf("seed value = %.2f, want 100", got)
	}
	// k = 2/(3+1) = 0.5
	if got := e.Update(110); got != 105 {
		t.Errorf("second value = %.2f, want 105", got)
	}
	e.Reset()
	if e.Ready() {
		t.Error("reset EMA should not be ready")
	}
}

func TestRSIAllGainsSaturates(t *testing.T) {
	r := NewRSI(3)
	for _, p := range []float64{100, 101, 102, 103, 104} {
		r.Update(p)
	}
	if !r.Ready() {
		t.Fatal("expected rsi to be ready after period+1 closes")
	}
	last := r.Update(105)
	if last != 100 {
		t.Errorf("monotonic gains should give RSI 100, got %.2f", last)
	}
}

func TestRSIWarmup(t *testing.T) {
	r := NewRSI(14)
	for i := 0; i < 14; i++ {
		if got := r.Update(float64(100 + i)); got != 0 {
			t.Fatalf("update %d: expected 0 during warmup, got %.2f", i, got)
		}
	}
	if got := r.Update(90); got == 0 {
		t.Error("expected a value after warmup")
	}
}

func TestRSIBalancedMoves(t *testing.T) {
	r := NewRSI(2)
	// Equal gains and losses should hover near 50.
	var last float64
	for _, p := range []float64{100, 101, 100, 101, 100, 101} {
		last = r.Update(p)
	}
	if last < 30 || last > 70 {
		t.Errorf("balanced series should give mid RSI, got %.2f", last)
	}
}

func TestStdDev(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	got := StdDev(values, len(values))
	if math.Abs(got-2.0) > 1e-9 {
		t.Errorf("StdDev = %.4f, want 2.0", got)
	}
	if got := StdDev(values, 100); got != 0 {
		t.Errorf("insufficient data should give 0, got %.4f", got)
	}
}
