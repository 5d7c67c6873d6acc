package strategy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"tradepipe/internal/market"
)

func barsFromCloses(closes ...float64) []market.Bar {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, len(closes))
	prev := closes[0]
	for i, c := range closes {
		open := prev
		high := open
		if c > high {
			high = c
		}
		low := open
		if c < low {
			low = c
		}
		bars[i] = market.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      open, High: high + 0.1, Low: low - 0.1, Close: c, Volume: 10,
		}
		prev = c
	}
	return bars
}

func TestGreenCandleEntersAfterConfirmBars(t *testing.T) {
	s := NewGreenCandle(2)
	bars := barsFromCloses(100, 101, 102, 103)

	var entered int = -1
	for i, b := range bars {
		sig := s.OnBar(b, PositionState{})
		if sig != nil && sig.Type == SignalEnter {
			entered = i
			break
		}
	}
	// Bar 0 opens at its own close so the streak starts at bar 1.
	if entered != 2 {
		t.Errorf("expected entry at bar 2, got %d", entered)
	}
}

func TestGreenCandleExitsOnBearishClose(t *testing.T) {
	s := NewGreenCandle(1)
	bars := barsFromCloses(100, 101, 99)

	sig := s.OnBar(bars[1], PositionState{InPosition: true, EntryPrice: 100})
	if sig == nil || sig.Type != SignalHold {
		t.Fatalf("bullish bar in position should hold, got %+v", sig)
	}
	sig = s.OnBar(bars[2], PositionState{InPosition: true, EntryPrice: 100})
	if sig == nil || sig.Type != SignalExit {
		t.Fatalf("bearish bar in position should exit, got %+v", sig)
	}
}

func TestMACrossGoldenCross(t *testing.T) {
	s := NewMACross(2, 4)
	closes := []float64{100, 99, 98, 97, 96, 95, 100, 105, 110}
	bars := barsFromCloses(closes...)

	var sawEnter bool
	pos := PositionState{}
	for _, b := range bars {
		sig := s.OnBar(b, pos)
		if sig != nil && sig.Type == SignalEnter {
			sawEnter = true
			pos.InPosition = true
		}
	}
	if !sawEnter {
		t.Error("expected a golden cross entry on the up-trend reversal")
	}
}

func TestMACrossWarmupReturnsNil(t *testing.T) {
	s := NewMACross(2, 4)
	bars := barsFromCloses(100, 101, 102)
	for i, b := range bars {
		if sig := s.OnBar(b, PositionState{}); sig != nil {
			t.Errorf("bar %d: expected nil during warmup, got %+v", i, sig)
		}
	}
}

func TestRSIReversionEntersOversold(t *testing.T) {
	s := NewRSIReversion(3, 30, 70)
	// Steady decline drives RSI to 0.
	bars := barsFromCloses(100, 98, 96, 94, 92, 90)

	var sawEnter bool
	for _, b := range bars {
		sig := s.OnBar(b, PositionState{})
		if sig != nil && sig.Type == SignalEnter {
			sawEnter = true
		}
	}
	if !sawEnter {
		t.Error("expected oversold entry on steady decline")
	}
}

func TestRSIReversionExitsOverbought(t *testing.T) {
	s := NewRSIReversion(3, 30, 70)
	bars := barsFromCloses(100, 102, 104, 106, 108, 110)

	var sawExit bool
	for _, b := range bars {
		sig := s.OnBar(b, PositionState{InPosition: true, EntryPrice: 100})
		if sig != nil && sig.Type == SignalExit {
			sawExit = true
		}
	}
	if !sawExit {
		t.Error("expected overbought exit on steady rally")
	}
}

func TestFactoryBuildsKnownTypes(t *testing.T) {
	cases := []struct {
		cfg      Config
		wantName string
	}{
		{Config{Type: "green_candle", Parameters: map[string]interface{}{"confirm_bars": 2}}, "green_candle_2"},
		{Config{Type: "ma_cross", Parameters: map[string]interface{}{"fast_period": 5, "slow_period": 20}}, "ma_cross_5_20"},
		{Config{Type: "rsi_reversion", Parameters: map[string]interface{}{"period": 14}}, "rsi_reversion_14"},
	}
	for _, tc := range cases {
		s, err := New(tc.cfg)
		if err != nil {
			t.Fatalf("New(%s): %v", tc.cfg.Type, err)
		}
		if s.Name() != tc.wantName {
			t.Errorf("expected name %s, got %s", tc.wantName, s.Name())
		}
	}
	if _, err := New(Config{Type: "bogus"}); err == nil {
		t.Error("expected error for unknown strategy type")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strategies.yaml")
	yaml := `strategies:
  - name: green-1h
    type: green_candle
    symbol: BTC/USDT
    interval: 1h
    is_active: true
    parameters:
      confirm_bars: 2
  - name: rsi-1h
    type: rsi_reversion
    symbol: BTC/USDT
    interval: 1h
    is_active: false
    parameters:
      period: 14
      oversold: 25
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	configs, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("expected 2 strategies, got %d", len(configs))
	}
	if configs[0].Name != "green-1h" || !configs[0].IsActive {
		t.Errorf("unexpected first config: %+v", configs[0])
	}
	if configs[1].Parameters["oversold"] != 25 {
		t.Errorf("expected oversold 25, got %v", configs[1].Parameters["oversold"])
	}
}
