package indicators

// SMA calculates the simple moving average for the last period values.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// EMA is a streaming exponential moving average. Zero value is unseeded;
// the first Update seeds it with the raw price.
type EMA struct {
	period int
	value  float64
	seeded bool
}

// NewEMA builds a streaming EMA with the given period.
func NewEMA(period int) *EMA {
	return &EMA{period: period}
}

// Update ingests one price and returns the current EMA value.
func (e *EMA) Update(price float64) float64 {
	if !e.seeded {
		e.value = price
		e.seeded = true
		return e.value
	}
	k := 2.0 / float64(e.period+1)
	e.value = price*k + e.value*(1-k)
	return e.value
}

// Value returns the current EMA without updating it.
func (e *EMA) Value() float64 { return e.value }

// Ready reports whether the EMA has seen at least one price.
func (e *EMA) Ready() bool { return e.seeded }

// Reset discards accumulated state.
func (e *EMA) Reset() {
	e.value = 0
	e.seeded = false
}
