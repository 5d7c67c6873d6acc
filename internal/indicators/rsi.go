package indicators

// RSI is a streaming Wilder Relative Strength Index. The first period
// changes seed the averages; after that gains and losses are smoothed
// with Wilder's recurrence.
type RSI struct {
	period  int
	prev    float64
	avgGain float64
	avgLoss float64
	count   int
}

// NewRSI builds a streaming RSI with the given lookback period.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

// Update ingests one close and returns the current RSI, or 0 until the
// indicator has seen period+1 closes.
func (r *RSI) Update(price float64) float64 {
	if r.count == 0 {
		r.prev = price
		r.count = 1
		return 0
	}

	change := price - r.prev
	r.prev = price
	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	if r.count <= r.period {
		// Seeding phase: accumulate plain averages.
		r.avgGain += gain / float64(r.period)
		r.avgLoss += loss / float64(r.period)
		r.count++
		if r.count <= r.period {
			return 0
		}
		return r.value()
	}

	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	r.count++
	return r.value()
}

// Ready reports whether enough closes have been seen to produce a value.
func (r *RSI) Ready() bool { return r.count > r.period }

// Reset discards accumulated state.
func (r *RSI) Reset() {
	r.prev = 0
	r.avgGain = 0
	r.avgLoss = 0
	r.count = 0
}

func (r *RSI) value() float64 {
	if r.avgLoss == 0 {
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - (100 / (1 + rs))
}
