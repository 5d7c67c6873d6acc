package backtest

import (
	"fmt"
	"sort"
	"sync"

	"tradepipe/internal/market"
	"tradepipe/internal/strategy"
)

// SweepCombo is one (strategy config, risk config) combination to
// evaluate. Each combo gets its own strategy instance so no indicator
// state is shared across parallel runs.
type SweepCombo struct {
	Label    string
	Strategy strategy.Config
	Cfg      FastConfig
}

// SweepResult pairs a combo with its fast-engine outcome.
type SweepResult struct {
	Label  string
	Result FastResult
	Err    error
}

// RunSweep evaluates combos in parallel with the fast engine. Each
// worker replays its own copy of the bar slice, so combos never share
// mutable state. Results come back sorted by final equity, best first.
func RunSweep(bars []market.Bar, combos []SweepCombo, workers int) []SweepResult {
	if workers <= 0 {
		workers = 4
	}

	jobs := make(chan int)
	results := make([]SweepResult, len(combos))
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				combo := combos[idx]
				res := SweepResult{Label: combo.Label}

				strat, err := strategy.New(combo.Strategy)
				if err != nil {
					res.Err = fmt.Errorf("%s: %w", combo.Label, err)
					results[idx] = res
					continue
				}

				local := make([]market.Bar, len(bars))
				copy(local, bars)
				res.Result, res.Err = RunFast(local, strat, combo.Cfg)
				results[idx] = res
			}
		}()
	}

	for i := range combos {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Err != nil {
			return false
		}
		if results[j].Err != nil {
			return true
		}
		return results[i].Result.FinalEquity > results[j].Result.FinalEquity
	})
	return results
}
