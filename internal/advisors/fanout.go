package advisors

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"agent-trader/internal/errors"
)

// Fanout consults a set of advisors in parallel and degrades gracefully:
// an advisor that fails or times out contributes an unavailability reason
// instead of an opinion, and the rest proceed.
type Fanout struct {
	advisors map[string]Advisor
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewFanout creates a fan-out over the given advisors. timeout bounds each
// advisor individually, not the batch.
func NewFanout(advisors []Advisor, timeout time.Duration, logger zerolog.Logger) *Fanout {
	byName := make(map[string]Advisor, len(advisors))
	for _, a := range advisors {
		byName[a.Name()] = a
	}
	return &Fanout{
		advisors: byName,
		timeout:  timeout,
		logger:   logger,
	}
}

// Consult runs the named advisors in parallel and returns one Result per
// name, ordered by name for deterministic output. Names without a registered
// advisor come back unavailable.
func (f *Fanout) Consult(ctx context.Context, names []string, req Request) []Result {
	type outcome struct {
		name    string
		opinion *Opinion
		err     error
	}

	resultChan := make(chan outcome, len(names))
	var wg sync.WaitGroup

	for _, name := range names {
		advisor, ok := f.advisors[name]
		if !ok {
			resultChan <- outcome{name: name, err: errors.NewAdvisorError(name, errors.ErrAdvisorUnavailable)}
			continue
		}

		wg.Add(1)
		go func(name string, a Advisor) {
			defer wg.Done()

			advisorCtx := ctx
			if f.timeout > 0 {
				var cancel context.CancelFunc
				advisorCtx, cancel = context.WithTimeout(ctx, f.timeout)
				defer cancel()
			}

			opinion, err := a.Advise(advisorCtx, req)
			resultChan <- outcome{name: name, opinion: opinion, err: err}
		}(name, advisor)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]Result, 0, len(names))
	for o := range resultChan {
		if o.err != nil {
			f.logger.Warn().
				Str("advisor", o.name).
				Err(o.err).
				Msg("advisor unavailable")
			results = append(results, Result{Name: o.name, UnavailableReason: o.err.Error()})
			continue
		}
		results = append(results, Result{Name: o.name, Opinion: o.opinion})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

// AvailableCount returns how many results carry an opinion.
func AvailableCount(results []Result) int {
	count := 0
	for _, r := range results {
		if r.Available() {
			count++
		}
	}
	return count
}
