package search

import (
	"context"
	"fmt"
)

// Outcome is the result of querying one backend during aggregation.
type Outcome struct {
	Provider string
	Count    int
	Err      error
}

// Aggregation collects the successful result sets of one round.
type Aggregation struct {
	Sets     []*Results
	Outcomes []Outcome
}

// Empty reports whether no backend produced a hit.
func (a Aggregation) Empty() bool {
	return Count(a.Sets) == 0
}

// Failed lists the backends that errored.
func (a Aggregation) Failed() []Outcome {
	var failed []Outcome
	for _, o := range a.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Aggregate queries each named backend in order. A backend that cannot be
// built or fails to search is recorded and skipped. observe, when non-nil,
// sees every outcome as it happens.
func Aggregate(ctx context.Context, factory Factory, names []string, query string, fetchFullPage bool, observe func(Outcome)) Aggregation {
	var agg Aggregation
	for _, name := range names {
		outcome := Outcome{Provider: name}

		provider, err := factory(name)
		if err != nil {
			outcome.Err = err
		} else {
			results, err := provider.Search(ctx, query, DefaultMaxResults(name, true), fetchFullPage)
			switch {
			case err != nil:
				outcome.Err = err
			case results == nil:
				outcome.Err = fmt.Errorf("%s returned no result set", name)
			default:
				outcome.Count = len(results.Results)
				agg.Sets = append(agg.Sets, results)
			}
		}

		agg.Outcomes = append(agg.Outcomes, outcome)
		if observe != nil {
			observe(outcome)
		}
	}
	return agg
}
