package search

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jqb69/darkseek/pkg/logging"
	"github.com/jqb69/darkseek/pkg/validation"
)

// ErrEmptyQuery is returned when the normalized query is empty.
var ErrEmptyQuery = errors.New("search: empty query")

// Aggregator fans a query out to every configured provider concurrently
// and merges the results. Provider order is the precedence order: when two
// providers return the same link, the earlier provider's copy wins.
type Aggregator struct {
	providers []Provider
	logger    logging.Logger
	requests  *prometheus.CounterVec
}

// NewAggregator creates an aggregator over an ordered provider list.
func NewAggregator(providers []Provider, logger logging.Logger) *Aggregator {
	return &Aggregator{providers: providers, logger: logger}
}

// WithRequestCounter attaches a counter labeled provider and status that
// observes every provider call. Optional.
func (a *Aggregator) WithRequestCounter(counter *prometheus.CounterVec) *Aggregator {
	a.requests = counter
	return a
}

// Search runs all providers in parallel and returns at most limit unique
// results. A single provider failing (after its own retries) contributes
// nothing and is logged; it never fails the aggregate. Only an invalid
// query or a canceled context is an error.
func (a *Aggregator) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	normalized := validation.NormalizeQuery(query)
	if normalized == "" {
		return nil, ErrEmptyQuery
	}

	resultSets := make([][]Result, len(a.providers))
	var wg sync.WaitGroup
	for i, provider := range a.providers {
		wg.Add(1)
		go func(i int, provider Provider) {
			defer wg.Done()
			results, err := provider.Search(ctx, normalized, SearchOptions{Limit: limit})
			if err != nil {
				a.countRequest(provider.Name(), "error")
				if a.logger != nil {
					a.logger.WithError(err).WithField("provider", provider.Name()).Warn("Search provider failed")
				}
				return
			}
			a.countRequest(provider.Name(), "ok")
			resultSets[i] = results
		}(i, provider)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return mergeResults(resultSets, limit), nil
}

func (a *Aggregator) countRequest(provider, status string) {
	if a.requests != nil {
		a.requests.WithLabelValues(provider, status).Inc()
	}
}

// mergeResults flattens per-provider result sets in priority order,
// skipping duplicate links, capped at limit unique results.
func mergeResults(resultSets [][]Result, limit int) []Result {
	merged := make([]Result, 0, limit)
	seen := make(map[string]struct{}, limit)
	for _, set := range resultSets {
		for _, result := range set {
			if result.Link == "" {
				continue
			}
			if _, ok := seen[result.Link]; ok {
				continue
			}
			seen[result.Link] = struct{}{}
			merged = append(merged, result)
			if limit > 0 && len(merged) >= limit {
				return merged
			}
		}
	}
	return merged
}
