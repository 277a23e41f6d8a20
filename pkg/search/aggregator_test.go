package search

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type stubProvider struct {
	name    string
	results []Result
	err     error
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Search(_ context.Context, _ string, _ SearchOptions) ([]Result, error) {
	return s.results, s.err
}

func TestAggregatorDedupesWithProviderPrecedence(t *testing.T) {
	primary := &stubProvider{name: "a", results: []Result{
		{Title: "A1", Link: "https://example.com/1", Snippet: "from a"},
		{Title: "A2", Link: "https://example.com/2", Snippet: "from a"},
	}}
	secondary := &stubProvider{name: "b", results: []Result{
		{Title: "B1", Link: "https://example.com/1", Snippet: "from b"},
		{Title: "B3", Link: "https://example.com/3", Snippet: "from b"},
	}}

	agg := NewAggregator([]Provider{primary, secondary}, nil)
	results, err := agg.Search(context.Background(), "query", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 unique results, got %d", len(results))
	}
	if results[0].Snippet != "from a" {
		t.Fatal("primary provider's copy must win for duplicate links")
	}
	seen := map[string]int{}
	for _, r := range results {
		seen[r.Link]++
	}
	for link, n := range seen {
		if n != 1 {
			t.Fatalf("link %s appeared %d times", link, n)
		}
	}
}

func TestAggregatorEnforcesLimit(t *testing.T) {
	many := make([]Result, 10)
	for i := range many {
		many[i] = Result{Title: "t", Link: "https://example.com/" + string(rune('a'+i))}
	}
	agg := NewAggregator([]Provider{&stubProvider{name: "a", results: many}}, nil)

	results, err := agg.Search(context.Background(), "query", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected limit of 3, got %d", len(results))
	}
}

func TestAggregatorToleratesProviderFailure(t *testing.T) {
	failing := &stubProvider{name: "a", err: errors.New("boom")}
	healthy := &stubProvider{name: "b", results: []Result{
		{Title: "B", Link: "https://example.com/b"},
	}}

	agg := NewAggregator([]Provider{failing, healthy}, nil)
	results, err := agg.Search(context.Background(), "query", 5)
	if err != nil {
		t.Fatalf("provider failure must not fail aggregate: %v", err)
	}
	if len(results) != 1 || results[0].Link != "https://example.com/b" {
		t.Fatalf("expected healthy provider's results, got %+v", results)
	}
}

func TestAggregatorCountsProviderRequests(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_search_requests_total",
	}, []string{"provider", "status"})

	failing := &stubProvider{name: "a", err: errors.New("boom")}
	healthy := &stubProvider{name: "b", results: []Result{
		{Title: "B", Link: "https://example.com/b"},
	}}

	agg := NewAggregator([]Provider{failing, healthy}, nil).WithRequestCounter(counter)
	if _, err := agg.Search(context.Background(), "query", 5); err != nil {
		t.Fatalf("search: %v", err)
	}

	if got := testutil.ToFloat64(counter.WithLabelValues("a", "error")); got != 1 {
		t.Fatalf("a/error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("b", "ok")); got != 1 {
		t.Fatalf("b/ok = %v, want 1", got)
	}
}

func TestAggregatorRejectsEmptyQuery(t *testing.T) {
	agg := NewAggregator([]Provider{&stubProvider{name: "a"}}, nil)
	if _, err := agg.Search(context.Background(), "   ", 5); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestAggregatorSkipsEmptyLinks(t *testing.T) {
	agg := NewAggregator([]Provider{&stubProvider{name: "a", results: []Result{
		{Title: "no link"},
		{Title: "ok", Link: "https://example.com/x"},
	}}}, nil)
	results, err := agg.Search(context.Background(), "query", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}
