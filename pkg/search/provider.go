package search

import "context"

// Provider defines the interface for web search providers.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, opts SearchOptions) ([]Result, error)
}

// Result represents a single search result. Link is the dedup key across
// providers.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// SearchOptions controls search behavior across providers.
type SearchOptions struct {
	Limit int
}
