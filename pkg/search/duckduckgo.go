package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jqb69/darkseek/pkg/clients"
)

const defaultDuckDuckGoURL = "https://api.duckduckgo.com/"

// DuckDuckGoProvider implements the DuckDuckGo Instant Answer API. The API
// is keyless; related topics double as title and snippet.
type DuckDuckGoProvider struct {
	apiURL string
	client *http.Client
}

// NewDuckDuckGoProvider creates a DuckDuckGo provider.
func NewDuckDuckGoProvider(timeout time.Duration) *DuckDuckGoProvider {
	return &DuckDuckGoProvider{
		apiURL: defaultDuckDuckGoURL,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *DuckDuckGoProvider) Name() string { return providerDuckDuckGo }

type duckduckgoResponse struct {
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

// Search executes a query against the DuckDuckGo Instant Answer API.
func (p *DuckDuckGoProvider) Search(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	endpoint, err := url.Parse(p.apiURL)
	if err != nil {
		return nil, fmt.Errorf("parse duckduckgo url: %w", err)
	}
	q := endpoint.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("t", "darkseek")
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create duckduckgo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := clients.DoWithRetry(ctx, p.client, req, clients.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("duckduckgo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("duckduckgo request failed with status %d", resp.StatusCode)
	}

	var decoded duckduckgoResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode duckduckgo response: %w", err)
	}

	results := make([]Result, 0, len(decoded.RelatedTopics))
	for _, topic := range decoded.RelatedTopics {
		if topic.Text == "" || topic.FirstURL == "" {
			continue
		}
		results = append(results, Result{
			Title:   topic.Text,
			Link:    topic.FirstURL,
			Snippet: topic.Text,
		})
		if opts.Limit > 0 && len(results) >= opts.Limit {
			break
		}
	}

	return results, nil
}
