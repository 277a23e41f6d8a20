package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jqb69/darkseek/pkg/clients"
)

const defaultGoogleURL = "https://www.googleapis.com/customsearch/v1"

// GoogleProvider implements the Google Custom Search JSON API.
type GoogleProvider struct {
	apiKey string
	cseID  string
	apiURL string
	client *http.Client
}

// NewGoogleProvider creates a Google Custom Search provider.
func NewGoogleProvider(apiKey, cseID string, timeout time.Duration) (*GoogleProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("google api key is required")
	}
	if strings.TrimSpace(cseID) == "" {
		return nil, fmt.Errorf("google cse id is required")
	}
	return &GoogleProvider{
		apiKey: apiKey,
		cseID:  cseID,
		apiURL: defaultGoogleURL,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (p *GoogleProvider) Name() string { return providerGoogle }

type googleResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// Search executes a query against the Google Custom Search API.
func (p *GoogleProvider) Search(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	endpoint, err := url.Parse(p.apiURL)
	if err != nil {
		return nil, fmt.Errorf("parse google url: %w", err)
	}
	q := endpoint.Query()
	q.Set("key", p.apiKey)
	q.Set("cx", p.cseID)
	q.Set("q", query)
	if opts.Limit > 0 {
		q.Set("num", fmt.Sprintf("%d", opts.Limit))
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create google request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := clients.DoWithRetry(ctx, p.client, req, clients.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("google request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("google request failed with status %d", resp.StatusCode)
	}

	var decoded googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode google response: %w", err)
	}

	results := make([]Result, 0, len(decoded.Items))
	for _, item := range decoded.Items {
		results = append(results, Result{
			Title:   item.Title,
			Link:    item.Link,
			Snippet: strings.TrimSpace(item.Snippet),
		})
	}

	return results, nil
}
