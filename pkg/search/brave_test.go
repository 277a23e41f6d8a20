package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBraveSearch(t *testing.T) {
	t.Parallel()

	errCh := make(chan error, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Subscription-Token") != "test-key" {
			errCh <- fmt.Errorf("missing subscription token")
			return
		}
		fmt.Fprint(w, `{"web":{"results":[
			{"title":"Example","url":"https://example.com","description":" described "}
		]}}`)
	}))
	defer server.Close()

	provider, err := NewBraveProvider("test-key", server.URL, time.Second)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	results, err := provider.Search(context.Background(), "query", SearchOptions{Limit: 3})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("handler error: %v", err)
	default:
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Snippet != "described" {
		t.Fatalf("expected trimmed snippet, got %q", results[0].Snippet)
	}
}

func TestBraveProviderRequiresKey(t *testing.T) {
	if _, err := NewBraveProvider("", "", time.Second); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
