package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jqb69/darkseek/pkg/logging"
	"github.com/jqb69/darkseek/pkg/search"
)

func testRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestResponseCacheRoundTrip(t *testing.T) {
	_, client := testRedis(t)
	c := NewResponseCache(client, time.Hour, logging.NewLogger())
	ctx := context.Background()

	entry := Entry{
		Response: "Paris",
		LLMUsed:  "model-a",
		SearchResults: []search.Result{
			{Title: "Paris", Link: "https://example.com", Snippet: "capital"},
		},
	}
	if err := c.Put(ctx, "Capital of France?", entry); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := c.Get(ctx, "Capital of France?")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Response != "Paris" || got.LLMUsed != "model-a" {
		t.Fatalf("unexpected entry %+v", got)
	}
	if len(got.SearchResults) != 1 || got.SearchResults[0].Link != "https://example.com" {
		t.Fatalf("search results not preserved: %+v", got.SearchResults)
	}
}

func TestResponseCacheKeyIsNormalized(t *testing.T) {
	_, client := testRedis(t)
	c := NewResponseCache(client, time.Hour, logging.NewLogger())
	ctx := context.Background()

	if err := c.Put(ctx, "capital of france", Entry{Response: "Paris"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Case and whitespace variants hit the same entry.
	got, err := c.Get(ctx, "  Capital   OF France ")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Response != "Paris" {
		t.Fatalf("normalized variant missed the cache: %+v", got)
	}
}

func TestResponseCacheMiss(t *testing.T) {
	_, client := testRedis(t)
	c := NewResponseCache(client, time.Hour, logging.NewLogger())

	got, err := c.Get(context.Background(), "never asked")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected miss, got %+v", got)
	}
}

func TestResponseCacheExpiry(t *testing.T) {
	mr, client := testRedis(t)
	c := NewResponseCache(client, time.Hour, logging.NewLogger())
	ctx := context.Background()

	if err := c.Put(ctx, "q", Entry{Response: "r"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	mr.FastForward(2 * time.Hour)

	got, err := c.Get(ctx, "q")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected expired entry to be a miss, got %+v", got)
	}
}

func TestResponseCacheUnavailable(t *testing.T) {
	mr, client := testRedis(t)
	c := NewResponseCache(client, time.Hour, logging.NewLogger())
	mr.Close()

	if _, err := c.Get(context.Background(), "q"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := c.Put(context.Background(), "q", Entry{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestResponseCacheCorruptEntryIsAMiss(t *testing.T) {
	mr, client := testRedis(t)
	c := NewResponseCache(client, time.Hour, logging.NewLogger())

	mr.Set(cacheKey("q"), "{not json")

	got, err := c.Get(context.Background(), "q")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("corrupt entry should read as a miss, got %+v", got)
	}
}

func TestSessionLimiterCountsTurns(t *testing.T) {
	_, client := testRedis(t)
	l := NewSessionLimiter(client, time.Hour)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		count, err := l.IncrementSessionTurns(ctx, "s1")
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if count != want {
			t.Fatalf("count = %d, want %d", count, want)
		}
	}

	// Separate sessions have separate counters.
	count, err := l.IncrementSessionTurns(ctx, "s2")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestSessionLimiterWindowResets(t *testing.T) {
	mr, client := testRedis(t)
	l := NewSessionLimiter(client, time.Hour)
	ctx := context.Background()

	if _, err := l.IncrementSessionTurns(ctx, "s1"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if _, err := l.IncrementSessionTurns(ctx, "s1"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	mr.FastForward(2 * time.Hour)

	count, err := l.IncrementSessionTurns(ctx, "s1")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected counter reset after window, got %d", count)
	}
}
