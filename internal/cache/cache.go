package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jqb69/darkseek/pkg/logging"
	"github.com/jqb69/darkseek/pkg/search"
	"github.com/jqb69/darkseek/pkg/validation"
)

// ErrUnavailable wraps Redis transport failures so callers can tell an
// outage apart from a plain miss.
var ErrUnavailable = errors.New("cache: store unavailable")

// Entry is the cached payload for one normalized query.
type Entry struct {
	Response      string          `json:"response"`
	LLMUsed       string          `json:"llm_used"`
	SearchResults []search.Result `json:"search_results,omitempty"`
}

// ResponseCache stores complete answers keyed by the hash of the
// normalized query text.
type ResponseCache struct {
	client *goredis.Client
	ttl    time.Duration
	logger logging.Logger
}

// NewResponseCache creates a cache with the given entry TTL.
func NewResponseCache(client *goredis.Client, ttl time.Duration, logger logging.Logger) *ResponseCache {
	return &ResponseCache{client: client, ttl: ttl, logger: logger}
}

func cacheKey(query string) string {
	return "chat_response:" + validation.QueryHash(validation.NormalizeQuery(query))
}

// Get returns the cached entry for the query, or nil on a miss. Store
// outages return an ErrUnavailable-wrapped error.
func (c *ResponseCache) Get(ctx context.Context, query string) (*Entry, error) {
	raw, err := c.client.Get(ctx, cacheKey(query)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		// A corrupt entry is treated as a miss; it will be overwritten.
		c.logger.WithError(err).WithField("key", cacheKey(query)).Warn("Dropping undecodable cache entry")
		return nil, nil
	}
	return &entry, nil
}

// Put stores the entry under the query's hash with the configured TTL.
func (c *ResponseCache) Put(ctx context.Context, query string, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: marshal entry: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(query), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
