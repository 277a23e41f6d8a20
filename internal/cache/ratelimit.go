package cache

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// SessionLimiter counts query turns per session in Redis. The counter
// expires after the window, so sessions reset themselves.
type SessionLimiter struct {
	client *goredis.Client
	window time.Duration
}

// NewSessionLimiter creates a limiter with the given counting window.
func NewSessionLimiter(client *goredis.Client, window time.Duration) *SessionLimiter {
	return &SessionLimiter{client: client, window: window}
}

func turnKey(sessionID string) string {
	return "chat_count:" + sessionID
}

// IncrementSessionTurns bumps the session's turn counter and returns
// the new count. The expiry is attached when the counter is created, so
// the window starts at the session's first query.
func (l *SessionLimiter) IncrementSessionTurns(ctx context.Context, sessionID string) (int64, error) {
	key := turnKey(sessionID)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return count, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return count, nil
}
