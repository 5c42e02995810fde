// Package cache records short-lived per-file activity markers in Redis.
// Nothing reads them for correctness; a missing or expired marker only
// means the file has not been touched recently.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "filekeeper:file:"
	pingKey   = "filekeeper:ping"
	pingTTL   = time.Second
)

// DefaultTTL is used when no positive TTL is configured.
const DefaultTTL = 10 * time.Minute

// Hint wraps a Redis client. It is safe for concurrent use.
type Hint struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// New connects lazily; use Ping to verify the connection.
func New(addr, password string, db int, ttl time.Duration) *Hint {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), ttl)
}

func NewWithClient(client *redis.Client, ttl time.Duration) *Hint {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Hint{client: client, ttl: ttl, now: time.Now}
}

// Touch marks fileID as recently active for the configured TTL.
func (h *Hint) Touch(ctx context.Context, fileID string) error {
	stamp := strconv.FormatInt(h.now().UnixMilli(), 10)
	if err := h.client.Set(ctx, keyPrefix+fileID, stamp, h.ttl).Err(); err != nil {
		return fmt.Errorf("cache touch: %w", err)
	}
	return nil
}

// LastTouched returns when fileID was last touched. ok is false when no
// live marker exists.
func (h *Hint) LastTouched(ctx context.Context, fileID string) (t time.Time, ok bool, err error) {
	val, err := h.client.Get(ctx, keyPrefix+fileID).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("cache get: %w", err)
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("cache get: malformed marker %q", val)
	}
	return time.UnixMilli(ms), true, nil
}

// Ping writes a throwaway marker that expires after a second.
func (h *Hint) Ping(ctx context.Context) error {
	if err := h.client.Set(ctx, pingKey, "1", pingTTL).Err(); err != nil {
		return fmt.Errorf("cache ping: %w", err)
	}
	return nil
}

func (h *Hint) Close() error {
	return h.client.Close()
}
