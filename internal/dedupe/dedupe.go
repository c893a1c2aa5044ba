// Package dedupe is an optional cross-restart duplicate filter in
// front of the store's unique indexes. Keys are hashes of stable
// record identity; entries expire after the window.
package dedupe

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
)

// Window marks record identities as seen and answers whether an
// identity appeared within the window. The none driver never filters;
// the store's indexes remain authoritative either way.
type Window interface {
	// Seen marks key as seen and reports whether it was already marked.
	Seen(ctx context.Context, key string) (bool, error)
	Close() error
}

// Key derives a compact identity key from the record's stable parts.
func Key(parts ...string) string {
	h := xxhash.New()
	for _, p := range parts {
		_, _ = h.WriteString(p)
		_, _ = h.WriteString("\x1f")
	}
	return "dedupe:" + strconv.FormatUint(h.Sum64(), 16)
}

// New builds the configured driver: "none" or "redis".
func New(driver, redisAddr string, window time.Duration) (Window, error) {
	switch driver {
	case "", "none":
		return noopWindow{}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		return &redisWindow{client: client, ttl: window}, nil
	default:
		return nil, fmt.Errorf("unknown dedupe driver %q", driver)
	}
}

type noopWindow struct{}

func (noopWindow) Seen(context.Context, string) (bool, error) { return false, nil }
func (noopWindow) Close() error                               { return nil }

type redisWindow struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisWindow wraps an existing client, used by tests.
func NewRedisWindow(client *redis.Client, ttl time.Duration) Window {
	return &redisWindow{client: client, ttl: ttl}
}

func (w *redisWindow) Seen(ctx context.Context, key string) (bool, error) {
	set, err := w.client.SetNX(ctx, key, "1", w.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe setnx: %w", err)
	}
	return !set, nil
}

func (w *redisWindow) Close() error {
	return w.client.Close()
}
