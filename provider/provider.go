// Package provider defines the store surface redisent consumes.
//
// The surface is modeled on Redis: plain keys, hashes, key scans, memory
// introspection and pub/sub. Implementations must be safe for concurrent use.
// Any method may fail or be unsupported by a deployment; callers degrade to a
// typed failure or zero result.
package provider

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by stores that cannot serve a command.
var ErrUnsupported = errors.New("provider: command not supported")

// Store is the minimal key/value + hash + pub/sub surface.
//
// Single-key reads return ("", false, nil) on miss. Multi-get results contain
// only the keys/fields that exist.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	MGet(ctx context.Context, keys []string) (map[string]string, error)
	MSet(ctx context.Context, values map[string]string) error
	Del(ctx context.Context, keys ...string) error

	HGet(ctx context.Context, key, field string) (string, bool, error)
	HMGet(ctx context.Context, key string, fields []string) (map[string]string, error)
	HSet(ctx context.Context, key string, values map[string]string) error
	HDel(ctx context.Context, key string, fields ...string) error
	HLen(ctx context.Context, key string) (int64, error)
	HKeys(ctx context.Context, key string) ([]string, error)
	// HScanFields returns up to count field names starting at cursor and the
	// cursor to continue from (0 when done).
	HScanFields(ctx context.Context, key string, cursor uint64, count int64) ([]string, uint64, error)

	// Scan iterates keys matching a glob pattern without blocking the server.
	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)
	// MemoryUsage reports the approximate bytes used by key.
	MemoryUsage(ctx context.Context, key string) (int64, error)
	DBSize(ctx context.Context) (int64, error)

	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	Close() error
}

// Subscription delivers raw channel payloads until closed.
type Subscription interface {
	Messages() <-chan string
	Close() error
}
