// Package ristretto backs a local cache with dgraph-io/ristretto for entities
// whose field population is too large to keep unbounded in memory.
package ristretto

import (
	"errors"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/redisent/codec"
	"github.com/unkn0wn-root/redisent/localcache"
)

type Config struct {
	NumCounters int64 // ~10x the expected number of fields
	MaxCost     int64 // total cost budget; each field costs 1 unless Cost is set
	BufferItems int64 // 64 is a good default
	// Cost sizes an envelope. nil => 1 per field.
	Cost func(field string) int64
}

// Cache is admission-based: a Set may be dropped under pressure, which only
// turns the next read of that field into a remote read.
type Cache[V any] struct {
	c    *rc.Cache
	cost func(string) int64
}

var _ localcache.Cache[struct{}] = (*Cache[struct{}])(nil)

func New[V any](cfg Config) (*Cache[V], error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	cost := cfg.Cost
	if cost == nil {
		cost = func(string) int64 { return 1 }
	}
	return &Cache[V]{c: c, cost: cost}, nil
}

func (r *Cache[V]) Get(field string) (codec.Envelope[V], bool) {
	v, ok := r.c.Get(field)
	if !ok {
		return codec.Envelope[V]{}, false
	}
	e, ok := v.(codec.Envelope[V])
	if !ok {
		// self-heal: drop unexpected entry shape
		r.c.Del(field)
		return codec.Envelope[V]{}, false
	}
	return e, true
}

// Set waits for ristretto's write buffer so the entry is visible to the next Get.
func (r *Cache[V]) Set(field string, env codec.Envelope[V]) {
	if r.c.Set(field, env, r.cost(field)) {
		r.c.Wait()
	}
}

func (r *Cache[V]) Remove(field string) { r.c.Del(field) }
func (r *Cache[V]) Clear()              { r.c.Clear() }

// Close stops ristretto's background goroutines.
func (r *Cache[V]) Close() { r.c.Close() }
