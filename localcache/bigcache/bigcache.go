// Package bigcache backs a local cache with allegro/bigcache. Envelopes are
// stored serialized, keeping large field populations off the Go heap.
package bigcache

import (
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/redisent/codec"
	"github.com/unkn0wn-root/redisent/localcache"
)

type Config struct {
	Shards             int // power of two; 0 => bigcache default
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

// Cache keeps entries until removed or cleared. bigcache's LifeWindow is set
// far in the future: staleness is bounded by invalidation, not expiry.
type Cache[V any] struct {
	c   *bc.BigCache
	ser codec.Serializer[V]
}

var _ localcache.Cache[struct{}] = (*Cache[struct{}])(nil)

// New builds the cache. ser nil => codec.JSONEnvelope[V].
func New[V any](cfg Config, ser codec.Serializer[V]) (*Cache[V], error) {
	conf := bc.DefaultConfig(100 * 365 * 24 * time.Hour)
	conf.CleanWindow = 0
	conf.Verbose = false
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	if ser == nil {
		ser = codec.JSONEnvelope[V]{}
	}
	return &Cache[V]{c: c, ser: ser}, nil
}

func (b *Cache[V]) Get(field string) (codec.Envelope[V], bool) {
	raw, err := b.c.Get(field)
	if err != nil {
		return codec.Envelope[V]{}, false
	}
	env, ok, err := b.ser.Decode(string(raw))
	if err != nil || !ok {
		_ = b.c.Delete(field)
		return codec.Envelope[V]{}, false
	}
	return env, true
}

// Set drops the entry when it cannot be encoded or stored; the field then
// reads through to the store.
func (b *Cache[V]) Set(field string, env codec.Envelope[V]) {
	s, err := b.ser.Encode(env)
	if err != nil {
		_ = b.c.Delete(field)
		return
	}
	if err := b.c.Set(field, []byte(s)); err != nil {
		_ = b.c.Delete(field)
	}
}

func (b *Cache[V]) Remove(field string) { _ = b.c.Delete(field) }
func (b *Cache[V]) Clear()              { _ = b.c.Reset() }
func (b *Cache[V]) Len() int            { return b.c.Len() }
func (b *Cache[V]) Close() error        { return b.c.Close() }
