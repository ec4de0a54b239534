// Package localcache holds the per-entity, in-process copy of envelopes.
//
// Every operation is in-memory and safe for concurrent use. Clear may race
// with in-flight Set calls; for each field either the clear or the set wins.
// The next remote read repairs whatever state is left.
package localcache

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/unkn0wn-root/redisent/codec"
)

// Cache maps field ids to envelopes.
type Cache[V any] interface {
	Get(field string) (codec.Envelope[V], bool)
	Set(field string, env codec.Envelope[V])
	Remove(field string)
	Clear()
}

const defaultShards = 32

type shard[V any] struct {
	mu sync.RWMutex
	m  map[string]codec.Envelope[V]
}

// Map is the default Cache: a fixed set of RWMutex-guarded shards so point
// reads and writes on different fields rarely contend.
type Map[V any] struct {
	shards []*shard[V]
	mask   uint64
}

var _ Cache[struct{}] = (*Map[struct{}])(nil)

// NewMap returns a Map with n shards rounded up to a power of two.
// n <= 0 selects the default.
func NewMap[V any](n int) *Map[V] {
	if n <= 0 {
		n = defaultShards
	}
	size := 1
	for size < n {
		size <<= 1
	}
	m := &Map[V]{shards: make([]*shard[V], size), mask: uint64(size - 1)}
	for i := range m.shards {
		m.shards[i] = &shard[V]{m: make(map[string]codec.Envelope[V])}
	}
	return m
}

func (m *Map[V]) shardFor(field string) *shard[V] {
	return m.shards[xxhash.Sum64String(field)&m.mask]
}

func (m *Map[V]) Get(field string) (codec.Envelope[V], bool) {
	s := m.shardFor(field)
	s.mu.RLock()
	e, ok := s.m[field]
	s.mu.RUnlock()
	return e, ok
}

func (m *Map[V]) Set(field string, env codec.Envelope[V]) {
	s := m.shardFor(field)
	s.mu.Lock()
	s.m[field] = env
	s.mu.Unlock()
}

func (m *Map[V]) Remove(field string) {
	s := m.shardFor(field)
	s.mu.Lock()
	delete(s.m, field)
	s.mu.Unlock()
}

// Clear empties one shard at a time; it never holds more than one shard lock.
func (m *Map[V]) Clear() {
	for _, s := range m.shards {
		s.mu.Lock()
		clear(s.m)
		s.mu.Unlock()
	}
}

// Len counts entries across shards. Not a snapshot under concurrent writes.
func (m *Map[V]) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}
