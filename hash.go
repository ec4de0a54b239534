package redisent

import (
	"context"

	"github.com/unkn0wn-root/redisent/internal/chunk"
)

// Hash is an entity stored as one Redis hash: many fields under one key, each
// field holding its own envelope. Writes that would push the hash past its
// field ceiling are rejected with *CapacityError.
type Hash[V any] struct {
	fieldSet[V]
}

var _ Entity = (*Hash[struct{}])(nil)

// NewHash declares a hash entity. It is usable once registered with a Context.
func NewHash[V any](name string, opts HashOptions[V]) *Hash[V] {
	h := &Hash[V]{}
	h.name = name
	h.kind = KindHash
	h.db = opts.DB
	h.ser = coalesceSerializer(opts.Serializer)
	h.newCache = opts.NewCache
	h.disableCache = opts.DisableCache
	h.maxFields = opts.MaxFields
	if h.maxFields <= 0 {
		h.maxFields = DefaultMaxFields
	}
	h.addrFor = func(key string) addressing { return hashAddressing{key: key} }
	return h
}

// WriteInByteChunks writes vals in round trips whose encoded size (field id
// plus payload) stays within maxBytes. A single field larger than maxBytes is
// sent on its own.
func (h *Hash[V]) WriteInByteChunks(ctx context.Context, vals map[string]V, maxBytes int, publishAll bool) error {
	if maxBytes <= 0 {
		return chunk.ErrInvalidSize
	}
	return h.writeChunked(ctx, vals, publishAll, func(es []entry) ([][]entry, error) {
		return chunk.BySize(es, maxBytes, entrySize)
	})
}

func entrySize(e entry) int { return len(e.field) + len(e.raw) }
