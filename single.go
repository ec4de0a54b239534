package redisent

import (
	"context"
	"sync"

	"github.com/unkn0wn-root/redisent/codec"
	pr "github.com/unkn0wn-root/redisent/provider"
)

// Single is an entity holding one value under one key.
//
// The cached envelope lives in a single slot guarded by the entity mutex.
// The mutex is never held across a store call.
type Single[V any] struct {
	name         string
	db           int
	ser          codec.Serializer[V]
	disableCache bool

	log        Logger
	hooks      Hooks
	writer     pr.Store
	reader     pr.Store
	key        string
	cacheOn    bool
	publishAll func(ctx context.Context)

	mu   sync.Mutex
	slot *codec.Envelope[V]
	gen  uint64
}

var _ Entity = (*Single[struct{}])(nil)

// NewSingle declares a single-value entity. It is usable once registered with
// a Context.
func NewSingle[V any](name string, opts SingleOptions[V]) *Single[V] {
	return &Single[V]{
		name:         name,
		db:           opts.DB,
		ser:          coalesceSerializer(opts.Serializer),
		disableCache: opts.DisableCache,
	}
}

func (s *Single[V]) Name() string { return s.name }
func (s *Single[V]) Kind() Kind   { return KindSingle }
func (s *Single[V]) DB() int      { return s.db }
func (s *Single[V]) Key() string  { return s.key }

func (s *Single[V]) Init(b Binding) error {
	if b.Reader == nil {
		return ErrNilStore
	}
	s.log = coalesce[Logger](b.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](b.Hooks, NopHooks{})
	s.writer = b.Writer
	s.reader = b.Reader
	s.key = b.Key
	s.cacheOn = b.CacheEnabled && !s.disableCache
	s.publishAll = b.PublishAll
	if s.publishAll == nil {
		s.publishAll = func(context.Context) {}
	}
	return nil
}

// Write stores v, caches it and announces the change.
func (s *Single[V]) Write(ctx context.Context, v V) error {
	env, err := codec.NewEnvelope(v)
	if err != nil {
		return err
	}
	if s.writer == nil {
		return ErrNotBound
	}
	raw, err := s.ser.Encode(env)
	if err != nil {
		s.log.Error("encode failed", Fields{"entity": s.name, "key": s.key, "err": err})
		return err
	}
	if err := s.writer.Set(ctx, s.key, raw); err != nil {
		return s.storeFailed("SET", err)
	}

	s.mu.Lock()
	s.gen++
	if s.cacheOn {
		s.slot = &env
	}
	s.mu.Unlock()

	s.publishAll(ctx)
	return nil
}

// Read returns the value, from the local cache unless force is set.
func (s *Single[V]) Read(ctx context.Context, force bool) (V, bool) {
	env, ok := s.ReadFull(ctx, force)
	return env.Value, ok
}

// ReadFull is Read returning the stored envelope.
//
// On a store or decode failure the previously cached envelope, if any, is
// returned instead. A value the store confirms absent is dropped locally.
func (s *Single[V]) ReadFull(ctx context.Context, force bool) (codec.Envelope[V], bool) {
	if s.reader == nil {
		return codec.Envelope[V]{}, false
	}

	s.mu.Lock()
	prev, g := s.slot, s.gen
	s.mu.Unlock()

	if !force && s.cacheOn && prev != nil {
		s.hooks.CacheHit(s.name, 1)
		return *prev, true
	}
	s.hooks.CacheMiss(s.name, 1)

	raw, ok, err := s.reader.Get(ctx, s.key)
	if err != nil {
		_ = s.storeFailed("GET", err)
		return s.fallback()
	}
	if !ok {
		s.Invalidate()
		return codec.Envelope[V]{}, false
	}
	env, ok, err := s.ser.Decode(raw)
	if err != nil {
		s.log.Warn("decode failed", Fields{"entity": s.name, "key": s.key, "err": err})
		s.hooks.DecodeFailed(s.name, "", err)
		return s.fallback()
	}
	if !ok {
		s.Invalidate()
		return codec.Envelope[V]{}, false
	}

	if s.cacheOn {
		s.mu.Lock()
		if s.gen == g {
			s.slot = &env
		}
		s.mu.Unlock()
	}
	return env, true
}

// Remove deletes the value remotely and locally.
func (s *Single[V]) Remove(ctx context.Context) error {
	if s.writer == nil {
		return ErrNotBound
	}
	if err := s.writer.Del(ctx, s.key); err != nil {
		return s.storeFailed("DEL", err)
	}
	s.Invalidate()
	s.publishAll(ctx)
	return nil
}

// Invalidate drops the cached value.
func (s *Single[V]) Invalidate() {
	s.mu.Lock()
	s.gen++
	s.slot = nil
	s.mu.Unlock()
}

// InvalidateField drops the cached value; a single value has no fields.
func (s *Single[V]) InvalidateField(string) { s.Invalidate() }

func (s *Single[V]) fallback() (codec.Envelope[V], bool) {
	if !s.cacheOn {
		return codec.Envelope[V]{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slot == nil {
		return codec.Envelope[V]{}, false
	}
	return *s.slot, true
}

func (s *Single[V]) storeFailed(op string, err error) error {
	s.log.Error("store operation failed", Fields{"entity": s.name, "key": s.key, "op": op, "err": err})
	s.hooks.StoreFailed(s.name, op, err)
	return &StoreError{Op: op, Key: s.key, Err: err}
}
