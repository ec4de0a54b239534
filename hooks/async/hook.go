// Package asynchook moves redisent.Hooks calls off the caller's goroutine.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{CacheEvery: 100})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	rc, _ := redisent.NewContext(redisent.Options{
//	    Writer: dial,
//	    Hooks:  hooks, // or `raw` if you don't want async
//	})
//
// Events are dropped when the queue is full; Dropped reports how many.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/redisent"
)

type Hooks struct {
	inner   redisent.Hooks
	q       chan func()
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ redisent.Hooks = (*Hooks)(nil)

func New(inner redisent.Hooks, workers, qlen int) *Hooks {
	if inner == nil {
		inner = redisent.NopHooks{}
	}
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close runs the queued events and stops the workers. Events raised after
// Close are dropped.
func (h *Hooks) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.q)
	h.mu.Unlock()
	h.wg.Wait()
}

// Dropped counts events lost to a full queue or a closed hook.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) CacheHit(e string, n int)  { h.try(func() { h.inner.CacheHit(e, n) }) }
func (h *Hooks) CacheMiss(e string, n int) { h.try(func() { h.inner.CacheMiss(e, n) }) }
func (h *Hooks) DecodeFailed(e, field string, err error) {
	h.try(func() { h.inner.DecodeFailed(e, field, err) })
}
func (h *Hooks) StoreFailed(e, op string, err error) {
	h.try(func() { h.inner.StoreFailed(e, op, err) })
}
func (h *Hooks) CapacityRejected(e string, cur int64, in int) {
	h.try(func() { h.inner.CapacityRejected(e, cur, in) })
}
func (h *Hooks) Published(ch, payload string) { h.try(func() { h.inner.Published(ch, payload) }) }
func (h *Hooks) PublishFailed(ch string, err error) {
	h.try(func() { h.inner.PublishFailed(ch, err) })
}
