package asynchook

import (
	"errors"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/unkn0wn-root/redisent"
)

type countingHooks struct {
	redisent.NopHooks
	mu     sync.Mutex
	hits   int
	stores []string
	gate   chan struct{}
}

func (c *countingHooks) CacheHit(_ string, n int) {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	c.hits += n
	c.mu.Unlock()
}

func (c *countingHooks) StoreFailed(_, op string, _ error) {
	c.mu.Lock()
	c.stores = append(c.stores, op)
	c.mu.Unlock()
}

func TestCloseDrainsQueue(t *testing.T) {
	defer goleak.VerifyNone(t)

	inner := &countingHooks{}
	h := New(inner, 2, 100)
	for i := 0; i < 50; i++ {
		h.CacheHit("Users", 1)
	}
	h.StoreFailed("Users", "HSET", errors.New("boom"))
	h.Close()
	h.Close()

	if inner.hits != 50 {
		t.Fatalf("hits=%d want 50", inner.hits)
	}
	if len(inner.stores) != 1 || inner.stores[0] != "HSET" {
		t.Fatalf("stores=%v", inner.stores)
	}
	if h.Dropped() != 0 {
		t.Fatalf("dropped=%d", h.Dropped())
	}
}

func TestFullQueueDrops(t *testing.T) {
	defer goleak.VerifyNone(t)

	inner := &countingHooks{gate: make(chan struct{})}
	h := New(inner, 1, 1)
	for i := 0; i < 10; i++ {
		h.CacheHit("Users", 1)
	}
	close(inner.gate)
	h.Close()

	if h.Dropped() == 0 {
		t.Fatal("expected drops with a blocked worker and a queue of one")
	}
	if got := uint64(inner.hits) + h.Dropped(); got != 10 {
		t.Fatalf("delivered+dropped=%d want 10", got)
	}

	h.CacheHit("Users", 1)
	if h.Dropped() == 0 {
		t.Fatal("event after Close must be dropped")
	}
}
