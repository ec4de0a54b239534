package redisent

import (
	"context"
	"sync"

	"github.com/unkn0wn-root/redisent/internal/wire"
	pr "github.com/unkn0wn-root/redisent/provider"
)

// publisher sends invalidation payloads on the Context channel.
//
// Synchronous by default: publish returns once the store accepted the
// message (never on subscriber delivery). With workers > 0 payloads go
// through a bounded queue and are dropped when it is full.
type publisher struct {
	store   pr.Store
	channel string
	log     Logger
	hooks   Hooks

	mu     sync.RWMutex // guards q against send after close
	q      chan string
	closed bool
	wg     sync.WaitGroup
}

func newPublisher(store pr.Store, channel string, workers, qlen int, log Logger, hooks Hooks) *publisher {
	p := &publisher{store: store, channel: channel, log: log, hooks: hooks}
	if channel == "" || store == nil || workers <= 0 {
		return p
	}
	p.q = make(chan string, coalesce(qlen, defaultPublishQueue))
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for payload := range p.q {
				p.send(context.Background(), payload)
			}
		}()
	}
	return p
}

// publish is a no-op when no channel is configured.
func (p *publisher) publish(ctx context.Context, payload string) {
	if p.channel == "" || p.store == nil {
		return
	}
	if p.q == nil {
		p.send(ctx, payload)
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.Debug("publish after close dropped", Fields{"channel": p.channel, "payload": payload})
		return
	}
	select {
	case p.q <- payload:
	default:
		p.log.Warn("publish queue full, message dropped", Fields{"channel": p.channel, "payload": payload})
		p.hooks.PublishFailed(p.channel, ErrPublishQueueFull)
	}
}

func (p *publisher) send(ctx context.Context, payload string) {
	if err := p.store.Publish(ctx, p.channel, payload); err != nil {
		p.log.Error("publish failed", Fields{"channel": p.channel, "payload": payload, "err": err})
		p.hooks.PublishFailed(p.channel, err)
		return
	}
	p.hooks.Published(p.channel, payload)
}

// close drains the queue and waits for the workers.
func (p *publisher) close() {
	if p.q == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.q)
	p.mu.Unlock()
	p.wg.Wait()
}

// dispatch applies one received payload to the registered entities.
func dispatch(payload string, lookup func(name string) (Entity, bool), log Logger) {
	msg, err := wire.Decode(payload)
	if err != nil {
		log.Debug("ignoring malformed invalidation", Fields{"payload": payload, "err": err})
		return
	}
	e, ok := lookup(msg.Entity)
	if !ok {
		log.Debug("ignoring invalidation for unknown entity", Fields{"entity": msg.Entity})
		return
	}
	switch msg.Scope {
	case wire.ScopeField:
		e.InvalidateField(msg.Field)
	default:
		e.Invalidate()
	}
}
