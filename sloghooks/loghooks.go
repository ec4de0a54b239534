// Package sloghooks reports redisent.Hooks events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/redisent"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	CacheEvery   uint64 // hits and misses
	PublishEvery uint64
	// Optional field id redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	hitCtr     atomic.Uint64
	missCtr    atomic.Uint64
	publishCtr atomic.Uint64
}

var _ redisent.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) CacheHit(entity string, n int) {
	if h.l == nil || !sample(h.opts.CacheEvery, &h.hitCtr) {
		return
	}
	h.l.Debug("redisent.cache_hit", "entity", entity, "n", n)
}

func (h *Hooks) CacheMiss(entity string, n int) {
	if h.l == nil || !sample(h.opts.CacheEvery, &h.missCtr) {
		return
	}
	h.l.Debug("redisent.cache_miss", "entity", entity, "n", n)
}

func (h *Hooks) DecodeFailed(entity, field string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("redisent.decode_failed",
		"entity", entity,
		"field", h.redact(field),
		"err", err)
}

func (h *Hooks) StoreFailed(entity, op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("redisent.store_failed",
		"entity", entity,
		"op", op,
		"err", err)
}

func (h *Hooks) CapacityRejected(entity string, current int64, incoming int) {
	if h.l == nil {
		return
	}
	h.l.Info("redisent.capacity_rejected",
		"entity", entity,
		"current", current,
		"incoming", incoming)
}

func (h *Hooks) Published(channel, payload string) {
	if h.l == nil || !sample(h.opts.PublishEvery, &h.publishCtr) {
		return
	}
	h.l.Debug("redisent.published", "channel", channel, "payload", payload)
}

func (h *Hooks) PublishFailed(channel string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("redisent.publish_failed",
		"channel", channel,
		"err", err)
}
