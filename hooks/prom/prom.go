// Package prom counts redisent.Hooks events with Prometheus counters.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/redisent"
)

// Hooks exports one counter vector per event, labelled by entity (or channel).
type Hooks struct {
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	decodes   *prometheus.CounterVec
	stores    *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	published *prometheus.CounterVec
	pubFailed *prometheus.CounterVec
}

var _ redisent.Hooks = (*Hooks)(nil)

// New builds the counters under namespace/"redisent" and registers them with
// reg. A nil reg uses prometheus.DefaultRegisterer.
func New(namespace string, reg prometheus.Registerer) (*Hooks, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redisent",
			Name:      name,
			Help:      help,
		}, labels)
	}
	h := &Hooks{
		hits:      counter("cache_hits_total", "Fields served from the local cache.", "entity"),
		misses:    counter("cache_misses_total", "Fields fetched from the store.", "entity"),
		decodes:   counter("decode_failures_total", "Stored payloads that could not be decoded.", "entity"),
		stores:    counter("store_failures_total", "Failed store operations.", "entity", "op"),
		rejected:  counter("capacity_rejections_total", "Hash writes rejected by the capacity guard.", "entity"),
		published: counter("published_total", "Invalidation messages published.", "channel"),
		pubFailed: counter("publish_failures_total", "Invalidation messages that failed or were dropped.", "channel"),
	}
	for _, c := range []prometheus.Collector{h.hits, h.misses, h.decodes, h.stores, h.rejected, h.published, h.pubFailed} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) CacheHit(entity string, n int) {
	h.hits.WithLabelValues(entity).Add(float64(n))
}

func (h *Hooks) CacheMiss(entity string, n int) {
	h.misses.WithLabelValues(entity).Add(float64(n))
}

func (h *Hooks) DecodeFailed(entity, _ string, _ error) {
	h.decodes.WithLabelValues(entity).Inc()
}

func (h *Hooks) StoreFailed(entity, op string, _ error) {
	h.stores.WithLabelValues(entity, op).Inc()
}

func (h *Hooks) CapacityRejected(entity string, _ int64, _ int) {
	h.rejected.WithLabelValues(entity).Inc()
}

func (h *Hooks) Published(channel, _ string) {
	h.published.WithLabelValues(channel).Inc()
}

func (h *Hooks) PublishFailed(channel string, _ error) {
	h.pubFailed.WithLabelValues(channel).Inc()
}
