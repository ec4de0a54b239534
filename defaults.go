package redisent

import (
	"github.com/unkn0wn-root/redisent/codec"
	"github.com/unkn0wn-root/redisent/localcache"
)

const (
	defaultScanCount    int64 = 500
	defaultPublishQueue       = 1024
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func cacheFactory[V any](f func() localcache.Cache[V]) func() localcache.Cache[V] {
	if f != nil {
		return f
	}
	return func() localcache.Cache[V] { return localcache.NewMap[V](0) }
}

func coalesceSerializer[V any](s codec.Serializer[V]) codec.Serializer[V] {
	if s == nil {
		return codec.JSONEnvelope[V]{}
	}
	return s
}
