package redisent

import (
	"context"

	"github.com/unkn0wn-root/redisent/codec"
	"github.com/unkn0wn-root/redisent/localcache"
	pr "github.com/unkn0wn-root/redisent/provider"
)

// Kind tags the three entity variants.
type Kind uint8

const (
	KindSingle   Kind = iota + 1 // one value under one key
	KindHash                     // many fields in one store-side hash
	KindPrefixed                 // many fields, one key per field: "<key>:<field>"
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindHash:
		return "hash"
	case KindPrefixed:
		return "prefixed"
	default:
		return "unknown"
	}
}

// Entity is what a Context registers and invalidates. Single[V], Hash[V] and
// Prefixed[V] implement it.
type Entity interface {
	// Name is the declared name; it is also the entity's id on the
	// invalidation channel.
	Name() string
	Kind() Kind
	// DB is the logical database the entity lives in.
	DB() int
	// Init binds the entity to its connections. Called once by Context.Register.
	Init(b Binding) error
	// Invalidate drops every locally cached value.
	Invalidate()
	// InvalidateField drops one cached field. Single values drop their only slot.
	InvalidateField(field string)
}

// Binding carries everything an entity needs from its Context.
type Binding struct {
	Logger Logger
	Hooks  Hooks
	// Writer may be nil for read-only entities; writes then fail with ErrNotBound.
	Writer pr.Store
	Reader pr.Store

	PublishAll   func(ctx context.Context)
	PublishField func(ctx context.Context, field string)

	// Key is the resolved store key name.
	Key          string
	CacheEnabled bool
}

// Dialer opens the store connection for a logical database.
type Dialer func(db int) (pr.Store, error)

// Options configure a Context. Only Writer is required. A Context takes its
// own copy; the options are never mutated afterwards.
type Options struct {
	// Writer dials connections used for writes.
	Writer Dialer
	// Reader dials connections used for reads. nil => reads share the writer
	// connection of the same database (logged at debug once per database).
	Reader Dialer

	// Channel is the invalidation channel. Empty disables publishing and
	// Listen; entities then only keep their own process coherent.
	Channel string
	// ChannelDB selects which database's writer connection carries pub/sub.
	ChannelDB int
	// AsyncPublish > 0 publishes through that many background workers with
	// a bounded queue (PublishQueue, default 1024). Overflow drops messages.
	AsyncPublish int
	PublishQueue int

	// KeyName resolves a declared entity name to its store key.
	// nil => KeyPrefix + declared name.
	KeyName   func(declared string) string
	KeyPrefix string

	// DisableCache turns local caching off for every entity.
	DisableCache bool

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used
}

// SingleOptions tune a Single entity.
type SingleOptions[V any] struct {
	DB           int
	Serializer   codec.Serializer[V] // nil => codec.JSONEnvelope[V]
	DisableCache bool
}

// HashOptions tune a Hash entity.
type HashOptions[V any] struct {
	DB           int
	Serializer   codec.Serializer[V] // nil => codec.JSONEnvelope[V]
	DisableCache bool
	// NewCache builds the local cache. nil => localcache.NewMap.
	NewCache func() localcache.Cache[V]
	// MaxFields is the capacity guard ceiling. <= 0 => DefaultMaxFields.
	MaxFields int64
}

// PrefixedOptions tune a Prefixed entity.
type PrefixedOptions[V any] struct {
	DB           int
	Serializer   codec.Serializer[V] // nil => codec.JSONEnvelope[V]
	DisableCache bool
	// NewCache builds the local cache. nil => localcache.NewMap.
	NewCache func() localcache.Cache[V]
	// ScanCount is the COUNT hint for SCAN. 0 => 500.
	ScanCount int64
}
