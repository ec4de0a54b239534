package redisent

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// Entities call them on hot paths.
type Hooks interface {
	// A read was served from the local cache.
	CacheHit(entity string, n int)
	// A read went to the store (cache miss, forced, or cache disabled).
	CacheMiss(entity string, n int)

	// A stored payload could not be decoded; the value was treated as unavailable.
	DecodeFailed(entity, field string, err error)
	// A remote operation failed. op is the store command, e.g. "HSET".
	StoreFailed(entity, op string, err error)

	// The capacity guard rejected a hash write.
	CapacityRejected(entity string, current int64, incoming int)

	// An invalidation message was published / failed to publish.
	Published(channel, payload string)
	PublishFailed(channel string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) CacheHit(string, int)                {}
func (NopHooks) CacheMiss(string, int)               {}
func (NopHooks) DecodeFailed(string, string, error)  {}
func (NopHooks) StoreFailed(string, string, error)   {}
func (NopHooks) CapacityRejected(string, int64, int) {}
func (NopHooks) Published(string, string)            {}
func (NopHooks) PublishFailed(string, error)         {}
