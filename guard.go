package redisent

import (
	"context"

	pr "github.com/unkn0wn-root/redisent/provider"
)

// DefaultMaxFields is the capacity ceiling of a Hash unless HashOptions.MaxFields says otherwise.
const DefaultMaxFields int64 = 4000

// capacityGuard is a soft ceiling on the number of fields in one hash.
// It only blocks the write that would cross it; nothing is evicted.
type capacityGuard struct {
	limit int64
}

// check returns nil when current+incoming stays within the limit.
// The count comes from HLEN, falling back to len(HKEYS). When both fail the
// guard fails closed.
func (g capacityGuard) check(ctx context.Context, s pr.Store, a addressing, key string, incoming int) *CapacityError {
	current, err := a.count(ctx, s)
	if err != nil {
		names, kerr := a.fieldNames(ctx, s)
		if kerr != nil {
			return &CapacityError{Key: key, Incoming: incoming, Limit: g.limit, Unknown: true}
		}
		current = int64(len(names))
	}
	if current+int64(incoming) > g.limit {
		return &CapacityError{Key: key, Current: current, Incoming: incoming, Limit: g.limit}
	}
	return nil
}
