// Package redisent provides typed, cache-coherent entities over Redis.
//
// An entity is a named accessor for one piece of remote data:
//
//   - Single[V]: one value under one key.
//   - Hash[V]: many fields in one Redis hash, guarded by a field ceiling.
//   - Prefixed[V]: many fields, one key per field ("<key>:<field>").
//
// Every value is stored inside a codec.Envelope that records when it was
// written. Reads are served from a per-entity local cache unless forced;
// misses go to the store and backfill the cache.
//
// Coherency between processes rides on one pub/sub channel per Context.
// Successful writes publish:
//
//	<entity>          single value changed
//	<entity>|<field>  one field changed
//	<entity>|all      many or all fields changed
//
// and Context.Listen drops the matching local entries on every subscriber.
// Staleness is bounded only by message delivery; there is no expiry.
//
// Failure policy: reads never return errors, they fall back to the cached
// value or report absence. Writes return *StoreError, *CapacityError or a
// validation sentinel, already logged with the entity, key and fields.
//
//	rc, _ := redisent.NewContext(cfg.Options())
//	users := redisent.NewHash[User]("Users", redisent.HashOptions[User]{})
//	_ = rc.Register(users)
//	go rc.Listen(ctx)
//
//	_ = users.WriteField(ctx, "1", User{ID: 1, Name: "Alice"}) // publishes "Users|1"
//	u, ok := users.ReadField(ctx, "1", false)                  // local hit
package redisent
