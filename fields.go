package redisent

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/redisent/codec"
	"github.com/unkn0wn-root/redisent/internal/chunk"
	"github.com/unkn0wn-root/redisent/localcache"
	pr "github.com/unkn0wn-root/redisent/provider"
)

// fieldSet is the field engine shared by Hash and Prefixed. Everything except
// key composition lives here; see addressing.
type fieldSet[V any] struct {
	name         string
	kind         Kind
	db           int
	ser          codec.Serializer[V]
	newCache     func() localcache.Cache[V]
	disableCache bool
	maxFields    int64 // 0 => no capacity guard
	addrFor      func(key string) addressing

	log          Logger
	hooks        Hooks
	writer       pr.Store
	reader       pr.Store
	key          string
	cacheOn      bool
	cache        localcache.Cache[V]
	addr         addressing
	guard        *capacityGuard
	publishAll   func(ctx context.Context)
	publishField func(ctx context.Context, field string)

	// epoch moves when the whole cache is dropped. stamps holds, per field,
	// the seq of its latest local write or invalidation. A remote read only
	// backfills a field if neither moved past the mark it took before I/O.
	epoch  atomic.Uint64
	seq    atomic.Uint64
	stamps sync.Map // field -> uint64
}

// readMark is what a remote read observed before going to the store.
type readMark struct {
	epoch, seq uint64
}

// entry is one encoded field ready for the store.
type entry struct {
	field string
	raw   string
}

func (f *fieldSet[V]) Name() string { return f.name }
func (f *fieldSet[V]) Kind() Kind   { return f.kind }
func (f *fieldSet[V]) DB() int      { return f.db }

// Key returns the resolved store key. Empty until registered.
func (f *fieldSet[V]) Key() string { return f.key }

func (f *fieldSet[V]) Init(b Binding) error {
	if b.Reader == nil {
		return ErrNilStore
	}
	f.log = coalesce[Logger](b.Logger, NopLogger{})
	f.hooks = coalesce[Hooks](b.Hooks, NopHooks{})
	f.writer = b.Writer
	f.reader = b.Reader
	f.key = b.Key
	f.cacheOn = b.CacheEnabled && !f.disableCache
	f.cache = cacheFactory(f.newCache)()
	f.addr = f.addrFor(b.Key)
	if f.maxFields > 0 {
		f.guard = &capacityGuard{limit: f.maxFields}
	}
	f.publishAll = b.PublishAll
	if f.publishAll == nil {
		f.publishAll = func(context.Context) {}
	}
	f.publishField = b.PublishField
	if f.publishField == nil {
		f.publishField = func(context.Context, string) {}
	}
	return nil
}

func (f *fieldSet[V]) bound() bool { return f.reader != nil }

// Invalidate drops every cached field.
func (f *fieldSet[V]) Invalidate() {
	if f.cache == nil {
		return
	}
	cut := f.seq.Load()
	f.epoch.Add(1)
	f.cache.Clear()
	// stamps at or below cut cannot matter to any read that sees the new epoch
	f.stamps.Range(func(k, v any) bool {
		if v.(uint64) <= cut {
			f.stamps.CompareAndDelete(k, v)
		}
		return true
	})
}

// InvalidateField drops one cached field.
func (f *fieldSet[V]) InvalidateField(field string) {
	if f.cache == nil {
		return
	}
	f.touch(field)
	f.cache.Remove(field)
}

// InvalidateFields drops the given cached fields.
func (f *fieldSet[V]) InvalidateFields(fields []string) {
	if f.cache == nil || len(fields) == 0 {
		return
	}
	for _, field := range fields {
		f.touch(field)
		f.cache.Remove(field)
	}
}

// ReadField returns the value of field, from the local cache unless force is
// set or the field is not cached.
func (f *fieldSet[V]) ReadField(ctx context.Context, field string, force bool) (V, bool) {
	env, ok := f.ReadFieldFull(ctx, field, force)
	return env.Value, ok
}

// ReadFieldFull is ReadField returning the stored envelope. A field the store
// confirms absent is evicted; store and decode failures fall back to the
// cached envelope.
func (f *fieldSet[V]) ReadFieldFull(ctx context.Context, field string, force bool) (codec.Envelope[V], bool) {
	if field == "" || !f.bound() {
		return codec.Envelope[V]{}, false
	}
	if !force && f.cacheOn {
		if env, ok := f.cache.Get(field); ok {
			f.hooks.CacheHit(f.name, 1)
			return env, true
		}
	}
	f.hooks.CacheMiss(f.name, 1)

	m := f.mark()
	raw, ok, err := f.addr.get(ctx, f.reader, field)
	if err != nil {
		_ = f.storeFailed(f.addr.ops().get, []string{field}, err)
		return f.cached(field)
	}
	if !ok {
		f.evict(field)
		return codec.Envelope[V]{}, false
	}
	env, ok, err := f.ser.Decode(raw)
	if err != nil {
		f.decodeFailed(field, err)
		return f.cached(field)
	}
	if !ok {
		f.evict(field)
		return codec.Envelope[V]{}, false
	}
	f.backfill(m, map[string]codec.Envelope[V]{field: env})
	return env, true
}

// ReadFields reads many fields with at most one remote multi-get for the ones
// not served locally. Absence and failures are handled per field as in
// ReadFieldFull.
func (f *fieldSet[V]) ReadFields(ctx context.Context, fields []string, force bool) map[string]V {
	envs, _ := f.readMany(ctx, fields, force)
	return values(envs)
}

// ReadFieldsFull is ReadFields returning the stored envelopes.
func (f *fieldSet[V]) ReadFieldsFull(ctx context.Context, fields []string, force bool) map[string]codec.Envelope[V] {
	envs, _ := f.readMany(ctx, fields, force)
	return envs
}

// readMany serves what it can from the cache and fetches the rest in one
// round trip. The returned error is the remote failure, if any; the map
// already holds the local fallbacks for it.
func (f *fieldSet[V]) readMany(ctx context.Context, fields []string, force bool) (map[string]codec.Envelope[V], error) {
	fields = distinct(fields)
	out := make(map[string]codec.Envelope[V], len(fields))
	if len(fields) == 0 || !f.bound() {
		return out, nil
	}

	var misses []string
	if !force && f.cacheOn {
		for _, field := range fields {
			if env, ok := f.cache.Get(field); ok {
				out[field] = env
				continue
			}
			misses = append(misses, field)
		}
		if hits := len(fields) - len(misses); hits > 0 {
			f.hooks.CacheHit(f.name, hits)
		}
	} else {
		misses = fields
	}
	if len(misses) == 0 {
		return out, nil
	}
	f.hooks.CacheMiss(f.name, len(misses))

	m := f.mark()
	raws, err := f.addr.getMany(ctx, f.reader, misses)
	if err != nil {
		serr := f.storeFailed(f.addr.ops().getMany, misses, err)
		for _, field := range misses {
			if env, ok := f.cached(field); ok {
				out[field] = env
			}
		}
		return out, serr
	}

	fresh := make(map[string]codec.Envelope[V], len(raws))
	for _, field := range misses {
		env, ok, derr := f.ser.Decode(raws[field])
		switch {
		case derr != nil:
			f.decodeFailed(field, derr)
			if env, ok := f.cached(field); ok {
				out[field] = env
			}
		case ok:
			fresh[field] = env
			out[field] = env
		default:
			// confirmed absent remotely
			f.evict(field)
		}
	}
	f.backfill(m, fresh)
	return out, nil
}

// WriteField stores one field and announces it with a field-level message.
func (f *fieldSet[V]) WriteField(ctx context.Context, field string, v V) error {
	if field == "" {
		return ErrEmptyField
	}
	entries, envs, err := f.encode(map[string]V{field: v})
	if err != nil {
		return err
	}
	if err := f.writable(); err != nil {
		return err
	}
	if err := f.admit(ctx, len(entries)); err != nil {
		return err
	}
	if err := f.addr.setMany(ctx, f.writer, toMap(entries)); err != nil {
		return f.storeFailed(f.addr.ops().set, []string{field}, err)
	}
	f.store(envs)
	f.publishField(ctx, field)
	return nil
}

// WriteFields stores every field in one round trip. With publishAll a single
// entity-wide message replaces the per-field ones. An empty map is a no-op.
func (f *fieldSet[V]) WriteFields(ctx context.Context, vals map[string]V, publishAll bool) error {
	if len(vals) == 0 {
		return nil
	}
	entries, envs, err := f.encode(vals)
	if err != nil {
		return err
	}
	if err := f.writable(); err != nil {
		return err
	}
	if err := f.admit(ctx, len(entries)); err != nil {
		return err
	}
	if err := f.addr.setMany(ctx, f.writer, toMap(entries)); err != nil {
		return f.storeFailed(f.addr.ops().set, fieldsOf(entries), err)
	}
	f.store(envs)
	f.announce(ctx, fieldsOf(entries), publishAll)
	return nil
}

// RemoveField deletes one field remotely and locally.
func (f *fieldSet[V]) RemoveField(ctx context.Context, field string) error {
	if field == "" {
		return ErrEmptyField
	}
	if err := f.writable(); err != nil {
		return err
	}
	if err := f.addr.delMany(ctx, f.writer, []string{field}); err != nil {
		return f.storeFailed(f.addr.ops().del, []string{field}, err)
	}
	f.InvalidateField(field)
	f.publishField(ctx, field)
	return nil
}

// RemoveFields deletes fields in one round trip and announces the change
// with one entity-wide message.
func (f *fieldSet[V]) RemoveFields(ctx context.Context, fields []string) error {
	fields = distinct(fields)
	if len(fields) == 0 {
		return nil
	}
	if err := f.writable(); err != nil {
		return err
	}
	if err := f.addr.delMany(ctx, f.writer, fields); err != nil {
		return f.storeFailed(f.addr.ops().del, fields, err)
	}
	f.InvalidateFields(fields)
	f.publishAll(ctx)
	return nil
}

// RemoveAll deletes every field of the entity and clears the local cache.
func (f *fieldSet[V]) RemoveAll(ctx context.Context) error {
	if err := f.writable(); err != nil {
		return err
	}
	if err := f.addr.delAll(ctx, f.writer); err != nil {
		return f.storeFailed(f.addr.ops().delAll, nil, err)
	}
	f.Invalidate()
	f.publishAll(ctx)
	return nil
}

// FieldNames lists every field currently stored. There is no paging; the
// result may be large.
func (f *fieldSet[V]) FieldNames(ctx context.Context) ([]string, error) {
	if !f.bound() {
		return nil, ErrNotBound
	}
	names, err := f.addr.fieldNames(ctx, f.reader)
	if err != nil {
		return nil, f.storeFailed(f.addr.ops().names, nil, err)
	}
	return names, nil
}

// Count reports how many fields are stored.
func (f *fieldSet[V]) Count(ctx context.Context) (int64, error) {
	if !f.bound() {
		return 0, ErrNotBound
	}
	n, err := f.addr.count(ctx, f.reader)
	if err != nil {
		return 0, f.storeFailed(f.addr.ops().count, nil, err)
	}
	return n, nil
}

// Size reports the approximate bytes the entity uses in the store, or 0 when
// the store cannot tell.
func (f *fieldSet[V]) Size(ctx context.Context) int64 {
	if !f.bound() {
		return 0
	}
	n, err := f.addr.size(ctx, f.reader)
	if err != nil {
		f.log.Warn("size unavailable", Fields{"entity": f.name, "key": f.key, "err": err})
		return 0
	}
	return n
}

// WriteInChunks writes vals in round trips of at most chunkSize fields.
func (f *fieldSet[V]) WriteInChunks(ctx context.Context, vals map[string]V, chunkSize int, publishAll bool) error {
	if chunkSize <= 0 {
		return chunk.ErrInvalidSize
	}
	return f.writeChunked(ctx, vals, publishAll, func(es []entry) ([][]entry, error) {
		return chunk.ByCount(es, chunkSize)
	})
}

// ReadInChunks reads fields in round trips of at most chunkSize fields. The
// first failing chunk stops the read; the result then holds what was read so
// far plus local fallbacks for the failed chunk.
func (f *fieldSet[V]) ReadInChunks(ctx context.Context, fields []string, chunkSize int, force bool) (map[string]V, error) {
	chunks, err := chunk.ByCount(distinct(fields), chunkSize)
	if err != nil {
		return nil, err
	}
	out := make(map[string]V, len(fields))
	for _, part := range chunks {
		envs, err := f.readMany(ctx, part, force)
		for field, env := range envs {
			out[field] = env.Value
		}
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// RemoveInChunks deletes fields in round trips of at most chunkSize fields.
// Chunks removed before a failure stay removed and are announced.
func (f *fieldSet[V]) RemoveInChunks(ctx context.Context, fields []string, chunkSize int) error {
	chunks, err := chunk.ByCount(distinct(fields), chunkSize)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := f.writable(); err != nil {
		return err
	}
	var (
		done    int
		failure error
	)
	for _, part := range chunks {
		if err := f.addr.delMany(ctx, f.writer, part); err != nil {
			failure = f.storeFailed(f.addr.ops().del, part, err)
			break
		}
		f.InvalidateFields(part)
		done++
	}
	if done > 0 {
		f.publishAll(ctx)
	}
	return failure
}

// writeChunked encodes and guards the whole batch up front, then writes it
// chunk by chunk as split decides. The first failing chunk aborts the rest.
func (f *fieldSet[V]) writeChunked(ctx context.Context, vals map[string]V, publishAll bool, split func([]entry) ([][]entry, error)) error {
	entries, envs, err := f.encode(vals)
	if err != nil {
		return err
	}
	chunks, err := split(entries)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := f.writable(); err != nil {
		return err
	}
	if err := f.admit(ctx, len(entries)); err != nil {
		return err
	}

	var (
		written []string
		failure error
	)
	for _, part := range chunks {
		if err := f.addr.setMany(ctx, f.writer, toMap(part)); err != nil {
			failure = f.storeFailed(f.addr.ops().set, fieldsOf(part), err)
			break
		}
		committed := make(map[string]codec.Envelope[V], len(part))
		for _, e := range part {
			committed[e.field] = envs[e.field]
		}
		f.store(committed)
		written = append(written, fieldsOf(part)...)
	}
	if len(written) == 0 {
		return failure
	}
	// a partial batch is announced entity-wide; receivers cannot tell which
	// chunks landed
	f.announce(ctx, written, publishAll || failure != nil)
	return failure
}

// encode seals and serializes vals in field order. Empty field ids and nil
// values fail the whole batch before any I/O.
func (f *fieldSet[V]) encode(vals map[string]V) ([]entry, map[string]codec.Envelope[V], error) {
	fields := make([]string, 0, len(vals))
	for field := range vals {
		if field == "" {
			return nil, nil, ErrEmptyField
		}
		fields = append(fields, field)
	}
	sort.Strings(fields)

	entries := make([]entry, 0, len(fields))
	envs := make(map[string]codec.Envelope[V], len(fields))
	for _, field := range fields {
		env, err := codec.NewEnvelope(vals[field])
		if err != nil {
			return nil, nil, err
		}
		raw, err := f.ser.Encode(env)
		if err != nil {
			f.log.Error("encode failed", Fields{"entity": f.name, "key": f.key, "field": field, "err": err})
			return nil, nil, err
		}
		entries = append(entries, entry{field: field, raw: raw})
		envs[field] = env
	}
	return entries, envs, nil
}

func (f *fieldSet[V]) writable() error {
	if f.writer == nil {
		return ErrNotBound
	}
	return nil
}

// admit runs the capacity guard, if any, for incoming new fields.
func (f *fieldSet[V]) admit(ctx context.Context, incoming int) error {
	if f.guard == nil {
		return nil
	}
	cerr := f.guard.check(ctx, f.writer, f.addr, f.key, incoming)
	if cerr == nil {
		return nil
	}
	f.log.Info("write rejected by capacity guard", Fields{
		"entity": f.name, "key": f.key, "current": cerr.Current,
		"incoming": incoming, "limit": cerr.Limit, "count_unknown": cerr.Unknown,
	})
	f.hooks.CapacityRejected(f.name, cerr.Current, incoming)
	return cerr
}

// store caches freshly written envelopes. Stamping the fields first keeps
// reads of them that started earlier from overwriting them with older remote
// data; reads of other fields are unaffected.
func (f *fieldSet[V]) store(envs map[string]codec.Envelope[V]) {
	for field, env := range envs {
		f.touch(field)
		if f.cacheOn {
			f.cache.Set(field, env)
		}
	}
}

func (f *fieldSet[V]) touch(field string) {
	f.stamps.Store(field, f.seq.Add(1))
}

func (f *fieldSet[V]) mark() readMark {
	return readMark{epoch: f.epoch.Load(), seq: f.seq.Load()}
}

// backfill caches envelopes fetched by a read that took mark m.
func (f *fieldSet[V]) backfill(m readMark, envs map[string]codec.Envelope[V]) {
	if !f.cacheOn || len(envs) == 0 {
		return
	}
	if f.epoch.Load() != m.epoch {
		f.log.Debug("backfill skipped (invalidated during read)", Fields{"entity": f.name, "key": f.key})
		return
	}
	for field, env := range envs {
		if v, ok := f.stamps.Load(field); ok && v.(uint64) > m.seq {
			f.log.Debug("backfill skipped (field changed during read)", Fields{"entity": f.name, "key": f.key, "field": field})
			continue
		}
		f.cache.Set(field, env)
	}
}

// evict drops a field the store confirmed absent.
func (f *fieldSet[V]) evict(field string) {
	if f.cacheOn {
		f.cache.Remove(field)
	}
}

func (f *fieldSet[V]) cached(field string) (codec.Envelope[V], bool) {
	if !f.cacheOn {
		return codec.Envelope[V]{}, false
	}
	return f.cache.Get(field)
}

func (f *fieldSet[V]) announce(ctx context.Context, fields []string, all bool) {
	if all {
		f.publishAll(ctx)
		return
	}
	for _, field := range fields {
		f.publishField(ctx, field)
	}
}

func (f *fieldSet[V]) storeFailed(op string, fields []string, err error) error {
	f.log.Error("store operation failed", Fields{
		"entity": f.name, "key": f.key, "op": op, "fields": fields, "err": err,
	})
	f.hooks.StoreFailed(f.name, op, err)
	return &StoreError{Op: op, Key: f.key, Fields: fields, Err: err}
}

func (f *fieldSet[V]) decodeFailed(field string, err error) {
	f.log.Warn("decode failed", Fields{"entity": f.name, "key": f.key, "field": field, "err": err})
	f.hooks.DecodeFailed(f.name, field, err)
}

// distinct drops empty and repeated ids, keeping first-seen order.
func distinct(fields []string) []string {
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		if field == "" {
			continue
		}
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		out = append(out, field)
	}
	return out
}

func values[V any](envs map[string]codec.Envelope[V]) map[string]V {
	out := make(map[string]V, len(envs))
	for field, env := range envs {
		out[field] = env.Value
	}
	return out
}

func toMap(entries []entry) map[string]string {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.field] = e.raw
	}
	return m
}

func fieldsOf(entries []entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.field
	}
	return out
}
