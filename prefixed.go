package redisent

// Prefixed is an entity whose fields are independent keys named
// "<key>:<field>". It offers the same operations as Hash except byte-budget
// chunking. There is no capacity guard: separate keys have no natural field
// ceiling to protect.
//
// Whole-entity operations (FieldNames, Count, Size, RemoveAll) enumerate keys
// with SCAN and therefore cost a walk of the keyspace.
type Prefixed[V any] struct {
	fieldSet[V]
}

var _ Entity = (*Prefixed[struct{}])(nil)

// NewPrefixed declares a prefixed key group. It is usable once registered
// with a Context.
func NewPrefixed[V any](name string, opts PrefixedOptions[V]) *Prefixed[V] {
	p := &Prefixed[V]{}
	p.name = name
	p.kind = KindPrefixed
	p.db = opts.DB
	p.ser = coalesceSerializer(opts.Serializer)
	p.newCache = opts.NewCache
	p.disableCache = opts.DisableCache
	scan := coalesce(opts.ScanCount, defaultScanCount)
	p.addrFor = func(key string) addressing { return prefixAddressing{key: key, scanCount: scan} }
	return p
}
