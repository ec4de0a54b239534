package redisent

import (
	"context"
	"strings"

	pr "github.com/unkn0wn-root/redisent/provider"
)

// addressing maps field ids onto store commands. Hash and Prefixed share the
// whole field engine and differ only here.
type addressing interface {
	get(ctx context.Context, s pr.Store, field string) (string, bool, error)
	getMany(ctx context.Context, s pr.Store, fields []string) (map[string]string, error)
	setMany(ctx context.Context, s pr.Store, values map[string]string) error
	delMany(ctx context.Context, s pr.Store, fields []string) error
	delAll(ctx context.Context, s pr.Store) error
	fieldNames(ctx context.Context, s pr.Store) ([]string, error)
	count(ctx context.Context, s pr.Store) (int64, error)
	size(ctx context.Context, s pr.Store) (int64, error)
	ops() opNames
}

// opNames label store failures in logs and errors.
type opNames struct {
	get, getMany, set, del, delAll, names, count, size string
}

// hashAddressing: one key, many hash fields.
type hashAddressing struct{ key string }

var hashOps = opNames{
	get: "HGET", getMany: "HMGET", set: "HSET", del: "HDEL",
	delAll: "DEL", names: "HKEYS", count: "HLEN", size: "MEMORY USAGE",
}

func (h hashAddressing) ops() opNames { return hashOps }

func (h hashAddressing) get(ctx context.Context, s pr.Store, field string) (string, bool, error) {
	return s.HGet(ctx, h.key, field)
}

func (h hashAddressing) getMany(ctx context.Context, s pr.Store, fields []string) (map[string]string, error) {
	return s.HMGet(ctx, h.key, fields)
}

func (h hashAddressing) setMany(ctx context.Context, s pr.Store, values map[string]string) error {
	return s.HSet(ctx, h.key, values)
}

func (h hashAddressing) delMany(ctx context.Context, s pr.Store, fields []string) error {
	return s.HDel(ctx, h.key, fields...)
}

func (h hashAddressing) delAll(ctx context.Context, s pr.Store) error {
	return s.Del(ctx, h.key)
}

func (h hashAddressing) fieldNames(ctx context.Context, s pr.Store) ([]string, error) {
	return s.HKeys(ctx, h.key)
}

func (h hashAddressing) count(ctx context.Context, s pr.Store) (int64, error) {
	return s.HLen(ctx, h.key)
}

func (h hashAddressing) size(ctx context.Context, s pr.Store) (int64, error) {
	return s.MemoryUsage(ctx, h.key)
}

// prefixAddressing: one independent key per field, named "<key>:<field>".
// There is no server-side grouping, so whole-entity operations enumerate
// with SCAN (never KEYS).
type prefixAddressing struct {
	key       string
	scanCount int64
}

var prefixOps = opNames{
	get: "GET", getMany: "MGET", set: "MSET", del: "DEL",
	delAll: "SCAN+DEL", names: "SCAN", count: "SCAN", size: "SCAN+MEMORY USAGE",
}

func (p prefixAddressing) ops() opNames { return prefixOps }

func (p prefixAddressing) keyOf(field string) string { return p.key + ":" + field }

func (p prefixAddressing) fieldOf(key string) string {
	return strings.TrimPrefix(key, p.key+":")
}

func (p prefixAddressing) get(ctx context.Context, s pr.Store, field string) (string, bool, error) {
	return s.Get(ctx, p.keyOf(field))
}

func (p prefixAddressing) getMany(ctx context.Context, s pr.Store, fields []string) (map[string]string, error) {
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = p.keyOf(f)
	}
	byKey, err := s.MGet(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(byKey))
	for k, v := range byKey {
		out[p.fieldOf(k)] = v
	}
	return out, nil
}

func (p prefixAddressing) setMany(ctx context.Context, s pr.Store, values map[string]string) error {
	if len(values) == 1 {
		for f, v := range values {
			return s.Set(ctx, p.keyOf(f), v)
		}
	}
	byKey := make(map[string]string, len(values))
	for f, v := range values {
		byKey[p.keyOf(f)] = v
	}
	return s.MSet(ctx, byKey)
}

func (p prefixAddressing) delMany(ctx context.Context, s pr.Store, fields []string) error {
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = p.keyOf(f)
	}
	return s.Del(ctx, keys...)
}

func (p prefixAddressing) delAll(ctx context.Context, s pr.Store) error {
	return p.scan(ctx, s, func(keys []string) error {
		return s.Del(ctx, keys...)
	})
}

func (p prefixAddressing) fieldNames(ctx context.Context, s pr.Store) ([]string, error) {
	keys, err := p.keys(ctx, s)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = p.fieldOf(k)
	}
	return out, nil
}

func (p prefixAddressing) count(ctx context.Context, s pr.Store) (int64, error) {
	keys, err := p.keys(ctx, s)
	return int64(len(keys)), err
}

// size sums MEMORY USAGE over every scanned key.
func (p prefixAddressing) size(ctx context.Context, s pr.Store) (int64, error) {
	keys, err := p.keys(ctx, s)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, k := range keys {
		n, err := s.MemoryUsage(ctx, k)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// keys collects the distinct keys under the prefix.
func (p prefixAddressing) keys(ctx context.Context, s pr.Store) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	err := p.scan(ctx, s, func(keys []string) error {
		for _, k := range keys {
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				out = append(out, k)
			}
		}
		return nil
	})
	return out, err
}

// scan walks every key under the prefix, one SCAN page at a time.
// SCAN may return a key more than once; fn must tolerate duplicates.
func (p prefixAddressing) scan(ctx context.Context, s pr.Store, fn func(keys []string) error) error {
	match := escapeGlob(p.key) + ":*"
	var cursor uint64
	for {
		keys, next, err := s.Scan(ctx, cursor, match, p.scanCount)
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// escapeGlob quotes the glob metacharacters Redis MATCH understands.
func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
