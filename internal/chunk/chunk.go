// Package chunk splits batch operations into bounded sub-requests.
package chunk

import "errors"

// ErrInvalidSize is returned for a non-positive chunk size or byte budget.
var ErrInvalidSize = errors.New("chunk: size must be > 0")

// ByCount partitions items into groups of at most size, preserving order.
// It returns ceil(len(items)/size) chunks; each item appears exactly once.
func ByCount[T any](items []T, size int) ([][]T, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end:end])
	}
	return out, nil
}

// BySize greedily packs items into chunks whose summed sizeOf stays within
// budget. An item that alone exceeds budget is emitted as its own chunk;
// items are never split or dropped.
func BySize[T any](items []T, budget int, sizeOf func(T) int) ([][]T, error) {
	if budget <= 0 {
		return nil, ErrInvalidSize
	}
	var (
		out  [][]T
		cur  []T
		used int
	)
	for _, it := range items {
		n := sizeOf(it)
		if len(cur) > 0 && used+n > budget {
			out = append(out, cur)
			cur, used = nil, 0
		}
		cur = append(cur, it)
		used += n
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out, nil
}
