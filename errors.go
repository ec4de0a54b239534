package redisent

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyField is returned for an empty field id; no I/O happens.
	ErrEmptyField = errors.New("redisent: empty field id")
	// ErrNotBound is returned when an entity is used before Context.Register.
	ErrNotBound = errors.New("redisent: entity not registered with a context")
	// ErrDuplicateEntity is returned when two entities share a declared name.
	ErrDuplicateEntity = errors.New("redisent: duplicate entity name")
	// ErrNilStore is returned when no store connection is available.
	ErrNilStore = errors.New("redisent: store is required")
	// ErrInvalidName is returned for entity names the channel grammar cannot carry.
	ErrInvalidName = errors.New("redisent: entity name must be non-empty and must not contain '|'")
	// ErrNoChannel is returned by Listen when the Context has no channel.
	ErrNoChannel = errors.New("redisent: no invalidation channel configured")
	// ErrPublishQueueFull is reported to Hooks.PublishFailed when an async
	// publish is dropped.
	ErrPublishQueueFull = errors.New("redisent: publish queue full")
	// ErrInvalidPage is returned for a page < 1 or a page size < 1.
	ErrInvalidPage = errors.New("redisent: page and page size must be >= 1")
	// ErrClosed is returned by a Context after Close.
	ErrClosed = errors.New("redisent: context closed")
)

// StoreError wraps a failed remote operation with the key and fields involved.
type StoreError struct {
	Op     string
	Key    string
	Fields []string
	Err    error
}

func (e *StoreError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("redisent: %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("redisent: %s %q [%s]: %v", e.Op, e.Key, strings.Join(e.Fields, ","), e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// CapacityError reports a write rejected by the hash capacity guard.
// The store was not touched.
type CapacityError struct {
	Key      string
	Current  int64
	Incoming int
	Limit    int64
	// Unknown is set when the current field count could not be read and the
	// guard failed closed.
	Unknown bool
}

func (e *CapacityError) Error() string {
	if e.Unknown {
		return fmt.Sprintf("redisent: hash %q: field count unavailable, refusing %d new field(s)", e.Key, e.Incoming)
	}
	return fmt.Sprintf("redisent: hash %q: %d + %d fields exceeds limit %d", e.Key, e.Current, e.Incoming, e.Limit)
}
