package codec

import (
	"errors"
	"reflect"
	"time"
)

// TimestampLayout formats Envelope.Timestamp.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ErrNilValue is returned when sealing an absent value.
var ErrNilValue = errors.New("codec: nil value")

// now is swapped in tests.
var now = time.Now

// Envelope wraps a value with the time it was captured. It is the unit written
// to the store; Value is never nil.
type Envelope[V any] struct {
	Value      V         `json:"value"`
	CapturedAt time.Time `json:"captured_at"`
	Timestamp  string    `json:"timestamp"`
}

// NewEnvelope seals v with the current time.
func NewEnvelope[V any](v V) (Envelope[V], error) {
	if IsNil(v) {
		return Envelope[V]{}, ErrNilValue
	}
	t := now().UTC()
	return Envelope[V]{Value: v, CapturedAt: t, Timestamp: t.Format(TimestampLayout)}, nil
}

// IsNil reports whether v is nil or holds a nil pointer, map, slice, func,
// channel or interface.
func IsNil[V any](v V) bool {
	rv := reflect.ValueOf(any(v))
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// retag builds an envelope for v that carries the metadata of src.
func retag[V, S any](v V, src Envelope[S]) Envelope[V] {
	return Envelope[V]{Value: v, CapturedAt: src.CapturedAt, Timestamp: src.Timestamp}
}
