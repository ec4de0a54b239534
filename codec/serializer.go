package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Serializer is the envelope-aware strategy an entity uses to talk to the store.
//
// Decode returns (zero, false, nil) for empty input. Malformed payloads yield a
// *DecodeError; they are never turned into a silent default.
type Serializer[V any] interface {
	Encode(Envelope[V]) (string, error)
	Decode(string) (Envelope[V], bool, error)
}

// DecodeError reports a payload that could not be turned back into a value.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("codec: decode: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// Serialize seals v in a fresh Envelope and encodes it with s.
func Serialize[V any](s Serializer[V], v V) (string, error) {
	env, err := NewEnvelope(v)
	if err != nil {
		return "", err
	}
	return s.Encode(env)
}

// JSONEnvelope encodes the whole Envelope as JSON with the value inline.
// It is the default serializer for entities.
type JSONEnvelope[V any] struct{}

var _ Serializer[struct{}] = JSONEnvelope[struct{}]{}

func (JSONEnvelope[V]) Encode(env Envelope[V]) (string, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// rawEnvelope defers decoding of the value until the envelope shape is known
// to be present.
type rawEnvelope struct {
	Value      json.RawMessage `json:"value"`
	CapturedAt time.Time       `json:"captured_at"`
	Timestamp  string          `json:"timestamp"`
}

var (
	errNoValue      = errors.New("envelope has no value")
	errNoCapturedAt = errors.New("envelope has no captured_at")
)

// Decode rejects documents that are not envelopes, including a bare value
// written without one, "{}" and "null".
func (JSONEnvelope[V]) Decode(s string) (Envelope[V], bool, error) {
	if s == "" {
		return Envelope[V]{}, false, nil
	}
	var raw rawEnvelope
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return Envelope[V]{}, false, &DecodeError{Err: err}
	}
	if v := bytes.TrimSpace(raw.Value); len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return Envelope[V]{}, false, &DecodeError{Err: errNoValue}
	}
	if raw.CapturedAt.IsZero() {
		return Envelope[V]{}, false, &DecodeError{Err: errNoCapturedAt}
	}
	var v V
	if err := json.Unmarshal(raw.Value, &v); err != nil {
		return Envelope[V]{}, false, &DecodeError{Err: err}
	}
	if IsNil(v) {
		return Envelope[V]{}, false, &DecodeError{Err: ErrNilValue}
	}
	ts := raw.Timestamp
	if ts == "" {
		ts = raw.CapturedAt.Format(TimestampLayout)
	}
	return Envelope[V]{Value: v, CapturedAt: raw.CapturedAt, Timestamp: ts}, true, nil
}

// Wrapped nests the output of an inner Codec inside an Envelope[[]byte].
// The outer envelope owns the timestamps: decoding reuses them instead of
// stamping the inner value with the time of the read.
type Wrapped[V any] struct {
	Inner Codec[V]
}

var _ Serializer[struct{}] = Wrapped[struct{}]{}

// Wrap returns a Serializer that applies inner within an envelope.
func Wrap[V any](inner Codec[V]) Wrapped[V] {
	return Wrapped[V]{Inner: inner}
}

func (w Wrapped[V]) Encode(env Envelope[V]) (string, error) {
	b, err := w.Inner.Encode(env.Value)
	if err != nil {
		return "", err
	}
	return JSONEnvelope[[]byte]{}.Encode(retag(b, env))
}

func (w Wrapped[V]) Decode(s string) (Envelope[V], bool, error) {
	outer, ok, err := JSONEnvelope[[]byte]{}.Decode(s)
	if err != nil || !ok {
		return Envelope[V]{}, ok, err
	}
	v, err := w.Inner.Decode(outer.Value)
	if err != nil {
		return Envelope[V]{}, false, &DecodeError{Err: err}
	}
	if IsNil(v) {
		return Envelope[V]{}, false, &DecodeError{Err: ErrNilValue}
	}
	return retag(v, outer), true, nil
}
