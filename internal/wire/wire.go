// Package wire encodes and parses invalidation messages.
//
// Grammar (byte exact):
//
//	<entity>          whole single-value entity
//	<entity>|<field>  one field of a hash or prefixed entity
//	<entity>|all      every field of a hash or prefixed entity
//
// Parsing splits on the first '|', so field ids may contain '|' but an entity
// name may not. A field literally named "all" is indistinguishable from a full
// invalidation; receivers over-invalidate in that case.
package wire

import (
	"errors"
	"strings"
)

const (
	sep = "|"
	all = "all"
)

var ErrEmpty = errors.New("wire: empty invalidation message")

// Scope of an invalidation message.
type Scope uint8

const (
	ScopeEntity Scope = iota + 1 // no separator
	ScopeField
	ScopeAll
)

// Message is a parsed invalidation.
type Message struct {
	Entity string
	Field  string // set for ScopeField only
	Scope  Scope
}

func EncodeEntity(entity string) string       { return entity }
func EncodeField(entity, field string) string { return entity + sep + field }
func EncodeAll(entity string) string          { return entity + sep + all }

// Encode renders m in the channel grammar.
func Encode(m Message) string {
	switch m.Scope {
	case ScopeField:
		return EncodeField(m.Entity, m.Field)
	case ScopeAll:
		return EncodeAll(m.Entity)
	default:
		return EncodeEntity(m.Entity)
	}
}

// Decode parses a payload received on the channel.
func Decode(payload string) (Message, error) {
	if payload == "" {
		return Message{}, ErrEmpty
	}
	entity, rest, found := strings.Cut(payload, sep)
	if entity == "" {
		return Message{}, ErrEmpty
	}
	switch {
	case !found:
		return Message{Entity: entity, Scope: ScopeEntity}, nil
	case rest == all:
		return Message{Entity: entity, Scope: ScopeAll}, nil
	default:
		return Message{Entity: entity, Field: rest, Scope: ScopeField}, nil
	}
}
