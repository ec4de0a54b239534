// Package codec turns entity values into the strings persisted in the store.
//
// Two layers:
//   - Codec[V]: an inner value <-> []byte codec (JSON, CBOR, Msgpack, Protobuf, ...).
//   - Serializer[V]: the envelope-aware layer entities actually use. Every value
//     is sealed in an Envelope before it is encoded, so the store always carries
//     the time the value was captured.
package codec

// Codec encodes/decodes values V to []byte.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
