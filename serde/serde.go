// Package serde converts record keys, values and offsets to and from bytes.
// A nil byte slice is a tombstone and always decodes to the zero value.
package serde

type Serialiser[T any] interface {
	Serialise(topic string, value T) ([]byte, error)
}

type Deserialiser[T any] interface {
	Deserialise(topic string, data []byte) (T, error)
}

type Serde[T any] interface {
	Serialiser[T]
	Deserialiser[T]
}

// UntypedSerialiser serialises the dynamically typed keys and values
// connectors put on source records.
type UntypedSerialiser interface {
	Serialise(topic string, value any) ([]byte, error)
}
