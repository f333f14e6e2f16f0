package serde

import "fmt"

var _ UntypedSerialiser = autoSerialiser{}

type autoSerialiser struct{}

// Auto serialises byte slices and strings as-is and everything else as JSON.
// A nil value serialises to nil so the transport can emit a tombstone.
func Auto() UntypedSerialiser {
	return autoSerialiser{}
}

func (autoSerialiser) Serialise(topic string, value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return Bytes().Serialise(topic, v)
	case string:
		return String().Serialise(topic, v)
	default:
		return JSON[any]().Serialise(topic, v)
	}
}

type typedSerialiser[T any] struct {
	typed Serialiser[T]
}

// Untyped lets a typed serialiser handle record keys or values. Values of
// another type are rejected and nil is passed through as a tombstone.
func Untyped[T any](s Serialiser[T]) UntypedSerialiser {
	return typedSerialiser[T]{typed: s}
}

func (a typedSerialiser[T]) Serialise(topic string, value any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}

	typed, ok := value.(T)
	if !ok {
		return nil, fmt.Errorf("serde: expected %T, got %T", *new(T), value)
	}
	return a.typed.Serialise(topic, typed)
}
