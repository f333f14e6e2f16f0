package serde

var (
	_ Serde[string] = rawSerde[string]{}
	_ Serde[[]byte] = rawSerde[[]byte]{}
)

// rawSerde copies bytes without any encoding.
type rawSerde[T string | []byte] struct{}

func String() Serde[string] {
	return rawSerde[string]{}
}

func Bytes() Serde[[]byte] {
	return rawSerde[[]byte]{}
}

func (rawSerde[T]) Serialise(_ string, value T) ([]byte, error) {
	return []byte(value), nil
}

func (rawSerde[T]) Deserialise(_ string, data []byte) (T, error) {
	return T(data), nil
}
