package serde

import (
	"encoding/json"
	"fmt"
)

type jsonSerde[T any] struct{}

// JSON encodes values with encoding/json. Numbers inside untyped fields
// decode as float64.
func JSON[T any]() Serde[T] {
	return jsonSerde[T]{}
}

func (jsonSerde[T]) Serialise(_ string, value T) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("serde: marshal json: %w", err)
	}
	return data, nil
}

func (jsonSerde[T]) Deserialise(_ string, data []byte) (T, error) {
	var result T
	if len(data) == 0 {
		return result, nil
	}

	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("serde: unmarshal json: %w", err)
	}
	return result, nil
}
