package serde

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var _ Serde[map[string]any] = structSerde{}

type structSerde struct{}

// Struct encodes maps as a protobuf google.protobuf.Struct. Numbers come
// back as float64, matching encoding/json. A nil map encodes to nil.
func Struct() Serde[map[string]any] {
	return structSerde{}
}

func (structSerde) Serialise(_ string, value map[string]any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}

	s, err := structpb.NewStruct(value)
	if err != nil {
		return nil, fmt.Errorf("serde: convert to struct: %w", err)
	}

	return proto.Marshal(s)
}

func (structSerde) Deserialise(_ string, data []byte) (map[string]any, error) {
	if data == nil {
		return nil, nil
	}

	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("serde: unmarshal struct: %w", err)
	}

	return s.AsMap(), nil
}
