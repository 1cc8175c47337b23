package transport

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Codec encodes the flat field maps carried inside frames. JSON is the
// default; the protobuf codec trades readability for smaller payloads.
type Codec interface {
	Name() string
	Marshal(fields map[string]string) ([]byte, error)
	Unmarshal(data []byte) (map[string]string, error)
}

// NewCodec returns the codec registered under name.
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "proto":
		return ProtoCodec{}, nil
	default:
		return nil, fmt.Errorf("transport: unknown codec %q", name)
	}
}

// JSONCodec encodes fields as a JSON object.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(fields map[string]string) ([]byte, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal json payload: %w", err)
	}
	return data, nil
}

func (JSONCodec) Unmarshal(data []byte) (map[string]string, error) {
	fields := make(map[string]string)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("transport: unmarshal json payload: %w", err)
	}
	return fields, nil
}

// ProtoCodec encodes fields as a protobuf Struct well-known type.
type ProtoCodec struct{}

func (ProtoCodec) Name() string { return "proto" }

func (ProtoCodec) Marshal(fields map[string]string) ([]byte, error) {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	st, err := structpb.NewStruct(values)
	if err != nil {
		return nil, fmt.Errorf("transport: build proto payload: %w", err)
	}
	data, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal proto payload: %w", err)
	}
	return data, nil
}

func (ProtoCodec) Unmarshal(data []byte) (map[string]string, error) {
	st := new(structpb.Struct)
	if err := proto.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("transport: unmarshal proto payload: %w", err)
	}
	fields := make(map[string]string, len(st.GetFields()))
	for k, v := range st.AsMap() {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("transport: proto payload field %q is not a string", k)
		}
		fields[k] = s
	}
	return fields, nil
}
