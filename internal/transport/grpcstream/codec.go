package grpcstream

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is the content subtype frames travel under. Frames are already
// encoded, so the codec passes bytes through untouched.
const codecName = "wirecall-raw"

func init() {
	encoding.RegisterCodec(rawCodec{})
}

type frame struct {
	data []byte
}

type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	f, ok := v.(*frame)
	if !ok {
		return nil, fmt.Errorf("grpcstream: cannot marshal %T", v)
	}
	return f.data, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*frame)
	if !ok {
		return fmt.Errorf("grpcstream: cannot unmarshal into %T", v)
	}
	f.data = append(f.data[:0], data...)
	return nil
}

func (rawCodec) Name() string { return codecName }
