// Package codec encodes and decodes parameter values and whole call frames
// according to a compiled schema.
//
// Go value mapping:
//
//	INT8..INT64        int8, int16, int32, int64
//	FLOAT32, FLOAT64   float32, float64
//	BOOL               bool
//	CHAR               uint16 (a rune in the BMP is accepted on encode)
//	STRING             string
//	ARRAY<scalar>      []int8 ([]byte on encode), []int16, ... []bool, []uint16
//	ARRAY<STRING>      []string
//	ARRAY<other>       []any ([]wire.Composite on encode)
//	COMPOSITE          any value implementing wire.Composite
package codec

import (
	"errors"
	"fmt"

	"github.com/nfrund/wirecall/internal/schema"
	"github.com/nfrund/wirecall/internal/wire"
)

// ErrValue is returned when a Go value does not match its declared type.
var ErrValue = errors.New("codec: value does not match type")

func mismatch(t schema.Type, v any) error {
	return fmt.Errorf("%w: %s cannot hold %T", ErrValue, t, v)
}

// EncodeValue appends v encoded as type t.
func EncodeValue(e *wire.Encoder, t schema.Type, v any) error {
	switch t.Kind {
	case schema.KindInt8:
		x, ok := v.(int8)
		if !ok {
			return mismatch(t, v)
		}
		e.PutInt8(x)
	case schema.KindInt16:
		x, ok := v.(int16)
		if !ok {
			return mismatch(t, v)
		}
		e.PutInt16(x)
	case schema.KindInt32:
		x, ok := v.(int32)
		if !ok {
			return mismatch(t, v)
		}
		e.PutInt32(x)
	case schema.KindInt64:
		x, ok := v.(int64)
		if !ok {
			return mismatch(t, v)
		}
		e.PutInt64(x)
	case schema.KindFloat32:
		x, ok := v.(float32)
		if !ok {
			return mismatch(t, v)
		}
		e.PutFloat32(x)
	case schema.KindFloat64:
		x, ok := v.(float64)
		if !ok {
			return mismatch(t, v)
		}
		e.PutFloat64(x)
	case schema.KindBool:
		x, ok := v.(bool)
		if !ok {
			return mismatch(t, v)
		}
		e.PutBool(x)
	case schema.KindChar:
		switch x := v.(type) {
		case uint16:
			e.PutChar(x)
		case rune:
			if x < 0 || x > 0xffff {
				return fmt.Errorf("%w: rune %U outside a single UTF-16 unit", ErrValue, x)
			}
			e.PutChar(uint16(x))
		default:
			return mismatch(t, v)
		}
	case schema.KindString:
		x, ok := v.(string)
		if !ok {
			return mismatch(t, v)
		}
		e.PutString(x)
	case schema.KindArray:
		return encodeArray(e, t, v)
	case schema.KindComposite:
		x, ok := v.(wire.Composite)
		if !ok || x == nil {
			return mismatch(t, v)
		}
		e.PutComposite(x)
	default:
		return fmt.Errorf("%w: unsupported kind %s", ErrValue, t.Kind)
	}
	return nil
}

func encodeArray(e *wire.Encoder, t schema.Type, v any) error {
	elem := *t.Elem
	switch x := v.(type) {
	case []int8:
		if elem.Kind != schema.KindInt8 {
			return mismatch(t, v)
		}
		e.PutInt8s(x)
	case []byte:
		if elem.Kind != schema.KindInt8 {
			return mismatch(t, v)
		}
		e.PutBytes(x)
	case []int16:
		if elem.Kind != schema.KindInt16 {
			return mismatch(t, v)
		}
		e.PutInt16s(x)
	case []int32:
		if elem.Kind != schema.KindInt32 {
			return mismatch(t, v)
		}
		e.PutInt32s(x)
	case []int64:
		if elem.Kind != schema.KindInt64 {
			return mismatch(t, v)
		}
		e.PutInt64s(x)
	case []float32:
		if elem.Kind != schema.KindFloat32 {
			return mismatch(t, v)
		}
		e.PutFloat32s(x)
	case []float64:
		if elem.Kind != schema.KindFloat64 {
			return mismatch(t, v)
		}
		e.PutFloat64s(x)
	case []bool:
		if elem.Kind != schema.KindBool {
			return mismatch(t, v)
		}
		e.PutBools(x)
	case []uint16:
		if elem.Kind != schema.KindChar {
			return mismatch(t, v)
		}
		e.PutChars(x)
	case []string:
		if elem.Kind != schema.KindString {
			return mismatch(t, v)
		}
		e.PutStrings(x)
	case []wire.Composite:
		if elem.Kind != schema.KindComposite {
			return mismatch(t, v)
		}
		e.PutLength(len(x))
		for _, c := range x {
			if err := EncodeValue(e, elem, c); err != nil {
				return err
			}
		}
	case []any:
		e.PutLength(len(x))
		for i, item := range x {
			if err := EncodeValue(e, elem, item); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
	default:
		return mismatch(t, v)
	}
	return nil
}

// DecodeValue reads a value of type t. Failures are recorded on d.
func DecodeValue(d *wire.Decoder, t schema.Type) any {
	switch t.Kind {
	case schema.KindInt8:
		return d.Int8()
	case schema.KindInt16:
		return d.Int16()
	case schema.KindInt32:
		return d.Int32()
	case schema.KindInt64:
		return d.Int64()
	case schema.KindFloat32:
		return d.Float32()
	case schema.KindFloat64:
		return d.Float64()
	case schema.KindBool:
		return d.Bool()
	case schema.KindChar:
		return d.Char()
	case schema.KindString:
		return d.String()
	case schema.KindArray:
		return decodeArray(d, *t.Elem)
	case schema.KindComposite:
		return d.Composite(t.Composite.Decode)
	}
	d.Fail(fmt.Errorf("%w: unsupported kind %s", ErrValue, t.Kind))
	return nil
}

func decodeArray(d *wire.Decoder, elem schema.Type) any {
	switch elem.Kind {
	case schema.KindInt8:
		return d.Int8s()
	case schema.KindInt16:
		return d.Int16s()
	case schema.KindInt32:
		return d.Int32s()
	case schema.KindInt64:
		return d.Int64s()
	case schema.KindFloat32:
		return d.Float32s()
	case schema.KindFloat64:
		return d.Float64s()
	case schema.KindBool:
		return d.Bools()
	case schema.KindChar:
		return d.Chars()
	case schema.KindString:
		return d.Strings()
	}

	// Composites are assumed to take at least one byte each.
	n := d.Length(max(elem.Kind.Width(), 1))
	out := make([]any, n)
	for i := range out {
		out[i] = DecodeValue(d, elem)
		if d.Err() != nil {
			return []any{}
		}
	}
	return out
}
