// Package wire holds the primitive little-endian buffer encoder and decoder
// that frames and composite values are written with.
//
// Layout rules:
//   - scalars are fixed width (1, 2, 4 or 8 bytes), little-endian, no padding
//   - floats are their IEEE-754 bit patterns
//   - strings are an int32 byte length followed by UTF-8 bytes
//   - arrays are an int32 element count followed by the elements
package wire

import (
	"encoding/binary"
	"math"
)

// Composite is a user type that writes its own fields, in a fixed order,
// using the primitive encoders.
type Composite interface {
	EncodeWire(e *Encoder)
}

// DecodeFunc reconstructs a composite value by reading its fields in the
// same fixed order its EncodeWire wrote them.
type DecodeFunc func(d *Decoder) any

// Encoder appends primitive values to a byte slice.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an encoder appending to buf.
func NewEncoder(buf []byte) *Encoder {
	return &Encoder{buf: buf}
}

// Reset points the encoder at a new backing slice.
func (e *Encoder) Reset(buf []byte) {
	e.buf = buf
}

// Bytes returns the encoded bytes.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of encoded bytes.
func (e *Encoder) Len() int {
	return len(e.buf)
}

func (e *Encoder) PutInt8(v int8) {
	e.buf = append(e.buf, byte(v))
}

func (e *Encoder) PutInt16(v int16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, uint16(v))
}

func (e *Encoder) PutInt32(v int32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(v))
}

func (e *Encoder) PutInt64(v int64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, uint64(v))
}

func (e *Encoder) PutFloat32(v float32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, math.Float32bits(v))
}

func (e *Encoder) PutFloat64(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}

func (e *Encoder) PutBool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
		return
	}
	e.buf = append(e.buf, 0)
}

// PutChar writes a single UTF-16 code unit.
func (e *Encoder) PutChar(v uint16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

func (e *Encoder) PutString(v string) {
	e.PutInt32(int32(len(v)))
	e.buf = append(e.buf, v...)
}

// PutLength writes an array element count.
func (e *Encoder) PutLength(n int) {
	e.PutInt32(int32(n))
}

func (e *Encoder) PutInt8s(v []int8) {
	e.PutLength(len(v))
	for _, x := range v {
		e.PutInt8(x)
	}
}

// PutBytes writes a byte slice as an INT8 array.
func (e *Encoder) PutBytes(v []byte) {
	e.PutLength(len(v))
	e.buf = append(e.buf, v...)
}

func (e *Encoder) PutInt16s(v []int16) {
	e.PutLength(len(v))
	for _, x := range v {
		e.PutInt16(x)
	}
}

func (e *Encoder) PutInt32s(v []int32) {
	e.PutLength(len(v))
	for _, x := range v {
		e.PutInt32(x)
	}
}

func (e *Encoder) PutInt64s(v []int64) {
	e.PutLength(len(v))
	for _, x := range v {
		e.PutInt64(x)
	}
}

func (e *Encoder) PutFloat32s(v []float32) {
	e.PutLength(len(v))
	for _, x := range v {
		e.PutFloat32(x)
	}
}

func (e *Encoder) PutFloat64s(v []float64) {
	e.PutLength(len(v))
	for _, x := range v {
		e.PutFloat64(x)
	}
}

func (e *Encoder) PutBools(v []bool) {
	e.PutLength(len(v))
	for _, x := range v {
		e.PutBool(x)
	}
}

func (e *Encoder) PutChars(v []uint16) {
	e.PutLength(len(v))
	for _, x := range v {
		e.PutChar(x)
	}
}

func (e *Encoder) PutStrings(v []string) {
	e.PutLength(len(v))
	for _, x := range v {
		e.PutString(x)
	}
}

// PutComposite runs the value's own field encoders inline, with no framing.
func (e *Encoder) PutComposite(v Composite) {
	v.EncodeWire(e)
}
