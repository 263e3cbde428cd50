package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrTruncated is returned when the buffer ends before the value does.
	ErrTruncated = errors.New("wire: truncated buffer")

	// ErrLength is returned when a string or array length is negative or
	// larger than the remaining buffer could possibly hold.
	ErrLength = errors.New("wire: implausible length")

	// ErrComposite is returned when a composite decoder yields no value.
	ErrComposite = errors.New("wire: composite decoder returned nil")
)

// Decoder reads primitive values from a buffer starting at an offset.
//
// Errors are sticky: after the first failure every read returns the zero
// value and Err reports the original failure. This keeps composite decoders
// to a flat sequence of reads followed by a single Err check.
type Decoder struct {
	buf []byte
	off int
	err error
}

// NewDecoder returns a decoder reading buf from offset.
func NewDecoder(buf []byte, offset int) *Decoder {
	d := &Decoder{buf: buf, off: offset}
	if offset < 0 || offset > len(buf) {
		d.err = fmt.Errorf("%w: offset %d outside buffer of %d bytes", ErrTruncated, offset, len(buf))
	}
	return d
}

// Err returns the first decoding failure, if any.
func (d *Decoder) Err() error {
	return d.err
}

// Offset returns the current read position.
func (d *Decoder) Offset() int {
	return d.off
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	if d.off >= len(d.buf) {
		return 0
	}
	return len(d.buf) - d.off
}

// Fail records err unless an earlier failure is already recorded. Composite
// decoders use it to reject field values they cannot accept.
func (d *Decoder) Fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.Remaining() < n {
		d.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, d.off, d.Remaining())
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *Decoder) Int8() int8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return int8(b[0])
}

func (d *Decoder) Int16() int16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return int16(binary.LittleEndian.Uint16(b))
}

func (d *Decoder) Int32() int32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(b))
}

func (d *Decoder) Int64() int64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

func (d *Decoder) Float32() float32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func (d *Decoder) Float64() float64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

func (d *Decoder) Bool() bool {
	b := d.take(1)
	if b == nil {
		return false
	}
	return b[0] != 0
}

func (d *Decoder) Char() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *Decoder) String() string {
	n := d.Length(1)
	b := d.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

// Length reads an int32 count and checks that count elements of at least
// minWidth bytes each can still fit in the buffer.
func (d *Decoder) Length(minWidth int) int {
	n := d.Int32()
	if d.err != nil {
		return 0
	}
	if n < 0 {
		d.err = fmt.Errorf("%w: negative length %d at offset %d", ErrLength, n, d.off-4)
		return 0
	}
	if minWidth > 0 && int64(n)*int64(minWidth) > int64(d.Remaining()) {
		d.err = fmt.Errorf("%w: %d elements of %d bytes exceed %d remaining", ErrLength, n, minWidth, d.Remaining())
		return 0
	}
	return int(n)
}

func (d *Decoder) Int8s() []int8 {
	n := d.Length(1)
	out := make([]int8, n)
	for i := range out {
		out[i] = d.Int8()
	}
	return out
}

// Bytes reads an INT8 array into a byte slice.
func (d *Decoder) Bytes() []byte {
	n := d.Length(1)
	b := d.take(n)
	if b == nil {
		return []byte{}
	}
	return append([]byte(nil), b...)
}

func (d *Decoder) Int16s() []int16 {
	n := d.Length(2)
	out := make([]int16, n)
	for i := range out {
		out[i] = d.Int16()
	}
	return out
}

func (d *Decoder) Int32s() []int32 {
	n := d.Length(4)
	out := make([]int32, n)
	for i := range out {
		out[i] = d.Int32()
	}
	return out
}

func (d *Decoder) Int64s() []int64 {
	n := d.Length(8)
	out := make([]int64, n)
	for i := range out {
		out[i] = d.Int64()
	}
	return out
}

func (d *Decoder) Float32s() []float32 {
	n := d.Length(4)
	out := make([]float32, n)
	for i := range out {
		out[i] = d.Float32()
	}
	return out
}

func (d *Decoder) Float64s() []float64 {
	n := d.Length(8)
	out := make([]float64, n)
	for i := range out {
		out[i] = d.Float64()
	}
	return out
}

func (d *Decoder) Bools() []bool {
	n := d.Length(1)
	out := make([]bool, n)
	for i := range out {
		out[i] = d.Bool()
	}
	return out
}

func (d *Decoder) Chars() []uint16 {
	n := d.Length(2)
	out := make([]uint16, n)
	for i := range out {
		out[i] = d.Char()
	}
	return out
}

func (d *Decoder) Strings() []string {
	n := d.Length(4)
	out := make([]string, n)
	for i := range out {
		out[i] = d.String()
	}
	return out
}

// Composite decodes a composite value with fn. A nil result is reported as a
// decode failure so callers never dispatch a half-built value.
func (d *Decoder) Composite(fn DecodeFunc) any {
	if d.err != nil {
		return nil
	}
	v := fn(d)
	if d.err != nil {
		return nil
	}
	if v == nil {
		d.err = ErrComposite
	}
	return v
}
