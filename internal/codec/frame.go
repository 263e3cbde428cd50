package codec

import (
	"fmt"

	"github.com/nfrund/wirecall/internal/schema"
	"github.com/nfrund/wirecall/internal/wire"
	"github.com/nfrund/wirecall/internal/wireerr"
)

// MethodIDSize is the width of the method id that starts every frame.
const MethodIDSize = 4

// Frame is a decoded call.
type Frame struct {
	MethodID int32
	Method   *schema.MethodDescriptor
	Args     []any
	// Consumed is the number of bytes the frame occupied from the offset.
	Consumed int
}

// EncodeFrame appends the method id followed by every argument in declared
// order. A wrong argument count or type is a schema error naming the
// parameter; the encoder then holds a partial frame that must be discarded.
func EncodeFrame(e *wire.Encoder, iface string, m *schema.MethodDescriptor, args []any) error {
	if len(args) != len(m.Params) {
		return wireerr.Schema(iface, m.Name, "", fmt.Sprintf("expected %d arguments, got %d", len(m.Params), len(args)))
	}
	e.PutInt32(m.ID)
	for i, p := range m.Params {
		if err := EncodeValue(e, p.Type, args[i]); err != nil {
			return wireerr.Schema(iface, m.Name, p.Name, "argument does not match parameter type").WithCause(err)
		}
	}
	return nil
}

// ReadMethodID reads the method id at the start of a frame.
func ReadMethodID(d *wire.Decoder, iface string) (int32, error) {
	id := d.Int32()
	if err := d.Err(); err != nil {
		return 0, wireerr.Protocol(iface, "truncated method id", err)
	}
	return id, nil
}

// DecodeArgs reads the parameters of m from d.
func DecodeArgs(d *wire.Decoder, iface string, m *schema.MethodDescriptor) ([]any, error) {
	args := make([]any, len(m.Params))
	for i, p := range m.Params {
		args[i] = DecodeValue(d, p.Type)
		if err := d.Err(); err != nil {
			perr := wireerr.Protocol(iface, "malformed frame", err)
			perr.Method = m.Name
			perr.Param = p.Name
			return nil, perr
		}
	}
	return args, nil
}

// DecodeFrame decodes one frame from buf starting at offset.
func DecodeFrame(buf []byte, offset int, desc *schema.InterfaceDescriptor) (Frame, error) {
	d := wire.NewDecoder(buf, offset)
	id, err := ReadMethodID(d, desc.Name)
	if err != nil {
		return Frame{}, err
	}
	m, ok := desc.Method(id)
	if !ok {
		return Frame{}, UnknownMethod(desc.Name, id)
	}
	args, err := DecodeArgs(d, desc.Name, m)
	if err != nil {
		return Frame{}, err
	}
	return Frame{MethodID: id, Method: m, Args: args, Consumed: d.Offset() - offset}, nil
}

// UnknownMethod is the protocol error for a method id with no dispatch entry.
func UnknownMethod(iface string, id int32) error {
	return wireerr.Protocol(iface, fmt.Sprintf("unknown method id %d", id), nil)
}
