// Package publisher turns calls on a compiled interface into frames offered
// to a transport sink.
//
// Typed call sites are small hand-written adapters that forward to
// Publishable.Send with the method id and arguments in declared order:
//
//	func (a simpleEvents) OnEvent(value int64) error {
//		return a.p.Send(0, value)
//	}
package publisher

import (
	"errors"
	"fmt"

	"github.com/valyala/bytebufferpool"

	"github.com/nfrund/wirecall/internal/codec"
	"github.com/nfrund/wirecall/internal/schema"
	"github.com/nfrund/wirecall/internal/transport"
	"github.com/nfrund/wirecall/internal/wire"
)

// ErrNotAccepted is returned when the sink refused the frame. The frame is
// not retried or queued.
var ErrNotAccepted = errors.New("publisher: frame not accepted by sink")

// Publishable is the generic capability typed adapters delegate to.
type Publishable interface {
	Send(methodID int32, args ...any) error
	IsConnected() bool
}

// Publisher frames calls for one interface on one channel.
type Publisher struct {
	desc    *schema.InterfaceDescriptor
	channel transport.Channel
	sink    transport.Sink
	pool    bytebufferpool.Pool
}

var _ Publishable = (*Publisher)(nil)

// New returns a publisher writing desc's frames to sink.
func New(desc *schema.InterfaceDescriptor, channel transport.Channel, sink transport.Sink) *Publisher {
	return &Publisher{desc: desc, channel: channel, sink: sink}
}

// Descriptor returns the compiled interface.
func (p *Publisher) Descriptor() *schema.InterfaceDescriptor {
	return p.desc
}

// Channel returns the channel the publisher is bound to.
func (p *Publisher) Channel() transport.Channel {
	return p.channel
}

// Sink returns the sink frames are offered to.
func (p *Publisher) Sink() transport.Sink {
	return p.sink
}

// IsConnected reports the sink's advisory liveness.
func (p *Publisher) IsConnected() bool {
	return p.sink.IsConnected()
}

// Send frames a call to the method with the given id and offers it. Safe
// for concurrent use; each call encodes into its own pooled buffer.
func (p *Publisher) Send(methodID int32, args ...any) error {
	m, ok := p.desc.Method(methodID)
	if !ok {
		return fmt.Errorf("publisher %s: no method with id %d", p.desc.Name, methodID)
	}
	return p.send(m, args)
}

// SendByName is Send for the first method declared with name.
func (p *Publisher) SendByName(name string, args ...any) error {
	m, ok := p.desc.MethodByName(name)
	if !ok {
		return fmt.Errorf("publisher %s: no method named %q", p.desc.Name, name)
	}
	return p.send(m, args)
}

func (p *Publisher) send(m *schema.MethodDescriptor, args []any) error {
	bb := p.pool.Get()
	defer p.pool.Put(bb)

	e := wire.NewEncoder(bb.B[:0])
	if err := codec.EncodeFrame(e, p.desc.Name, m, args); err != nil {
		return err
	}
	bb.B = e.Bytes()

	if !p.sink.Offer(bb.B) {
		return ErrNotAccepted
	}
	return nil
}
