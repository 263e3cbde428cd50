package cluster

import (
	"github.com/nfrund/wirecall/internal/publisher"
	"github.com/nfrund/wirecall/internal/schema"
	"github.com/nfrund/wirecall/internal/transport"
)

// MultiplexingSink lets every replica of a service publish on the same
// channel while only the leader's frames reach the transport.
type MultiplexingSink struct {
	sink transport.Sink
	role RoleProvider
}

// NewMultiplexingSink gates sink behind role.
func NewMultiplexingSink(sink transport.Sink, role RoleProvider) *MultiplexingSink {
	return &MultiplexingSink{sink: sink, role: role}
}

// Offer delegates to the sink when this replica leads. A follower drops
// the frame and reports success, since the leader publishes the same
// deterministic output.
func (m *MultiplexingSink) Offer(buf []byte) bool {
	if !m.role.IsLeader() {
		return true
	}
	return m.sink.Offer(buf)
}

// IsConnected is true only for the leader with a connected sink.
func (m *MultiplexingSink) IsConnected() bool {
	return m.role.IsLeader() && m.sink.IsConnected()
}

// Close closes the gated sink if it owns resources.
func (m *MultiplexingSink) Close() error {
	if c, ok := m.sink.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// NewMultiplexingPublisher returns a publisher whose frames only leave
// this replica while it leads.
func NewMultiplexingPublisher(desc *schema.InterfaceDescriptor, ch transport.Channel, sink transport.Sink, role RoleProvider) *publisher.Publisher {
	return publisher.New(desc, ch, NewMultiplexingSink(sink, role))
}
