package cluster

import (
	"sync"

	"github.com/nfrund/wirecall/internal/registry"
	"github.com/nfrund/wirecall/internal/transport"
)

// ClientSession is a client connection to the cluster as seen by the
// service. Offering to it sends egress to that client.
type ClientSession interface {
	transport.Sink
	ID() int64
	EncodedPrincipal() []byte
}

// ClientSessionPublication is an egress sink addressed to at most one
// client session. Binding a new session replaces the previous one.
type ClientSessionPublication struct {
	mu        sync.RWMutex
	sessionID int64
	sink      transport.Sink
}

var _ registry.SessionSink = (*ClientSessionPublication)(nil)

// NewClientSessionPublication returns an unbound publication.
func NewClientSessionPublication() *ClientSessionPublication {
	return &ClientSessionPublication{}
}

// Bind routes later offers to sink.
func (p *ClientSessionPublication) Bind(sessionID int64, sink transport.Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionID = sessionID
	p.sink = sink
}

// Unbind detaches sessionID if it is the bound session.
func (p *ClientSessionPublication) Unbind(sessionID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sink != nil && p.sessionID == sessionID {
		p.sessionID = 0
		p.sink = nil
	}
}

// Session returns the bound session id.
func (p *ClientSessionPublication) Session() (int64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sessionID, p.sink != nil
}

// Offer sends buf to the bound session. It returns false while unbound.
func (p *ClientSessionPublication) Offer(buf []byte) bool {
	p.mu.RLock()
	sink := p.sink
	p.mu.RUnlock()
	if sink == nil {
		return false
	}
	return sink.Offer(buf)
}

// IsConnected reports whether a session is bound.
func (p *ClientSessionPublication) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sink != nil
}
