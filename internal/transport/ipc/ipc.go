// Package ipc is an in-process media for the "ipc" scheme. Every
// subscription owns a bounded lock-free SPSC ring; publications on the same
// channel copy each frame once and enqueue it on every ring.
package ipc

import (
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/lfq"

	"github.com/nfrund/wirecall/internal/transport"
)

// Scheme is the URI scheme served by this media.
const Scheme = "ipc"

// DefaultCapacity is the per-subscription ring size in frames.
const DefaultCapacity = 1024

// Media is the in-process media.
type Media struct {
	capacity int
	closed   atomix.Uint32

	mu      sync.Mutex
	streams map[transport.Channel]*stream
}

// New returns an ipc media whose subscription rings hold capacity frames.
func New(capacity int) *Media {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Media{
		capacity: roundPow2(capacity),
		streams:  make(map[transport.Channel]*stream),
	}
}

func (m *Media) Scheme() string { return Scheme }

func (m *Media) stream(ch transport.Channel) *stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[ch]
	if !ok {
		s = &stream{}
		m.streams[ch] = s
	}
	return s
}

// Publication returns a sink for ch. Publications on one channel share the
// producer side of every ring, serialised by the stream lock.
func (m *Media) Publication(ch transport.Channel) (transport.Publication, error) {
	if m.closed.Load() != 0 {
		return nil, transport.ErrClosed
	}
	s := m.stream(ch)
	s.publishers.Add(1)
	return &publication{stream: s}, nil
}

// Subscription returns a source for ch. It only sees frames offered after
// it was created.
func (m *Media) Subscription(ch transport.Channel) (transport.Subscription, error) {
	if m.closed.Load() != 0 {
		return nil, transport.ErrClosed
	}
	s := m.stream(ch)
	sub := &subscription{stream: s}
	sub.ring.Init(m.capacity)

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return sub, nil
}

// Close rejects further offers and new channels.
func (m *Media) Close() error {
	m.closed.Store(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.streams {
		s.mu.Lock()
		s.subs = nil
		s.closed = true
		s.mu.Unlock()
	}
	return nil
}

type stream struct {
	publishers atomix.Uint32

	mu     sync.Mutex
	subs   []*subscription
	closed bool
}

func (s *stream) remove(sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, x := range s.subs {
		if x == sub {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

type publication struct {
	stream *stream
	once   sync.Once
	closed atomix.Uint32
}

// Offer enqueues a copy of buf on every subscription ring. It returns false
// when there is no subscriber or any ring is full; subscribers with room
// still receive the frame.
func (p *publication) Offer(buf []byte) bool {
	if p.closed.Load() != 0 {
		return false
	}
	s := p.stream
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.subs) == 0 {
		return false
	}
	frame := append([]byte(nil), buf...)
	accepted := true
	for _, sub := range s.subs {
		if err := sub.ring.Enqueue(&frame); err != nil {
			accepted = false
		}
	}
	return accepted
}

func (p *publication) IsConnected() bool {
	if p.closed.Load() != 0 {
		return false
	}
	s := p.stream
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && len(s.subs) > 0
}

func (p *publication) Close() error {
	p.once.Do(func() {
		p.closed.Store(1)
		p.stream.publishers.Add(^uint32(0))
	})
	return nil
}

type subscription struct {
	stream *stream
	ring   lfq.SPSC[[]byte]
	once   sync.Once
}

// Poll must only be called from the goroutine that owns the subscription.
func (s *subscription) Poll(handler transport.FragmentHandler, limit int) int {
	n := 0
	for limit <= 0 || n < limit {
		frame, err := s.ring.Dequeue()
		if err != nil {
			// empty ring
			return n
		}
		handler(frame, 0)
		n++
	}
	return n
}

func (s *subscription) IsConnected() bool {
	return s.stream.publishers.Load() > 0
}

func (s *subscription) Close() error {
	s.once.Do(func() { s.stream.remove(s) })
	return nil
}

func roundPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
