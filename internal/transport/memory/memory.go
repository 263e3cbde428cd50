// Package memory is a broker-style in-memory media for the "memory" scheme,
// built on watermill's GoChannel pub/sub. Each channel maps to one watermill
// topic; every subscription receives every frame.
package memory

import (
	"context"
	"log/slog"
	"sync"

	"code.hybscloud.com/atomix"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/nfrund/wirecall/internal/transport"
)

// Scheme is the URI scheme served by this media.
const Scheme = "memory"

const metaKeyStream = "stream"

// Media wraps a GoChannel pub/sub.
type Media struct {
	goChannel *gochannel.GoChannel
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	closed atomix.Uint32

	mu          sync.Mutex
	subscribers map[string]*atomix.Uint32
}

// New creates the media. buffer is the per-subscription output buffer.
func New(buffer int64, logger *slog.Logger) *Media {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Media{
		goChannel: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: buffer},
			watermill.NewStdLogger(false, false),
		),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		subscribers: make(map[string]*atomix.Uint32),
	}
}

func (m *Media) Scheme() string { return Scheme }

func topic(ch transport.Channel) string {
	return ch.String()
}

func (m *Media) counter(ch transport.Channel) *atomix.Uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.subscribers[topic(ch)]
	if !ok {
		c = new(atomix.Uint32)
		m.subscribers[topic(ch)] = c
	}
	return c
}

func (m *Media) Publication(ch transport.Channel) (transport.Publication, error) {
	if m.closed.Load() != 0 {
		return nil, transport.ErrClosed
	}
	return &publication{media: m, channel: ch, subscribers: m.counter(ch)}, nil
}

func (m *Media) Subscription(ch transport.Channel) (transport.Subscription, error) {
	if m.closed.Load() != 0 {
		return nil, transport.ErrClosed
	}
	ctx, cancel := context.WithCancel(m.ctx)
	messages, err := m.goChannel.Subscribe(ctx, topic(ch))
	if err != nil {
		cancel()
		return nil, err
	}
	c := m.counter(ch)
	c.Add(1)
	return &subscription{channel: ch, messages: messages, cancel: cancel, subscribers: c}, nil
}

// Close stops every subscription and the underlying GoChannel.
func (m *Media) Close() error {
	if m.closed.Load() != 0 {
		return nil
	}
	m.closed.Store(1)
	m.cancel()
	return m.goChannel.Close()
}

type publication struct {
	media       *Media
	channel     transport.Channel
	subscribers *atomix.Uint32
	closed      atomix.Uint32
}

// Offer publishes a copy of buf. It is rejected when nobody subscribes to
// the channel, matching the other media.
func (p *publication) Offer(buf []byte) bool {
	if p.closed.Load() != 0 || p.media.closed.Load() != 0 || p.subscribers.Load() == 0 {
		return false
	}
	msg := message.NewMessage(watermill.NewUUID(), append([]byte(nil), buf...))
	msg.Metadata.Set(metaKeyStream, topic(p.channel))
	if err := p.media.goChannel.Publish(topic(p.channel), msg); err != nil {
		p.media.logger.Debug("memory offer rejected", "channel", p.channel.String(), "error", err)
		return false
	}
	return true
}

func (p *publication) IsConnected() bool {
	return p.closed.Load() == 0 && p.subscribers.Load() > 0
}

func (p *publication) Close() error {
	p.closed.Store(1)
	return nil
}

type subscription struct {
	channel     transport.Channel
	messages    <-chan *message.Message
	cancel      context.CancelFunc
	subscribers *atomix.Uint32
	closed      atomix.Uint32
	once        sync.Once
}

// Poll drains messages already waiting on the subscription without blocking.
func (s *subscription) Poll(handler transport.FragmentHandler, limit int) int {
	n := 0
	for limit <= 0 || n < limit {
		select {
		case msg, ok := <-s.messages:
			if !ok {
				return n
			}
			handler(msg.Payload, 0)
			msg.Ack()
			n++
		default:
			return n
		}
	}
	return n
}

// IsConnected reports whether the subscription is still attached to the
// broker. The broker does not track publishers.
func (s *subscription) IsConnected() bool {
	return s.closed.Load() == 0
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.closed.Store(1)
		s.subscribers.Add(^uint32(0))
		s.cancel()
	})
	return nil
}
