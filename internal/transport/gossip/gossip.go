// Package gossip is a multi-node media for the "gossip" scheme. Each channel
// is a libp2p GossipSub topic, so every subscribed node, including the
// publishing one, receives every frame.
package gossip

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"code.hybscloud.com/atomix"
	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/nfrund/wirecall/internal/transport"
)

// Scheme is the URI scheme served by this media.
const Scheme = "gossip"

// subscriptionBuffer bounds the frames waiting for a Poll. Frames arriving
// while it is full are dropped.
const subscriptionBuffer = 1024

// Options configures the libp2p host.
type Options struct {
	ListenAddrs []string
	Bootstrap   []string
}

// Media is a GossipSub pub/sub on its own libp2p host.
type Media struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	host host.Host
	ps   *pubsub.PubSub

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// New starts a libp2p host and GossipSub router and dials the bootstrap
// peers. A bootstrap peer that cannot be reached is logged and skipped.
func New(parent context.Context, opts Options, logger *slog.Logger) (*Media, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(parent)

	listenAddrs := make([]ma.Multiaddr, 0, len(opts.ListenAddrs))
	for _, s := range opts.ListenAddrs {
		if s == "" {
			continue
		}
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("invalid listen multiaddr %q: %w", s, err)
		}
		listenAddrs = append(listenAddrs, a)
	}
	if len(listenAddrs) == 0 {
		a, _ := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/0")
		listenAddrs = append(listenAddrs, a)
	}

	h, err := libp2p.New(libp2p.ListenAddrs(listenAddrs...))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		_ = h.Close()
		cancel()
		return nil, fmt.Errorf("create gossipsub: %w", err)
	}

	m := &Media{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		host:   h,
		ps:     ps,
		topics: make(map[string]*pubsub.Topic),
	}

	for _, raw := range opts.Bootstrap {
		if raw == "" {
			continue
		}
		if err := m.Connect(ctx, raw); err != nil {
			logger.Warn("bootstrap connect failed", "addr", raw, "error", err)
			continue
		}
		logger.Info("connected bootstrap peer", "addr", raw)
	}

	return m, nil
}

func (m *Media) Scheme() string { return Scheme }

// Connect dials a peer given its full /p2p/ multiaddr.
func (m *Media) Connect(ctx context.Context, addr string) error {
	a, err := ma.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("invalid peer multiaddr %q: %w", addr, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(a)
	if err != nil {
		return fmt.Errorf("invalid peer multiaddr %q: %w", addr, err)
	}
	return m.host.Connect(ctx, *info)
}

// PeerID returns this node's libp2p peer id.
func (m *Media) PeerID() string {
	return m.host.ID().String()
}

// ListenAddrs returns dialable addresses including the /p2p/ suffix.
func (m *Media) ListenAddrs() []string {
	out := make([]string, 0, len(m.host.Addrs()))
	for _, addr := range m.host.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", addr.String(), m.host.ID().String()))
	}
	return out
}

// ConnectedPeers returns the peer ids the host is connected to.
func (m *Media) ConnectedPeers() []string {
	peers := m.host.Network().Peers()
	out := make([]string, 0, len(peers))
	for _, pid := range peers {
		out = append(out, pid.String())
	}
	return out
}

func topicName(ch transport.Channel) string {
	return "wirecall/" + ch.String()
}

func (m *Media) getOrJoinTopic(name string) (*pubsub.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.topics[name]; ok {
		return t, nil
	}
	t, err := m.ps.Join(name)
	if err != nil {
		return nil, err
	}
	m.topics[name] = t
	return t, nil
}

func (m *Media) Publication(ch transport.Channel) (transport.Publication, error) {
	if m.ctx.Err() != nil {
		return nil, transport.ErrClosed
	}
	t, err := m.getOrJoinTopic(topicName(ch))
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", ch, err)
	}
	return &publication{ctx: m.ctx, topic: t, channel: ch, logger: m.logger}, nil
}

func (m *Media) Subscription(ch transport.Channel) (transport.Subscription, error) {
	if m.ctx.Err() != nil {
		return nil, transport.ErrClosed
	}
	t, err := m.getOrJoinTopic(topicName(ch))
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", ch, err)
	}
	sub, err := t.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", ch, err)
	}

	out := make(chan []byte, subscriptionBuffer)
	subCtx, subCancel := context.WithCancel(m.ctx)
	go func() {
		defer close(out)
		for {
			msg, err := sub.Next(subCtx)
			if err != nil {
				return
			}
			select {
			case out <- msg.Data:
			default:
				m.logger.Debug("gossip frame dropped", "channel", ch.String())
			}
		}
	}()

	return &subscription{
		topic:  t,
		frames: out,
		cancel: func() { subCancel(); sub.Cancel() },
	}, nil
}

// Close leaves every topic and shuts the host down.
func (m *Media) Close() error {
	m.cancel()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.topics {
		_ = t.Close()
	}
	m.topics = map[string]*pubsub.Topic{}
	return m.host.Close()
}

type publication struct {
	ctx     context.Context
	topic   *pubsub.Topic
	channel transport.Channel
	logger  *slog.Logger
	closed  atomix.Uint32
}

func (p *publication) Offer(buf []byte) bool {
	if p.closed.Load() != 0 || p.ctx.Err() != nil {
		return false
	}
	if err := p.topic.Publish(p.ctx, append([]byte(nil), buf...)); err != nil {
		p.logger.Debug("gossip offer rejected", "channel", p.channel.String(), "error", err)
		return false
	}
	return true
}

// IsConnected reports whether any remote peer has joined the topic.
func (p *publication) IsConnected() bool {
	return p.closed.Load() == 0 && len(p.topic.ListPeers()) > 0
}

func (p *publication) Close() error {
	p.closed.Store(1)
	return nil
}

type subscription struct {
	topic  *pubsub.Topic
	frames chan []byte
	cancel func()
	once   sync.Once
}

func (s *subscription) Poll(handler transport.FragmentHandler, limit int) int {
	n := 0
	for limit <= 0 || n < limit {
		select {
		case frame, ok := <-s.frames:
			if !ok {
				return n
			}
			handler(frame, 0)
			n++
		default:
			return n
		}
	}
	return n
}

func (s *subscription) IsConnected() bool {
	return len(s.topic.ListPeers()) > 0
}

func (s *subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}
