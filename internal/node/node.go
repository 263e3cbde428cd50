// Package node wires publishers and subscribers of compiled interfaces to
// transport channels and runs one polling agent per subscriber.
//
//	n := node.New(mux, registry.New(logger), node.Options{Logger: logger})
//	pub, _ := n.CreatePublisher(events.SimpleEventsDescriptor, ch)
//	_ = n.RegisterSubscriber(inv, ch)
//	_ = n.Start(ctx)
//	_ = n.AwaitConnected(ctx)
//	_ = events.NewSimpleEventsPublisher(pub).OnEvent(101)
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/nfrund/wirecall/internal/agent"
	"github.com/nfrund/wirecall/internal/invoker"
	"github.com/nfrund/wirecall/internal/publisher"
	"github.com/nfrund/wirecall/internal/registry"
	"github.com/nfrund/wirecall/internal/schema"
	"github.com/nfrund/wirecall/internal/tracing"
	"github.com/nfrund/wirecall/internal/transport"
	"github.com/nfrund/wirecall/internal/wireerr"
)

// Transport opens channel endpoints. *transport.Mux satisfies it.
type Transport interface {
	Publication(ch transport.Channel) (transport.Publication, error)
	Subscription(ch transport.Channel) (transport.Subscription, error)
}

// Options configures a Node. Zero values pick defaults.
type Options struct {
	Logger *slog.Logger
	// Tracer, when set, traces every offer and every dispatched frame.
	Tracer trace.Tracer
	// OnError receives per-frame failures of every agent.
	OnError agent.ErrorHandler
	// PollInterval is how often AwaitConnected checks liveness.
	PollInterval time.Duration
}

// ClusterClient opens client sessions to a cluster. The principal selects
// the bindings the cluster applies to the session. *cluster.LocalClient
// satisfies it.
type ClusterClient interface {
	Connect(principal []byte) (transport.Sink, transport.Source, error)
}

type subscriber struct {
	channel   transport.Channel
	connected func() bool
	agent     *agent.Agent
}

// Node is the process-level entry point for plain (non-cluster) pub/sub.
type Node struct {
	transport Transport
	registry  *registry.Registry
	opts      Options
	logger    *slog.Logger

	mu          sync.Mutex
	publishers  []*publisher.Publisher
	subscribers []subscriber
	sessions    []io.Closer
	started     bool
	closed      bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New returns a node registering its bindings in reg.
func New(t Transport, reg *registry.Registry, opts Options) *Node {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Millisecond
	}
	return &Node{transport: t, registry: reg, opts: opts, logger: opts.Logger}
}

// Registry returns the node's registry.
func (n *Node) Registry() *registry.Registry {
	return n.registry
}

// CreatePublisher opens a publication on ch and registers a publisher for
// desc on it.
func (n *Node) CreatePublisher(desc *schema.InterfaceDescriptor, ch transport.Channel) (*publisher.Publisher, error) {
	if err := registry.ValidateInterfaceName(desc.Name); err != nil {
		return nil, err
	}
	pub, err := n.transport.Publication(ch)
	if err != nil {
		return nil, fmt.Errorf("open publication %s: %w", ch, err)
	}

	var sink transport.Sink = pub
	if n.opts.Tracer != nil {
		sink = tracing.TraceSink(pub, n.opts.Tracer, ch)
	}
	p := publisher.New(desc, ch, sink)
	if err := n.registry.RegisterPublisher(p); err != nil {
		_ = pub.Close()
		return nil, err
	}

	n.mu.Lock()
	n.publishers = append(n.publishers, p)
	n.mu.Unlock()
	n.logger.Info("publisher created", "interface", desc.Name, "channel", ch.String())
	return p, nil
}

// RegisterSubscriber subscribes inv to ch. Its agent starts polling with
// Start.
func (n *Node) RegisterSubscriber(inv *invoker.Invoker, ch transport.Channel) error {
	desc := inv.Descriptor()
	n.mu.Lock()
	started := n.started
	n.mu.Unlock()
	if started {
		return wireerr.Configuration(desc.Name, "node already started")
	}

	sub, err := n.transport.Subscription(ch)
	if err != nil {
		return fmt.Errorf("open subscription %s: %w", ch, err)
	}
	if err := n.registry.RegisterInvoker(inv, ch); err != nil {
		_ = sub.Close()
		return err
	}

	n.addSubscriber(inv, ch, sub, sub.IsConnected)
	n.logger.Info("subscriber registered", "interface", desc.Name, "channel", ch.String())
	return nil
}

func (n *Node) addSubscriber(inv *invoker.Invoker, ch transport.Channel, source transport.Source, connected func() bool) {
	name := inv.Descriptor().Name
	var d agent.Dispatcher = inv
	if n.opts.Tracer != nil {
		d = tracing.TraceDispatcher(inv, n.opts.Tracer, name)
	}
	a := agent.New(source, d, agent.Options{Name: name, OnError: n.opts.OnError, Logger: n.logger})

	n.mu.Lock()
	n.subscribers = append(n.subscribers, subscriber{channel: ch, connected: connected, agent: a})
	n.mu.Unlock()
}

// CreateClusterIngressPublisher opens a cluster session under the ingress
// token of desc and returns a publisher sending on it.
func (n *Node) CreateClusterIngressPublisher(client ClusterClient, desc *schema.InterfaceDescriptor) (*publisher.Publisher, error) {
	if err := n.writable(desc.Name); err != nil {
		return nil, err
	}
	token := registry.IngressPublisherName(desc.Name)
	sink, source, err := client.Connect([]byte(token))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", token, err)
	}
	// Ingress sessions receive no egress.
	if source != nil {
		_ = source.Close()
	}

	ch := transport.Channel{URI: token}
	var out transport.Sink = sink
	if n.opts.Tracer != nil {
		out = tracing.TraceSink(sink, n.opts.Tracer, ch)
	}
	p := publisher.New(desc, ch, out)
	if err := n.registry.RegisterIngressPublisher(p); err != nil {
		closeSink(sink)
		return nil, err
	}

	n.mu.Lock()
	n.publishers = append(n.publishers, p)
	n.mu.Unlock()
	n.logger.Info("cluster ingress publisher created", "interface", desc.Name, "token", token)
	return p, nil
}

// RegisterClusterEgressSubscriber opens a cluster session under the egress
// subscriber token of inv's interface. Egress sent to the session is
// dispatched to inv by an agent started with Start.
func (n *Node) RegisterClusterEgressSubscriber(client ClusterClient, inv *invoker.Invoker) error {
	desc := inv.Descriptor()
	if err := n.writable(desc.Name); err != nil {
		return err
	}
	token := registry.EgressSubscriberName(desc.Name)
	sink, source, err := client.Connect([]byte(token))
	if err != nil {
		return fmt.Errorf("connect %s: %w", token, err)
	}
	if source == nil {
		closeSink(sink)
		return wireerr.Configuration(desc.Name, "cluster client returned no egress source")
	}
	if err := n.registry.RegisterEgressSubscriber(inv); err != nil {
		_ = source.Close()
		closeSink(sink)
		return err
	}

	n.addSubscriber(inv, transport.Channel{URI: token}, source, sink.IsConnected)
	if c, ok := sink.(io.Closer); ok {
		n.mu.Lock()
		n.sessions = append(n.sessions, c)
		n.mu.Unlock()
	}
	n.logger.Info("cluster egress subscriber registered", "interface", desc.Name, "token", token)
	return nil
}

func (n *Node) writable(iface string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started || n.closed {
		return wireerr.Configuration(iface, "node already started")
	}
	return registry.ValidateInterfaceName(iface)
}

func closeSink(sink transport.Sink) {
	if c, ok := sink.(io.Closer); ok {
		_ = c.Close()
	}
}

// Start seals the registry and runs one agent per subscriber until ctx is
// done or Close is called.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return wireerr.Configuration("", "node already started")
	}
	if n.closed {
		return transport.ErrClosed
	}
	n.started = true
	n.registry.Seal()

	ctx, n.cancel = context.WithCancel(ctx)
	for _, s := range n.subscribers {
		n.wg.Add(1)
		go func(a *agent.Agent) {
			defer n.wg.Done()
			if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				n.logger.Error("agent stopped", "agent", a.Name(), "error", err)
			}
		}(s.agent)
	}
	n.logger.Info("node started", "publishers", len(n.publishers), "subscribers", len(n.subscribers))
	return nil
}

// Connected reports whether every publisher and subscriber sees its peer.
func (n *Node) Connected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.publishers {
		if !p.IsConnected() {
			return false
		}
	}
	for _, s := range n.subscribers {
		if !s.connected() {
			return false
		}
	}
	return true
}

// AwaitConnected blocks until Connected is true or ctx is done.
func (n *Node) AwaitConnected(ctx context.Context) error {
	ticker := time.NewTicker(n.opts.PollInterval)
	defer ticker.Stop()
	for !n.Connected() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("await connected: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// Agents returns the subscriber agents in registration order.
func (n *Node) Agents() []*agent.Agent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*agent.Agent, len(n.subscribers))
	for i, s := range n.subscribers {
		out[i] = s.agent
	}
	return out
}

// Close stops the agents, closes the subscriptions and cluster sessions
// and then the registry, which closes the publications.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	cancel := n.cancel
	subs := n.subscribers
	sessions := n.sessions
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	n.wg.Wait()

	var errs []error
	for _, s := range subs {
		if err := s.agent.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscription %s: %w", s.channel, err))
		}
	}
	for _, c := range sessions {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cluster session: %w", err))
		}
	}
	if err := n.registry.Close(); err != nil {
		errs = append(errs, err)
	}
	n.logger.Info("node closed")
	return errors.Join(errs...)
}
