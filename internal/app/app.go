// Package app is the composition root of a node process. Every service is
// provided lazily through a samber/do injector and torn down in reverse
// dependency order by Shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/do/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/nfrund/wirecall/internal/admin"
	"github.com/nfrund/wirecall/internal/cluster"
	"github.com/nfrund/wirecall/internal/config"
	"github.com/nfrund/wirecall/internal/logging"
	"github.com/nfrund/wirecall/internal/node"
	"github.com/nfrund/wirecall/internal/registry"
	"github.com/nfrund/wirecall/internal/tracing"
	"github.com/nfrund/wirecall/internal/transport"
	"github.com/nfrund/wirecall/internal/transport/gossip"
	"github.com/nfrund/wirecall/internal/transport/grpcstream"
	"github.com/nfrund/wirecall/internal/transport/ipc"
	"github.com/nfrund/wirecall/internal/transport/memory"
)

// Options tunes what New wires.
type Options struct {
	Version string
	// Cluster configures the interfaces served by the hosted cluster
	// container. It runs once, when the container is first resolved.
	Cluster func(*cluster.Configuration)
	// Logger overrides the logger built from the configuration.
	Logger *slog.Logger
}

// App owns the injector and the lifecycle of the node process.
type App struct {
	injector *do.RootScope
	cfg      *config.Config

	mu      sync.Mutex
	started bool
	serve   chan error
}

// Tracer is the process tracer and the flush of its exporter.
type Tracer struct {
	trace.Tracer
	enabled  bool
	shutdown func(context.Context) error
}

// Shutdown flushes pending spans.
func (t *Tracer) Shutdown(ctx context.Context) error {
	return t.shutdown(ctx)
}

// Transport is the scheme multiplexer over every configured media.
type Transport struct {
	*transport.Mux
}

// Shutdown closes every media.
func (t *Transport) Shutdown() error {
	return t.Close()
}

// Node is the plain pub/sub node.
type Node struct {
	*node.Node
}

// Shutdown stops the agents and closes the node's bindings.
func (n *Node) Shutdown() error {
	return n.Close()
}

// Container is the hosted cluster container.
type Container struct {
	*cluster.Container
}

// Shutdown releases the container's toggled publications.
func (c *Container) Shutdown() error {
	return c.Close()
}

// New registers every provider. Nothing is built until first use.
func New(cfg *config.Config, opts Options) *App {
	i := do.New()
	do.ProvideValue(i, cfg)
	do.Provide(i, func(i do.Injector) (*slog.Logger, error) {
		if opts.Logger != nil {
			return opts.Logger, nil
		}
		return newLogger(i)
	})
	do.Provide(i, func(i do.Injector) (*Tracer, error) {
		return newTracer(i, opts.Version)
	})
	do.Provide(i, newTransport)
	do.Provide(i, newRegistry)
	do.Provide(i, newNode)
	do.Provide(i, func(i do.Injector) (*Container, error) {
		return newContainer(i, opts.Cluster)
	})
	do.Provide(i, newClusterClient)
	do.Provide(i, newAdmin)
	return &App{injector: i, cfg: cfg}
}

func newLogger(i do.Injector) (*slog.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return logging.New(cfg.LogFormat, cfg.LogLevel).With("node_id", cfg.NodeID), nil
}

func newTracer(i do.Injector, version string) (*Tracer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	tracer, shutdown, err := tracing.Setup(context.Background(), cfg.Tracing, version)
	if err != nil {
		return nil, err
	}
	return &Tracer{Tracer: tracer, enabled: cfg.Tracing.Enabled, shutdown: shutdown}, nil
}

func newTransport(i do.Injector) (*Transport, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i)

	media := []transport.Media{
		ipc.New(cfg.IPCCapacity),
		memory.New(cfg.MemoryBuffer, logger),
		grpcstream.New(logger),
	}
	if cfg.GossipEnabled() {
		g, err := gossip.New(context.Background(), gossip.Options{
			ListenAddrs: cfg.GossipListen,
			Bootstrap:   cfg.GossipBootstrap,
		}, logger)
		if err != nil {
			for _, md := range media {
				_ = md.Close()
			}
			return nil, fmt.Errorf("start gossip media: %w", err)
		}
		media = append(media, g)
	}

	mux, err := transport.NewMux(media...)
	if err != nil {
		return nil, err
	}
	logger.Info("transport ready", "schemes", mux.Schemes())
	return &Transport{Mux: mux}, nil
}

func newRegistry(i do.Injector) (*registry.Registry, error) {
	return registry.New(do.MustInvoke[*slog.Logger](i)), nil
}

func newNode(i do.Injector) (*Node, error) {
	logger := do.MustInvoke[*slog.Logger](i)
	tracer := do.MustInvoke[*Tracer](i)
	t := do.MustInvoke[*Transport](i)
	reg := do.MustInvoke[*registry.Registry](i)

	opts := node.Options{Logger: logger}
	if tracer.enabled {
		opts.Tracer = tracer.Tracer
	}
	return &Node{Node: node.New(t, reg, opts)}, nil
}

func newContainer(i do.Injector, configure func(*cluster.Configuration)) (*Container, error) {
	logger := do.MustInvoke[*slog.Logger](i)
	t := do.MustInvoke[*Transport](i)
	reg := do.MustInvoke[*registry.Registry](i)

	cfg := cluster.Configure(reg).Transport(t).Logger(logger)
	if configure != nil {
		configure(cfg)
	}
	c, err := cfg.Create()
	if err != nil {
		return nil, fmt.Errorf("configure cluster container: %w", err)
	}
	return &Container{Container: c}, nil
}

// sessionURI carries the egress of in-process cluster client sessions.
const sessionURI = "ipc:session"

func newClusterClient(i do.Injector) (*cluster.LocalClient, error) {
	c := do.MustInvoke[*Container](i)
	t := do.MustInvoke[*Transport](i)
	return cluster.NewLocalClient(c.Container, t, sessionURI), nil
}

func newAdmin(i do.Injector) (*admin.Server, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i)
	reg := do.MustInvoke[*registry.Registry](i)
	container := do.MustInvoke[*Container](i)
	return admin.New(cfg.AdminAddr, reg, admin.Options{
		Logger:    logger,
		Sessions:  container,
		RateLimit: cfg.AdminRateLimit,
	})
}

// Logger returns the process logger.
func (a *App) Logger() (*slog.Logger, error) {
	return do.Invoke[*slog.Logger](a.injector)
}

// Node returns the plain pub/sub node.
func (a *App) Node() (*node.Node, error) {
	n, err := do.Invoke[*Node](a.injector)
	if err != nil {
		return nil, err
	}
	return n.Node, nil
}

// Container returns the hosted cluster container.
func (a *App) Container() (*cluster.Container, error) {
	c, err := do.Invoke[*Container](a.injector)
	if err != nil {
		return nil, err
	}
	return c.Container, nil
}

// ClusterClient returns an in-process client of the hosted container.
func (a *App) ClusterClient() (*cluster.LocalClient, error) {
	return do.Invoke[*cluster.LocalClient](a.injector)
}

// Registry returns the registry shared by the node and the container.
func (a *App) Registry() (*registry.Registry, error) {
	return do.Invoke[*registry.Registry](a.injector)
}

// Start starts the cluster container, then the node, which seals the
// registry, and serves the admin API in the background when an address
// is configured.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return errors.New("app already started")
	}

	container, err := a.Container()
	if err != nil {
		return err
	}
	if err := container.OnStart(); err != nil {
		return fmt.Errorf("start cluster container: %w", err)
	}
	n, err := a.Node()
	if err != nil {
		return err
	}
	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	if a.cfg.AdminAddr != "" {
		srv, err := do.Invoke[*admin.Server](a.injector)
		if err != nil {
			return err
		}
		a.serve = make(chan error, 1)
		go func() { a.serve <- srv.Start() }()
	}
	a.started = true
	return nil
}

// Serving returns the admin server's exit, or nil when it is not running.
func (a *App) Serving() <-chan error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.serve
}

// Shutdown tears every built service down, dependents first.
func (a *App) Shutdown(ctx context.Context) error {
	report := a.injector.ShutdownWithContext(ctx)
	if report == nil || report.Succeed {
		return nil
	}
	return fmt.Errorf("shutdown: %w", report)
}
