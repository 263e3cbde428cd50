package cluster

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/nfrund/wirecall/internal/invoker"
	"github.com/nfrund/wirecall/internal/publisher"
	"github.com/nfrund/wirecall/internal/registry"
	"github.com/nfrund/wirecall/internal/schema"
	"github.com/nfrund/wirecall/internal/transport"
	"github.com/nfrund/wirecall/internal/wireerr"
)

// ClusteredService is the user's replicated state machine. The container
// calls it after its own handling of each event.
type ClusteredService interface {
	OnStart(c *Container) error
	OnSessionOpen(session ClientSession)
	OnSessionMessage(session ClientSession, buf []byte, offset int)
	OnSessionClose(session ClientSession)
	OnRoleChange(role Role)
}

// NopService implements ClusteredService with no-ops. Embed it to
// override only some events.
type NopService struct{}

func (NopService) OnStart(*Container) error                    { return nil }
func (NopService) OnSessionOpen(ClientSession)                 {}
func (NopService) OnSessionMessage(ClientSession, []byte, int) {}
func (NopService) OnSessionClose(ClientSession)                {}
func (NopService) OnRoleChange(Role)                           {}

// Transport opens publications for toggled egress channels.
// *transport.Mux satisfies it.
type Transport interface {
	Publication(ch transport.Channel) (transport.Publication, error)
}

type toggledEgress struct {
	desc    *schema.InterfaceDescriptor
	channel transport.Channel
}

// Configuration collects the interfaces a Container serves. Registration
// errors are kept and reported by Create.
type Configuration struct {
	registry     *registry.Registry
	ownsRegistry bool
	service      ClusteredService
	transport    Transport
	logger       *slog.Logger
	egress       map[string]*publisher.Publisher
	toggled      []toggledEgress
	errs         []error
}

// Configure starts a configuration on reg. A nil reg gives the container
// a registry of its own, sealed on start.
func Configure(reg *registry.Registry) *Configuration {
	c := &Configuration{
		registry: reg,
		service:  NopService{},
		logger:   slog.Default(),
		egress:   make(map[string]*publisher.Publisher),
	}
	if reg == nil {
		c.registry = registry.New(nil)
		c.ownsRegistry = true
	}
	return c
}

// ClusteredService sets the user service that receives every event.
func (c *Configuration) ClusteredService(s ClusteredService) *Configuration {
	if s != nil {
		c.service = s
	}
	return c
}

// Transport sets where toggled egress publications are opened.
func (c *Configuration) Transport(t Transport) *Configuration {
	c.transport = t
	return c
}

// Logger sets the container's logger.
func (c *Configuration) Logger(l *slog.Logger) *Configuration {
	if l != nil {
		c.logger = l
	}
	return c
}

// RegisterIngressSubscriber routes sessions whose principal is an
// ingress token of inv's capabilities to inv.
func (c *Configuration) RegisterIngressSubscriber(inv *invoker.Invoker) *Configuration {
	c.record(c.registry.RegisterIngressInvoker(inv))
	return c
}

// RegisterEgressPublisher creates a publisher for desc addressed to the
// client session that subscribes to it.
func (c *Configuration) RegisterEgressPublisher(desc *schema.InterfaceDescriptor) *Configuration {
	pub := NewClientSessionPublication()
	if err := c.registry.RegisterEgressPublication(desc, pub); err != nil {
		c.record(err)
		return c
	}
	c.egress[desc.Name] = publisher.New(desc, transport.Channel{URI: registry.EgressPublisherName(desc.Name)}, pub)
	return c
}

// RegisterToggledEgressPublisher publishes desc on ch from every replica,
// gated so that only the leader's frames are sent. The publication is
// opened on start.
func (c *Configuration) RegisterToggledEgressPublisher(desc *schema.InterfaceDescriptor, ch transport.Channel) *Configuration {
	if err := registry.ValidateInterfaceName(desc.Name); err != nil {
		c.record(err)
		return c
	}
	for _, t := range c.toggled {
		if t.desc.Name == desc.Name {
			c.record(wireerr.Configuration(desc.Name, "toggled egress publisher already registered"))
			return c
		}
	}
	c.toggled = append(c.toggled, toggledEgress{desc: desc, channel: ch})
	return c
}

// Registry returns the registry being configured.
func (c *Configuration) Registry() *registry.Registry {
	return c.registry
}

// PublisherFor returns the session egress publisher of an interface.
func (c *Configuration) PublisherFor(iface string) (*publisher.Publisher, bool) {
	p, ok := c.egress[iface]
	return p, ok
}

// Create validates the configuration and builds the container.
func (c *Configuration) Create() (*Container, error) {
	if err := errors.Join(c.errs...); err != nil {
		return nil, err
	}
	if len(c.toggled) > 0 && c.transport == nil {
		return nil, wireerr.Configuration(c.toggled[0].desc.Name, "toggled egress publisher needs a transport")
	}
	return &Container{
		cfg:         c,
		role:        NewRoleFlag(Follower),
		router:      NewSessionRouter(c.registry, c.logger),
		multiplexed: make(map[string]*publisher.Publisher),
	}, nil
}

func (c *Configuration) record(err error) {
	if err != nil {
		c.errs = append(c.errs, err)
	}
}

// Container adapts the cluster's session and role events to the
// registry and forwards them to the user service.
type Container struct {
	cfg    *Configuration
	role   *RoleFlag
	router *SessionRouter

	mu           sync.RWMutex
	started      bool
	multiplexed  map[string]*publisher.Publisher
	publications []transport.Publication
}

// OnStart opens the toggled egress publications and starts the user
// service. When a publication cannot be opened or registered, the ones
// already opened are released and OnStart may be retried.
func (c *Container) OnStart() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return wireerr.Configuration("", "container already started")
	}
	if err := c.openToggled(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.started = true
	c.mu.Unlock()

	if c.cfg.ownsRegistry {
		c.cfg.registry.Seal()
	}
	c.cfg.logger.Info("clustered service container started",
		"egress", len(c.cfg.egress), "toggled_egress", len(c.cfg.toggled))
	return c.cfg.service.OnStart(c)
}

// openToggled must be called with c.mu held.
func (c *Container) openToggled() error {
	for _, t := range c.cfg.toggled {
		pub, err := c.cfg.transport.Publication(t.channel)
		if err != nil {
			c.rollback()
			return fmt.Errorf("open toggled egress %s on %s: %w", t.desc.Name, t.channel, err)
		}
		c.publications = append(c.publications, pub)
		p := NewMultiplexingPublisher(t.desc, t.channel, pub, c.role)
		if err := c.cfg.registry.RegisterPublisher(p); err != nil {
			c.rollback()
			return err
		}
		c.multiplexed[t.desc.Name] = p
	}
	return nil
}

// rollback undoes a partial openToggled. It must be called with c.mu held.
func (c *Container) rollback() {
	for name, p := range c.multiplexed {
		c.cfg.registry.UnregisterPublisher(p)
		delete(c.multiplexed, name)
	}
	for _, pub := range c.publications {
		if err := pub.Close(); err != nil {
			c.cfg.logger.Warn("toggled egress not released", "error", err)
		}
	}
	c.publications = nil
}

// OnSessionOpen binds the session and tells the user service.
func (c *Container) OnSessionOpen(session ClientSession) {
	c.router.OnSessionOpen(session)
	c.cfg.service.OnSessionOpen(session)
}

// OnSessionMessage routes the frame to the session's invoker. The user
// service sees every message, routed or not.
func (c *Container) OnSessionMessage(session ClientSession, buf []byte, offset int) error {
	err := c.router.OnSessionMessage(session.ID(), buf, offset)
	c.cfg.service.OnSessionMessage(session, buf, offset)
	return err
}

// OnSessionClose unbinds the session and tells the user service.
func (c *Container) OnSessionClose(session ClientSession) {
	c.router.OnSessionClose(session.ID())
	c.cfg.service.OnSessionClose(session)
}

// OnRoleChange records the new role. Multiplexing publishers see it on
// their next offer.
func (c *Container) OnRoleChange(role Role) {
	c.role.Set(role)
	c.cfg.logger.Info("cluster role changed", "role", role.String())
	c.cfg.service.OnRoleChange(role)
}

// Role returns the current role.
func (c *Container) Role() Role {
	return c.role.Role()
}

// RoleProvider returns the container's role cell.
func (c *Container) RoleProvider() RoleProvider {
	return c.role
}

// Registry returns the container's registry.
func (c *Container) Registry() *registry.Registry {
	return c.cfg.registry
}

// PublisherFor returns the session egress publisher of an interface.
func (c *Container) PublisherFor(iface string) (*publisher.Publisher, bool) {
	return c.cfg.PublisherFor(iface)
}

// MultiplexingPublisherFor returns the leader-gated publisher of an
// interface. It exists once the container has started.
func (c *Container) MultiplexingPublisherFor(iface string) (*publisher.Publisher, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.multiplexed[iface]
	return p, ok
}

// EgressConnected reports whether the container has egress and every
// egress publisher is connected. Followers are never connected on
// toggled egress.
func (c *Container) EgressConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.cfg.egress) == 0 && len(c.multiplexed) == 0 {
		return false
	}
	for _, p := range c.cfg.egress {
		if !p.IsConnected() {
			return false
		}
	}
	for _, p := range c.multiplexed {
		if !p.IsConnected() {
			return false
		}
	}
	return true
}

// EgressInterfaces lists the interfaces with an egress publisher.
func (c *Container) EgressInterfaces() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.cfg.egress)+len(c.multiplexed))
	for name := range c.cfg.egress {
		out = append(out, name)
	}
	for name := range c.multiplexed {
		if _, dup := c.cfg.egress[name]; !dup {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Sessions returns the number of bound sessions.
func (c *Container) Sessions() SessionStats {
	return c.router.Stats()
}

// Close releases the toggled egress publications.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for _, pub := range c.publications {
		if err := pub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.publications = nil
	return errors.Join(errs...)
}
