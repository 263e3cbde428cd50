// Package registry maps interfaces to transport channels and to cluster
// session tokens.
//
// Channel-keyed entries bind a publisher or an invoker to a (interface,
// channel) pair. Name-keyed entries bind an invoker to the ingress tokens of
// its capabilities and a session-addressed sink to an egress token. A key
// can be registered once; a second registration is a configuration error.
// The registry is sealed when the node starts polling and rejects further
// registrations from then on.
package registry

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/nfrund/wirecall/internal/invoker"
	"github.com/nfrund/wirecall/internal/publisher"
	"github.com/nfrund/wirecall/internal/schema"
	"github.com/nfrund/wirecall/internal/transport"
	"github.com/nfrund/wirecall/internal/wireerr"
)

// Key identifies a channel-keyed binding.
type Key struct {
	Interface string            `json:"interface"`
	Channel   transport.Channel `json:"channel"`
}

func (k Key) String() string {
	return k.Interface + "@" + k.Channel.String()
}

// SessionSink is an egress sink that is addressed to one client session
// at a time.
type SessionSink interface {
	transport.Sink
	Bind(sessionID int64, sink transport.Sink)
	Unbind(sessionID int64)
}

// EntryKind labels a row of Entries.
type EntryKind string

const (
	KindPublisher EntryKind = "publisher"
	KindInvoker   EntryKind = "invoker"
	KindIngress   EntryKind = "ingress"
	KindEgress    EntryKind = "egress"
	// Client side of a cluster: the publisher a client sends ingress
	// with and the invoker it receives egress on.
	KindIngressPublisher EntryKind = "ingress_publisher"
	KindEgressSubscriber EntryKind = "egress_subscriber"
)

// Entry describes one binding.
type Entry struct {
	Kind        EntryKind          `json:"kind"`
	Interface   string             `json:"interface"`
	Channel     *transport.Channel `json:"channel,omitempty"`
	Token       string             `json:"token,omitempty"`
	Fingerprint string             `json:"fingerprint"`
}

type egressEntry struct {
	desc *schema.InterfaceDescriptor
	sink SessionSink
}

// Registry holds every binding of a node.
type Registry struct {
	mu         sync.RWMutex
	sealed     bool
	publishers map[Key]*publisher.Publisher
	invokers   map[Key]*invoker.Invoker
	ingress    map[string]*invoker.Invoker
	egress     map[string]egressEntry
	clientPubs map[string]*publisher.Publisher
	clientSubs map[string]*invoker.Invoker
	logger     *slog.Logger
}

// New returns an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		publishers: make(map[Key]*publisher.Publisher),
		invokers:   make(map[Key]*invoker.Invoker),
		ingress:    make(map[string]*invoker.Invoker),
		egress:     make(map[string]egressEntry),
		clientPubs: make(map[string]*publisher.Publisher),
		clientSubs: make(map[string]*invoker.Invoker),
		logger:     logger,
	}
}

// RegisterPublisher binds p under its interface and channel.
func (r *Registry) RegisterPublisher(p *publisher.Publisher) error {
	desc := p.Descriptor()
	key := Key{Interface: desc.Name, Channel: p.Channel()}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writable(desc.Name); err != nil {
		return err
	}
	if _, exists := r.publishers[key]; exists {
		return duplicate(desc.Name, "publisher", key.String())
	}
	if inv, ok := r.invokers[key]; ok {
		if err := sameSchema(desc, inv.Descriptor()); err != nil {
			return err
		}
	}
	r.publishers[key] = p
	r.logger.Debug("publisher registered", "interface", desc.Name, "channel", key.Channel.String())
	return nil
}

// RegisterInvoker binds inv to receive on ch.
func (r *Registry) RegisterInvoker(inv *invoker.Invoker, ch transport.Channel) error {
	desc := inv.Descriptor()
	key := Key{Interface: desc.Name, Channel: ch}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writable(desc.Name); err != nil {
		return err
	}
	if _, exists := r.invokers[key]; exists {
		return duplicate(desc.Name, "invoker", key.String())
	}
	if p, ok := r.publishers[key]; ok {
		if err := sameSchema(p.Descriptor(), desc); err != nil {
			return err
		}
	}
	r.invokers[key] = inv
	r.logger.Debug("invoker registered", "interface", desc.Name, "channel", ch.String())
	return nil
}

// RegisterIngressInvoker binds inv to the ingress token of every
// capability of its interface. Either every token is registered or none.
func (r *Registry) RegisterIngressInvoker(inv *invoker.Invoker) error {
	desc := inv.Descriptor()

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writable(desc.Name); err != nil {
		return err
	}
	tokens := make([]string, 0, len(desc.Capabilities))
	for _, capability := range desc.Capabilities {
		if err := ValidateInterfaceName(capability); err != nil {
			return err
		}
		token := IngressPublisherName(capability)
		if _, exists := r.ingress[token]; exists {
			return duplicate(desc.Name, "ingress invoker", token)
		}
		tokens = append(tokens, token)
	}
	for _, token := range tokens {
		r.ingress[token] = inv
		r.logger.Debug("ingress invoker registered", "interface", desc.Name, "token", token)
	}
	return nil
}

// RegisterEgressPublication binds sink to the egress token of desc.
func (r *Registry) RegisterEgressPublication(desc *schema.InterfaceDescriptor, sink SessionSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writable(desc.Name); err != nil {
		return err
	}
	token := EgressPublisherName(desc.Name)
	if _, exists := r.egress[token]; exists {
		return duplicate(desc.Name, "egress publication", token)
	}
	r.egress[token] = egressEntry{desc: desc, sink: sink}
	r.logger.Debug("egress publication registered", "interface", desc.Name, "token", token)
	return nil
}

// RegisterIngressPublisher binds a client-side publisher, whose sink is a
// cluster session, under the ingress token of its interface.
func (r *Registry) RegisterIngressPublisher(p *publisher.Publisher) error {
	desc := p.Descriptor()
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writable(desc.Name); err != nil {
		return err
	}
	token := IngressPublisherName(desc.Name)
	if _, exists := r.clientPubs[token]; exists {
		return duplicate(desc.Name, "ingress publisher", token)
	}
	r.clientPubs[token] = p
	r.logger.Debug("ingress publisher registered", "interface", desc.Name, "token", token)
	return nil
}

// RegisterEgressSubscriber binds a client-side invoker under the egress
// subscriber token of its interface.
func (r *Registry) RegisterEgressSubscriber(inv *invoker.Invoker) error {
	desc := inv.Descriptor()
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writable(desc.Name); err != nil {
		return err
	}
	token := EgressSubscriberName(desc.Name)
	if _, exists := r.clientSubs[token]; exists {
		return duplicate(desc.Name, "egress subscriber", token)
	}
	r.clientSubs[token] = inv
	r.logger.Debug("egress subscriber registered", "interface", desc.Name, "token", token)
	return nil
}

// UnregisterPublisher removes p if it is the publisher bound under its
// interface and channel. A sealed registry is left unchanged.
func (r *Registry) UnregisterPublisher(p *publisher.Publisher) bool {
	key := Key{Interface: p.Descriptor().Name, Channel: p.Channel()}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed || r.publishers[key] != p {
		return false
	}
	delete(r.publishers, key)
	return true
}

// Publisher looks up a channel-keyed publisher.
func (r *Registry) Publisher(key Key) (*publisher.Publisher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.publishers[key]
	return p, ok
}

// Invoker looks up a channel-keyed invoker.
func (r *Registry) Invoker(key Key) (*invoker.Invoker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.invokers[key]
	return inv, ok
}

// IngressInvoker looks up the invoker bound to an ingress token.
func (r *Registry) IngressInvoker(token string) (*invoker.Invoker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.ingress[token]
	return inv, ok
}

// EgressPublication looks up the sink bound to an egress token.
func (r *Registry) EgressPublication(token string) (SessionSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.egress[token]
	return e.sink, ok
}

// IngressPublisher looks up a client-side publisher by ingress token.
func (r *Registry) IngressPublisher(token string) (*publisher.Publisher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.clientPubs[token]
	return p, ok
}

// EgressSubscriber looks up a client-side invoker by egress subscriber
// token.
func (r *Registry) EgressSubscriber(token string) (*invoker.Invoker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.clientSubs[token]
	return inv, ok
}

// Seal rejects every later registration.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether Seal was called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Entries lists every binding ordered by kind, interface and location.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.publishers)+len(r.invokers)+len(r.ingress)+len(r.egress)+len(r.clientPubs)+len(r.clientSubs))
	for key, p := range r.publishers {
		ch := key.Channel
		out = append(out, Entry{Kind: KindPublisher, Interface: key.Interface, Channel: &ch, Fingerprint: fp(p.Descriptor())})
	}
	for key, inv := range r.invokers {
		ch := key.Channel
		out = append(out, Entry{Kind: KindInvoker, Interface: key.Interface, Channel: &ch, Fingerprint: fp(inv.Descriptor())})
	}
	for token, inv := range r.ingress {
		out = append(out, Entry{Kind: KindIngress, Interface: inv.Descriptor().Name, Token: token, Fingerprint: fp(inv.Descriptor())})
	}
	for token, e := range r.egress {
		out = append(out, Entry{Kind: KindEgress, Interface: e.desc.Name, Token: token, Fingerprint: fp(e.desc)})
	}
	for token, p := range r.clientPubs {
		out = append(out, Entry{Kind: KindIngressPublisher, Interface: p.Descriptor().Name, Token: token, Fingerprint: fp(p.Descriptor())})
	}
	for token, inv := range r.clientSubs {
		out = append(out, Entry{Kind: KindEgressSubscriber, Interface: inv.Descriptor().Name, Token: token, Fingerprint: fp(inv.Descriptor())})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Interface != b.Interface {
			return a.Interface < b.Interface
		}
		return location(a) < location(b)
	})
	return out
}

// Close releases the sinks of registered publishers that own one and
// empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for key, p := range r.publishers {
		if c, ok := p.Sink().(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close publisher %s: %w", key, err))
			}
		}
	}
	for token, p := range r.clientPubs {
		if c, ok := p.Sink().(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close ingress publisher %s: %w", token, err))
			}
		}
	}
	r.publishers = make(map[Key]*publisher.Publisher)
	r.clientPubs = make(map[string]*publisher.Publisher)
	r.clientSubs = make(map[string]*invoker.Invoker)
	r.invokers = make(map[Key]*invoker.Invoker)
	r.ingress = make(map[string]*invoker.Invoker)
	r.egress = make(map[string]egressEntry)
	return errors.Join(errs...)
}

func (r *Registry) writable(iface string) error {
	if r.sealed {
		return wireerr.Configuration(iface, "registry is sealed")
	}
	return ValidateInterfaceName(iface)
}

func duplicate(iface, what, where string) error {
	return wireerr.Configuration(iface, fmt.Sprintf("%s already registered for %s", what, where))
}

func sameSchema(pub, sub *schema.InterfaceDescriptor) error {
	if pub.Fingerprint() == sub.Fingerprint() {
		return nil
	}
	return wireerr.Schema(pub.Name, "", "", fmt.Sprintf("publisher schema %s does not match invoker schema %s", fp(pub), fp(sub)))
}

func fp(desc *schema.InterfaceDescriptor) string {
	return strconv.FormatUint(desc.Fingerprint(), 16)
}

func location(e Entry) string {
	if e.Channel != nil {
		return e.Channel.String()
	}
	return e.Token
}
