package cluster

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/nfrund/wirecall/internal/invoker"
	"github.com/nfrund/wirecall/internal/registry"
	"github.com/nfrund/wirecall/internal/wireerr"
)

// SessionStats counts live session bindings.
type SessionStats struct {
	Ingress int `json:"ingress"`
	Egress  int `json:"egress"`
}

// SessionRouter binds client sessions to ingress invokers and egress
// publications by their principal. Session events arrive on the single
// service goroutine; lookups may come from anywhere.
type SessionRouter struct {
	registry *registry.Registry
	logger   *slog.Logger

	mu      sync.RWMutex
	ingress map[int64]*invoker.Invoker
	egress  map[int64]registry.SessionSink
}

// NewSessionRouter returns a router resolving principals against reg.
func NewSessionRouter(reg *registry.Registry, logger *slog.Logger) *SessionRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionRouter{
		registry: reg,
		logger:   logger,
		ingress:  make(map[int64]*invoker.Invoker),
		egress:   make(map[int64]registry.SessionSink),
	}
}

// OnSessionOpen binds the session according to its principal. Empty,
// malformed and unknown principals leave the session unbound.
func (r *SessionRouter) OnSessionOpen(session ClientSession) {
	principal := session.EncodedPrincipal()
	if len(principal) == 0 {
		return
	}
	id := session.ID()
	if !utf8.Valid(principal) {
		r.logger.Debug("session principal is not utf-8", "session_id", id)
		return
	}
	token := string(principal)

	if inv, ok := r.registry.IngressInvoker(token); ok {
		r.mu.Lock()
		r.ingress[id] = inv
		r.mu.Unlock()
		r.logger.Debug("ingress session bound", "session_id", id, "token", token)
		return
	}

	iface, role, err := registry.ParseName(token)
	if err != nil || role != registry.RoleEgressSubscriber {
		r.logger.Debug("session principal not recognised", "session_id", id, "token", token)
		return
	}
	pub, ok := r.registry.EgressPublication(registry.EgressPublisherName(iface))
	if !ok {
		r.logger.Warn("egress subscriber for unregistered interface", "session_id", id, "interface", iface)
		return
	}
	r.mu.Lock()
	// Last bind wins: earlier sessions on this publication no longer
	// receive anything.
	for other, p := range r.egress {
		if p == pub && other != id {
			delete(r.egress, other)
		}
	}
	r.egress[id] = pub
	r.mu.Unlock()
	pub.Bind(id, session)
	r.logger.Debug("egress session bound", "session_id", id, "interface", iface)
}

// OnSessionMessage hands a frame from an ingress session to its invoker.
func (r *SessionRouter) OnSessionMessage(sessionID int64, buf []byte, offset int) error {
	r.mu.RLock()
	inv, ok := r.ingress[sessionID]
	r.mu.RUnlock()
	if !ok {
		return wireerr.Routing(sessionID, "session has no ingress binding")
	}
	return inv.Handle(buf, offset)
}

// OnSessionClose drops every binding of the session.
func (r *SessionRouter) OnSessionClose(sessionID int64) {
	r.mu.Lock()
	delete(r.ingress, sessionID)
	pub, ok := r.egress[sessionID]
	delete(r.egress, sessionID)
	r.mu.Unlock()
	if ok {
		pub.Unbind(sessionID)
	}
}

// IngressBound reports whether the session routes to an invoker.
func (r *SessionRouter) IngressBound(sessionID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ingress[sessionID]
	return ok
}

// Stats returns the number of bound sessions.
func (r *SessionRouter) Stats() SessionStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return SessionStats{Ingress: len(r.ingress), Egress: len(r.egress)}
}
