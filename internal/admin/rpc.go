package admin

import (
	"net/http"

	"github.com/nfrund/wirecall/internal/cluster"
	"github.com/nfrund/wirecall/internal/registry"
)

// ListArgs filters Registry.List. An empty Kind lists every binding.
type ListArgs struct {
	Kind registry.EntryKind `json:"kind,omitempty"`
}

// ListReply is the result of Registry.List.
type ListReply struct {
	Entries []registry.Entry `json:"entries"`
}

// SessionsArgs is the empty argument of Registry.Sessions.
type SessionsArgs struct{}

// SessionsReply is the result of Registry.Sessions.
type SessionsReply struct {
	Clustered bool                 `json:"clustered"`
	Stats     cluster.SessionStats `json:"stats"`
}

// RegistryService is the JSON-RPC "Registry" service.
type RegistryService struct {
	registry *registry.Registry
	sessions SessionCounter
}

// List returns the registry bindings.
func (s *RegistryService) List(r *http.Request, args *ListArgs, reply *ListReply) error {
	reply.Entries = filterEntries(s.registry.Entries(), args.Kind)
	loggerFrom(r.Context()).Debug("rpc call", "method", "Registry.List", "kind", args.Kind, "entries", len(reply.Entries))
	return nil
}

// Sessions returns the bound session counts of the cluster container, if any.
func (s *RegistryService) Sessions(r *http.Request, _ *SessionsArgs, reply *SessionsReply) error {
	loggerFrom(r.Context()).Debug("rpc call", "method", "Registry.Sessions")
	if s.sessions == nil {
		return nil
	}
	reply.Clustered = true
	reply.Stats = s.sessions.Sessions()
	return nil
}
