// Package invoker decodes received frames and dispatches them to bound
// handlers.
package invoker

import (
	"fmt"
	"strings"

	"github.com/nfrund/wirecall/internal/codec"
	"github.com/nfrund/wirecall/internal/schema"
	"github.com/nfrund/wirecall/internal/wire"
	"github.com/nfrund/wirecall/internal/wireerr"
)

// HandlerFunc receives the decoded arguments of one call in declared order.
type HandlerFunc func(args []any) error

// Bindings maps methods to handlers. A key is either a method name or, to
// bind one overload of a name, the method signature such as "on(int32)".
// A signature key wins over a name key.
type Bindings map[string]HandlerFunc

// Invoker holds the dispatch table of one interface. Handle must only be
// called from the single goroutine polling the invoker's source.
type Invoker struct {
	desc     *schema.InterfaceDescriptor
	dispatch []HandlerFunc
}

// New builds the dispatch table. Every declared method must be bound and
// every binding key must name a declared method.
func New(desc *schema.InterfaceDescriptor, bindings Bindings) (*Invoker, error) {
	inv := &Invoker{desc: desc, dispatch: make([]HandlerFunc, len(desc.Methods))}
	used := make(map[string]bool, len(bindings))

	var unbound []string
	for i := range desc.Methods {
		m := &desc.Methods[i]
		sig := m.Signature()
		if h, ok := bindings[sig]; ok && h != nil {
			inv.dispatch[i] = h
			used[sig] = true
			continue
		}
		if h, ok := bindings[m.Name]; ok && h != nil {
			inv.dispatch[i] = h
			used[m.Name] = true
			continue
		}
		unbound = append(unbound, sig)
	}
	if len(unbound) > 0 {
		return nil, wireerr.Configuration(desc.Name, "unbound methods: "+strings.Join(unbound, ", "))
	}
	for key := range bindings {
		if !used[key] {
			return nil, wireerr.Configuration(desc.Name, fmt.Sprintf("binding %q matches no method", key))
		}
	}
	return inv, nil
}

// Descriptor returns the compiled interface.
func (inv *Invoker) Descriptor() *schema.InterfaceDescriptor {
	return inv.desc
}

// Handle decodes one frame from buf at offset and calls its handler.
// Unknown method ids and malformed frames are protocol errors; a handler
// error is returned wrapped with the method name.
func (inv *Invoker) Handle(buf []byte, offset int) error {
	d := wire.NewDecoder(buf, offset)
	id, err := codec.ReadMethodID(d, inv.desc.Name)
	if err != nil {
		return err
	}
	m, ok := inv.desc.Method(id)
	if !ok {
		return codec.UnknownMethod(inv.desc.Name, id)
	}
	args, err := codec.DecodeArgs(d, inv.desc.Name, m)
	if err != nil {
		return err
	}
	if err := inv.dispatch[id](args); err != nil {
		return fmt.Errorf("%s.%s: %w", inv.desc.Name, m.Name, err)
	}
	return nil
}
