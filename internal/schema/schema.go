// Package schema compiles statically declared interface definitions into
// immutable descriptors that drive the frame codec.
//
// A definition is a plain data table: the interface name, its methods in
// declaration order and each method's parameters in declaration order. The
// method id is the 0-based position in that list, so reordering methods
// changes ids. Overloaded names are allowed and told apart by position only.
package schema

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/go-playground/validator/v10"

	"github.com/nfrund/wirecall/internal/wireerr"
)

// Interface is the definition table for one interface.
type Interface struct {
	Name string `validate:"required" yaml:"name" json:"name"`
	// Capabilities are the names the interface is reachable under for
	// session binding. Empty means just Name.
	Capabilities []string `validate:"dive,required" yaml:"capabilities" json:"capabilities,omitempty"`
	Methods      []Method `validate:"dive" yaml:"methods" json:"methods"`
}

// Method is one declared method.
type Method struct {
	Name   string  `validate:"required" yaml:"name" json:"name"`
	Params []Param `validate:"dive" yaml:"params" json:"params"`
}

// Param is one declared parameter.
type Param struct {
	Name string `validate:"required" yaml:"name" json:"name"`
	Type Type   `yaml:"-" json:"-"`
}

// InterfaceDescriptor is a compiled interface. It must not be modified.
type InterfaceDescriptor struct {
	Name         string
	Capabilities []string
	Methods      []MethodDescriptor

	byName      map[string]int32
	fingerprint uint64
}

// MethodDescriptor is a compiled method.
type MethodDescriptor struct {
	ID     int32
	Name   string
	Params []ParamDescriptor
}

// ParamDescriptor is a compiled parameter.
type ParamDescriptor struct {
	Name string
	Type Type
}

var validate = validator.New()

// Compile checks def and assigns method ids by declaration order.
func Compile(def Interface) (*InterfaceDescriptor, error) {
	if err := validate.Struct(def); err != nil {
		return nil, definitionError(def.Name, err)
	}

	desc := &InterfaceDescriptor{
		Name:    def.Name,
		Methods: make([]MethodDescriptor, len(def.Methods)),
		byName:  make(map[string]int32, len(def.Methods)),
	}
	if len(def.Capabilities) == 0 {
		desc.Capabilities = []string{def.Name}
	} else {
		desc.Capabilities = append([]string(nil), def.Capabilities...)
	}

	for i, m := range def.Methods {
		md := MethodDescriptor{
			ID:     int32(i),
			Name:   m.Name,
			Params: make([]ParamDescriptor, len(m.Params)),
		}
		seen := make(map[string]bool, len(m.Params))
		for j, p := range m.Params {
			if seen[p.Name] {
				return nil, wireerr.Schema(def.Name, m.Name, p.Name, "duplicate parameter name")
			}
			seen[p.Name] = true
			if msg := p.Type.check(); msg != "" {
				return nil, wireerr.Schema(def.Name, m.Name, p.Name, msg)
			}
			md.Params[j] = ParamDescriptor{Name: p.Name, Type: p.Type}
		}
		desc.Methods[i] = md
		if _, ok := desc.byName[m.Name]; !ok {
			desc.byName[m.Name] = md.ID
		}
	}

	desc.fingerprint = fingerprint(desc)
	return desc, nil
}

// MustCompile is like Compile but panics on error. It is meant for package
// level descriptor variables.
func MustCompile(def Interface) *InterfaceDescriptor {
	desc, err := Compile(def)
	if err != nil {
		panic(err)
	}
	return desc
}

// Method returns the method with the given id.
func (d *InterfaceDescriptor) Method(id int32) (*MethodDescriptor, bool) {
	if id < 0 || int(id) >= len(d.Methods) {
		return nil, false
	}
	return &d.Methods[id], true
}

// MethodByName returns the first declared method with the given name.
func (d *InterfaceDescriptor) MethodByName(name string) (*MethodDescriptor, bool) {
	id, ok := d.byName[name]
	if !ok {
		return nil, false
	}
	return &d.Methods[id], true
}

// Fingerprint is a hash of the ordered parameter kinds of every method.
// Two descriptors that frame calls identically have equal fingerprints.
func (d *InterfaceDescriptor) Fingerprint() uint64 {
	return d.fingerprint
}

// Signature renders the method as name(type, type, ...).
func (m *MethodDescriptor) Signature() string {
	s := m.Name + "("
	for i, p := range m.Params {
		if i > 0 {
			s += ", "
		}
		s += p.Type.String()
	}
	return s + ")"
}

func fingerprint(d *InterfaceDescriptor) uint64 {
	h := xxhash.New()
	for _, m := range d.Methods {
		_, _ = h.WriteString(strconv.Itoa(int(m.ID)))
		_, _ = h.WriteString(":")
		for _, p := range m.Params {
			_, _ = h.WriteString(p.Type.String())
			_, _ = h.WriteString(",")
		}
		_, _ = h.WriteString(";")
	}
	return h.Sum64()
}

func definitionError(iface string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return wireerr.Schema(iface, "", "", fmt.Sprintf("invalid definition: %s failed %q", fe.Namespace(), fe.Tag()))
	}
	return wireerr.Schema(iface, "", "", "invalid definition").WithCause(err)
}
