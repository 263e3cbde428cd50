package schema

import (
	"fmt"

	"github.com/nfrund/wirecall/internal/wire"
)

// Kind is the wire kind of a parameter.
type Kind uint8

const (
	// KindInvalid is the zero Kind and never compiles.
	KindInvalid Kind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindBool
	KindChar
	KindString
	KindArray
	KindComposite
)

var kindNames = map[Kind]string{
	KindInt8:      "int8",
	KindInt16:     "int16",
	KindInt32:     "int32",
	KindInt64:     "int64",
	KindFloat32:   "float32",
	KindFloat64:   "float64",
	KindBool:      "bool",
	KindChar:      "char",
	KindString:    "string",
	KindArray:     "array",
	KindComposite: "composite",
}

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Scalar reports whether k is a fixed-width scalar kind.
func (k Kind) Scalar() bool {
	return k >= KindInt8 && k <= KindChar
}

// Width returns the encoded width in bytes of a scalar kind, and the minimum
// encoded width for the variable-length kinds.
func (k Kind) Width() int {
	switch k {
	case KindInt8, KindBool:
		return 1
	case KindInt16, KindChar:
		return 2
	case KindInt32, KindFloat32:
		return 4
	case KindInt64, KindFloat64:
		return 8
	case KindString, KindArray:
		return 4
	}
	return 0
}

// CompositeType names a user type that encodes itself field by field.
// Values of the type implement wire.Composite; Decode rebuilds them.
type CompositeType struct {
	Name   string
	Decode wire.DecodeFunc
}

// Type is a parameter type. Elem is set for arrays, Composite for composites.
type Type struct {
	Kind      Kind
	Elem      *Type
	Composite *CompositeType
}

var (
	Int8    = Type{Kind: KindInt8}
	Int16   = Type{Kind: KindInt16}
	Int32   = Type{Kind: KindInt32}
	Int64   = Type{Kind: KindInt64}
	Float32 = Type{Kind: KindFloat32}
	Float64 = Type{Kind: KindFloat64}
	Bool    = Type{Kind: KindBool}
	Char    = Type{Kind: KindChar}
	String  = Type{Kind: KindString}
)

// ArrayOf returns the array type with the given element type.
func ArrayOf(elem Type) Type {
	return Type{Kind: KindArray, Elem: &elem}
}

// CompositeOf returns the type for values of c.
func CompositeOf(c *CompositeType) Type {
	return Type{Kind: KindComposite, Composite: c}
}

// String renders the type in the text form accepted by ParseType.
func (t Type) String() string {
	switch t.Kind {
	case KindArray:
		if t.Elem == nil {
			return "?[]"
		}
		return t.Elem.String() + "[]"
	case KindComposite:
		if t.Composite == nil {
			return "composite:?"
		}
		return "composite:" + t.Composite.Name
	}
	return t.Kind.String()
}

// check returns a description of what is wrong with t, or "" if t is legal.
func (t Type) check() string {
	switch {
	case t.Kind.Scalar(), t.Kind == KindString:
		return ""
	case t.Kind == KindArray:
		if t.Elem == nil {
			return "array without element type"
		}
		if msg := t.Elem.check(); msg != "" {
			return "array element: " + msg
		}
		return ""
	case t.Kind == KindComposite:
		if t.Composite == nil {
			return "composite without type"
		}
		if t.Composite.Name == "" {
			return "composite without name"
		}
		if t.Composite.Decode == nil {
			return fmt.Sprintf("composite %s has no decoder", t.Composite.Name)
		}
		return ""
	}
	return "unsupported kind " + t.Kind.String()
}
