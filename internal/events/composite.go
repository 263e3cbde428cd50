package events

import (
	"github.com/nfrund/wirecall/internal/schema"
	"github.com/nfrund/wirecall/internal/wire"
)

// Composite is a nested value carried inline in a frame.
type Composite struct {
	Int    int32
	Long   int64
	Bool   bool
	Byte   int8
	Double float64
}

// EncodeWire writes the fields in declared order.
func (c Composite) EncodeWire(e *wire.Encoder) {
	e.PutInt32(c.Int)
	e.PutInt64(c.Long)
	e.PutBool(c.Bool)
	e.PutInt8(c.Byte)
	e.PutFloat64(c.Double)
}

// DecodeComposite reads a Composite in the order EncodeWire wrote it.
func DecodeComposite(d *wire.Decoder) any {
	return Composite{
		Int:    d.Int32(),
		Long:   d.Int64(),
		Bool:   d.Bool(),
		Byte:   d.Int8(),
		Double: d.Float64(),
	}
}

// SimpleComposite is the smallest composite: an int, a byte and a long.
type SimpleComposite struct {
	Int  int32
	Byte int8
	Long int64
}

func (c SimpleComposite) EncodeWire(e *wire.Encoder) {
	e.PutInt32(c.Int)
	e.PutInt8(c.Byte)
	e.PutInt64(c.Long)
}

func DecodeSimpleComposite(d *wire.Decoder) any {
	return SimpleComposite{
		Int:  d.Int32(),
		Byte: d.Int8(),
		Long: d.Int64(),
	}
}

var (
	CompositeType       = &schema.CompositeType{Name: "Composite", Decode: DecodeComposite}
	SimpleCompositeType = &schema.CompositeType{Name: "SimpleComposite", Decode: DecodeSimpleComposite}
)

// Catalog returns the composites used by the sample definitions.
func Catalog() schema.Catalog {
	return schema.Catalog{}.Add(CompositeType).Add(SimpleCompositeType)
}

func composites(v any) []Composite {
	items, _ := v.([]any)
	out := make([]Composite, len(items))
	for i, item := range items {
		out[i], _ = item.(Composite)
	}
	return out
}
