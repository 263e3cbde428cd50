// Package events holds the sample interfaces a node serves out of the box,
// with their typed publisher adapters and invoker bindings.
package events

import (
	_ "embed"

	"github.com/nfrund/wirecall/internal/invoker"
	"github.com/nfrund/wirecall/internal/publisher"
	"github.com/nfrund/wirecall/internal/schema"
)

// Definitions is the text form of the sample interfaces, as accepted by
// schema.Parse with Catalog().
//
//go:embed events.yaml
var Definitions []byte

var (
	SimpleEventsDescriptor = schema.MustCompile(schema.Interface{
		Name: "SimpleEvents",
		Methods: []schema.Method{
			{Name: "onEvent", Params: []schema.Param{{Name: "value", Type: schema.Int64}}},
		},
	})

	SampleEventsDescriptor = schema.MustCompile(schema.Interface{
		Name: "SampleEvents",
		Methods: []schema.Method{
			{Name: "onEvent", Params: []schema.Param{{Name: "value", Type: schema.Int64}}},
		},
	})

	SyncEventsResponseDescriptor = schema.MustCompile(schema.Interface{
		Name: "SyncEventsResponse",
		Methods: []schema.Method{
			{Name: "onEventResponse", Params: []schema.Param{
				{Name: "correlationId", Type: schema.Int64},
				{Name: "value", Type: schema.Int64},
			}},
		},
	})

	MultiParamEventsDescriptor = schema.MustCompile(schema.Interface{
		Name: "MultiParamEvents",
		Methods: []schema.Method{
			{Name: "onEvent", Params: []schema.Param{
				{Name: "longValue", Type: schema.Int64},
				{Name: "intValue", Type: schema.Int32},
				{Name: "floatValue", Type: schema.Float32},
				{Name: "doubleValue", Type: schema.Float64},
				{Name: "byteValue", Type: schema.Int8},
				{Name: "charValue", Type: schema.Char},
				{Name: "booleanValue", Type: schema.Bool},
				{Name: "shortValue", Type: schema.Int16},
				{Name: "stringValue", Type: schema.String},
				{Name: "compositeValue", Type: schema.CompositeOf(CompositeType)},
				{Name: "longs", Type: schema.ArrayOf(schema.Int64)},
				{Name: "ints", Type: schema.ArrayOf(schema.Int32)},
				{Name: "doubles", Type: schema.ArrayOf(schema.Float64)},
				{Name: "floats", Type: schema.ArrayOf(schema.Float32)},
				{Name: "shorts", Type: schema.ArrayOf(schema.Int16)},
				{Name: "bytes", Type: schema.ArrayOf(schema.Int8)},
				{Name: "chars", Type: schema.ArrayOf(schema.Char)},
				{Name: "compositeArray", Type: schema.ArrayOf(schema.CompositeOf(CompositeType))},
			}},
		},
	})
)

// Descriptors lists every sample interface.
func Descriptors() []*schema.InterfaceDescriptor {
	return []*schema.InterfaceDescriptor{
		SimpleEventsDescriptor,
		SampleEventsDescriptor,
		SyncEventsResponseDescriptor,
		MultiParamEventsDescriptor,
	}
}

// SimpleEventsHandler receives SimpleEvents calls.
type SimpleEventsHandler interface {
	OnEvent(value int64)
}

// SimpleEventsPublisher calls SimpleEvents on a remote subscriber.
type SimpleEventsPublisher struct {
	p publisher.Publishable
}

func NewSimpleEventsPublisher(p publisher.Publishable) SimpleEventsPublisher {
	return SimpleEventsPublisher{p: p}
}

func (a SimpleEventsPublisher) OnEvent(value int64) error {
	return a.p.Send(0, value)
}

func (a SimpleEventsPublisher) IsConnected() bool {
	return a.p.IsConnected()
}

// SimpleEventsBindings binds h for an invoker of SimpleEventsDescriptor.
func SimpleEventsBindings(h SimpleEventsHandler) invoker.Bindings {
	return invoker.Bindings{
		"onEvent": func(args []any) error {
			h.OnEvent(args[0].(int64))
			return nil
		},
	}
}

// SampleEventsHandler receives SampleEvents calls.
type SampleEventsHandler interface {
	OnEvent(value int64)
}

// SampleEventsPublisher calls SampleEvents on a remote subscriber.
type SampleEventsPublisher struct {
	p publisher.Publishable
}

func NewSampleEventsPublisher(p publisher.Publishable) SampleEventsPublisher {
	return SampleEventsPublisher{p: p}
}

func (a SampleEventsPublisher) OnEvent(value int64) error {
	return a.p.Send(0, value)
}

func (a SampleEventsPublisher) IsConnected() bool {
	return a.p.IsConnected()
}

func SampleEventsBindings(h SampleEventsHandler) invoker.Bindings {
	return invoker.Bindings{
		"onEvent": func(args []any) error {
			h.OnEvent(args[0].(int64))
			return nil
		},
	}
}

// SyncEventsResponseHandler receives replies correlated to a request.
type SyncEventsResponseHandler interface {
	OnEventResponse(correlationID, value int64)
}

type SyncEventsResponsePublisher struct {
	p publisher.Publishable
}

func NewSyncEventsResponsePublisher(p publisher.Publishable) SyncEventsResponsePublisher {
	return SyncEventsResponsePublisher{p: p}
}

func (a SyncEventsResponsePublisher) OnEventResponse(correlationID, value int64) error {
	return a.p.Send(0, correlationID, value)
}

func SyncEventsResponseBindings(h SyncEventsResponseHandler) invoker.Bindings {
	return invoker.Bindings{
		"onEventResponse": func(args []any) error {
			h.OnEventResponse(args[0].(int64), args[1].(int64))
			return nil
		},
	}
}

// MultiParamEvent is the argument list of MultiParamEvents.onEvent.
type MultiParamEvent struct {
	Long       int64
	Int        int32
	Float      float32
	Double     float64
	Byte       int8
	Char       uint16
	Boolean    bool
	Short      int16
	String     string
	Composite  Composite
	Longs      []int64
	Ints       []int32
	Doubles    []float64
	Floats     []float32
	Shorts     []int16
	Bytes      []int8
	Chars      []uint16
	Composites []Composite
}

// MultiParamEventsHandler receives MultiParamEvents calls.
type MultiParamEventsHandler interface {
	OnEvent(e MultiParamEvent)
}

type MultiParamEventsPublisher struct {
	p publisher.Publishable
}

func NewMultiParamEventsPublisher(p publisher.Publishable) MultiParamEventsPublisher {
	return MultiParamEventsPublisher{p: p}
}

func (a MultiParamEventsPublisher) OnEvent(e MultiParamEvent) error {
	items := make([]any, len(e.Composites))
	for i, c := range e.Composites {
		items[i] = c
	}
	return a.p.Send(0,
		e.Long, e.Int, e.Float, e.Double, e.Byte, e.Char, e.Boolean, e.Short, e.String, e.Composite,
		e.Longs, e.Ints, e.Doubles, e.Floats, e.Shorts, e.Bytes, e.Chars, items,
	)
}

func MultiParamEventsBindings(h MultiParamEventsHandler) invoker.Bindings {
	return invoker.Bindings{
		"onEvent": func(args []any) error {
			h.OnEvent(MultiParamEvent{
				Long:       args[0].(int64),
				Int:        args[1].(int32),
				Float:      args[2].(float32),
				Double:     args[3].(float64),
				Byte:       args[4].(int8),
				Char:       args[5].(uint16),
				Boolean:    args[6].(bool),
				Short:      args[7].(int16),
				String:     args[8].(string),
				Composite:  args[9].(Composite),
				Longs:      args[10].([]int64),
				Ints:       args[11].([]int32),
				Doubles:    args[12].([]float64),
				Floats:     args[13].([]float32),
				Shorts:     args[14].([]int16),
				Bytes:      args[15].([]int8),
				Chars:      args[16].([]uint16),
				Composites: composites(args[17]),
			})
			return nil
		},
	}
}
