package events_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/wirecall/internal/codec"
	"github.com/nfrund/wirecall/internal/events"
	"github.com/nfrund/wirecall/internal/invoker"
	"github.com/nfrund/wirecall/internal/publisher"
	"github.com/nfrund/wirecall/internal/schema"
	"github.com/nfrund/wirecall/internal/transport"
	"github.com/nfrund/wirecall/internal/transport/ipc"
	"github.com/nfrund/wirecall/internal/wire"
)

type multiParamRecorder struct {
	got []events.MultiParamEvent
}

func (r *multiParamRecorder) OnEvent(e events.MultiParamEvent) { r.got = append(r.got, e) }

type responseRecorder struct {
	pairs [][2]int64
}

func (r *responseRecorder) OnEventResponse(correlationID, value int64) {
	r.pairs = append(r.pairs, [2]int64{correlationID, value})
}

// link wires a publisher and an invoker for desc through an ipc channel
// and returns a function that delivers everything published so far.
func link(t *testing.T, desc *schema.InterfaceDescriptor, bindings invoker.Bindings) (*publisher.Publisher, func()) {
	t.Helper()
	media := ipc.New(16)
	t.Cleanup(func() { _ = media.Close() })

	ch := transport.Channel{URI: "ipc", Stream: 10}
	sub, err := media.Subscription(ch)
	require.NoError(t, err)
	pub, err := media.Publication(ch)
	require.NoError(t, err)

	inv, err := invoker.New(desc, bindings)
	require.NoError(t, err)
	deliver := func() {
		sub.Poll(func(buf []byte, offset int) {
			require.NoError(t, inv.Handle(buf, offset))
		}, 0)
	}
	return publisher.New(desc, ch, pub), deliver
}

func TestMultiParamEvents(t *testing.T) {
	var rec multiParamRecorder
	p, deliver := link(t, events.MultiParamEventsDescriptor, events.MultiParamEventsBindings(&rec))
	pub := events.NewMultiParamEventsPublisher(p)

	composite := events.Composite{Int: 12, Long: math.MaxInt64, Bool: true, Byte: math.MaxInt8, Double: 123.123}
	sent := events.MultiParamEvent{
		Long:       2312312341324,
		Int:        123,
		Float:      1.21312,
		Double:     .03412342,
		Byte:       56,
		Char:       'a',
		Boolean:    true,
		Short:      123,
		String:     "stringValue",
		Composite:  composite,
		Longs:      []int64{1, 2, 3, math.MaxInt64, math.MinInt64},
		Ints:       []int32{1, 2, 3},
		Doubles:    []float64{1, 2, 3},
		Floats:     []float32{1, 2, 3},
		Shorts:     []int16{1, 2, 3},
		Bytes:      []int8{0x1, 0x2, 0x5},
		Chars:      []uint16{'1', '2', '3'},
		Composites: []events.Composite{composite, {Int: -1}},
	}
	require.NoError(t, pub.OnEvent(sent))

	second := sent
	second.Long = 123
	second.Boolean = false
	second.Short = 124
	require.NoError(t, pub.OnEvent(second))

	deliver()
	require.Len(t, rec.got, 2)
	assert.Equal(t, sent, rec.got[0])
	assert.Equal(t, second, rec.got[1])
}

func TestSyncEventsResponse(t *testing.T) {
	var rec responseRecorder
	p, deliver := link(t, events.SyncEventsResponseDescriptor, events.SyncEventsResponseBindings(&rec))

	pub := events.NewSyncEventsResponsePublisher(p)
	require.NoError(t, pub.OnEventResponse(1, 100))
	require.NoError(t, pub.OnEventResponse(2, -100))
	deliver()

	assert.Equal(t, [][2]int64{{1, 100}, {2, -100}}, rec.pairs)
}

func TestSimpleComposite(t *testing.T) {
	e := wire.NewEncoder(nil)
	in := events.SimpleComposite{Int: 7, Byte: -3, Long: math.MinInt64}
	in.EncodeWire(e)
	assert.Equal(t, 4+1+8, e.Len())

	d := wire.NewDecoder(e.Bytes(), 0)
	assert.Equal(t, in, d.Composite(events.DecodeSimpleComposite))
	require.NoError(t, d.Err())
}

func TestDefinitionsMatchDescriptors(t *testing.T) {
	parsed, err := schema.Parse(events.Definitions, events.Catalog())
	require.NoError(t, err)

	want := events.Descriptors()
	require.Len(t, parsed, len(want))
	for i, desc := range want {
		assert.Equal(t, desc.Name, parsed[i].Name)
		assert.Equal(t, desc.Fingerprint(), parsed[i].Fingerprint(), desc.Name)
	}
}

func TestMultiParamFrameDecodesGenerically(t *testing.T) {
	var rec multiParamRecorder
	p, _ := link(t, events.MultiParamEventsDescriptor, events.MultiParamEventsBindings(&rec))

	sink := &captureSink{}
	pub := events.NewMultiParamEventsPublisher(publisher.New(p.Descriptor(), p.Channel(), sink))
	require.NoError(t, pub.OnEvent(events.MultiParamEvent{Composites: []events.Composite{{Int: 1}}}))

	f, err := codec.DecodeFrame(sink.last, 0, events.MultiParamEventsDescriptor)
	require.NoError(t, err)
	require.Len(t, f.Args, 18)
	assert.Equal(t, []any{events.Composite{Int: 1}}, f.Args[17])
	assert.Equal(t, len(sink.last), f.Consumed)
}

type captureSink struct {
	last []byte
}

func (s *captureSink) Offer(buf []byte) bool {
	s.last = append([]byte(nil), buf...)
	return true
}

func (s *captureSink) IsConnected() bool { return true }
