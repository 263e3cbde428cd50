package publisher_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/wirecall/internal/codec"
	"github.com/nfrund/wirecall/internal/publisher"
	"github.com/nfrund/wirecall/internal/schema"
	"github.com/nfrund/wirecall/internal/transport"
	"github.com/nfrund/wirecall/internal/wireerr"
)

// recordingSink keeps a copy of every offered frame.
type recordingSink struct {
	mu        sync.Mutex
	frames    [][]byte
	reject    bool
	connected bool
}

func (s *recordingSink) Offer(buf []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject {
		return false
	}
	s.frames = append(s.frames, append([]byte(nil), buf...))
	return true
}

func (s *recordingSink) IsConnected() bool { return s.connected }

var desc = schema.MustCompile(schema.Interface{
	Name: "Events",
	Methods: []schema.Method{
		{Name: "onEvent", Params: []schema.Param{{Name: "value", Type: schema.Int64}}},
		{Name: "onName", Params: []schema.Param{{Name: "name", Type: schema.String}}},
	},
})

var ch = transport.Channel{URI: "ipc", Stream: 10}

func TestSend(t *testing.T) {
	sink := &recordingSink{connected: true}
	p := publisher.New(desc, ch, sink)

	require.NoError(t, p.Send(0, int64(101)))
	require.NoError(t, p.SendByName("onName", "x"))

	require.Len(t, sink.frames, 2)
	f, err := codec.DecodeFrame(sink.frames[0], 0, desc)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(101)}, f.Args)

	f, err = codec.DecodeFrame(sink.frames[1], 0, desc)
	require.NoError(t, err)
	assert.Equal(t, "onName", f.Method.Name)
	assert.Equal(t, []any{"x"}, f.Args)

	assert.True(t, p.IsConnected())
	assert.Equal(t, ch, p.Channel())
	assert.Same(t, desc, p.Descriptor())
}

func TestSendErrors(t *testing.T) {
	t.Run("rejected offer", func(t *testing.T) {
		sink := &recordingSink{reject: true}
		p := publisher.New(desc, ch, sink)
		assert.ErrorIs(t, p.Send(0, int64(1)), publisher.ErrNotAccepted)
	})

	t.Run("unknown method", func(t *testing.T) {
		p := publisher.New(desc, ch, &recordingSink{})
		assert.Error(t, p.Send(5))
		assert.Error(t, p.SendByName("nope"))
	})

	t.Run("bad argument never reaches the sink", func(t *testing.T) {
		sink := &recordingSink{}
		p := publisher.New(desc, ch, sink)
		assert.ErrorIs(t, p.Send(0, "not a long"), wireerr.ErrSchema)
		assert.Empty(t, sink.frames)
	})
}

func TestConcurrentSend(t *testing.T) {
	sink := &recordingSink{}
	p := publisher.New(desc, ch, sink)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.NoError(t, p.Send(0, int64(i*1000+j)))
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, sink.frames, 400)
	seen := make(map[int64]bool)
	for _, buf := range sink.frames {
		f, err := codec.DecodeFrame(buf, 0, desc)
		require.NoError(t, err)
		seen[f.Args[0].(int64)] = true
	}
	assert.Len(t, seen, 400, "no frame was corrupted by a shared buffer")
}
