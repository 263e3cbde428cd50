package cluster_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nfrund/wirecall/internal/codec"
	"github.com/nfrund/wirecall/internal/invoker"
	"github.com/nfrund/wirecall/internal/schema"
	"github.com/nfrund/wirecall/internal/wire"
)

var (
	simpleEvents = schema.MustCompile(schema.Interface{
		Name: "SimpleEvents",
		Methods: []schema.Method{
			{Name: "onEvent", Params: []schema.Param{{Name: "value", Type: schema.Int64}}},
		},
	})
	sampleEvents = schema.MustCompile(schema.Interface{
		Name: "SampleEvents",
		Methods: []schema.Method{
			{Name: "onEvent", Params: []schema.Param{{Name: "value", Type: schema.Int64}}},
		},
	})
)

// session is a client session that records the egress it was sent.
type session struct {
	id        int64
	principal string

	mu     sync.Mutex
	frames [][]byte
}

func (s *session) ID() int64                { return s.id }
func (s *session) EncodedPrincipal() []byte { return []byte(s.principal) }
func (s *session) IsConnected() bool        { return true }

func (s *session) Offer(buf []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, append([]byte(nil), buf...))
	return true
}

func (s *session) received(t *testing.T, desc *schema.InterfaceDescriptor) []any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []any
	for _, buf := range s.frames {
		f, err := codec.DecodeFrame(buf, 0, desc)
		require.NoError(t, err)
		out = append(out, f.Args...)
	}
	return out
}

// recorder is an invoker that remembers the last onEvent value.
type recorder struct {
	mu     sync.Mutex
	values []int64
}

func (r *recorder) invoker(t *testing.T, desc *schema.InterfaceDescriptor) *invoker.Invoker {
	t.Helper()
	inv, err := invoker.New(desc, invoker.Bindings{
		"onEvent": func(args []any) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.values = append(r.values, args[0].(int64))
			return nil
		},
	})
	require.NoError(t, err)
	return inv
}

func (r *recorder) got() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.values...)
}

func frame(t *testing.T, desc *schema.InterfaceDescriptor, v int64) []byte {
	t.Helper()
	e := wire.NewEncoder(nil)
	require.NoError(t, codec.EncodeFrame(e, desc.Name, &desc.Methods[0], []any{v}))
	return e.Bytes()
}
