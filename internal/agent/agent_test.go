package agent_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/wirecall/internal/agent"
	"github.com/nfrund/wirecall/internal/codec"
	"github.com/nfrund/wirecall/internal/invoker"
	"github.com/nfrund/wirecall/internal/schema"
	"github.com/nfrund/wirecall/internal/transport"
	"github.com/nfrund/wirecall/internal/transport/ipc"
	"github.com/nfrund/wirecall/internal/wire"
	"github.com/nfrund/wirecall/internal/wireerr"
)

var desc = schema.MustCompile(schema.Interface{
	Name: "SimpleEvents",
	Methods: []schema.Method{
		{Name: "onEvent", Params: []schema.Param{{Name: "value", Type: schema.Int64}}},
	},
})

func frame(t *testing.T, v int64) []byte {
	t.Helper()
	e := wire.NewEncoder(nil)
	require.NoError(t, codec.EncodeFrame(e, desc.Name, &desc.Methods[0], []any{v}))
	return e.Bytes()
}

func channel(t *testing.T) (transport.Publication, transport.Subscription) {
	t.Helper()
	media := ipc.New(64)
	t.Cleanup(func() { _ = media.Close() })
	ch := transport.Channel{URI: "ipc", Stream: 1}
	sub, err := media.Subscription(ch)
	require.NoError(t, err)
	pub, err := media.Publication(ch)
	require.NoError(t, err)
	return pub, sub
}

func TestDoWorkContinuesPastBadFrames(t *testing.T) {
	pub, sub := channel(t)

	var got []int64
	inv, err := invoker.New(desc, invoker.Bindings{
		"onEvent": func(args []any) error {
			v := args[0].(int64)
			if v == 2 {
				panic("boom")
			}
			got = append(got, v)
			return nil
		},
	})
	require.NoError(t, err)

	var errs []error
	a := agent.New(sub, inv, agent.Options{
		Name:    desc.Name,
		OnError: func(name string, err error) { assert.Equal(t, "SimpleEvents", name); errs = append(errs, err) },
	})

	require.True(t, pub.Offer(frame(t, 1)))
	require.True(t, pub.Offer([]byte{0xff, 0xff, 0xff, 0x7f}))
	require.True(t, pub.Offer(frame(t, 2)))
	require.True(t, pub.Offer(frame(t, 3)))

	assert.Equal(t, 4, a.DoWork())
	assert.Equal(t, []int64{1, 3}, got)
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], wireerr.ErrProtocol)
	assert.Contains(t, errs[1].Error(), "panic")
	assert.Equal(t, 0, a.DoWork())
}

func TestRun(t *testing.T) {
	pub, sub := channel(t)

	var mu sync.Mutex
	var sum int64
	a := agent.New(sub, agent.DispatcherFunc(func(buf []byte, offset int) error {
		f, err := codec.DecodeFrame(buf, offset, desc)
		if err != nil {
			return err
		}
		mu.Lock()
		sum += f.Args[0].(int64)
		mu.Unlock()
		return nil
	}), agent.Options{Name: desc.Name})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, a.Running, time.Second, time.Millisecond)
	for i := int64(1); i <= 10; i++ {
		require.True(t, pub.Offer(frame(t, i)))
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return sum == 55
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop")
	}
	assert.False(t, a.Running())
	assert.NoError(t, a.Close())
}
