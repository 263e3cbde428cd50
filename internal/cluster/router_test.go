package cluster_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/wirecall/internal/cluster"
	"github.com/nfrund/wirecall/internal/registry"
	"github.com/nfrund/wirecall/internal/wireerr"
)

func TestSessionLifecycle(t *testing.T) {
	reg := registry.New(nil)
	var rec recorder
	require.NoError(t, reg.RegisterIngressInvoker(rec.invoker(t, simpleEvents)))
	egress := cluster.NewClientSessionPublication()
	require.NoError(t, reg.RegisterEgressPublication(sampleEvents, egress))

	router := cluster.NewSessionRouter(reg, nil)

	t.Run("ingress session routes to its invoker", func(t *testing.T) {
		s := &session{id: 7, principal: "SimpleEvents__IngressPublisher"}
		router.OnSessionOpen(s)
		assert.True(t, router.IngressBound(7))

		require.NoError(t, router.OnSessionMessage(7, frame(t, simpleEvents, 101), 0))
		assert.Equal(t, []int64{101}, rec.got())

		router.OnSessionClose(7)
		assert.False(t, router.IngressBound(7))
		err := router.OnSessionMessage(7, frame(t, simpleEvents, 102), 0)
		assert.ErrorIs(t, err, wireerr.ErrRouting)
		assert.Equal(t, []int64{101}, rec.got())
	})

	t.Run("egress session becomes the destination", func(t *testing.T) {
		s := &session{id: 8, principal: "SampleEvents__EgressSubscriber"}
		router.OnSessionOpen(s)

		id, bound := egress.Session()
		require.True(t, bound)
		assert.Equal(t, int64(8), id)
		assert.True(t, egress.Offer(frame(t, sampleEvents, 5)))
		assert.Equal(t, []any{int64(5)}, s.received(t, sampleEvents))
		assert.Equal(t, cluster.SessionStats{Egress: 1}, router.Stats())

		router.OnSessionClose(8)
		assert.False(t, egress.IsConnected())
		assert.False(t, egress.Offer(frame(t, sampleEvents, 6)))
		assert.Equal(t, cluster.SessionStats{}, router.Stats())
	})

	t.Run("second egress session replaces the first", func(t *testing.T) {
		first := &session{id: 20, principal: "SampleEvents__EgressSubscriber"}
		second := &session{id: 21, principal: "SampleEvents__EgressSubscriber"}
		router.OnSessionOpen(first)
		router.OnSessionOpen(second)
		assert.Equal(t, cluster.SessionStats{Egress: 1}, router.Stats())

		assert.True(t, egress.Offer(frame(t, sampleEvents, 9)))
		assert.Empty(t, first.received(t, sampleEvents))
		assert.Equal(t, []any{int64(9)}, second.received(t, sampleEvents))

		// Closing the replaced session leaves the live one bound.
		router.OnSessionClose(20)
		id, bound := egress.Session()
		assert.True(t, bound)
		assert.Equal(t, int64(21), id)
		assert.Equal(t, cluster.SessionStats{Egress: 1}, router.Stats())

		router.OnSessionClose(21)
		assert.False(t, egress.IsConnected())
		assert.Equal(t, cluster.SessionStats{}, router.Stats())
	})

	t.Run("inert principals", func(t *testing.T) {
		for i, principal := range []string{
			"",
			"Unknown__IngressPublisher",
			"Unknown__EgressSubscriber",
			"SimpleEvents",
			"SimpleEvents__EgressPublisher",
			string([]byte{0xff, 0xfe}),
		} {
			id := int64(100 + i)
			router.OnSessionOpen(&session{id: id, principal: principal})
			assert.ErrorIs(t, router.OnSessionMessage(id, frame(t, simpleEvents, 1), 0), wireerr.ErrRouting, principal)
		}
		assert.Equal(t, cluster.SessionStats{}, router.Stats())
	})

	t.Run("message for a session never opened", func(t *testing.T) {
		err := router.OnSessionMessage(999, frame(t, simpleEvents, 1), 0)
		var werr *wireerr.Error
		require.ErrorAs(t, err, &werr)
		assert.Equal(t, int64(999), werr.Session)
	})
}

func TestClientSessionPublicationLastBindWins(t *testing.T) {
	pub := cluster.NewClientSessionPublication()
	assert.False(t, pub.Offer([]byte{1}))

	first := &session{id: 1}
	second := &session{id: 2}
	pub.Bind(first.id, first)
	pub.Bind(second.id, second)

	assert.True(t, pub.Offer([]byte{1}))
	assert.Empty(t, first.frames)
	assert.Len(t, second.frames, 1)

	// A stale close must not detach the current session.
	pub.Unbind(first.id)
	assert.True(t, pub.IsConnected())
	pub.Unbind(second.id)
	assert.False(t, pub.IsConnected())
}
