package memory_test

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/wirecall/internal/transport"
	"github.com/nfrund/wirecall/internal/transport/memory"
)

var ch = transport.Channel{URI: "memory", Stream: 1}

func TestOfferAndPoll(t *testing.T) {
	m := memory.New(16, nil)
	defer m.Close()

	pub, err := m.Publication(ch)
	require.NoError(t, err)
	assert.False(t, pub.Offer([]byte{1}), "offer without subscriber is rejected")

	sub, err := m.Subscription(ch)
	require.NoError(t, err)
	require.True(t, pub.IsConnected())

	require.True(t, pub.Offer([]byte{1}))
	require.True(t, pub.Offer([]byte{2}))

	var got []int
	require.Eventually(t, func() bool {
		sub.Poll(func(buf []byte, offset int) {
			got = append(got, int(buf[offset]))
		}, 0)
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)

	// GoChannel does not promise ordering between publishes.
	sort.Ints(got)
	assert.Equal(t, []int{1, 2}, got)
}

func TestSubscriptionClose(t *testing.T) {
	m := memory.New(16, nil)
	defer m.Close()

	pub, err := m.Publication(ch)
	require.NoError(t, err)
	sub, err := m.Subscription(ch)
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	assert.False(t, sub.IsConnected())
	assert.False(t, pub.IsConnected())
	assert.False(t, pub.Offer([]byte{1}))
}

func TestMediaClose(t *testing.T) {
	m := memory.New(16, nil)
	require.NoError(t, m.Close())

	_, err := m.Publication(ch)
	assert.ErrorIs(t, err, transport.ErrClosed)
	_, err = m.Subscription(ch)
	assert.ErrorIs(t, err, transport.ErrClosed)
}
