package cluster_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/wirecall/internal/cluster"
	"github.com/nfrund/wirecall/internal/transport"
	"github.com/nfrund/wirecall/internal/transport/ipc"
)

func TestLocalClient(t *testing.T) {
	media := ipc.New(64)
	defer media.Close()
	mux, err := transport.NewMux(media)
	require.NoError(t, err)

	var rec recorder
	svc := &countingService{}
	c, err := cluster.Configure(nil).
		ClusteredService(svc).
		RegisterIngressSubscriber(rec.invoker(t, simpleEvents)).
		RegisterEgressPublisher(sampleEvents).
		Create()
	require.NoError(t, err)
	require.NoError(t, c.OnStart())
	client := cluster.NewLocalClient(c, mux, "ipc:session")

	ingress, _, err := client.Connect([]byte("SimpleEvents__IngressPublisher"))
	require.NoError(t, err)
	egressSink, egress, err := client.Connect([]byte("SampleEvents__EgressSubscriber"))
	require.NoError(t, err)
	anonymous, _, err := client.Connect(nil)
	require.NoError(t, err)
	assert.Equal(t, cluster.SessionStats{Ingress: 1, Egress: 1}, c.Sessions())
	assert.Equal(t, 3, client.Sessions())

	t.Run("ingress offers are session messages", func(t *testing.T) {
		assert.True(t, ingress.Offer(frame(t, simpleEvents, 101)))
		assert.Equal(t, []int64{101}, rec.got())
		assert.False(t, anonymous.Offer(frame(t, simpleEvents, 102)), "unbound session is refused")
		assert.Equal(t, int64(2), svc.messages.Load(), "service sees routed and unrouted messages")
	})

	t.Run("egress arrives on the session source", func(t *testing.T) {
		p, ok := c.PublisherFor("SampleEvents")
		require.True(t, ok)
		require.NoError(t, p.Send(0, int64(5)))
		var frames int
		egress.Poll(func([]byte, int) { frames++ }, 0)
		assert.Equal(t, 1, frames)
	})

	t.Run("closing the sink closes the session", func(t *testing.T) {
		closer, ok := egressSink.(interface{ Close() error })
		require.True(t, ok)
		require.NoError(t, closer.Close())
		require.NoError(t, closer.Close())
		assert.False(t, egressSink.IsConnected())
		assert.False(t, egressSink.Offer([]byte{1}))
		assert.Equal(t, cluster.SessionStats{Ingress: 1}, c.Sessions())
		assert.Equal(t, 2, client.Sessions())
		p, _ := c.PublisherFor("SampleEvents")
		assert.False(t, p.IsConnected())
	})
}
