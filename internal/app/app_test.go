package app_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/wirecall/internal/app"
	"github.com/nfrund/wirecall/internal/cluster"
	"github.com/nfrund/wirecall/internal/config"
	"github.com/nfrund/wirecall/internal/events"
	"github.com/nfrund/wirecall/internal/invoker"
	"github.com/nfrund/wirecall/internal/registry"
	"github.com/nfrund/wirecall/internal/transport"
)

type sampleEvents struct {
	mu     sync.Mutex
	values []int64
}

func (s *sampleEvents) OnEvent(value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = append(s.values, value)
}

func (s *sampleEvents) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.FromEnv(func(string) string { return "" })
	require.NoError(t, err)
	cfg.AdminAddr = "127.0.0.1:0"
	cfg.IPCCapacity = 64
	return cfg
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStartAndShutdown(t *testing.T) {
	var ingress sampleEvents
	a := app.New(testConfig(t), app.Options{
		Version: "test",
		Logger:  quiet(),
		Cluster: func(c *cluster.Configuration) {
			inv, err := invoker.New(events.SimpleEventsDescriptor, events.SimpleEventsBindings(&ingress))
			require.NoError(t, err)
			c.RegisterIngressSubscriber(inv).RegisterEgressPublisher(events.SyncEventsResponseDescriptor)
		},
	})

	n, err := a.Node()
	require.NoError(t, err)
	ch := transport.Channel{URI: "ipc", Stream: 3}
	pub, err := n.CreatePublisher(events.SampleEventsDescriptor, ch)
	require.NoError(t, err)

	var sub sampleEvents
	inv, err := invoker.New(events.SampleEventsDescriptor, events.SampleEventsBindings(&sub))
	require.NoError(t, err)
	require.NoError(t, n.RegisterSubscriber(inv, ch))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Start(ctx))
	assert.Error(t, a.Start(ctx), "already started")
	require.NoError(t, n.AwaitConnected(ctx))

	require.NoError(t, events.NewSampleEventsPublisher(pub).OnEvent(5))
	require.Eventually(t, func() bool { return sub.count() == 1 }, time.Second, time.Millisecond)

	reg, err := a.Registry()
	require.NoError(t, err)
	assert.True(t, reg.Sealed())

	var kinds []registry.EntryKind
	for _, e := range reg.Entries() {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []registry.EntryKind{
		registry.KindEgress,
		registry.KindIngress,
		registry.KindInvoker,
		registry.KindPublisher,
	}, kinds)

	container, err := a.Container()
	require.NoError(t, err)
	assert.Equal(t, []string{"SyncEventsResponse"}, container.EgressInterfaces())
	assert.NotNil(t, a.Serving())
	client, err := a.ClusterClient()
	require.NoError(t, err)
	assert.Zero(t, client.Sessions())

	require.NoError(t, a.Shutdown(context.Background()))
	assert.False(t, pub.IsConnected())
}

func TestClusterConfigurationErrors(t *testing.T) {
	a := app.New(testConfig(t), app.Options{
		Logger: quiet(),
		Cluster: func(c *cluster.Configuration) {
			c.RegisterEgressPublisher(events.SyncEventsResponseDescriptor).
				RegisterEgressPublisher(events.SyncEventsResponseDescriptor)
		},
	})
	defer a.Shutdown(context.Background())

	_, err := a.Container()
	assert.Error(t, err)
	assert.Error(t, a.Start(context.Background()))
}

func TestInvalidGossipAddress(t *testing.T) {
	cfg := testConfig(t)
	cfg.GossipListen = []string{"not-a-multiaddr"}
	a := app.New(cfg, app.Options{Logger: quiet()})
	defer a.Shutdown(context.Background())

	_, err := a.Node()
	assert.ErrorContains(t, err, "invalid listen multiaddr")
}

func TestShutdownBeforeStart(t *testing.T) {
	a := app.New(testConfig(t), app.Options{Logger: quiet()})
	_, err := a.Logger()
	require.NoError(t, err)
	assert.NoError(t, a.Shutdown(context.Background()))
}
