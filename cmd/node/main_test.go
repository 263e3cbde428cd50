package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/wirecall/internal/cluster"
	"github.com/nfrund/wirecall/internal/config"
	"github.com/nfrund/wirecall/internal/events"
	"github.com/nfrund/wirecall/internal/node"
	"github.com/nfrund/wirecall/internal/registry"
	"github.com/nfrund/wirecall/internal/transport"
	"github.com/nfrund/wirecall/internal/transport/ipc"
	"github.com/nfrund/wirecall/internal/transport/memory"
)

func TestCheckDefinitions(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "events.yaml", events.Definitions, 0o644))
	assert.NoError(t, checkDefinitions(fs, "events.yaml"))

	require.NoError(t, afero.WriteFile(fs, "drifted.yaml", []byte(`
interfaces:
  - name: SimpleEvents
    methods:
      - name: onEvent
        params:
          - { name: value, type: int32 }
  - name: Unrelated
    methods: []
`), 0o644))
	assert.ErrorContains(t, checkDefinitions(fs, "drifted.yaml"), "SimpleEvents")

	assert.Error(t, checkDefinitions(fs, "missing.yaml"))
}

func TestSamplesHeartbeat(t *testing.T) {
	mux, err := transport.NewMux(ipc.New(64), memory.New(16, nil))
	require.NoError(t, err)
	defer mux.Close()
	n := node.New(mux, registry.New(nil), node.Options{})
	defer n.Close()

	cfg, err := config.FromEnv(func(string) string { return "" })
	require.NoError(t, err)

	s := newSamples()
	require.NoError(t, s.register(n, cfg))
	assert.Len(t, n.Agents(), 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, n.Start(ctx))
	require.NoError(t, n.AwaitConnected(ctx))

	go s.heartbeat(ctx, slog.Default())
	require.Eventually(t, func() bool {
		return s.received.Load() >= 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSamplesClusterRoundTrip(t *testing.T) {
	mux, err := transport.NewMux(ipc.New(64))
	require.NoError(t, err)
	defer mux.Close()

	s := newSamples()
	cfg := cluster.Configure(nil)
	s.configureCluster(cfg)
	container, err := cfg.Create()
	require.NoError(t, err)
	require.NoError(t, container.OnStart())

	n := node.New(mux, registry.New(nil), node.Options{})
	defer n.Close()
	require.NoError(t, s.connectCluster(n, cluster.NewLocalClient(container, mux, "ipc:session")))
	assert.Equal(t, cluster.SessionStats{Ingress: 1, Egress: 1}, container.Sessions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, n.Start(ctx))
	require.NoError(t, n.AwaitConnected(ctx))

	go s.heartbeat(ctx, slog.Default())
	require.Eventually(t, func() bool {
		return s.responses.Load() >= 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, s.ingress.Load(), int64(1))
}
