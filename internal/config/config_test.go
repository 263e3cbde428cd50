package config_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/wirecall/internal/config"
)

func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestDefaults(t *testing.T) {
	cfg, err := config.FromEnv(env(nil))
	require.NoError(t, err)

	_, err = uuid.Parse(cfg.NodeID)
	assert.NoError(t, err, "node id defaults to a uuid")
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 1024, cfg.IPCCapacity)
	assert.False(t, cfg.GossipEnabled())
	assert.False(t, cfg.Tracing.Enabled)
}

func TestFromEnv(t *testing.T) {
	cfg, err := config.FromEnv(env(map[string]string{
		"WIRECALL_NODE_ID":              "node-1",
		"LOG_FORMAT":                    "json",
		"LOG_LEVEL":                     "warn",
		"WIRECALL_IPC_CAPACITY":         "64",
		"WIRECALL_GOSSIP_LISTEN":        "/ip4/127.0.0.1/tcp/0, /ip4/127.0.0.1/tcp/4001",
		"WIRECALL_GRPC_LISTEN":          "127.0.0.1:7070",
		"WIRECALL_ADMIN_ADDR":           "localhost:9000",
		"WIRECALL_ADMIN_RATE_LIMIT":     "2.5",
		"WIRECALL_TRACING_ENABLED":      "true",
		"WIRECALL_TRACING_SERVICE_NAME": "node-1",
	}))
	require.NoError(t, err)

	assert.Equal(t, "node-1", cfg.NodeID)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 64, cfg.IPCCapacity)
	assert.Equal(t, []string{"/ip4/127.0.0.1/tcp/0", "/ip4/127.0.0.1/tcp/4001"}, cfg.GossipListen)
	assert.True(t, cfg.GossipEnabled())
	assert.Equal(t, "127.0.0.1:7070", cfg.GRPCListen)
	assert.Equal(t, 2.5, cfg.AdminRateLimit)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "node-1", cfg.Tracing.ServiceName)
}

func TestInvalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"bad integer", map[string]string{"WIRECALL_IPC_CAPACITY": "many"}},
		{"zero capacity", map[string]string{"WIRECALL_IPC_CAPACITY": "0"}},
		{"bad bool", map[string]string{"WIRECALL_TRACING_ENABLED": "sometimes"}},
		{"unknown log format", map[string]string{"LOG_FORMAT": "xml"}},
		{"negative rate limit", map[string]string{"WIRECALL_ADMIN_RATE_LIMIT": "-1"}},
		{"bad grpc address", map[string]string{"WIRECALL_GRPC_LISTEN": "no-port"}},
		{"bad zipkin url", map[string]string{"WIRECALL_TRACING_ZIPKIN_URL": "::not a url"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.FromEnv(env(tt.vars))
			assert.Error(t, err)
		})
	}
}
