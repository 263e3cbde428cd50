package admin_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/wirecall/internal/admin"
	"github.com/nfrund/wirecall/internal/cluster"
	"github.com/nfrund/wirecall/internal/events"
	"github.com/nfrund/wirecall/internal/invoker"
	"github.com/nfrund/wirecall/internal/publisher"
	"github.com/nfrund/wirecall/internal/registry"
	"github.com/nfrund/wirecall/internal/transport"
)

type nopSink struct{}

func (nopSink) Offer([]byte) bool { return true }
func (nopSink) IsConnected() bool { return true }

type counter struct{ stats cluster.SessionStats }

func (c counter) Sessions() cluster.SessionStats { return c.stats }

type simpleEvents struct{}

func (simpleEvents) OnEvent(int64) {}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New(nil)
	ch := transport.Channel{URI: "ipc", Stream: 10}
	require.NoError(t, reg.RegisterPublisher(publisher.New(events.SampleEventsDescriptor, ch, nopSink{})))

	inv, err := invoker.New(events.SimpleEventsDescriptor, events.SimpleEventsBindings(simpleEvents{}))
	require.NoError(t, err)
	require.NoError(t, reg.RegisterInvoker(inv, ch))
	reg.Seal()
	return reg
}

func newServer(t *testing.T, sessions admin.SessionCounter) *admin.Server {
	t.Helper()
	s, err := admin.New("127.0.0.1:0", newRegistry(t), admin.Options{Sessions: sessions})
	require.NoError(t, err)
	return s
}

func get(t *testing.T, s *admin.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, newServer(t, nil), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["sealed"])
}

func TestRegistryEntries(t *testing.T) {
	s := newServer(t, nil)

	tests := []struct {
		name  string
		path  string
		kinds []registry.EntryKind
	}{
		{"all", "/registry", []registry.EntryKind{registry.KindInvoker, registry.KindPublisher}},
		{"publishers only", "/registry?kind=publisher", []registry.EntryKind{registry.KindPublisher}},
		{"unknown kind", "/registry?kind=nothing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, s, tt.path)
			require.Equal(t, http.StatusOK, rec.Code)

			var entries []registry.Entry
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
			var kinds []registry.EntryKind
			for _, e := range entries {
				kinds = append(kinds, e.Kind)
			}
			assert.Equal(t, tt.kinds, kinds)
		})
	}
}

func TestSessions(t *testing.T) {
	t.Run("without a cluster container", func(t *testing.T) {
		rec := get(t, newServer(t, nil), "/sessions")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"ingress":0,"egress":0}`, rec.Body.String())
	})

	t.Run("with a cluster container", func(t *testing.T) {
		rec := get(t, newServer(t, counter{cluster.SessionStats{Ingress: 2, Egress: 1}}), "/sessions")
		assert.JSONEq(t, `{"ingress":2,"egress":1}`, rec.Body.String())
	})
}

func TestJSONRPC(t *testing.T) {
	s := newServer(t, counter{cluster.SessionStats{Ingress: 1}})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	client := admin.NewClient(ts.URL, ts.Client())
	ctx := context.Background()

	entries, err := client.ListEntries(ctx, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "SimpleEvents", entries[0].Interface)
	assert.Equal(t, "ipc#10", entries[0].Channel.String())
	assert.NotEmpty(t, entries[0].Fingerprint)

	entries, err = client.ListEntries(ctx, registry.KindPublisher)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "SampleEvents", entries[0].Interface)

	sessions, err := client.Sessions(ctx)
	require.NoError(t, err)
	assert.True(t, sessions.Clustered)
	assert.Equal(t, 1, sessions.Stats.Ingress)

	var reply admin.ListReply
	assert.Error(t, client.Call(ctx, "Registry.Drop", &admin.ListArgs{}, &reply))
}

func TestRPCRequiresPost(t *testing.T) {
	rec := get(t, newServer(t, nil), "/rpc")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestUnhandledErrorsAreLoggedWithStack(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	s, err := admin.New("127.0.0.1:0", newRegistry(t), admin.Options{Logger: logger})
	require.NoError(t, err)

	e := s.Handler().(*echo.Echo)
	e.GET("/boom", func(echo.Context) error {
		return errors.New("a deliberate unhandled error occurred")
	})
	e.GET("/missing", func(echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "no such binding")
	})

	rec := get(t, s, "/boom")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "deliberate")
	assert.Contains(t, logs.String(), "Internal Server Error (Unhandled)")
	assert.Contains(t, logs.String(), `error="a deliberate unhandled error occurred"`)
	assert.Contains(t, logs.String(), "stack_trace=")

	rec = get(t, s, "/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"no such binding"}`, rec.Body.String())
}

func TestServeAndShutdown(t *testing.T) {
	s := newServer(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.NoError(t, <-done)
}

func TestRPCRateLimit(t *testing.T) {
	s, err := admin.New("127.0.0.1:0", newRegistry(t), admin.Options{RateLimit: 10})
	require.NoError(t, err)

	post := func(ip string) *httptest.ResponseRecorder {
		body := strings.NewReader(`{"jsonrpc":"2.0","method":"Registry.List","params":{},"id":1}`)
		req := httptest.NewRequest(http.MethodPost, "/rpc", body)
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = ip
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, post("192.0.2.2:1234").Code, "request %d should be allowed", i+1)
	}
	rec := post("192.0.2.2:1234")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Too many requests")

	assert.Equal(t, http.StatusOK, post("192.0.2.3:1234").Code, "other clients are not limited")
	assert.Equal(t, http.StatusOK, get(t, s, "/healthz").Code, "only the rpc endpoint is limited")
}
