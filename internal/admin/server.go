// Package admin serves the read-only HTTP and JSON-RPC surface of a node:
// health, registry bindings and bound cluster sessions.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/nfrund/wirecall/internal/cluster"
	"github.com/nfrund/wirecall/internal/registry"
)

// SessionCounter reports bound client sessions. *cluster.Container
// satisfies it.
type SessionCounter interface {
	Sessions() cluster.SessionStats
}

// Options configures a Server.
type Options struct {
	Logger *slog.Logger
	// Sessions is optional; without it /sessions reports zero counts.
	Sessions SessionCounter
	// RateLimit caps JSON-RPC requests per second per client IP. Zero
	// disables the limit.
	RateLimit float64
}

// Server is the admin HTTP server.
type Server struct {
	e        *echo.Echo
	addr     string
	registry *registry.Registry
	sessions SessionCounter
	logger   *slog.Logger
}

// New builds the server and its routes. It does not listen until Start.
func New(addr string, reg *registry.Registry, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		e:        echo.New(),
		addr:     addr,
		registry: reg,
		sessions: opts.Sessions,
		logger:   opts.Logger.With("component", "admin"),
	}
	s.e.HideBanner = true
	s.e.HidePort = true
	s.e.Use(middleware.RequestID())
	s.e.Use(middleware.Recover())
	s.e.Use(requestLogger(s.logger))
	s.e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			loggerFrom(c.Request().Context()).Debug("admin request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))
	s.setupErrorHandling()

	rpcServer := rpc.NewServer()
	rpcServer.RegisterCodec(json2.NewCodec(), "application/json")
	if err := rpcServer.RegisterService(&RegistryService{registry: reg, sessions: opts.Sessions}, "Registry"); err != nil {
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	s.e.GET("/healthz", s.health)
	s.e.GET("/registry", s.entries)
	s.e.GET("/sessions", s.sessionStats)
	var rpcMiddleware []echo.MiddlewareFunc
	if opts.RateLimit > 0 {
		rpcMiddleware = append(rpcMiddleware, rateLimiter(opts.RateLimit))
	}
	s.e.POST("/rpc", echo.WrapHandler(rpcServer), rpcMiddleware...)
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Start listens on the configured address and blocks until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("admin listen %s: %w", s.addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln and blocks until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.e.Listener = ln
	s.logger.Info("admin server listening", "addr", ln.Addr().String())
	if err := s.e.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"sealed": s.registry.Sealed(),
	})
}

func (s *Server) entries(c echo.Context) error {
	kind := registry.EntryKind(c.QueryParam("kind"))
	return c.JSON(http.StatusOK, filterEntries(s.registry.Entries(), kind))
}

func (s *Server) sessionStats(c echo.Context) error {
	var stats cluster.SessionStats
	if s.sessions != nil {
		stats = s.sessions.Sessions()
	}
	return c.JSON(http.StatusOK, stats)
}

// setupErrorHandling logs unhandled errors with a stack trace and hides
// their text from the client.
func (s *Server) setupErrorHandling() {
	s.e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			_ = c.JSON(he.Code, map[string]any{"error": he.Message})
			return
		}
		s.logger.Error("Internal Server Error (Unhandled)",
			"error", err,
			"uri", c.Request().RequestURI,
			"stack_trace", string(debug.Stack()),
		)
		_ = c.JSON(http.StatusInternalServerError, map[string]any{"error": http.StatusText(http.StatusInternalServerError)})
	}
}

func filterEntries(all []registry.Entry, kind registry.EntryKind) []registry.Entry {
	out := make([]registry.Entry, 0, len(all))
	for _, e := range all {
		if kind == "" || e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
