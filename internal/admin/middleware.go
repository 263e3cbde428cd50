package admin

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

type contextKey string

const loggerKey = contextKey("logger")

// requestLogger injects a request-scoped logger carrying the request id
// into the request context. It must run after middleware.RequestID.
func requestLogger(base *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reqID := c.Response().Header().Get(echo.HeaderXRequestID)
			logger := base.With("request_id", reqID)
			ctx := context.WithValue(c.Request().Context(), loggerKey, logger)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// loggerFrom returns the request-scoped logger, or the default logger
// outside a request.
func loggerFrom(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// rateLimiter limits requests per client IP to perSecond, with a burst of
// the same size.
func rateLimiter(perSecond float64) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(perSecond),
			Burst:     int(math.Ceil(perSecond)),
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]any{"error": "Too many requests. Please try again later."})
		},
	})
}
