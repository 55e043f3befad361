package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"gemini-lite-go/internal/handler"
	"gemini-lite-go/internal/model"
	"gemini-lite-go/internal/protocol"
)

// RequestLogger logs each handled request with slog.
func RequestLogger(logger *slog.Logger) Middleware {
	return func(next handler.Handler) handler.Handler {
		return handler.HandlerFunc(func(ctx context.Context, req *protocol.Request) (*model.HandlerResult, error) {
			start := time.Now()

			res, err := next.Handle(ctx, req)

			attrs := []any{
				"uri", req.Line(),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if id, ok := ConnID(ctx); ok {
				attrs = append(attrs, "conn_id", id)
			}
			if err != nil || res == nil {
				logger.Error("request failed", append(attrs, "err", err)...)
				return res, err
			}
			logger.Info("request", append(attrs,
				"status", res.Reply.Status,
				"meta", res.Reply.Message,
				"has_body", res.HasBody(),
			)...)
			return res, nil
		})
	}
}

// HTTPRequestLogger returns an Echo middleware that logs admin requests.
func HTTPRequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			logger.Debug("admin request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_ip", c.RealIP(),
			)
			return err
		}
	}
}

type connIDKey struct{}

// WithConnID returns a context carrying the connection ID.
func WithConnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, connIDKey{}, id)
}

// ConnID returns the connection ID stored by WithConnID.
func ConnID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(connIDKey{}).(string)
	return id, ok
}
