package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"gemini-lite-go/internal/handler"
	"gemini-lite-go/internal/model"
	"gemini-lite-go/internal/protocol"
)

// Recover turns a handler panic into an error.
func Recover(logger *slog.Logger) Middleware {
	return func(next handler.Handler) handler.Handler {
		return handler.HandlerFunc(func(ctx context.Context, req *protocol.Request) (res *model.HandlerResult, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("handler panic", "uri", req.Line(), "panic", r, "stack", string(debug.Stack()))
					res, err = nil, fmt.Errorf("handler panic: %v", r)
				}
			}()
			return next.Handle(ctx, req)
		})
	}
}
