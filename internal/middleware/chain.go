// Package middleware provides request handler middleware for logging, metrics
// and panic recovery, plus the Echo logger used by the admin endpoint.
package middleware

import "gemini-lite-go/internal/handler"

// Middleware wraps a handler.
type Middleware func(handler.Handler) handler.Handler

// Chain applies mws to h so that the first middleware is the outermost.
func Chain(h handler.Handler, mws ...Middleware) handler.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
