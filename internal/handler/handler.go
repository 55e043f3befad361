// Package handler provides the request handlers the connection server
// delegates to, plus the admin HTTP endpoints.
package handler

import (
	"context"

	"gemini-lite-go/internal/model"
	"gemini-lite-go/internal/protocol"
)

// Handler answers one request. A returned error is reported to the peer as a
// generic server error; a handler that wants a specific status returns it as
// a result instead.
type Handler interface {
	Handle(ctx context.Context, req *protocol.Request) (*model.HandlerResult, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *protocol.Request) (*model.HandlerResult, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, req *protocol.Request) (*model.HandlerResult, error) {
	return f(ctx, req)
}
