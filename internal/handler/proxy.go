package handler

import (
	"context"
	"log/slog"

	"gemini-lite-go/internal/model"
	"gemini-lite-go/internal/protocol"
	"gemini-lite-go/internal/service"
)

// ProxyHandler answers requests by forwarding them to the resource's origin.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle implements Handler. Forwarding failures are already replies, so the
// error is always nil.
func (h *ProxyHandler) Handle(ctx context.Context, req *protocol.Request) (*model.HandlerResult, error) {
	h.logger.Debug("forwarding", "uri", req.Line(), "origin", req.Address())
	return h.service.Forward(ctx, req), nil
}
