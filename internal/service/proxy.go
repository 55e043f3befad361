// Package service implements the proxy forwarding logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gemini-lite-go/internal/client"
	"gemini-lite-go/internal/config"
	"gemini-lite-go/internal/metrics"
	"gemini-lite-go/internal/model"
	"gemini-lite-go/internal/protocol"
)

// ErrHostNotAllowed is returned when a target host is outside proxy.allowed_hosts.
var ErrHostNotAllowed = errors.New("host not in proxy allowlist")

// maxErrorMessage bounds the text carried in a synthesized 43 reply.
const maxErrorMessage = 200

var (
	replyInvalidRedirect = protocol.MustReply(protocol.StatusProxyError, "proxy error: invalid redirection URI")
	replyTooManyRedirect = protocol.MustReply(protocol.StatusPermanentFailure, "too many redirections")
	replyInterrupted     = protocol.MustReply(protocol.StatusTemporaryFailure, "interrupted")
	replyRefused         = protocol.MustReply(protocol.StatusProxyRequestRefused, "proxy request refused")
)

// ProxyService forwards one inbound request, following redirects and
// slow-downs, and returns a single aggregated result.
type ProxyService struct {
	sender       client.Sender
	maxRedirects int
	maxSlowDowns int
	retryDelay   time.Duration
	allowed      map[string]bool
	logger       *slog.Logger
	metrics      *metrics.Metrics

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewProxyService creates a ProxyService. sender must dial each resource's own
// host, never a further proxy.
// The metrics parameter is optional; pass nil to disable retry metrics.
func NewProxyService(sender client.Sender, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	var allowed map[string]bool
	if len(cfg.Proxy.AllowedHosts) > 0 {
		allowed = make(map[string]bool, len(cfg.Proxy.AllowedHosts))
		for _, h := range cfg.Proxy.AllowedHosts {
			allowed[strings.ToLower(h)] = true
		}
	}

	return &ProxyService{
		sender:       sender,
		maxRedirects: cfg.Proxy.MaxRedirects,
		maxSlowDowns: cfg.Proxy.MaxSlowDowns,
		retryDelay:   cfg.Proxy.RetryDelay(),
		allowed:      allowed,
		logger:       logger.With("component", "proxy_service"),
		metrics:      m,
		sleep:        sleep,
	}
}

// Forward drives req to a terminal reply. It never returns an error: every
// failure becomes a synthesized reply. The caller owns the result's body.
func (s *ProxyService) Forward(ctx context.Context, req *protocol.Request) *model.HandlerResult {
	target := req
	redirects, slowDowns := 0, 0

	for {
		if err := s.checkHost(target); err != nil {
			s.logger.Warn("refusing proxy request", "host", target.Host(), "error", err)
			return model.NewResult(replyRefused)
		}

		res, err := s.sender.Send(ctx, target)
		if err != nil {
			return s.failure(ctx, target, err)
		}

		reply := res.Reply
		switch {
		case reply.Group() == protocol.GroupInput, reply.Group() == protocol.GroupSuccess:
			return res

		case reply.Group() == protocol.GroupRedirect:
			_ = res.Discard()
			ref := reply.Message
			if ref == "" || strings.Contains(ref, " ") {
				return model.NewResult(replyInvalidRedirect)
			}
			redirects++
			if redirects > s.maxRedirects {
				s.logger.Warn("too many redirections", "uri", req.Line(), "limit", s.maxRedirects)
				return model.NewResult(replyTooManyRedirect)
			}
			next, err := target.Resolve(ref)
			if err != nil {
				s.logger.Debug("unresolvable redirect", "from", target.Line(), "to", ref, "error", err)
				return model.NewResult(replyInvalidRedirect)
			}
			s.recordRetry("redirect")
			s.logger.Debug("following redirect", "from", target.Line(), "to", next.Line(), "count", redirects)
			target = next

		case reply.Status == protocol.StatusSlowDown:
			slowDowns++
			if slowDowns > s.maxSlowDowns {
				_ = res.Discard()
				s.logger.Warn("upstream keeps asking to slow down", "uri", target.Line(), "limit", s.maxSlowDowns)
				return model.NewResult(reply)
			}
			_ = res.Discard()
			s.recordRetry("slow_down")
			if err := s.sleep(ctx, s.retryDelay); err != nil {
				return model.NewResult(replyInterrupted)
			}

		default:
			return res
		}
	}
}

func (s *ProxyService) checkHost(req *protocol.Request) error {
	if s.allowed == nil || s.allowed[strings.ToLower(req.Host())] {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrHostNotAllowed, req.Host())
}

func (s *ProxyService) failure(ctx context.Context, target *protocol.Request, err error) *model.HandlerResult {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return model.NewResult(replyInterrupted)
	}
	s.logger.Warn("upstream round trip failed", "uri", target.Line(), "error", err)
	return model.NewResult(protocol.MustReply(protocol.StatusProxyError, "proxy error: "+sanitize(err.Error())))
}

func (s *ProxyService) recordRetry(kind string) {
	if s.metrics != nil {
		s.metrics.ProxyRetries.WithLabelValues(kind).Inc()
	}
}

// sanitize makes s safe to carry as reply meta.
func sanitize(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s) && sb.Len() < maxErrorMessage; i++ {
		c := s[i]
		if c < 0x20 || c >= 0x7f {
			c = '?'
		}
		sb.WriteByte(c)
	}
	if sb.Len() == 0 {
		return "unknown error"
	}
	return sb.String()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
