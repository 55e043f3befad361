// Package client implements the Gemini-Lite client: single round trips and the
// session state machine that drives a user request to completion.
package client

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gemini-lite-go/internal/metrics"
	"gemini-lite-go/internal/model"
	"gemini-lite-go/internal/protocol"
	"gemini-lite-go/internal/transport"
)

// Sender performs one request/reply round trip.
type Sender interface {
	Send(ctx context.Context, req *protocol.Request) (*model.HandlerResult, error)
}

// Options configures an Engine.
type Options struct {
	// ProxyAddr, when set, is dialed instead of the resource's own host. The
	// request line still names the original resource.
	ProxyAddr    string
	DialTimeout  time.Duration
	IdleTimeout  time.Duration
	MaxBodyBytes int64
}

// Engine sends requests over fresh TCP connections, one per round trip.
type Engine struct {
	dialer    *transport.Dialer
	proxyAddr string
	maxBody   int64
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewEngine creates an Engine.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewEngine(opts Options, logger *slog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		dialer: &transport.Dialer{
			DialTimeout: opts.DialTimeout,
			IdleTimeout: opts.IdleTimeout,
		},
		proxyAddr: opts.ProxyAddr,
		maxBody:   opts.MaxBodyBytes,
		logger:    logger.With("component", "client_engine"),
		metrics:   m,
	}
}

// Send writes req's request line and reads the reply. The returned result
// always carries a body reading the rest of the connection; the caller owns it
// and must close it. Cancelling ctx aborts any blocked read or write.
func (e *Engine) Send(ctx context.Context, req *protocol.Request) (*model.HandlerResult, error) {
	addr := req.Address()
	if e.proxyAddr != "" {
		addr = e.proxyAddr
	}

	e.logger.Debug("sending request",
		"uri", req.Line(),
		"addr", addr,
		"via_proxy", e.proxyAddr != "",
	)

	start := time.Now()
	res, err := e.roundTrip(ctx, addr, req)
	duration := time.Since(start).Seconds()

	if err != nil {
		if e.metrics != nil {
			e.metrics.UpstreamDuration.WithLabelValues("error").Observe(duration)
		}
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.UpstreamDuration.WithLabelValues("ok").Observe(duration)
		e.metrics.UpstreamReplies.WithLabelValues(metrics.NormalizeStatus(res.Reply.Status)).Inc()
	}
	return res, nil
}

func (e *Engine) roundTrip(ctx context.Context, addr string, req *protocol.Request) (*model.HandlerResult, error) {
	conn, err := e.dialer.DialContext(ctx, addr)
	if err != nil {
		return nil, err
	}
	// Closing, rather than expiring the deadline, also unblocks a read that
	// IdleConn would otherwise re-arm.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Conn.Close()
	})
	release := &connCloser{close: func() error {
		stop()
		return conn.Close()
	}}

	if err := req.Write(conn); err != nil {
		_ = release.Close()
		return nil, fmt.Errorf("send to %s: %w", addr, contextErr(ctx, err))
	}

	br := bufio.NewReader(conn)
	reply, err := protocol.ReadReply(br)
	if err != nil {
		_ = release.Close()
		return nil, fmt.Errorf("read reply from %s: %w", addr, contextErr(ctx, err))
	}

	return model.NewResultWithBody(reply, model.NewBody(br, release, e.maxBody)), nil
}

// contextErr prefers the context's error over the deadline error it caused.
func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w (%v)", ctxErr, err)
	}
	return err
}

type connCloser struct {
	once  sync.Once
	close func() error
	err   error
}

func (c *connCloser) Close() error {
	c.once.Do(func() { c.err = c.close() })
	return c.err
}
