// Package server accepts Gemini-Lite connections and answers each one with a
// single handler result.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"gemini-lite-go/internal/config"
	"gemini-lite-go/internal/handler"
	"gemini-lite-go/internal/metrics"
	"gemini-lite-go/internal/middleware"
	"gemini-lite-go/internal/protocol"
	"gemini-lite-go/internal/transport"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("server closed")

// Defaults applied to zero Options fields.
const (
	DefaultWorkers     = 32
	DefaultIdleTimeout = 5 * time.Second
	DefaultChunkSize   = 8192
)

var (
	replyBadRequest  = protocol.MustReply(protocol.StatusBadRequest, "Bad request")
	replyReadError   = protocol.MustReply(protocol.StatusBadRequest, "Read error")
	replyServerError = protocol.MustReply(protocol.StatusTemporaryFailure, "Server error")
)

// Options configures a Server.
type Options struct {
	Workers     int
	IdleTimeout time.Duration
	ChunkSize   int
	// Limiter, when set, admits connections; a connection arriving with the
	// bucket empty is told to slow down.
	Limiter *rate.Limiter
}

// OptionsFromConfig builds Options from the [server] section.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		Workers:     cfg.Server.Workers,
		IdleTimeout: cfg.Server.IdleTimeout(),
		ChunkSize:   cfg.Server.ChunkSize,
	}
	if rl := cfg.Server.RateLimit; rl.Enabled {
		opts.Limiter = rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), rl.Burst)
	}
	return opts
}

// Server runs each accepted connection on a bounded worker pool.
type Server struct {
	handler handler.Handler
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics

	// ctx is the parent of every handler context; cancel aborts them all.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	ln      net.Listener
	conns   map[net.Conn]struct{}
	closing bool
	drained chan struct{}
}

// New creates a Server answering with h.
// The metrics parameter is optional; pass nil to disable connection metrics.
func New(h handler.Handler, opts Options, logger *slog.Logger, m *metrics.Metrics) *Server {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		handler: h,
		opts:    opts,
		logger:  logger.With("component", "server"),
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[net.Conn]struct{}),
		drained: make(chan struct{}),
	}
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections on ln until Shutdown. Accepting blocks while
// every worker is busy. It always returns a non-nil error.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	if s.ln != nil {
		s.mu.Unlock()
		return errors.New("server already serving")
	}
	s.ln = ln
	s.mu.Unlock()

	p := pool.New().WithMaxGoroutines(s.opts.Workers)
	defer func() {
		p.Wait()
		close(s.drained)
	}()

	s.logger.Info("accepting connections", "addr", ln.Addr().String(), "workers", s.opts.Workers)
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.Warn("accept timeout", "err", err)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		p.Go(func() { s.serveConn(c) })
	}
}

// Shutdown stops accepting, waits for in-flight connections until ctx is
// done, then cancels handlers and closes the remaining connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	ln := s.ln
	s.mu.Unlock()

	if ln == nil {
		s.cancel()
		return nil
	}
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Warn("close listener", "err", err)
	}

	select {
	case <-s.drained:
		s.cancel()
		return nil
	case <-ctx.Done():
	}

	s.cancel()
	s.mu.Lock()
	n := len(s.conns)
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.logger.Warn("grace period expired; closed connections", "count", n)

	<-s.drained
	return ctx.Err()
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) track(c net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}

// serveConn handles exactly one request on c and closes it.
func (s *Server) serveConn(c net.Conn) {
	id := uuid.NewString()
	logger := s.logger.With("conn_id", id, "remote", c.RemoteAddr().String())

	s.track(c, true)
	defer s.track(c, false)
	conn := transport.NewIdleConn(c, s.opts.IdleTimeout)
	defer conn.Close()

	replied := false
	reply := func(r protocol.Reply) error {
		replied = true
		return r.Write(conn)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("connection panic", "panic", r)
			if !replied {
				_ = reply(replyServerError)
			}
		}
	}()

	req, err := protocol.ReadRequest(bufio.NewReader(conn))
	if s.opts.Limiter != nil {
		if wait, ok := s.admit(); !ok {
			s.reject("rate_limited")
			logger.Debug("rate limited", "retry_after", wait)
			_ = reply(protocol.MustReply(protocol.StatusSlowDown, strconv.Itoa(wait)))
			return
		}
	}
	if err != nil {
		if errors.Is(err, protocol.ErrSyntax) || errors.Is(err, protocol.ErrURISyntax) {
			s.reject("bad_request")
			logger.Debug("bad request", "err", err)
			_ = reply(replyBadRequest)
		} else {
			s.reject("read_error")
			logger.Debug("read request", "err", err)
			_ = reply(replyReadError)
		}
		return
	}

	ctx := middleware.WithConnID(s.ctx, id)
	res, err := s.handler.Handle(ctx, req)
	if err != nil || res == nil {
		logger.Error("handler failed", "uri", req.Line(), "err", err)
		_ = reply(replyServerError)
		return
	}
	defer func() { _ = res.Close() }()

	if err := reply(res.Reply); err != nil {
		logger.Debug("write reply", "err", err)
		return
	}
	if res.Body == nil {
		return
	}

	n, err := io.CopyBuffer(conn, res.Body, make([]byte, s.opts.ChunkSize))
	if err != nil {
		logger.Warn("body copy interrupted", "uri", req.Line(), "bytes", n, "err", err)
		return
	}
	logger.Debug("body sent", "uri", req.Line(), "bytes", n)
}

// admit takes a token, or reports how many whole seconds until one is due.
func (s *Server) admit() (int, bool) {
	r := s.opts.Limiter.Reserve()
	if !r.OK() {
		return 1, false
	}
	delay := r.Delay()
	if delay == 0 {
		return 0, true
	}
	r.Cancel()
	return int(math.Ceil(delay.Seconds())), false
}

func (s *Server) reject(reason string) {
	if s.metrics != nil {
		s.metrics.ConnectionsRejected.WithLabelValues(reason).Inc()
	}
}
