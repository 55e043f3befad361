package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"gemini-lite-go/internal/model"
	"gemini-lite-go/internal/protocol"
)

// Process exit codes for outcomes that have no status code of their own. They
// stay below 10 so they never collide with a reply status.
const (
	ExitSuccess          = 0
	ExitFailure          = 1
	ExitUsage            = 2
	ExitTooManyRedirects = 3
	ExitTooManySlowDowns = 4
)

// Default session bounds.
const (
	DefaultMaxRedirects = 5
	DefaultMaxSlowDowns = 5
)

// ErrNoInput is returned when the server asks for input and none can be read.
var ErrNoInput = errors.New("cannot read input")

// State is a session state.
type State int

// Session states.
const (
	StateRequesting State = iota
	StateAwaitingInput
	StateRedirecting
	StateSlowingDown
	StateDone
)

func (s State) String() string {
	switch s {
	case StateRequesting:
		return "requesting"
	case StateAwaitingInput:
		return "awaiting_input"
	case StateRedirecting:
		return "redirecting"
	case StateSlowingDown:
		return "slowing_down"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of a session.
type Outcome struct {
	// Code is the process exit code: 0, a failure status, or one of the Exit
	// sentinels.
	Code int
	// Reply is the last reply received.
	Reply protocol.Reply
	// Resource is the last resource requested.
	Resource  *protocol.Request
	Requests  int
	Redirects int
	SlowDowns int
}

// SleepFunc suspends for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// SessionOptions configures a Session.
type SessionOptions struct {
	// Input answers the first input prompt without asking.
	Input *string
	// Prompter asks the user for input; nil means no interactive input.
	Prompter Prompter
	// Out receives the success body.
	Out io.Writer
	// Color enables gemtext colorizing.
	Color        bool
	MaxRedirects int
	MaxSlowDowns int
	// Sleep overrides the slow-down suspension, for tests.
	Sleep SleepFunc
}

// Session drives one user request through input prompts, redirects and
// slow-downs until a terminal reply. It is not safe for concurrent use.
type Session struct {
	sender Sender
	opts   SessionOptions
	logger *slog.Logger

	current   *protocol.Request
	state     State
	redirects int
	slowDowns int
	requests  int
	input     *string
}

// NewSession creates a Session sending through sender.
func NewSession(sender Sender, opts SessionOptions, logger *slog.Logger) *Session {
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = DefaultMaxRedirects
	}
	if opts.MaxSlowDowns <= 0 {
		opts.MaxSlowDowns = DefaultMaxSlowDowns
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Session{
		sender: sender,
		opts:   opts,
		logger: logger.With("component", "client_session"),
		input:  opts.Input,
	}
}

// Run requests target and follows the reply chain to a terminal state. A
// non-nil error means the exchange failed (protocol violation, transport
// failure or cancellation); the outcome code is then ExitFailure.
func (s *Session) Run(ctx context.Context, target *protocol.Request) (Outcome, error) {
	s.current = target
	s.state = StateRequesting

	for {
		res, err := s.sender.Send(ctx, s.current)
		s.requests++
		if err != nil {
			return s.fail(), err
		}
		out, done, err := s.step(ctx, res)
		if err != nil {
			return s.fail(), err
		}
		if done {
			return out, nil
		}
	}
}

// step applies one reply. It always releases the reply body.
func (s *Session) step(ctx context.Context, res *model.HandlerResult) (Outcome, bool, error) {
	reply := res.Reply
	s.logger.Debug("reply", "status", reply.Status, "meta", reply.Message, "state", s.state.String())

	if reply.Group() != protocol.GroupSuccess {
		_ = res.Discard()
	}

	switch reply.Group() {
	case protocol.GroupInput:
		s.transition(StateAwaitingInput)
		answer, err := s.answer(reply)
		if err != nil {
			return Outcome{}, false, err
		}
		s.current = s.current.WithQuery(answer)
		s.transition(StateRequesting)
		return Outcome{}, false, nil

	case protocol.GroupSuccess:
		defer func() { _ = res.Close() }()
		if res.Body != nil {
			if err := Render(s.opts.Out, reply.Message, res.Body, s.opts.Color); err != nil {
				return Outcome{}, false, fmt.Errorf("read body: %w", err)
			}
		}
		return s.done(reply, ExitSuccess), true, nil

	case protocol.GroupRedirect:
		s.transition(StateRedirecting)
		s.redirects++
		if s.redirects > s.opts.MaxRedirects {
			s.logger.Warn("too many redirections", "limit", s.opts.MaxRedirects)
			return s.done(reply, ExitTooManyRedirects), true, nil
		}
		next, err := s.current.Resolve(reply.Message)
		if err != nil {
			return Outcome{}, false, err
		}
		s.logger.Info("redirecting", "count", s.redirects, "to", next.Line())
		s.current = next
		s.transition(StateRequesting)
		return Outcome{}, false, nil

	case protocol.GroupTemporaryFailure:
		if reply.Status != protocol.StatusSlowDown {
			return s.done(reply, reply.Status), true, nil
		}
		s.transition(StateSlowingDown)
		s.slowDowns++
		if s.slowDowns > s.opts.MaxSlowDowns {
			s.logger.Warn("slow down repeated too many times; giving up", "limit", s.opts.MaxSlowDowns)
			return s.done(reply, ExitTooManySlowDowns), true, nil
		}
		secs, err := strconv.Atoi(strings.TrimSpace(reply.Message))
		if err != nil || secs < 0 {
			return Outcome{}, false, fmt.Errorf("%w: invalid slow down delay %q", protocol.ErrSyntax, reply.Message)
		}
		s.logger.Info("slowing down", "seconds", secs, "count", s.slowDowns)
		if err := s.opts.Sleep(ctx, time.Duration(secs)*time.Second); err != nil {
			return Outcome{}, false, err
		}
		s.transition(StateRequesting)
		return Outcome{}, false, nil

	case protocol.GroupPermanentFailure:
		return s.done(reply, reply.Status), true, nil

	default:
		return Outcome{}, false, fmt.Errorf("%w: unhandled status %d", protocol.ErrSyntax, reply.Status)
	}
}

// answer returns the pre-supplied input once, then falls back to prompting.
func (s *Session) answer(reply protocol.Reply) (string, error) {
	if s.input != nil {
		v := *s.input
		s.input = nil
		s.logger.Info("answering input prompt from command line", "prompt", reply.Message)
		return v, nil
	}
	if s.opts.Prompter == nil {
		return "", fmt.Errorf("%w: %w for status %d", protocol.ErrSyntax, ErrNoInput, reply.Status)
	}
	v, err := s.opts.Prompter.Prompt(reply.Message, reply.Status == protocol.StatusSensitiveInput)
	if err != nil {
		return "", fmt.Errorf("%w: %w for status %d: %v", protocol.ErrSyntax, ErrNoInput, reply.Status, err)
	}
	return v, nil
}

func (s *Session) transition(next State) {
	s.logger.Debug("state transition", "from", s.state.String(), "to", next.String())
	s.state = next
}

func (s *Session) done(reply protocol.Reply, code int) Outcome {
	s.transition(StateDone)
	return Outcome{
		Code:      code,
		Reply:     reply,
		Resource:  s.current,
		Requests:  s.requests,
		Redirects: s.redirects,
		SlowDowns: s.slowDowns,
	}
}

func (s *Session) fail() Outcome {
	return s.done(protocol.Reply{}, ExitFailure)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
