// Package model defines the reply/body pairing shared by handlers, the client
// engine and the proxy.
package model

import (
	"errors"
	"io"
	"sync"

	"gemini-lite-go/internal/protocol"
)

// DrainLimit bounds how many bytes Discard reads before closing a body.
const DrainLimit = 64 << 10

// HandlerResult pairs a reply with its optional body. A nil Body means the
// reply carries no body. Whoever holds the result owns the body and must close
// it.
type HandlerResult struct {
	Reply protocol.Reply
	Body  *Body
}

// NewResult returns a result without a body.
func NewResult(reply protocol.Reply) *HandlerResult {
	return &HandlerResult{Reply: reply}
}

// NewResultWithBody returns a result whose body is body.
func NewResultWithBody(reply protocol.Reply, body *Body) *HandlerResult {
	return &HandlerResult{Reply: reply, Body: body}
}

// HasBody reports whether the result carries a body.
func (r *HandlerResult) HasBody() bool {
	return r.Body != nil
}

// Close releases the body, if any, without reading it.
func (r *HandlerResult) Close() error {
	if r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

// Discard drains a bounded amount of the body and closes it.
func (r *HandlerResult) Discard() error {
	if r.Body == nil {
		return nil
	}
	return r.Body.Discard()
}

// Body is a response body owning the resource it reads from. Reads stop after
// the optional limit; Close releases the resource exactly once.
type Body struct {
	r      io.Reader
	c      io.Closer
	limit  int64
	read   int64
	mu     sync.Mutex
	closed bool
}

// ErrBodyTooLarge is returned by Read once a limited body exceeds its limit.
var ErrBodyTooLarge = errors.New("body exceeds size limit")

// NewBody returns a body reading from r and releasing c on Close. A limit of
// zero means unlimited. c may be nil.
func NewBody(r io.Reader, c io.Closer, limit int64) *Body {
	return &Body{r: r, c: c, limit: limit}
}

// ReadCloserBody wraps rc as an unlimited body.
func ReadCloserBody(rc io.ReadCloser) *Body {
	return NewBody(rc, rc, 0)
}

func (b *Body) Read(p []byte) (int, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return 0, io.ErrClosedPipe
	}
	if b.limit > 0 {
		if b.read >= b.limit {
			// Probe for one more byte to tell "exactly limit" from "over".
			var one [1]byte
			n, err := b.r.Read(one[:])
			if n > 0 {
				return 0, ErrBodyTooLarge
			}
			return 0, err
		}
		if rem := b.limit - b.read; int64(len(p)) > rem {
			p = p[:rem]
		}
	}
	n, err := b.r.Read(p)
	b.read += int64(n)
	return n, err
}

// Close releases the underlying resource. It is safe to call more than once.
func (b *Body) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.c == nil {
		return nil
	}
	return b.c.Close()
}

// Discard reads at most DrainLimit remaining bytes and closes the body.
func (b *Body) Discard() error {
	_, _ = io.Copy(io.Discard, io.LimitReader(b, DrainLimit))
	return b.Close()
}
