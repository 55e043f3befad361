// Package transport provides the TCP plumbing shared by the client engine, the
// proxy and the connection server.
package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// IdleConn refreshes the connection deadline before every read and write, so
// the timeout bounds how long a peer may stall rather than the whole exchange.
type IdleConn struct {
	net.Conn
	Timeout time.Duration
}

// NewIdleConn wraps c. A zero timeout disables deadlines.
func NewIdleConn(c net.Conn, timeout time.Duration) *IdleConn {
	return &IdleConn{Conn: c, Timeout: timeout}
}

func (c *IdleConn) Read(p []byte) (int, error) {
	if c.Timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.Timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

func (c *IdleConn) Write(p []byte) (int, error) {
	if c.Timeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.Timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}

// Dialer opens outbound connections wrapped in IdleConn.
type Dialer struct {
	DialTimeout time.Duration
	IdleTimeout time.Duration
}

// DialContext connects to addr over TCP.
func (d *Dialer) DialContext(ctx context.Context, addr string) (*IdleConn, error) {
	nd := net.Dialer{Timeout: d.DialTimeout}
	c, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewIdleConn(c, d.IdleTimeout), nil
}
