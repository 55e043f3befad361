package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestIdleConn_ReadTimesOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	d := &Dialer{DialTimeout: time.Second, IdleTimeout: 50 * time.Millisecond}
	c, err := d.DialContext(context.Background(), ln.Addr().String())
	if err != nil {
		t.Fatalf("DialContext() error = %v", err)
	}
	defer c.Close()
	peer := <-accepted
	defer peer.Close()

	_, err = c.Read(make([]byte, 1))
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Fatalf("Read() error = %v, want timeout", err)
	}
}

func TestIdleConn_DeadlineRefreshedPerRead(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := NewIdleConn(client, 100*time.Millisecond)
	go func() {
		for i := 0; i < 3; i++ {
			time.Sleep(60 * time.Millisecond)
			_, _ = server.Write([]byte{'x'})
		}
	}()

	buf := make([]byte, 1)
	for i := 0; i < 3; i++ {
		if _, err := c.Read(buf); err != nil {
			t.Fatalf("Read %d error = %v", i, err)
		}
	}
}

func TestDialer_Unreachable(t *testing.T) {
	d := &Dialer{DialTimeout: time.Second}
	if _, err := d.DialContext(context.Background(), "127.0.0.1:1"); err == nil {
		t.Fatal("DialContext() expected error for closed port, got nil")
	}
}
