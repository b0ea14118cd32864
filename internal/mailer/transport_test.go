package mailer

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

type pipeDialer struct {
	server net.Conn
	closes atomic.Int32
}

func (d *pipeDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	client, server := net.Pipe()
	d.server = server
	return &countingConn{Conn: client, closes: &d.closes}, nil
}

func TestTransportCloseIsIdempotent(t *testing.T) {
	d := &pipeDialer{}
	tr, err := dial(context.Background(), d, "relay.test:465", time.Second, time.Second)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer d.server.Close()

	for i := 0; i < 3; i++ {
		tr.close()
	}

	if n := d.closes.Load(); n != 1 {
		t.Errorf("Expected one close on the socket, got %d", n)
	}

	err = tr.write([]byte("NOOP\r\n"))
	var connErr *ConnectionError
	if !errors.As(err, &connErr) || !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ConnectionError wrapping ErrClosed, got %v", err)
	}

	if _, err := tr.nextLine(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected pending reads to fail with ErrClosed, got %v", err)
	}
}

func TestTransportReadsLinesAcrossWrites(t *testing.T) {
	d := &pipeDialer{}
	tr, err := dial(context.Background(), d, "relay.test:465", time.Second, time.Second)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer tr.close()

	go func() {
		d.server.Write([]byte("220 re"))
		d.server.Write([]byte("lay.test\r"))
		d.server.Write([]byte("\n250 OK\r\n"))
	}()

	e := &engine{t: tr}
	reply, err := e.readReply(context.Background(), "220", "greeting")
	if err != nil {
		t.Fatalf("Expected greeting, got %v", err)
	}
	if reply.String() != "220 relay.test" {
		t.Errorf("Expected '220 relay.test', got %q", reply.String())
	}

	if _, err := e.readReply(context.Background(), "354", "DATA"); err == nil {
		t.Errorf("Expected mismatching code to fail")
	}
}

func TestTransportIdleTimeout(t *testing.T) {
	d := &pipeDialer{}
	tr, err := dial(context.Background(), d, "relay.test:465", time.Second, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer d.server.Close()

	if _, err := tr.nextLine(context.Background()); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}

	// a second read after the timeout fails the same way
	if _, err := tr.nextLine(context.Background()); !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout again, got %v", err)
	}

	tr.close()
	if n := d.closes.Load(); n != 1 {
		t.Errorf("Expected socket to be closed exactly once, got %d", n)
	}
}

func TestTransportClosesOnOverlongLine(t *testing.T) {
	d := &pipeDialer{}
	tr, err := dial(context.Background(), d, "relay.test:465", time.Second, 5*time.Second)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer d.server.Close()

	go func() {
		chunk := make([]byte, 1000)
		for i := range chunk {
			chunk[i] = 'a'
		}
		for i := 0; i < 10; i++ {
			if _, err := d.server.Write(chunk); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := tr.nextLine(ctx); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("Expected ErrLineTooLong, got %v", err)
	}

	// the reader closes the socket right after failing the buffer
	deadline := time.Now().Add(time.Second)
	for d.closes.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := d.closes.Load(); n != 1 {
		t.Errorf("Expected the socket to be closed once, got %d", n)
	}
}
