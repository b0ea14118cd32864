package mailer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OliverSchlueter/goutils/sloki"
)

// Dialer opens the connection to the relay. *tls.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// transport owns a single relay connection. A reader goroutine pumps the
// socket into the line buffer until the connection fails or is closed.
type transport struct {
	conn        net.Conn
	addr        string
	lines       *lineBuffer
	idleTimeout time.Duration

	closed    atomic.Bool
	timedOut  atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func dial(ctx context.Context, d Dialer, addr string, connectTimeout, idleTimeout time.Duration) (*transport, error) {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Addr: addr, Err: err}
	}

	t := &transport{
		conn:        conn,
		addr:        addr,
		lines:       newLineBuffer(),
		idleTimeout: idleTimeout,
	}
	go t.readLoop()

	return t, nil
}

func (t *transport) readLoop() {
	buf := make([]byte, 4096)
	for {
		t.extendDeadline()

		n, err := t.conn.Read(buf)
		if n > 0 {
			if ferr := t.lines.feed(buf[:n]); ferr != nil {
				slog.Warn("Relay sent an overlong line", slog.String("addr", t.addr), sloki.WrapError(ferr))
				t.close()
				return
			}
		}
		if err != nil {
			t.lines.fail(t.classify("read", err))
			t.close()
			return
		}
	}
}

func (t *transport) write(p []byte) error {
	if t.closed.Load() {
		return t.classify("write", ErrClosed)
	}

	t.extendDeadline()
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.idleTimeout)); err != nil {
		return &ConnectionError{Op: "write", Addr: t.addr, Err: err}
	}

	if _, err := t.conn.Write(p); err != nil {
		err = t.classify("write", err)
		t.lines.fail(err)
		t.close()
		return err
	}

	return nil
}

func (t *transport) nextLine(ctx context.Context) (string, error) {
	return t.lines.nextLine(ctx)
}

// extendDeadline restarts the idle window. Any traffic counts as activity.
func (t *transport) extendDeadline() {
	if err := t.conn.SetReadDeadline(time.Now().Add(t.idleTimeout)); err != nil {
		slog.Debug("Failed to set read deadline", sloki.WrapError(err))
	}
}

// classify maps a socket error onto the mailer error kinds.
func (t *transport) classify(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		t.timedOut.Store(true)
		return ErrTimeout
	}

	if t.timedOut.Load() {
		return ErrTimeout
	}

	if t.closed.Load() {
		return &ConnectionError{Op: op, Addr: t.addr, Err: ErrClosed}
	}

	if errors.Is(err, io.EOF) {
		return &ConnectionError{Op: op, Addr: t.addr, Err: ErrClosed}
	}

	return &ConnectionError{Op: op, Addr: t.addr, Err: err}
}

// close tears the connection down. Safe to call any number of times.
func (t *transport) close() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.closeErr = t.conn.Close()
		t.lines.fail(&ConnectionError{Op: "read", Addr: t.addr, Err: ErrClosed})
		slog.Debug("Connection closed", slog.String("addr", t.addr))
	})
	return t.closeErr
}
