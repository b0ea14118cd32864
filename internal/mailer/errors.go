package mailer

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration = errors.New("mailer not configured")
	ErrTimeout       = errors.New("smtp idle timeout exceeded")
	ErrClosed        = errors.New("smtp connection closed")
	ErrLineTooLong   = errors.New("smtp reply line too long")
)

// ConnectionError is returned when the relay cannot be reached, the TLS
// handshake fails or the socket breaks mid-session.
type ConnectionError struct {
	Op   string
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("smtp %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ProtocolError is returned when the relay answers a step with a status code
// other than the one expected. Reply holds every line of the relay's answer.
type ProtocolError struct {
	Step     string
	Expected string
	Reply    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("smtp %s failed: expected status %s, got %q", e.Step, e.Expected, e.Reply)
}
