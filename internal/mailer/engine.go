package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Reply is one logical relay answer, possibly spread over several lines.
type Reply struct {
	Code  string
	Lines []string
}

func (r Reply) String() string {
	return strings.Join(r.Lines, "\n")
}

// command is one line sent to the relay together with the code it must
// be answered with.
type command struct {
	Label  string
	Line   string
	Expect string
	Secret bool
}

type engine struct {
	t *transport
}

// send writes exactly one command line and drains exactly one reply.
func (e *engine) send(ctx context.Context, cmd command) (Reply, error) {
	if cmd.Secret {
		slog.Debug("C: <redacted>", slog.String("step", cmd.Label))
	} else {
		slog.Debug("C: " + cmd.Line)
	}

	if err := e.t.write([]byte(cmd.Line + "\r\n")); err != nil {
		return Reply{}, fmt.Errorf("%s: %w", cmd.Label, err)
	}

	return e.readReply(ctx, cmd.Expect, cmd.Label)
}

// readReply reads lines until the terminal line of a reply and validates its
// status code. Continuation lines are collected but not validated.
func (e *engine) readReply(ctx context.Context, expect, label string) (Reply, error) {
	var reply Reply
	for {
		line, err := e.t.nextLine(ctx)
		if err != nil {
			return reply, fmt.Errorf("%s: %w", label, err)
		}

		slog.Debug("S: " + line)
		reply.Lines = append(reply.Lines, line)

		if isTerminal(line) {
			break
		}
	}

	last := reply.Lines[len(reply.Lines)-1]
	if len(last) >= 3 {
		reply.Code = last[:3]
	}

	if reply.Code != expect {
		return reply, &ProtocolError{
			Step:     label,
			Expected: expect,
			Reply:    reply.String(),
		}
	}

	return reply, nil
}

// isTerminal reports whether line ends a reply: "250 text" or a bare "250".
func isTerminal(line string) bool {
	if len(line) == 3 {
		return true
	}
	return len(line) >= 4 && line[3] == ' '
}
