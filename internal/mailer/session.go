package mailer

import (
	"context"
	"fmt"
	"log/slog"
)

type State int

const (
	StateConnected State = iota
	StateGreeted
	StateHelloed
	StateAwaitingUser
	StateAwaitingPass
	StateAuthenticated
	StateSenderSet
	StateRecipientSet
	StateDataReady
	StateSent
	StateClosed
)

var stateNames = map[State]string{
	StateConnected:     "connected",
	StateGreeted:       "greeted",
	StateHelloed:       "helloed",
	StateAwaitingUser:  "awaiting-user",
	StateAwaitingPass:  "awaiting-pass",
	StateAuthenticated: "authenticated",
	StateSenderSet:     "sender-set",
	StateRecipientSet:  "recipient-set",
	StateDataReady:     "data-ready",
	StateSent:          "sent",
	StateClosed:        "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// step moves the session one state forward. A step without a line only
// reads a reply, a step with data writes the raw message instead of a line.
type step struct {
	to   State
	cmd  command
	data []byte
}

type session struct {
	engine
	state State
}

func (s *session) advance(ctx context.Context, st step) error {
	if st.to != s.state+1 {
		return fmt.Errorf("smtp %s: cannot move from %s to %s", st.cmd.Label, s.state, st.to)
	}

	var err error
	switch {
	case st.data != nil:
		slog.Debug("C: <message data>", slog.Int("bytes", len(st.data)))
		if err = s.t.write(st.data); err != nil {
			err = fmt.Errorf("%s: %w", st.cmd.Label, err)
			break
		}
		_, err = s.readReply(ctx, st.cmd.Expect, st.cmd.Label)
	case st.cmd.Line == "":
		_, err = s.readReply(ctx, st.cmd.Expect, st.cmd.Label)
	default:
		_, err = s.send(ctx, st.cmd)
	}
	if err != nil {
		return err
	}

	slog.Debug("SMTP state advanced", slog.String("from", s.state.String()), slog.String("to", st.to.String()))
	s.state = st.to
	return nil
}
