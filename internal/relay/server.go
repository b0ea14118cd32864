// Package relay is a small SMTP submission server for local development.
// It speaks implicit TLS, accepts AUTH LOGIN and AUTH PLAIN from known
// accounts and stores every accepted message in an inbox.
package relay

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/OliverSchlueter/contact-mailer/internal/accounts"
	"github.com/OliverSchlueter/contact-mailer/internal/inbox"
	"github.com/OliverSchlueter/goutils/sloki"
)

type Server struct {
	hostname  string
	addr      string
	tlsConfig *tls.Config
	accounts  *accounts.Store
	inbox     *inbox.Store
	timeout   time.Duration
}

type Configuration struct {
	Hostname string
	Addr     string
	// TLSConfig enables implicit TLS on every connection when set.
	TLSConfig *tls.Config
	Accounts  *accounts.Store
	Inbox     *inbox.Store
	Timeout   time.Duration
}

func NewServer(config Configuration) *Server {
	if config.Hostname == "" {
		config.Hostname = "localhost"
	}
	if config.Addr == "" {
		config.Addr = ":2465"
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}

	return &Server{
		hostname:  config.Hostname,
		addr:      config.Addr,
		tlsConfig: config.TLSConfig,
		accounts:  config.Accounts,
		inbox:     config.Inbox,
		timeout:   config.Timeout,
	}
}

// ListenAndServe listens on the configured address until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var (
		listener net.Listener
		err      error
	)
	if s.tlsConfig != nil {
		listener, err = tls.Listen("tcp", s.addr, s.tlsConfig)
	} else {
		listener, err = net.Listen("tcp", s.addr)
	}
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	return s.Serve(ctx, listener)
}

// Serve accepts connections from listener until ctx is cancelled or the
// listener is closed.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Warn("Failed to accept connection", sloki.WrapError(err))
			continue
		}

		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	session := &Session{}
	session.RemoteAddr = conn.RemoteAddr().String()

	slog.Debug("New connection established", "remote_addr", session.RemoteAddr)

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	writeLine(w, fmt.Sprintf(StatusServiceReady, s.hostname))

	for {
		if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
			slog.Error("Failed to set connection deadline", sloki.WrapError(err))
			return
		}

		line, err := r.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("Failed to read from connection", sloki.WrapError(err))
			}
			return
		}

		line = strings.TrimRight(line, "\r\n")

		// message lines are only bounded by MaxMessageSize
		if session.Envelope.ReadingData {
			s.handleDataLine(session, w, line)
			continue
		}

		if len(line) > MaxLineLength {
			slog.Warn("Received line exceeds maximum length", "line_length", len(line))
			writeLine(w, StatusLineTooLong)
			continue
		}

		if session.AuthLogin.RequestedUsername || session.AuthLogin.RequestedPassword {
			s.handleAuthLoginStep(session, w, line)
			continue
		}

		slog.Debug("C: " + line)
		upper := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(upper, CmdEhlo.Prefix):
			s.handleEhlo(session, w, line)

		case strings.HasPrefix(upper, CmdHelo.Prefix):
			s.handleHelo(session, w, line)

		case strings.HasPrefix(upper, CmdAuthLogin.Prefix):
			s.handleAuthLogin(session, w, line)

		case strings.HasPrefix(upper, CmdAuthPlain.Prefix):
			s.handleAuthPlain(session, w, line)

		case strings.HasPrefix(upper, CmdMailFrom.Prefix):
			s.handleMailFrom(session, w, line)

		case strings.HasPrefix(upper, CmdRcptTo.Prefix):
			s.handleRcptTo(session, w, line)

		case upper == CmdData.Prefix:
			s.handleData(session, w)

		case upper == CmdRset.Prefix:
			session.Envelope.Reset()
			writeLine(w, StatusOK)

		case upper == CmdNoop.Prefix:
			writeLine(w, StatusOK)

		case upper == CmdQuit.Prefix:
			writeLine(w, fmt.Sprintf(StatusConnClosed, s.hostname))
			slog.Debug("Connection closed", "remote_addr", session.RemoteAddr)
			return

		default:
			writeLine(w, StatusBadCommand)
		}
	}
}

func (s *Server) handleEhlo(session *Session, w *bufio.Writer, line string) {
	clientHostname := strings.TrimSpace(line[len(CmdEhlo.Prefix):])
	session.HeloReceived = true
	session.Hostname = clientHostname
	session.Envelope.Reset()

	writeLine(w, fmt.Sprintf(StatusGreeting, s.hostname, clientHostname))
	writeLine(w, StatusAuthCapability)
	writeLine(w, Status8BitMIME)
}

func (s *Server) handleHelo(session *Session, w *bufio.Writer, line string) {
	clientHostname := strings.TrimSpace(line[len(CmdHelo.Prefix):])
	session.HeloReceived = true
	session.Hostname = clientHostname
	session.Envelope.Reset()

	writeLine(w, strings.Replace(fmt.Sprintf(StatusGreeting, s.hostname, clientHostname), "-", " ", 1))
}

func (s *Server) handleAuthLogin(session *Session, w *bufio.Writer, line string) {
	if !session.HeloReceived {
		slog.Warn(fmt.Sprintf("%s command received before %s", CmdAuthLogin.Name, CmdEhlo.Name))
		writeLine(w, fmt.Sprintf(StatusBadSequence, CmdEhlo.Name))
		return
	}

	// AUTH LOGIN may carry the username as initial response
	initial := strings.TrimSpace(line[len(CmdAuthLogin.Prefix):])
	if initial == "" {
		session.AuthLogin.RequestedUsername = true
		writeLine(w, StatusAuthUsername)
		return
	}

	session.AuthLogin.RequestedUsername = true
	s.handleAuthLoginStep(session, w, initial)
}

func (s *Server) handleAuthLoginStep(session *Session, w *bufio.Writer, line string) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(line))
	if err != nil {
		slog.Warn("Failed to decode base64 credentials", sloki.WrapError(err))
		session.AuthLogin = AuthLogin{}
		writeLine(w, StatusInvalidBase64)
		return
	}

	if session.AuthLogin.RequestedUsername {
		session.AuthLogin.Username = string(decoded)
		session.AuthLogin.RequestedUsername = false
		session.AuthLogin.RequestedPassword = true
		writeLine(w, StatusAuthPassword)
		return
	}

	session.AuthLogin.RequestedPassword = false
	s.authenticate(session, w, session.AuthLogin.Username, string(decoded))
}

func (s *Server) handleAuthPlain(session *Session, w *bufio.Writer, line string) {
	if !session.HeloReceived {
		slog.Warn(fmt.Sprintf("%s command received before %s", CmdAuthPlain.Name, CmdEhlo.Name))
		writeLine(w, fmt.Sprintf(StatusBadSequence, CmdEhlo.Name))
		return
	}

	credentials := strings.TrimSpace(line[len(CmdAuthPlain.Prefix):])

	decoded, err := base64.StdEncoding.DecodeString(credentials)
	if err != nil {
		slog.Warn("Failed to decode base64 credentials", sloki.WrapError(err))
		writeLine(w, StatusInvalidBase64)
		return
	}

	parts := strings.SplitN(string(decoded), "\x00", 3)
	if len(parts) != 3 {
		slog.Warn("Invalid AUTH PLAIN credentials format")
		writeLine(w, StatusInvalidBase64)
		return
	}

	session.AuthLogin.Username = parts[1]
	s.authenticate(session, w, parts[1], parts[2])
}

func (s *Server) authenticate(session *Session, w *bufio.Writer, username, password string) {
	if _, err := s.accounts.Authenticate(username, password); err != nil {
		if !errors.Is(err, accounts.ErrInvalidCredentials) {
			slog.Error("Failed to authenticate account", sloki.WrapError(err))
		}
		slog.Warn("Authentication failed", "remote_addr", session.RemoteAddr, "username", username)
		writeLine(w, StatusAuthenticationFailed)
		return
	}

	session.AuthLogin.IsAuthenticated = true
	writeLine(w, StatusAuthSuccess)
}

func (s *Server) handleMailFrom(session *Session, w *bufio.Writer, line string) {
	if !session.HeloReceived {
		slog.Warn(fmt.Sprintf("%s command received before %s", CmdMailFrom.Name, CmdEhlo.Name))
		writeLine(w, fmt.Sprintf(StatusBadSequence, CmdEhlo.Name))
		return
	}

	if !session.AuthLogin.IsAuthenticated {
		writeLine(w, StatusAuthRequired)
		return
	}

	addr, ok := parsePath(line[len(CmdMailFrom.Prefix):])
	if !ok {
		slog.Warn(fmt.Sprintf("Invalid MAIL FROM address: %s", line))
		writeLine(w, StatusInvalidAddress)
		return
	}

	session.Envelope.Reset()
	session.Envelope.From = addr

	writeLine(w, StatusOK)
}

func (s *Server) handleRcptTo(session *Session, w *bufio.Writer, line string) {
	if session.Envelope.From == "" {
		writeLine(w, fmt.Sprintf(StatusBadSequence, CmdMailFrom.Name))
		return
	}

	if len(session.Envelope.To) >= MaxRecipients {
		slog.Warn(fmt.Sprintf("Maximum recipients exceeded for session from %s", session.RemoteAddr))
		writeLine(w, StatusTooManyRecipients)
		return
	}

	recipient, ok := parsePath(line[len(CmdRcptTo.Prefix):])
	if !ok || recipient == "" {
		slog.Warn(fmt.Sprintf("Invalid RCPT TO address: %s", line))
		writeLine(w, StatusInvalidAddress)
		return
	}

	session.Envelope.To = append(session.Envelope.To, recipient)
	writeLine(w, StatusOK)
}

func (s *Server) handleData(session *Session, w *bufio.Writer) {
	if len(session.Envelope.To) == 0 {
		slog.Warn(fmt.Sprintf("%s command received without any recipients", CmdData.Name))
		writeLine(w, fmt.Sprintf(StatusBadSequence, CmdRcptTo.Name))
		return
	}

	session.Envelope.ReadingData = true
	writeLine(w, StatusStartMailData)
}

func (s *Server) handleDataLine(session *Session, w *bufio.Writer, line string) {
	env := &session.Envelope

	if line != "." {
		// remove dot-stuffing
		if strings.HasPrefix(line, ".") {
			line = line[1:]
		}

		env.DataSize += len(line) + 2
		if env.DataSize <= MaxMessageSize {
			env.DataBuffer = append(env.DataBuffer, line)
		}
		return
	}

	defer env.Reset()

	if env.DataSize > MaxMessageSize {
		slog.Warn("Message exceeds maximum size", "size", env.DataSize, "remote_addr", session.RemoteAddr)
		writeLine(w, StatusMessageTooLarge)
		return
	}

	m, err := s.inbox.Deliver(env.From, env.To, env.Data())
	if err != nil {
		slog.Error("Failed to store incoming message", sloki.WrapError(err))
		writeLine(w, StatusLocalError)
		return
	}

	slog.Info("Message accepted", "id", m.ID, "from", m.From, "to", m.To, "size", m.Size)
	writeLine(w, fmt.Sprintf(StatusQueued, m.ID))
}

// parsePath extracts the address of "<addr>" followed by optional
// parameters. The null path "<>" is valid and yields an empty address.
func parsePath(arg string) (string, bool) {
	arg = strings.TrimSpace(arg)
	if !strings.HasPrefix(arg, "<") {
		return "", false
	}

	end := strings.Index(arg, ">")
	if end < 0 {
		return "", false
	}

	addr := arg[1:end]
	if addr != "" && strings.Count(addr, "@") != 1 {
		return "", false
	}
	return addr, true
}

func writeLine(w *bufio.Writer, line string) {
	if _, err := w.WriteString(line + "\r\n"); err != nil {
		slog.Error("Failed to write to connection", sloki.WrapError(err))
		return
	}
	if err := w.Flush(); err != nil {
		slog.Error("Failed to flush writer", sloki.WrapError(err))
		return
	}

	slog.Debug("S: " + line)
}
