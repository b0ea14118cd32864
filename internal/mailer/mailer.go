// Package mailer delivers contact form submissions to a fixed mail relay
// over SMTP with implicit TLS and AUTH LOGIN.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/OliverSchlueter/goutils/sloki"
)

const (
	DefaultHost           = "smtp.gmail.com"
	DefaultPort           = 465
	DefaultConnectTimeout = 10 * time.Second
	DefaultIdleTimeout    = 30 * time.Second
)

type Configuration struct {
	Host       string
	Port       int
	ServerName string
	HeloName   string

	ConnectTimeout time.Duration
	IdleTimeout    time.Duration

	Credentials Credentials

	// TLSConfig is cloned for every connection, ServerName is filled in
	// when empty.
	TLSConfig *tls.Config
	// Dialer replaces the TLS dialer, mostly useful in tests.
	Dialer Dialer
	DKIM   *DKIMOptions
	Now    func() time.Time
}

type Mailer struct {
	host           string
	port           int
	serverName     string
	heloName       string
	connectTimeout time.Duration
	idleTimeout    time.Duration
	credentials    Credentials
	tlsConfig      *tls.Config
	dialer         Dialer
	dkim           *DKIMOptions
	now            func() time.Time
}

func New(config Configuration) *Mailer {
	if config.Host == "" {
		config.Host = DefaultHost
	}
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.ServerName == "" {
		config.ServerName = config.Host
	}
	if config.HeloName == "" {
		config.HeloName = "localhost"
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Mailer{
		host:           config.Host,
		port:           config.Port,
		serverName:     config.ServerName,
		heloName:       config.HeloName,
		connectTimeout: config.ConnectTimeout,
		idleTimeout:    config.IdleTimeout,
		credentials:    config.Credentials,
		tlsConfig:      config.TLSConfig,
		dialer:         config.Dialer,
		dkim:           config.DKIM,
		now:            config.Now,
	}
}

// Send delivers msg to the configured recipient. It returns nil only after
// the relay acknowledged QUIT. The connection is closed on every path.
func (m *Mailer) Send(ctx context.Context, msg ContactMessage) error {
	if err := m.checkCredentials(); err != nil {
		return err
	}
	creds := m.credentials

	payload := BuildPayload(msg, creds, m.now())
	if m.dkim != nil {
		opts := *m.dkim
		if opts.Domain == "" {
			opts.Domain = domainOf(creds.FromAddress)
		}
		signed, err := signPayload(payload, &opts)
		if err != nil {
			return err
		}
		payload = signed
	}

	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))
	t, err := dial(ctx, m.tlsDialer(), addr, m.connectTimeout, m.idleTimeout)
	if err != nil {
		return err
	}
	defer t.close()

	s := &session{
		engine: engine{t: t},
		state:  StateConnected,
	}

	for _, st := range m.steps(creds, Frame(payload)) {
		if err := s.advance(ctx, st); err != nil {
			slog.Warn("SMTP session aborted",
				slog.String("addr", addr),
				slog.String("state", s.state.String()),
				sloki.WrapError(err),
			)
			return err
		}
	}

	slog.Info("Contact email sent", slog.String("to", creds.ToAddress), slog.String("relay", addr))
	return nil
}

func (m *Mailer) checkCredentials() error {
	switch {
	case m.credentials.FromAddress == "":
		return fmt.Errorf("%w: sender address is missing", ErrConfiguration)
	case m.credentials.FromPassword == "":
		return fmt.Errorf("%w: sender password is missing", ErrConfiguration)
	case m.credentials.ToAddress == "":
		return fmt.Errorf("%w: recipient address is missing", ErrConfiguration)
	}
	return nil
}

func (m *Mailer) tlsDialer() Dialer {
	if m.dialer != nil {
		return m.dialer
	}

	var cfg *tls.Config
	if m.tlsConfig != nil {
		cfg = m.tlsConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = m.serverName
	}

	return &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: m.connectTimeout},
		Config:    cfg,
	}
}

func (m *Mailer) steps(creds Credentials, data []byte) []step {
	return []step{
		{to: StateGreeted, cmd: command{Label: "greeting", Expect: "220"}},
		{to: StateHelloed, cmd: command{Label: "EHLO", Line: "EHLO " + m.heloName, Expect: "250"}},
		{to: StateAwaitingUser, cmd: command{Label: "AUTH LOGIN", Line: "AUTH LOGIN", Expect: "334"}},
		{to: StateAwaitingPass, cmd: command{Label: "AUTH LOGIN username", Line: EncodeCredential(creds.FromAddress), Expect: "334", Secret: true}},
		{to: StateAuthenticated, cmd: command{Label: "AUTH LOGIN password", Line: EncodeCredential(creds.FromPassword), Expect: "235", Secret: true}},
		{to: StateSenderSet, cmd: command{Label: "MAIL FROM", Line: "MAIL FROM:<" + SanitizeAddress(creds.FromAddress) + ">", Expect: "250"}},
		{to: StateRecipientSet, cmd: command{Label: "RCPT TO", Line: "RCPT TO:<" + SanitizeAddress(creds.ToAddress) + ">", Expect: "250"}},
		{to: StateDataReady, cmd: command{Label: "DATA", Line: "DATA", Expect: "354"}},
		{to: StateSent, cmd: command{Label: "message data", Expect: "250"}, data: data},
		{to: StateClosed, cmd: command{Label: "QUIT", Line: "QUIT", Expect: "221"}},
	}
}
