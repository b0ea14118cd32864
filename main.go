package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OliverSchlueter/contact-mailer/internal/config"
	"github.com/OliverSchlueter/contact-mailer/internal/contact"
	"github.com/OliverSchlueter/contact-mailer/internal/mailer"
	"github.com/OliverSchlueter/goutils/sloki"
)

func main() {
	configPath := flag.String("config", "", "optional YAML configuration file")
	flag.Parse()

	cfg, err := config.Get(*configPath)
	if err != nil {
		slog.Error("Could not load configuration", sloki.WrapError(err))
		os.Exit(1)
	}

	lokiService := sloki.NewService(sloki.Configuration{
		URL:          cfg.Logging.LokiURL,
		Service:      "contact-mailer",
		ConsoleLevel: cfg.SlogLevel(),
		LokiLevel:    slog.LevelInfo,
		EnableLoki:   cfg.Logging.LokiURL != "",
	})
	slog.SetDefault(slog.New(lokiService))

	if !cfg.MailConfigured() {
		slog.Warn("Mail credentials are not configured, contact requests will fail")
	}

	mux := http.NewServeMux()
	contact.New(&configuredSender{path: *configPath}).Register("/api", mux)

	srv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", sloki.WrapError(err))
			stop()
		}
	}()
	slog.Info("Started HTTP server", slog.String("addr", cfg.HTTP.Listen))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Could not shut down HTTP server", sloki.WrapError(err))
	}
	slog.Info("Stopped HTTP server")
}

// configuredSender resolves the configuration on every send so a fixed
// environment is picked up after Reset without a restart.
type configuredSender struct {
	path string
}

func (s *configuredSender) Send(ctx context.Context, msg mailer.ContactMessage) error {
	cfg, err := config.Get(s.path)
	if err != nil {
		return fmt.Errorf("%w: %v", mailer.ErrConfiguration, err)
	}

	m, err := newMailer(cfg)
	if err != nil {
		return err
	}

	return m.Send(ctx, msg)
}

func newMailer(cfg *config.Config) (*mailer.Mailer, error) {
	mc := mailer.Configuration{
		Host:           cfg.SMTP.Host,
		Port:           cfg.SMTP.Port,
		ServerName:     cfg.SMTP.ServerName,
		HeloName:       cfg.SMTP.HeloName,
		ConnectTimeout: cfg.SMTP.ConnectTimeout,
		IdleTimeout:    cfg.SMTP.IdleTimeout,
		Credentials: mailer.Credentials{
			FromAddress:  cfg.Mail.FromAddress,
			FromPassword: cfg.Mail.FromPassword,
			ToAddress:    cfg.Mail.ToAddress,
		},
	}

	if cfg.SMTP.InsecureSkipVerify {
		mc.TLSConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true,
		}
	}

	if cfg.DKIMEnabled() {
		signer, err := mailer.LoadDKIMKey(cfg.DKIM.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: could not load DKIM key: %v", mailer.ErrConfiguration, err)
		}
		mc.DKIM = &mailer.DKIMOptions{
			Domain:   cfg.DKIM.Domain,
			Selector: cfg.DKIM.Selector,
			Signer:   signer,
		}
	}

	return mailer.New(mc), nil
}
