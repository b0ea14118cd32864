package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/OliverSchlueter/contact-mailer/internal/accounts"
	accountsfake "github.com/OliverSchlueter/contact-mailer/internal/accounts/database/fake"
	"github.com/OliverSchlueter/contact-mailer/internal/config"
	"github.com/OliverSchlueter/contact-mailer/internal/inbox"
	inboxfake "github.com/OliverSchlueter/contact-mailer/internal/inbox/database/fake"
	"github.com/OliverSchlueter/contact-mailer/internal/relay"
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
		Service:      "contact-mailer-devrelay",
		ConsoleLevel: slog.LevelDebug,
		LokiLevel:    slog.LevelInfo,
		EnableLoki:   cfg.Logging.LokiURL != "",
	})
	slog.SetDefault(slog.New(lokiService))

	hostname := cfg.DevRelay.Hostname

	// accounts
	as := accounts.NewStore(accounts.Configuration{
		DB: accountsfake.NewDB(),
	})

	username := cfg.DevRelay.Username
	if username == "" {
		username = "dev@" + hostname
	}
	password := cfg.DevRelay.Password
	if password == "" {
		password = "devpass"
	}
	if err := as.Create(accounts.Account{
		Name:     username,
		Password: password,
		Address:  username,
	}); err != nil {
		slog.Error("Could not create relay account", sloki.WrapError(err))
		os.Exit(1)
	}

	// inbox
	is := inbox.NewStore(inbox.Configuration{
		DB: inboxfake.NewDB(),
	})

	tlsConfig, err := relay.LoadOrGenerateTLS(cfg.DevRelay.CertFile, cfg.DevRelay.KeyFile, hostname)
	if err != nil {
		slog.Error("Could not set up TLS", sloki.WrapError(err))
		os.Exit(1)
	}

	srv := relay.NewServer(relay.Configuration{
		Hostname:  hostname,
		Addr:      cfg.DevRelay.Listen,
		TLSConfig: tlsConfig,
		Accounts:  as,
		Inbox:     is,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting dev relay",
		slog.String("addr", cfg.DevRelay.Listen),
		slog.String("username", username),
	)
	if err := srv.ListenAndServe(ctx); err != nil {
		slog.Error("Dev relay stopped", sloki.WrapError(err))
		os.Exit(1)
	}

	messages, _ := is.List()
	slog.Info("Dev relay stopped", slog.Int("messages", len(messages)))
}
