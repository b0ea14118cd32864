package main

import (
	"crypto/tls"
	"flag"
	"log"
	"net"
	"strconv"

	"github.com/OliverSchlueter/contact-mailer/internal/config"
	"github.com/wneessen/go-mail"
)

func main() {
	configPath := flag.String("config", "", "optional YAML configuration file")
	to := flag.String("to", "owner@example.com", "recipient address")
	flag.Parse()

	cfg, err := config.Get(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %s", err)
	}

	host, portStr, err := net.SplitHostPort(cfg.DevRelay.Listen)
	if err != nil {
		log.Fatalf("invalid dev relay address %q: %s", cfg.DevRelay.Listen, err)
	}
	if host == "" {
		host = "localhost"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Fatalf("invalid dev relay port %q: %s", portStr, err)
	}

	username := cfg.DevRelay.Username
	if username == "" {
		username = "dev@" + cfg.DevRelay.Hostname
	}
	password := cfg.DevRelay.Password
	if password == "" {
		password = "devpass"
	}

	// First we create a mail message
	m := mail.NewMsg()
	if err := m.From(username); err != nil {
		log.Fatalf("failed to set From address: %s", err)
	}
	if err := m.To(*to); err != nil {
		log.Fatalf("failed to set To address: %s", err)
	}
	m.Subject("Dev relay check")
	m.SetBodyString(mail.TypeTextPlain, "Sent through go-mail.\n.This line starts with a dot.")

	// Secondly the mail client, implicit TLS against the self-signed relay
	c, err := mail.NewClient(
		host,
		mail.WithPort(port),
		mail.WithSSL(),
		mail.WithTLSConfig(&tls.Config{ServerName: cfg.DevRelay.Hostname, InsecureSkipVerify: true}),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(username),
		mail.WithPassword(password),
	)
	if err != nil {
		log.Fatalf("failed to create mail client: %s", err)
	}

	// Finally let's send out the mail
	if err := c.DialAndSend(m); err != nil {
		log.Fatalf("failed to send mail: %s", err)
	}
	log.Printf("sent message to %s via %s:%d", *to, host, port)
}
