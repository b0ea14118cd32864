// Package config loads the process configuration from environment variables
// with an optional YAML file underneath.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/OliverSchlueter/goutils/sloki"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Mail     MailConfig     `yaml:"mail"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	DKIM     DKIMConfig     `yaml:"dkim"`
	HTTP     HTTPConfig     `yaml:"http"`
	DevRelay DevRelayConfig `yaml:"dev_relay"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MailConfig holds the relay account and the address contact mails go to.
type MailConfig struct {
	FromAddress  string `yaml:"from_address"`
	FromPassword string `yaml:"from_password"`
	ToAddress    string `yaml:"to_address"`
}

// SMTPConfig describes the relay the contact mails are submitted to.
type SMTPConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	ServerName         string        `yaml:"server_name"`
	HeloName           string        `yaml:"helo_name"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	IdleTimeout        time.Duration `yaml:"idle_timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

type DKIMConfig struct {
	KeyFile  string `yaml:"key_file"`
	Selector string `yaml:"selector"`
	Domain   string `yaml:"domain"`
}

type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// DevRelayConfig configures the local development relay.
type DevRelayConfig struct {
	Listen   string `yaml:"listen"`
	Hostname string `yaml:"hostname"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"`
	LokiURL string `yaml:"loki_url"`
}

// Load reads the configuration from environment variables on top of the
// defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile uses the YAML file at path as the base layer. Environment
// variables still take precedence.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var (
	mu     sync.Mutex
	loaded *Config
)

// Get returns the process wide configuration, loading it on first use.
// A failed load is not remembered, the next call tries again.
func Get(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	if loaded != nil {
		return loaded, nil
	}

	var (
		cfg *Config
		err error
	)
	if path != "" {
		cfg, err = LoadFromFile(path)
	} else {
		cfg, err = Load()
	}
	if err != nil {
		slog.Warn("Failed to load configuration", slog.String("path", path), sloki.WrapError(err))
		return nil, err
	}

	loaded = cfg
	return loaded, nil
}

// Reset drops the cached configuration.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	loaded = nil
}

// MailConfigured reports whether all three mail settings are present.
func (c *Config) MailConfigured() bool {
	return c.Mail.FromAddress != "" &&
		c.Mail.FromPassword != "" &&
		c.Mail.ToAddress != ""
}

// DKIMEnabled reports whether outgoing mails should be signed.
func (c *Config) DKIMEnabled() bool {
	return c.DKIM.KeyFile != ""
}

// SlogLevel maps the configured level name onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.Logging.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) applyDefaults() {
	c.SMTP.Host = "smtp.gmail.com"
	c.SMTP.Port = 465
	c.SMTP.HeloName = "localhost"
	c.SMTP.ConnectTimeout = 10 * time.Second
	c.SMTP.IdleTimeout = 30 * time.Second
	c.DKIM.Selector = "mail"
	c.HTTP.Listen = ":8080"
	c.DevRelay.Listen = ":2465"
	c.DevRelay.Hostname = "localhost"
	c.Logging.Level = "info"
}

// applyEnvVars overrides values with non-empty environment variables.
func (c *Config) applyEnvVars() error {
	setString(&c.Mail.FromAddress, "MAIL_FROM_ADDRESS")
	setString(&c.Mail.FromPassword, "MAIL_FROM_PASSWORD")
	setString(&c.Mail.ToAddress, "MAIL_TO_ADDRESS")

	setString(&c.SMTP.Host, "SMTP_HOST")
	setString(&c.SMTP.ServerName, "SMTP_SERVER_NAME")
	setString(&c.SMTP.HeloName, "SMTP_HELO_NAME")
	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid SMTP_PORT %q", v)
		}
		c.SMTP.Port = port
	}
	if err := setDuration(&c.SMTP.ConnectTimeout, "SMTP_CONNECT_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&c.SMTP.IdleTimeout, "SMTP_IDLE_TIMEOUT"); err != nil {
		return err
	}
	if v := os.Getenv("SMTP_INSECURE_SKIP_VERIFY"); v != "" {
		skip, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SMTP_INSECURE_SKIP_VERIFY %q: %w", v, err)
		}
		c.SMTP.InsecureSkipVerify = skip
	}

	setString(&c.DKIM.KeyFile, "DKIM_KEY_FILE")
	setString(&c.DKIM.Selector, "DKIM_SELECTOR")
	setString(&c.DKIM.Domain, "DKIM_DOMAIN")

	setString(&c.HTTP.Listen, "HTTP_LISTEN")

	setString(&c.DevRelay.Listen, "DEV_RELAY_LISTEN")
	setString(&c.DevRelay.Hostname, "DEV_RELAY_HOSTNAME")
	setString(&c.DevRelay.Username, "DEV_RELAY_USERNAME")
	setString(&c.DevRelay.Password, "DEV_RELAY_PASSWORD")
	setString(&c.DevRelay.CertFile, "DEV_RELAY_CERT_FILE")
	setString(&c.DevRelay.KeyFile, "DEV_RELAY_KEY_FILE")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	setString(&c.Logging.LokiURL, "LOKI_URL")

	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, env string) error {
	v := os.Getenv(env)
	if v == "" {
		return nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", env, v, err)
	}
	*dst = d
	return nil
}
