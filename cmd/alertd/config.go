// Package main provides the BlazeAlert daemon CLI.
package main

import (
	"fmt"
	"net/mail"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/blazealert/internal/detector"
	"github.com/good-yellow-bee/blazealert/internal/dispatch"
	"github.com/good-yellow-bee/blazealert/internal/mailer"
)

// Config represents the daemon configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Detector DetectorConfig `yaml:"detector"`
	Alerting AlertingConfig `yaml:"alerting"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Verbose  bool           `yaml:"-"` // set via CLI flag
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	HTTPAddress    string    `yaml:"http_address"`     // API listen address (default: :8080)
	MetricsAddress string    `yaml:"metrics_address"`  // Prometheus listen address (default: :9090)
	RateLimitPerIP int       `yaml:"rate_limit_per_ip"` // requests per minute per client IP
	TLS            TLSConfig `yaml:"tls"`
}

// TLSConfig contains TLS settings for the API server.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// DetectorConfig contains failure detection thresholds.
type DetectorConfig struct {
	FailuresInWindow int    `yaml:"failures_in_window"` // escalation threshold (default: 5)
	TimeWindow       string `yaml:"time_window"`        // sliding window, e.g. "10m" (default: 10m)

	timeWindow time.Duration
}

// AlertingConfig contains notification settings.
type AlertingConfig struct {
	Enabled        bool            `yaml:"enabled"`
	From           string          `yaml:"from"`
	Recipients     []string        `yaml:"recipients"`
	DebounceWindow string          `yaml:"debounce_window"` // e.g. "5m" (default: 5m)
	MaxAttempts    int             `yaml:"max_attempts"`    // delivery attempts per notification (default: 3)
	RetryDelays    []string        `yaml:"retry_delays"`    // e.g. ["1s", "5s"]
	RateLimit      RateLimitConfig `yaml:"rate_limit"`

	debounceWindow time.Duration
	retryDelays    []time.Duration
}

// RateLimitConfig caps outbound notifications.
type RateLimitConfig struct {
	Enabled      bool   `yaml:"enabled"`
	MaxPerWindow int    `yaml:"max_per_window"` // default: 10
	Window       string `yaml:"window"`         // e.g. "1m" (default: 1m)

	window time.Duration
}

// SMTPConfig contains mail relay settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`     // 465 uses implicit TLS, others STARTTLS
	Username string `yaml:"username"`
	Password string `yaml:"password"` // prefer BLAZEALERT_SMTP_PASSWORD
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Config{
		// Absent yaml keys keep alerting on; an explicit
		// "enabled: false" turns it off.
		Alerting: AlertingConfig{
			Enabled:   true,
			RateLimit: RateLimitConfig{Enabled: true},
		},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{
		Alerting: AlertingConfig{
			Enabled:   true,
			RateLimit: RateLimitConfig{Enabled: true},
		},
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		// Defaults are static and always valid.
		panic(err)
	}
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.HTTPAddress == "" {
		c.Server.HTTPAddress = ":8080"
	}
	if c.Server.MetricsAddress == "" {
		c.Server.MetricsAddress = ":9090"
	}
	if c.Server.RateLimitPerIP == 0 {
		c.Server.RateLimitPerIP = 300
	}
	if c.Detector.FailuresInWindow == 0 {
		c.Detector.FailuresInWindow = 5
	}
	if c.Detector.TimeWindow == "" {
		c.Detector.TimeWindow = "10m"
	}
	if c.Alerting.DebounceWindow == "" {
		c.Alerting.DebounceWindow = "5m"
	}
	if c.Alerting.MaxAttempts == 0 {
		c.Alerting.MaxAttempts = 3
	}
	if len(c.Alerting.RetryDelays) == 0 {
		c.Alerting.RetryDelays = []string{"1s", "5s"}
	}
	if c.Alerting.RateLimit.MaxPerWindow == 0 {
		c.Alerting.RateLimit.MaxPerWindow = 10
	}
	if c.Alerting.RateLimit.Window == "" {
		c.Alerting.RateLimit.Window = "1m"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
}

// Validate checks the configuration and parses duration fields.
func (c *Config) Validate() error {
	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" {
			return fmt.Errorf("server.tls.cert_file is required when TLS is enabled")
		}
		if c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls.key_file is required when TLS is enabled")
		}
	}

	if c.Detector.FailuresInWindow < 1 {
		return fmt.Errorf("detector.failures_in_window must be at least 1")
	}
	window, err := time.ParseDuration(c.Detector.TimeWindow)
	if err != nil {
		return fmt.Errorf("invalid detector.time_window %q: %w", c.Detector.TimeWindow, err)
	}
	if window <= 0 {
		return fmt.Errorf("detector.time_window must be positive")
	}
	c.Detector.timeWindow = window

	debounce, err := time.ParseDuration(c.Alerting.DebounceWindow)
	if err != nil {
		return fmt.Errorf("invalid alerting.debounce_window %q: %w", c.Alerting.DebounceWindow, err)
	}
	if debounce <= 0 {
		return fmt.Errorf("alerting.debounce_window must be positive")
	}
	c.Alerting.debounceWindow = debounce

	if c.Alerting.MaxAttempts < 1 {
		return fmt.Errorf("alerting.max_attempts must be at least 1")
	}
	if len(c.Alerting.RetryDelays) < c.Alerting.MaxAttempts-1 {
		return fmt.Errorf("alerting.retry_delays needs at least %d entries for %d attempts",
			c.Alerting.MaxAttempts-1, c.Alerting.MaxAttempts)
	}
	c.Alerting.retryDelays = c.Alerting.retryDelays[:0]
	for _, s := range c.Alerting.RetryDelays {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid alerting.retry_delays entry %q: %w", s, err)
		}
		if d < 0 {
			return fmt.Errorf("alerting.retry_delays entry %q must not be negative", s)
		}
		c.Alerting.retryDelays = append(c.Alerting.retryDelays, d)
	}

	if c.Alerting.From != "" {
		if _, err := mail.ParseAddress(c.Alerting.From); err != nil {
			return fmt.Errorf("invalid alerting.from %q: %w", c.Alerting.From, err)
		}
	}
	for _, addr := range c.Alerting.Recipients {
		if _, err := mail.ParseAddress(addr); err != nil {
			return fmt.Errorf("invalid alerting.recipients entry %q: %w", addr, err)
		}
	}

	rlWindow, err := time.ParseDuration(c.Alerting.RateLimit.Window)
	if err != nil {
		return fmt.Errorf("invalid alerting.rate_limit.window %q: %w", c.Alerting.RateLimit.Window, err)
	}
	if rlWindow <= 0 {
		return fmt.Errorf("alerting.rate_limit.window must be positive")
	}
	c.Alerting.RateLimit.window = rlWindow

	if c.SMTP.Port < 1 || c.SMTP.Port > 65535 {
		return fmt.Errorf("smtp.port must be between 1 and 65535")
	}

	return nil
}

// DetectorSettings converts the config into detector settings.
func (c *Config) DetectorSettings() detector.Settings {
	return detector.Settings{
		FailuresInWindow: c.Detector.FailuresInWindow,
		TimeWindow:       c.Detector.timeWindow,
	}
}

// DispatchConfig converts the config into dispatcher settings.
func (c *Config) DispatchConfig() dispatch.Config {
	return dispatch.Config{
		Enabled:        c.Alerting.Enabled,
		From:           c.Alerting.From,
		Recipients:     c.Alerting.Recipients,
		DebounceWindow: c.Alerting.debounceWindow,
		Retry: dispatch.RetryPolicy{
			MaxAttempts: c.Alerting.MaxAttempts,
			Delays:      c.Alerting.retryDelays,
		},
		RateLimit: dispatch.RateLimitConfig{
			Enabled:      c.Alerting.RateLimit.Enabled,
			MaxPerWindow: c.Alerting.RateLimit.MaxPerWindow,
			Window:       c.Alerting.RateLimit.window,
		},
	}
}

// SMTPSettings converts the config into transport settings. The
// password falls back to the BLAZEALERT_SMTP_PASSWORD environment
// variable when not set in the file.
func (c *Config) SMTPSettings() mailer.SMTPConfig {
	password := c.SMTP.Password
	if password == "" {
		password = os.Getenv("BLAZEALERT_SMTP_PASSWORD")
	}
	return mailer.SMTPConfig{
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: password,
	}
}
