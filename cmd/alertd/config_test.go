package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.HTTPAddress != ":8080" {
		t.Errorf("http_address = %q", cfg.Server.HTTPAddress)
	}
	if cfg.Server.MetricsAddress != ":9090" {
		t.Errorf("metrics_address = %q", cfg.Server.MetricsAddress)
	}
	if !cfg.Alerting.Enabled {
		t.Error("alerting should be enabled by default")
	}

	settings := cfg.DetectorSettings()
	if settings.FailuresInWindow != 5 {
		t.Errorf("failures_in_window = %d", settings.FailuresInWindow)
	}
	if settings.TimeWindow != 10*time.Minute {
		t.Errorf("time_window = %v", settings.TimeWindow)
	}

	dc := cfg.DispatchConfig()
	if dc.DebounceWindow != 5*time.Minute {
		t.Errorf("debounce_window = %v", dc.DebounceWindow)
	}
	if dc.Retry.MaxAttempts != 3 {
		t.Errorf("max_attempts = %d", dc.Retry.MaxAttempts)
	}
	if len(dc.Retry.Delays) != 2 || dc.Retry.Delays[0] != time.Second || dc.Retry.Delays[1] != 5*time.Second {
		t.Errorf("retry delays = %v", dc.Retry.Delays)
	}
}

func TestLoadConfig(t *testing.T) {
	content := `
server:
  http_address: ":9000"
detector:
  failures_in_window: 3
  time_window: "2m"
alerting:
  from: "alerts@example.com"
  recipients:
    - "oncall@example.com"
  debounce_window: "30s"
  max_attempts: 2
  retry_delays: ["500ms"]
smtp:
  host: "mail.example.com"
  port: 465
  username: "alerts"
`
	path := writeTempConfig(t, content)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.HTTPAddress != ":9000" {
		t.Errorf("http_address = %q", cfg.Server.HTTPAddress)
	}
	if !cfg.Alerting.Enabled {
		t.Error("alerting should default to enabled when key is absent")
	}

	settings := cfg.DetectorSettings()
	if settings.FailuresInWindow != 3 || settings.TimeWindow != 2*time.Minute {
		t.Errorf("detector settings = %+v", settings)
	}

	dc := cfg.DispatchConfig()
	if dc.From != "alerts@example.com" {
		t.Errorf("from = %q", dc.From)
	}
	if dc.DebounceWindow != 30*time.Second {
		t.Errorf("debounce_window = %v", dc.DebounceWindow)
	}
	if len(dc.Retry.Delays) != 1 || dc.Retry.Delays[0] != 500*time.Millisecond {
		t.Errorf("retry delays = %v", dc.Retry.Delays)
	}

	smtp := cfg.SMTPSettings()
	if smtp.Host != "mail.example.com" || smtp.Port != 465 {
		t.Errorf("smtp = %+v", smtp)
	}
}

func TestLoadConfigExplicitDisable(t *testing.T) {
	content := `
alerting:
  enabled: false
`
	path := writeTempConfig(t, content)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Alerting.Enabled {
		t.Error("explicit enabled: false should stick")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero threshold", func(c *Config) { c.Detector.FailuresInWindow = -1 }},
		{"bad time window", func(c *Config) { c.Detector.TimeWindow = "never" }},
		{"negative window", func(c *Config) { c.Detector.TimeWindow = "-5m" }},
		{"bad debounce", func(c *Config) { c.Alerting.DebounceWindow = "sometimes" }},
		{"bad retry delay", func(c *Config) { c.Alerting.RetryDelays = []string{"soon", "1s"} }},
		{"too few delays", func(c *Config) { c.Alerting.MaxAttempts = 5 }},
		{"bad sender", func(c *Config) { c.Alerting.From = "not an address" }},
		{"bad recipient", func(c *Config) { c.Alerting.Recipients = []string{"nope"} }},
		{"bad smtp port", func(c *Config) { c.SMTP.Port = 70000 }},
		{"tls without cert", func(c *Config) { c.Server.TLS.Enabled = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSMTPPasswordFromEnv(t *testing.T) {
	t.Setenv("BLAZEALERT_SMTP_PASSWORD", "s3cret")

	cfg := DefaultConfig()
	if got := cfg.SMTPSettings().Password; got != "s3cret" {
		t.Errorf("password = %q, want env value", got)
	}

	cfg.SMTP.Password = "from-file"
	if got := cfg.SMTPSettings().Password; got != "from-file" {
		t.Errorf("password = %q, file value should win", got)
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alertd.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
