package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecrets = `
admin:
  secret: "admin-secret-0123456789abcdef"
signed_url:
  secret: "signed-url-secret-0123456789abcdef!!"
`

func writeConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
}

func TestLoad_Defaults(t *testing.T) {
	writeConfig(t, testSecrets)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Listen != ":8080" {
		t.Errorf("Server.Listen = %q, want :8080", cfg.Server.Listen)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("Storage.Type = %q, want memory", cfg.Storage.Type)
	}
	if cfg.RateLimit.ReportSend.Max != 10 || cfg.RateLimit.ReportSend.Window.Std() != time.Hour {
		t.Errorf("ReportSend limit = %+v, want 10/hour", cfg.RateLimit.ReportSend)
	}
	if cfg.RateLimit.CSVUpload.Max != 20 {
		t.Errorf("CSVUpload.Max = %d, want 20", cfg.RateLimit.CSVUpload.Max)
	}
	if cfg.SignedURL.DefaultTTL.Std() != 15*time.Minute {
		t.Errorf("SignedURL.DefaultTTL = %v, want 15m", cfg.SignedURL.DefaultTTL)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	writeConfig(t, testSecrets+`
server:
  listen: ":9999"
storage:
  type: redis
  redis:
    address: "redis.internal:6379"
rate_limit:
  report_send:
    max: 5
    window: 30m
  csv_upload:
    max: 20
    window: 1h
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Listen != ":9999" {
		t.Errorf("Server.Listen = %q, want :9999", cfg.Server.Listen)
	}
	if cfg.Storage.Type != "redis" || cfg.Storage.Redis.Address != "redis.internal:6379" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.RateLimit.ReportSend.Max != 5 || cfg.RateLimit.ReportSend.Window.Std() != 30*time.Minute {
		t.Errorf("ReportSend limit = %+v, want 5/30m", cfg.RateLimit.ReportSend)
	}
}

func TestLoad_SecretsFromEnv(t *testing.T) {
	writeConfig(t, "server:\n  listen: \":8080\"\n")
	t.Setenv("ADMIN_SECRET", "env-admin-secret-0123456789")
	t.Setenv("SIGNED_URL_SECRET", "env-signed-url-secret-0123456789abcd")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Admin.Secret != "env-admin-secret-0123456789" {
		t.Errorf("Admin.Secret not taken from env")
	}
	if cfg.SignedURL.Secret != "env-signed-url-secret-0123456789abcd" {
		t.Errorf("SignedURL.Secret not taken from env")
	}
}

func TestLoad_MissingSecretsRejected(t *testing.T) {
	writeConfig(t, "server:\n  listen: \":8080\"\n")

	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded without secrets")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := DefaultConfig()
		cfg.Admin.Secret = "admin-secret-0123456789abcdef"
		cfg.SignedURL.Secret = "signed-url-secret-0123456789abcdef!!"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"short admin secret", func(c *Config) { c.Admin.Secret = "short" }, "invalid configuration"},
		{"bad storage type", func(c *Config) { c.Storage.Type = "dynamo" }, "invalid configuration"},
		{"redis without address", func(c *Config) {
			c.Storage.Type = "redis"
			c.Storage.Redis.Address = ""
		}, "storage.redis.address"},
		{"s3 without bucket", func(c *Config) { c.Artifacts.Type = "s3" }, "artifacts.s3.bucket"},
		{"zero rate limit", func(c *Config) { c.RateLimit.ReportSend.Max = 0 }, "invalid configuration"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "invalid configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate failed: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestIdempotencyTTL(t *testing.T) {
	cfg := DefaultConfig()

	// Derived: twice the largest rate window.
	if got := cfg.IdempotencyTTL(); got != 2*time.Hour {
		t.Errorf("derived TTL = %v, want 2h", got)
	}

	cfg.RateLimit.CSVUpload.Window = Duration(3 * time.Hour)
	if got := cfg.IdempotencyTTL(); got != 6*time.Hour {
		t.Errorf("derived TTL = %v, want 6h", got)
	}

	cfg.Idempotency.TTL = Duration(45 * time.Minute)
	if got := cfg.IdempotencyTTL(); got != 45*time.Minute {
		t.Errorf("explicit TTL = %v, want 45m", got)
	}
}

func TestSanitizeConfigPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"config.yaml", "config.yaml"},
		{"./config.yaml", "config.yaml"},
		{"../config.yaml", "config.yaml"},
		{"../../etc/passwd", "etc/passwd"},
		{"..", "config.yaml"},
		{"/etc/gateway/config.yaml", "/etc/gateway/config.yaml"},
	}

	for _, tt := range tests {
		if got := sanitizeConfigPath(tt.input); got != tt.expected {
			t.Errorf("sanitizeConfigPath(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
