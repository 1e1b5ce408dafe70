// Package config provides configuration management for the reporting
// gateway.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the main configuration structure
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Admin       AdminConfig       `yaml:"admin"`
	Storage     StorageConfig     `yaml:"storage"`
	Artifacts   ArtifactsConfig   `yaml:"artifacts"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
	SignedURL   SignedURLConfig   `yaml:"signed_url"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig contains API server settings
type ServerConfig struct {
	Listen       string   `yaml:"listen" validate:"required"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// AdminConfig contains the admin endpoint settings
type AdminConfig struct {
	// Secret guards the rotation endpoint via the x-admin-secret header.
	Secret string `yaml:"secret" validate:"required,min=16"`
}

// StorageConfig contains durable store settings
type StorageConfig struct {
	Type  string      `yaml:"type" validate:"oneof=memory redis"` // "memory" or "redis"
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"` //#nosec G117 -- Password field is intentional for Redis auth config
	DB       int    `yaml:"db"`
}

// ArtifactsConfig contains artifact object store settings
type ArtifactsConfig struct {
	Type string   `yaml:"type" validate:"oneof=memory s3"` // "memory" or "s3"
	S3   S3Config `yaml:"s3"`
}

// S3Config contains S3 bucket settings for artifact storage
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	KeyPrefix string `yaml:"key_prefix"`
	Region    string `yaml:"region"`
}

// RateLimitConfig contains per-action-class quotas
type RateLimitConfig struct {
	ReportSend ActionLimit `yaml:"report_send"`
	CSVUpload  ActionLimit `yaml:"csv_upload"`
}

// ActionLimit is the quota for one action class
type ActionLimit struct {
	Max    int      `yaml:"max" validate:"gt=0"`
	Window Duration `yaml:"window" validate:"gt=0"`
}

// IdempotencyConfig contains replay cache settings
type IdempotencyConfig struct {
	// TTL is the retention window for replay records. Zero derives it as
	// twice the largest configured rate-limit window, so retries remain
	// replayable across a full quota period.
	TTL Duration `yaml:"ttl"`
}

// SignedURLConfig contains signed-URL authority settings
type SignedURLConfig struct {
	// Secret is the MAC key. Never transmitted to clients.
	Secret string `yaml:"secret" validate:"required,min=32"`

	// DefaultTTL applies when a mint request does not specify one.
	DefaultTTL Duration `yaml:"default_ttl" validate:"gt=0"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string      `yaml:"level" validate:"oneof=trace debug info warn error"`
	Audit AuditConfig `yaml:"audit"`
}

// AuditConfig contains audit logging settings
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	Output  string `yaml:"output"`
}

// MetricsConfig contains the management server settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// DefaultConfig returns a configuration with sensible defaults. Secrets have
// no defaults and must come from the config file or environment.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:       ":8080",
			ReadTimeout:  Duration(10 * time.Second),
			WriteTimeout: Duration(30 * time.Second),
		},
		Storage: StorageConfig{
			Type: "memory",
			Redis: RedisConfig{
				Address: "localhost:6379",
				DB:      0,
			},
		},
		Artifacts: ArtifactsConfig{
			Type: "memory",
			S3: S3Config{
				KeyPrefix: "reports/",
			},
		},
		RateLimit: RateLimitConfig{
			ReportSend: ActionLimit{Max: 10, Window: Duration(time.Hour)},
			CSVUpload:  ActionLimit{Max: 20, Window: Duration(time.Hour)},
		},
		Idempotency: IdempotencyConfig{
			TTL: 0, // derived from the rate-limit windows
		},
		SignedURL: SignedURLConfig{
			DefaultTTL: Duration(15 * time.Minute),
		},
		Logging: LoggingConfig{
			Level: "info",
			Audit: AuditConfig{
				Enabled: true,
				Level:   "standard",
				Output:  "stdout",
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
	}
}

// IdempotencyTTL resolves the replay retention window against the
// configured rate limits.
func (c *Config) IdempotencyTTL() time.Duration {
	if c.Idempotency.TTL > 0 {
		return c.Idempotency.TTL.Std()
	}
	largest := c.RateLimit.ReportSend.Window
	if c.RateLimit.CSVUpload.Window > largest {
		largest = c.RateLimit.CSVUpload.Window
	}
	return 2 * largest.Std()
}

// Load loads the configuration from file or environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Check for config file path in environment or use default
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// Sanitize and validate path to prevent path traversal
	configPath = sanitizeConfigPath(configPath)

	data, err := os.ReadFile(configPath) //#nosec G304 -- config path is sanitized above
	if err != nil {
		if os.IsNotExist(err) {
			// No config file; secrets may still arrive via env below.
			return applyEnvAndValidate(cfg)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return applyEnvAndValidate(cfg)
}

// applyEnvAndValidate overlays secret material from the environment and
// validates the resulting configuration.
func applyEnvAndValidate(cfg *Config) (*Config, error) {
	if v := os.Getenv("ADMIN_SECRET"); v != "" {
		cfg.Admin.Secret = v
	}
	if v := os.Getenv("SIGNED_URL_SECRET"); v != "" {
		cfg.SignedURL.Secret = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Storage.Redis.Password = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for missing or malformed values.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Storage.Type == "redis" && c.Storage.Redis.Address == "" {
		return fmt.Errorf("invalid configuration: storage.redis.address is required for redis storage")
	}
	if c.Artifacts.Type == "s3" && c.Artifacts.S3.Bucket == "" {
		return fmt.Errorf("invalid configuration: artifacts.s3.bucket is required for s3 artifacts")
	}
	return nil
}

// sanitizeConfigPath cleans and validates a config file path
func sanitizeConfigPath(path string) string {
	// Clean the path to remove any . or .. components
	cleaned := filepath.Clean(path)

	// If path is absolute, use it as-is (operator explicitly set full path)
	// If relative, ensure it doesn't escape the current directory
	if !filepath.IsAbs(cleaned) {
		// Remove any leading ../ components for relative paths
		for len(cleaned) > 2 && cleaned[:3] == "../" {
			cleaned = cleaned[3:]
		}
		if cleaned == ".." {
			cleaned = "config.yaml"
		}
	}

	return cleaned
}
