// Package audit emits a structured trail of security-relevant gateway
// events: credential rotations, rejected authentications, quota rejections,
// replay hits, and signed-url verification failures.
package audit

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// EventType represents the type of audit event
type EventType string

const (
	EventKeyRotated        EventType = "key_rotated"
	EventAgencyCreated     EventType = "agency_created"
	EventAuthRejected      EventType = "auth_rejected"
	EventAdminRejected     EventType = "admin_rejected"
	EventRateLimitExceeded EventType = "rate_limit_exceeded"
	EventIdempotentReplay  EventType = "idempotent_replay"
	EventTokenMinted       EventType = "token_minted"
	EventTokenRejected     EventType = "token_rejected"
	EventStoreError        EventType = "store_error"
)

// Event represents an audit log event
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
	AgencyID  string    `json:"agency_id,omitempty"`
	ClientID  string    `json:"client_id,omitempty"`
	Action    string    `json:"action,omitempty"`
	Resource  string    `json:"resource,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Config holds audit logger configuration
type Config struct {
	// Enabled enables/disables audit logging
	Enabled bool `yaml:"enabled"`

	// Level controls what events are logged
	// "minimal" - only auth and token rejections
	// "standard" - rejections plus rotations and quota events
	// "verbose" - all events including replays and mints
	Level string `yaml:"level"`

	// Output specifies where to write logs
	// "stdout", "stderr", or a file path
	Output string `yaml:"output"`
}

// DefaultConfig returns the default audit configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Level:   "standard",
		Output:  "stdout",
	}
}

// Trail is the audit event sink the gateway components report to.
type Trail interface {
	Log(event *Event)
	Close() error
}

// Logger handles audit logging
type Logger struct {
	mu      sync.RWMutex
	config  *Config
	logger  *slog.Logger
	output  io.Writer
	enabled bool
}

// NewLogger creates a new audit logger
func NewLogger(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &Logger{
		config:  cfg,
		enabled: cfg.Enabled,
	}

	if err := l.setupOutput(); err != nil {
		return nil, err
	}

	return l, nil
}

func (l *Logger) setupOutput() error {
	var output io.Writer

	switch l.config.Output {
	case "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		// File output
		f, err := os.OpenFile(l.config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		output = f
	}

	l.output = output
	l.logger = slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	return nil
}

// Log logs an audit event
func (l *Logger) Log(event *Event) {
	l.mu.RLock()
	enabled := l.enabled
	logger := l.logger
	l.mu.RUnlock()

	if !enabled || logger == nil {
		return
	}

	if !l.shouldLog(event.Type) {
		return
	}

	event.Timestamp = time.Now()

	attrs := []any{
		slog.String("type", string(event.Type)),
	}
	if event.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", event.RequestID))
	}
	if event.AgencyID != "" {
		attrs = append(attrs, slog.String("agency_id", event.AgencyID))
	}
	if event.ClientID != "" {
		attrs = append(attrs, slog.String("client_id", event.ClientID))
	}
	if event.Action != "" {
		attrs = append(attrs, slog.String("action", event.Action))
	}
	if event.Resource != "" {
		attrs = append(attrs, slog.String("resource", event.Resource))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}

	logger.Info("audit", attrs...)
}

func (l *Logger) shouldLog(eventType EventType) bool {
	switch l.config.Level {
	case "minimal":
		return eventType == EventAuthRejected ||
			eventType == EventAdminRejected ||
			eventType == EventTokenRejected
	case "standard":
		return eventType != EventIdempotentReplay &&
			eventType != EventTokenMinted
	case "verbose":
		return true
	default:
		return true
	}
}

// Close closes the logger
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if closer, ok := l.output.(io.Closer); ok {
		if l.output != os.Stdout && l.output != os.Stderr {
			return closer.Close()
		}
	}
	return nil
}

// NopTrail is a Trail that does nothing.
type NopTrail struct{}

// NewNopTrail creates a no-op audit trail
func NewNopTrail() *NopTrail {
	return &NopTrail{}
}

// Log does nothing
func (l *NopTrail) Log(_ *Event) {}

// Close does nothing
func (l *NopTrail) Close() error { return nil }
