// Package notify mirrors audit events to a message bus so operator
// dashboards can watch the system live. The mirror is strictly
// one-way and optional: agents never coordinate through it, and a
// missing broker degrades to a no-op.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vinayprograms/tandem/audit"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("notifier closed")

// Notifier publishes audit events to observers.
type Notifier interface {
	// Publish sends one audit event. Best effort: callers log a
	// failure and move on, they never block coordination on it.
	Publish(ev audit.Event) error

	// Close releases the connection.
	Close() error
}

// Config holds NATS notifier configuration.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Subject is the base subject; the event type is appended
	// (e.g., "tandem.audit.conflict").
	Subject string

	// Name is the client name for identification.
	Name string

	// Token for token-based auth.
	Token string

	// ReconnectWait is the time to wait between reconnection attempts.
	// Default: 2s
	ReconnectWait time.Duration

	// MaxReconnects is the maximum number of reconnection attempts.
	// Default: -1 (unlimited)
	MaxReconnects int

	// ConnectTimeout for the initial connection.
	// Default: 5s
	ConnectTimeout time.Duration
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		Subject:        "tandem.audit",
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
		ConnectTimeout: 5 * time.Second,
	}
}

// NATSNotifier mirrors audit events to NATS.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
}

// NewNATSNotifier connects to NATS and returns the mirror.
func NewNATSNotifier(cfg Config) (*NATSNotifier, error) {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.Subject == "" {
		cfg.Subject = def.Subject
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = def.ReconnectWait
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = def.MaxReconnects
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}

	opts := []nats.Option{
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSNotifier{conn: conn, subject: cfg.Subject}, nil
}

// Publish sends one audit event as JSON on subject.<event-type>.
func (n *NATSNotifier) Publish(ev audit.Event) error {
	if n.conn.IsClosed() {
		return ErrClosed
	}
	data, err := json.Marshal(&ev)
	if err != nil {
		return err
	}
	return n.conn.Publish(n.subject+"."+string(ev.Type), data)
}

// Close drains and closes the connection.
func (n *NATSNotifier) Close() error {
	if n.conn.IsClosed() {
		return nil
	}
	return n.conn.Drain()
}

// Nop is the notifier used when no broker is configured.
type Nop struct{}

// Publish discards the event.
func (Nop) Publish(audit.Event) error { return nil }

// Close is a no-op.
func (Nop) Close() error { return nil }
