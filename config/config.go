// Package config loads agent configuration from TOML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is one agent's full configuration.
type Config struct {
	// Agent identifies this agent instance. Used as the in-progress
	// folder name, so it must be a valid single path element.
	Agent string `toml:"agent"`

	// Store is the vault replica root.
	Store string `toml:"store"`

	// Writer marks the single status-artifact writer. Exactly one
	// configured agent may set this.
	Writer bool `toml:"writer"`

	// DryRun computes dispositions without relocating or executing.
	DryRun bool `toml:"dry_run"`

	// Rules is the triage policy file. Empty means <store>/triage.toml.
	Rules string `toml:"rules"`

	// Credentials is an explicit credentials.toml path. Empty means
	// the standard search locations.
	Credentials string `toml:"credentials"`

	Intervals  Intervals  `toml:"intervals"`
	Retention  Retention  `toml:"retention"`
	Classifier Classifier `toml:"classifier"`
	Sync       Sync       `toml:"sync"`
	Notify     Notify     `toml:"notify"`
	Telemetry  Telemetry  `toml:"telemetry"`
}

// Intervals sets the cadence of each polling loop.
type Intervals struct {
	Ingest duration `toml:"ingest"`
	Triage duration `toml:"triage"`
	Claim  duration `toml:"claim"`
	Sync   duration `toml:"sync"`
	Drain  duration `toml:"drain"`
}

// Retention bounds how long finished work is kept.
type Retention struct {
	// Audit is the audit partition horizon.
	Audit duration `toml:"audit"`

	// Items is how long terminal items stay before archival.
	Items duration `toml:"items"`
}

// Classifier selects and tunes the triage model.
type Classifier struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
	BaseURL   string `toml:"base_url"`

	// RequestsPerMinute caps classifier calls; past the budget items
	// fall back to manual review. Zero disables the cap.
	RequestsPerMinute int `toml:"requests_per_minute"`
}

// Sync configures the replication remote.
type Sync struct {
	Remote     string   `toml:"remote"`
	Branch     string   `toml:"branch"`
	MaxRetries int      `toml:"max_retries"`
	Backoff    duration `toml:"backoff"`
}

// Notify configures the optional NATS audit mirror.
type Notify struct {
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

// Telemetry configures optional OTLP tracing. Disabled while Endpoint
// is empty.
type Telemetry struct {
	Endpoint string `toml:"endpoint"`
	Protocol string `toml:"protocol"`
	Insecure bool   `toml:"insecure"`
}

// duration unmarshals TOML strings like "30s" or "5m".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration.
func (d duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns configuration with sensible defaults. Agent and Store
// have no defaults and must come from the file or flags.
func Default() Config {
	return Config{
		Intervals: Intervals{
			Ingest: duration(1 * time.Minute),
			Triage: duration(30 * time.Second),
			Claim:  duration(30 * time.Second),
			Sync:   duration(2 * time.Minute),
			Drain:  duration(1 * time.Minute),
		},
		Retention: Retention{
			Audit: duration(90 * 24 * time.Hour),
			Items: duration(30 * 24 * time.Hour),
		},
		Classifier: Classifier{
			Provider:          "anthropic",
			Model:             "claude-sonnet-4-20250514",
			MaxTokens:         1024,
			RequestsPerMinute: 30,
		},
		Sync: Sync{
			Remote:     "origin",
			Branch:     "main",
			MaxRetries: 3,
			Backoff:    duration(2 * time.Second),
		},
		Notify: Notify{
			Subject: "tandem.audit",
		},
		Telemetry: Telemetry{
			Protocol: "grpc",
		},
	}
}

// OverrideIntervals sets every loop interval to d. Used by the CLI's
// --interval flag.
func (c *Config) OverrideIntervals(d time.Duration) {
	c.Intervals = Intervals{
		Ingest: duration(d),
		Triage: duration(d),
		Claim:  duration(d),
		Sync:   duration(d),
		Drain:  duration(d),
	}
}

// Load reads the config file at path over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Agent == "" {
		return fmt.Errorf("config: agent is required")
	}
	if c.Store == "" {
		return fmt.Errorf("config: store is required")
	}
	for _, iv := range []struct {
		name string
		d    duration
	}{
		{"ingest", c.Intervals.Ingest},
		{"triage", c.Intervals.Triage},
		{"claim", c.Intervals.Claim},
		{"sync", c.Intervals.Sync},
		{"drain", c.Intervals.Drain},
	} {
		if iv.d.Std() <= 0 {
			return fmt.Errorf("config: intervals.%s must be positive", iv.name)
		}
	}
	return nil
}

// RulesPath resolves the triage policy file location.
func (c *Config) RulesPath() string {
	if c.Rules != "" {
		return c.Rules
	}
	return filepath.Join(c.Store, "triage.toml")
}

// WriteExample writes a commented starter config to path.
func WriteExample(path string) error {
	return os.WriteFile(path, []byte(exampleConfig), 0644)
}

const exampleConfig = `# tandem agent configuration
agent = "desk"
store = "/var/lib/tandem/vault"
writer = true

[intervals]
ingest = "1m"
triage = "30s"
claim = "30s"
sync = "2m"
drain = "1m"

[retention]
audit = "2160h"  # 90 days
items = "720h"   # 30 days

[classifier]
provider = "anthropic"
model = "claude-sonnet-4-20250514"
max_tokens = 1024
requests_per_minute = 30

[sync]
remote = "origin"
branch = "main"
max_retries = 3
backoff = "2s"

[notify]
# url = "nats://localhost:4222"
subject = "tandem.audit"

[telemetry]
# endpoint = "localhost:4317"
protocol = "grpc"
`
