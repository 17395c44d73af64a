// Package config loads gateway configuration from a YAML file with
// ${ENV_VAR} expansion and duration-string parsing, then applies
// environment variable overrides for the settings that differ per
// deployment. Every policy constant the engine consults lives here so
// tests and staging can compress windows without code changes.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gatewall/relay/internal/embed"
	"github.com/gatewall/relay/internal/gate"
)

// Config is the complete gateway configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	NATS     NATSConfig     `yaml:"nats"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Policy   PolicyConfig   `yaml:"policy"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	ReadTimeout  time.Duration `yaml:"-"`
	WriteTimeout time.Duration `yaml:"-"`

	ReadTimeoutRaw  string `yaml:"read_timeout"`
	WriteTimeoutRaw string `yaml:"write_timeout"`
}

// DatabaseConfig holds the PostgreSQL connection string.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the optional Redis-backed guard settings. When Enabled
// is false the gateway runs without the atomic duplicate guard and without
// the inbound throttle.
type RedisConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Addr           string        `yaml:"addr"`
	AtomicDedupe   bool          `yaml:"atomic_dedupe"`
	ThrottleLimit  int           `yaml:"throttle_limit"`
	ThrottleWindow time.Duration `yaml:"-"`

	ThrottleWindowRaw string `yaml:"throttle_window"`
}

// NATSConfig holds the optional decision-event publisher settings.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// WebhookConfig holds the downstream delivery target.
type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// PolicyConfig holds the abuse-policy knobs.
type PolicyConfig struct {
	DuplicateWindow    time.Duration `yaml:"-"`
	DuplicateThreshold int           `yaml:"duplicate_threshold"`
	BanDuration        time.Duration `yaml:"-"`
	PurgeBatch         int           `yaml:"purge_batch"`
	MessageCap         int           `yaml:"message_cap"`
	RetentionAge       time.Duration `yaml:"-"`
	AllowedColors      []int         `yaml:"allowed_colors"`
	AllowedFieldNames  []string      `yaml:"allowed_field_names"`
	Blacklist          []string      `yaml:"blacklist"`

	DuplicateWindowRaw string `yaml:"duplicate_window"`
	BanDurationRaw     string `yaml:"ban_duration"`
	RetentionAgeRaw    string `yaml:"retention_age"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	policy := gate.DefaultPolicy()
	return &Config{
		Server: ServerConfig{
			ListenAddr:   ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			URL: "postgres://localhost:5432/gatewall?sslmode=disable",
		},
		Redis: RedisConfig{
			Enabled:        false,
			Addr:           "localhost:6379",
			AtomicDedupe:   false,
			ThrottleLimit:  30,
			ThrottleWindow: time.Minute,
		},
		NATS: NATSConfig{
			Enabled: false,
			URL:     "nats://localhost:4222",
		},
		Webhook: WebhookConfig{
			Timeout: 10 * time.Second,
		},
		Policy: PolicyConfig{
			DuplicateWindow:    policy.DuplicateWindow,
			DuplicateThreshold: policy.DuplicateThreshold,
			BanDuration:        policy.BanDuration,
			PurgeBatch:         policy.PurgeBatch,
			MessageCap:         policy.MessageCap,
			RetentionAge:       policy.RetentionAge,
			AllowedColors:      policy.Rules.AllowedColors,
			AllowedFieldNames:  policy.Rules.AllowedFieldNames,
			Blacklist:          policy.Rules.Blacklist,
		},
	}
}

// envVarPattern matches ${VAR_NAME} placeholders in the config file.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} placeholders with environment values.
// Unset variables expand to an empty string.
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Load reads and parses the config file at path, layering it over the
// defaults. A missing file is not an error: the defaults are returned so
// the gateway can run from environment overrides alone.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(expandEnvVars(data), cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDurations converts the raw duration strings into time.Durations.
// Empty raw values keep the default already in place.
func (c *Config) parseDurations() error {
	fields := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{c.Server.ReadTimeoutRaw, &c.Server.ReadTimeout, "server.read_timeout"},
		{c.Server.WriteTimeoutRaw, &c.Server.WriteTimeout, "server.write_timeout"},
		{c.Redis.ThrottleWindowRaw, &c.Redis.ThrottleWindow, "redis.throttle_window"},
		{c.Webhook.TimeoutRaw, &c.Webhook.Timeout, "webhook.timeout"},
		{c.Policy.DuplicateWindowRaw, &c.Policy.DuplicateWindow, "policy.duplicate_window"},
		{c.Policy.BanDurationRaw, &c.Policy.BanDuration, "policy.ban_duration"},
		{c.Policy.RetentionAgeRaw, &c.Policy.RetentionAge, "policy.retention_age"},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("config: %s: %w", f.name, err)
		}
		*f.dst = d
	}
	return nil
}

// ApplyEnvOverrides layers deployment-specific environment variables over
// the file values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
		c.NATS.Enabled = true
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.Webhook.URL = v
	}
}

// Validate checks that the configuration can actually run a gateway.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("config: database.url is required")
	}
	if c.Webhook.URL == "" {
		return fmt.Errorf("config: webhook.url is required")
	}
	if c.Policy.DuplicateThreshold < 1 {
		return fmt.Errorf("config: policy.duplicate_threshold must be at least 1")
	}
	if c.Policy.MessageCap < 1 {
		return fmt.Errorf("config: policy.message_cap must be at least 1")
	}
	return nil
}

// GatePolicy assembles the engine policy from the loaded values.
func (c *Config) GatePolicy() gate.Policy {
	return gate.Policy{
		DuplicateWindow:    c.Policy.DuplicateWindow,
		DuplicateThreshold: c.Policy.DuplicateThreshold,
		BanDuration:        c.Policy.BanDuration,
		PurgeBatch:         c.Policy.PurgeBatch,
		MessageCap:         c.Policy.MessageCap,
		RetentionAge:       c.Policy.RetentionAge,
		Rules: embed.Rules{
			AllowedColors:     c.Policy.AllowedColors,
			AllowedFieldNames: c.Policy.AllowedFieldNames,
			Blacklist:         c.Policy.Blacklist,
		},
	}
}
