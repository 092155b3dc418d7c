// ABOUTME: Configuration loading and parsing for dni-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete dni-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Registry RegistryConfig `yaml:"registry"`
	WebAuthn WebAuthnConfig `yaml:"webauthn"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// RegistryConfig holds the external identity registry configuration.
// Token is the shared secret; its transport encoding is negotiated at
// request time since upstream conventions vary.
type RegistryConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`

	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// WebAuthnConfig holds passkey ceremony configuration
type WebAuthnConfig struct {
	RPDisplayName string `yaml:"rp_display_name"`
	// BaseURL is the external URL callers reach the gateway at. When set,
	// ceremony responses must carry a matching origin.
	BaseURL string `yaml:"base_url"`

	CeremonyTimeout time.Duration `yaml:"-"`
	SessionTTL      time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	CeremonyTimeoutRaw string `yaml:"ceremony_timeout"`
	SessionTTLRaw      string `yaml:"session_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the config file leaves optional fields unset.
const (
	DefaultRegistryTimeout = 20 * time.Second
	DefaultCeremonyTimeout = 60 * time.Second
	DefaultSessionTTL      = 30 * time.Minute
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Registry.URL == "" {
		return fmt.Errorf("registry.url is required")
	}

	return nil
}

// applyDefaults fills in defaults for optional fields.
func applyDefaults(cfg *Config) {
	if cfg.Registry.Timeout == 0 {
		cfg.Registry.Timeout = DefaultRegistryTimeout
	}
	if cfg.WebAuthn.CeremonyTimeout == 0 {
		cfg.WebAuthn.CeremonyTimeout = DefaultCeremonyTimeout
	}
	if cfg.WebAuthn.SessionTTL == 0 {
		cfg.WebAuthn.SessionTTL = DefaultSessionTTL
	}
	if cfg.WebAuthn.RPDisplayName == "" {
		cfg.WebAuthn.RPDisplayName = "dni-gateway"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Registry.TimeoutRaw != "" {
		cfg.Registry.Timeout, err = time.ParseDuration(cfg.Registry.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing registry timeout %q: %w", cfg.Registry.TimeoutRaw, err)
		}
	}

	if cfg.WebAuthn.CeremonyTimeoutRaw != "" {
		cfg.WebAuthn.CeremonyTimeout, err = time.ParseDuration(cfg.WebAuthn.CeremonyTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing ceremony_timeout %q: %w", cfg.WebAuthn.CeremonyTimeoutRaw, err)
		}
	}

	if cfg.WebAuthn.SessionTTLRaw != "" {
		cfg.WebAuthn.SessionTTL, err = time.ParseDuration(cfg.WebAuthn.SessionTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing session_ttl %q: %w", cfg.WebAuthn.SessionTTLRaw, err)
		}
	}

	return nil
}
