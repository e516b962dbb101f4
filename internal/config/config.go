// ABOUTME: Configuration loading and parsing for coven-chat
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Database drivers
const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
)

// Counter backends
const (
	CounterMemory = "memory"
	CounterRedis  = "redis"
)

// Config represents the complete coven-chat configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Counter  CounterConfig  `yaml:"counter" toml:"counter"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr     string `yaml:"http_addr" toml:"http_addr"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" toml:"max_body_bytes"`

	RequestTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	RequestTimeoutRaw string `yaml:"request_timeout" toml:"request_timeout"`
}

// DatabaseConfig selects and configures the document store
type DatabaseConfig struct {
	Driver          string `yaml:"driver" toml:"driver"`
	URI             string `yaml:"uri" toml:"uri"`
	Name            string `yaml:"name" toml:"name"`
	Collection      string `yaml:"collection" toml:"collection"`
	UsersDatabase   string `yaml:"users_database" toml:"users_database"`
	UsersCollection string `yaml:"users_collection" toml:"users_collection"`
	AppName         string `yaml:"app_name" toml:"app_name"`
	Path            string `yaml:"path" toml:"path"` // SQLite file, driver "sqlite" only

	ConnectTimeout    time.Duration `yaml:"-" toml:"-"`
	ConnectTimeoutRaw string        `yaml:"connect_timeout" toml:"connect_timeout"`
}

// CounterConfig configures per-endpoint request counting
type CounterConfig struct {
	Backend      string `yaml:"backend" toml:"backend"`
	RedisURL     string `yaml:"redis_url" toml:"redis_url"`
	MaxKeys      int    `yaml:"max_keys" toml:"max_keys"`
	MaxPerWindow int64  `yaml:"max_per_window" toml:"max_per_window"` // 0 disables limiting

	Window    time.Duration `yaml:"-" toml:"-"`
	WindowRaw string        `yaml:"window" toml:"window"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied, for running
// without a config file.
func Default() *Config {
	var cfg Config
	// Defaults always validate
	_ = cfg.finish()
	return &cfg
}

// finish parses durations, applies defaults, and validates.
func (c *Config) finish() error {
	if err := parseDurations(c); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
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

// applyDefaults fills every unset field with its default.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "0.0.0.0:1342"
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 10 * time.Second
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 1 << 20
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DriverMongo
	}
	if c.Database.URI == "" {
		c.Database.URI = "mongodb://localhost:27017"
	}
	if c.Database.Name == "" {
		c.Database.Name = "rusty_chat"
	}
	if c.Database.Collection == "" {
		c.Database.Collection = "chat_data"
	}
	if c.Database.UsersDatabase == "" {
		c.Database.UsersDatabase = "baakey_dev_rusty"
	}
	if c.Database.UsersCollection == "" {
		c.Database.UsersCollection = "users"
	}
	if c.Database.AppName == "" {
		c.Database.AppName = "core-rusty-api"
	}
	if c.Database.ConnectTimeout == 0 {
		c.Database.ConnectTimeout = 10 * time.Second
	}

	if c.Counter.Backend == "" {
		c.Counter.Backend = CounterMemory
	}
	if c.Counter.Window == 0 {
		c.Counter.Window = time.Minute
	}
	if c.Counter.MaxKeys == 0 {
		c.Counter.MaxKeys = 10000
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMongo:
		if c.Database.URI == "" {
			return fmt.Errorf("database.uri is required for the mongo driver")
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported (use %q or %q)",
			c.Database.Driver, DriverMongo, DriverSQLite)
	}

	switch c.Counter.Backend {
	case CounterMemory:
	case CounterRedis:
		if c.Counter.RedisURL == "" {
			return fmt.Errorf("counter.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("counter.backend %q is not supported (use %q or %q)",
			c.Counter.Backend, CounterMemory, CounterRedis)
	}

	if c.Counter.Window < 0 {
		return fmt.Errorf("counter.window must not be negative")
	}
	if c.Counter.MaxPerWindow < 0 {
		return fmt.Errorf("counter.max_per_window must not be negative")
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server.max_body_bytes must not be negative")
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Server.RequestTimeoutRaw != "" {
		cfg.Server.RequestTimeout, err = time.ParseDuration(cfg.Server.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Server.RequestTimeoutRaw, err)
		}
	}

	if cfg.Database.ConnectTimeoutRaw != "" {
		cfg.Database.ConnectTimeout, err = time.ParseDuration(cfg.Database.ConnectTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing connect_timeout %q: %w", cfg.Database.ConnectTimeoutRaw, err)
		}
	}

	if cfg.Counter.WindowRaw != "" {
		cfg.Counter.Window, err = time.ParseDuration(cfg.Counter.WindowRaw)
		if err != nil {
			return fmt.Errorf("parsing window %q: %w", cfg.Counter.WindowRaw, err)
		}
	}

	return nil
}
