package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store kinds.
const (
	StoreKindFile  = "file"
	StoreKindRedis = "redis"
)

// ServerConfig is the decision server configuration.
type ServerConfig struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// MetricsNamespace prefixes all exported metrics.
	MetricsNamespace string `yaml:"metricsNamespace,omitempty"`

	// Log configures the operational logger.
	Log LogConfig `yaml:"log,omitempty"`

	// Model configures the model definition source.
	Model ModelConfig `yaml:"model,omitempty"`

	// Store configures the policy store backend.
	Store StoreConfig `yaml:"store"`

	// Cache configures the decision cache.
	Cache CacheConfig `yaml:"cache,omitempty"`

	// Audit configures the decision audit trail.
	Audit AuditConfig `yaml:"audit,omitempty"`
}

// LogConfig configures the operational logger.
type LogConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level,omitempty"`

	// Format is the log format (json, console).
	Format string `yaml:"format,omitempty"`
}

// ModelConfig configures the model definition source.
type ModelConfig struct {
	// Path is the model definition file. Empty selects the built-in
	// default model.
	Path string `yaml:"path,omitempty"`
}

// StoreConfig configures the policy store backend.
type StoreConfig struct {
	// Kind selects the backend: file or redis.
	Kind string `yaml:"kind"`

	// File configures the file backend.
	File FileStoreConfig `yaml:"file,omitempty"`

	// Redis configures the redis backend.
	Redis RedisStoreConfig `yaml:"redis,omitempty"`
}

// FileStoreConfig configures the file store backend.
type FileStoreConfig struct {
	// Path is the policy file path.
	Path string `yaml:"path"`

	// Watch reloads the snapshot when the policy file changes.
	Watch bool `yaml:"watch,omitempty"`
}

// RedisStoreConfig configures the redis store backend.
type RedisStoreConfig struct {
	// Addr is the redis address (host:port).
	Addr string `yaml:"addr"`

	// Password is the redis password.
	Password string `yaml:"password,omitempty"`

	// DB is the redis database number.
	DB int `yaml:"db,omitempty"`

	// Key is the list key policy rows are stored under.
	Key string `yaml:"key,omitempty"`
}

// CacheConfig configures the decision cache.
type CacheConfig struct {
	// Enabled turns the decision cache on.
	Enabled bool `yaml:"enabled,omitempty"`

	// TTL is the cached decision lifetime.
	TTL Duration `yaml:"ttl,omitempty"`

	// MaxSize is the maximum number of cached decisions.
	MaxSize int `yaml:"maxSize,omitempty"`
}

// AuditConfig configures the decision audit trail.
type AuditConfig struct {
	// Enabled turns the audit trail on.
	Enabled bool `yaml:"enabled,omitempty"`

	// Output is the trail destination: stdout, stderr, or a file path.
	Output string `yaml:"output,omitempty"`
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// Load reads, substitutes, parses, and validates a configuration file.
func Load(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates configuration bytes.
func Parse(data []byte) (*ServerConfig, error) {
	content := substituteEnvVars(string(data))

	var cfg ServerConfig
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills unset fields with their defaults.
func (c *ServerConfig) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.MetricsNamespace == "" {
		c.MetricsNamespace = "avauthz"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Cache.Enabled {
		if c.Cache.TTL <= 0 {
			c.Cache.TTL = Duration(5 * time.Minute)
		}
		if c.Cache.MaxSize <= 0 {
			c.Cache.MaxSize = 10000
		}
	}
	if c.Audit.Enabled && c.Audit.Output == "" {
		c.Audit.Output = "stdout"
	}
}

// Validate checks the configuration for defects.
func (c *ServerConfig) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}

	switch c.Store.Kind {
	case StoreKindFile:
		if c.Store.File.Path == "" {
			return errors.New("store.file.path is required for the file store")
		}
	case StoreKindRedis:
		if c.Store.Redis.Addr == "" {
			return errors.New("store.redis.addr is required for the redis store")
		}
	case "":
		return errors.New("store.kind is required")
	default:
		return fmt.Errorf("unknown store kind %q", c.Store.Kind)
	}

	return nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default} patterns with
// environment variable values. $$ escapes a literal dollar sign.
func substituteEnvVars(content string) string {
	content = strings.ReplaceAll(content, "$$", "\x00ESCAPED_DOLLAR\x00")

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		defaultValue := ""
		if len(submatches) >= 3 {
			defaultValue = submatches[2]
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return defaultValue
	})

	return strings.ReplaceAll(result, "\x00ESCAPED_DOLLAR\x00", "$")
}
