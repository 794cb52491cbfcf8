package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for cleansing-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, session keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis holds the cleansing results cache and server-side view state.
	Redis RedisConfig `yaml:"redis"`

	Session  SessionConfig  `yaml:"session"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"cleansing"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"cleansing_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxIdleConns   int32  `yaml:"max_idle_conns" env:"PGMAX_IDLE_CONNS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds Redis connection settings. An empty Host disables Redis.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// SessionConfig controls the cookie session that carries result view state.
type SessionConfig struct {
	// Secret signs the session cookie. Required outside local environments.
	Secret     string `yaml:"-" env:"SESSION_SECRET"` // Secret - not in YAML
	CookieName string `yaml:"cookie_name" env:"SESSION_COOKIE_NAME" env-default:"cleansing_view"`
	MaxAge     int    `yaml:"max_age" env:"SESSION_MAX_AGE" env-default:"86400"`
	// Store selects where view state lives: "cookie" or "redis".
	Store string `yaml:"store" env:"SESSION_STORE" env-default:"cookie"`
}

// WorkflowConfig holds apply-labels workflow settings.
type WorkflowConfig struct {
	SubmitTimeout time.Duration `yaml:"submit_timeout" env:"WORKFLOW_SUBMIT_TIMEOUT" env-default:"30s"`
	// FilterPrefix namespaces the persisted sort and filter keys.
	FilterPrefix string `yaml:"filter_prefix" env:"WORKFLOW_FILTER_PREFIX" env-default:"cleansing"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED" env-default:"true"`
	Path    string `yaml:"path" env:"METRICS_PATH" env-default:"/metrics"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// IsLocal reports whether the server runs in a developer environment.
func (c *Config) IsLocal() bool {
	return c.Env == "local" || c.Env == "test"
}

func (c *Config) validate() error {
	switch c.Session.Store {
	case "cookie":
	case "redis":
		if c.Redis.Host == "" {
			return fmt.Errorf("session store %q requires redis.host", c.Session.Store)
		}
	default:
		return fmt.Errorf("unknown session store %q", c.Session.Store)
	}

	if c.Session.Secret == "" && !c.IsLocal() {
		return fmt.Errorf("SESSION_SECRET must be set in %s", c.Env)
	}
	if c.Workflow.SubmitTimeout < 0 {
		return fmt.Errorf("workflow.submit_timeout must not be negative")
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Addr returns the host:port of the Redis server.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
