// ABOUTME: Configuration loading and parsing for sensei-gateway
// ABOUTME: Supports YAML or TOML files with env var expansion, .env files, and env overrides

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// minSecretLength mirrors the token service requirement.
const minSecretLength = 32

// Config represents the complete sensei-gateway configuration
type Config struct {
	AppName   string          `yaml:"app_name" toml:"app_name"`
	Debug     bool            `yaml:"debug" toml:"debug"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	CORS      CORSConfig      `yaml:"cors" toml:"cors"`
	LLM       LLMConfig       `yaml:"llm" toml:"llm"`
	Sessions  SessionsConfig  `yaml:"sessions" toml:"sessions"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration.
// GRPCAddr is optional; when set, a gRPC health service listens there.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // Serve :443 with tailnet certificates
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // Enable public Funnel (implies HTTPS)
}

// DatabaseConfig selects and tunes the credential store.
type DatabaseConfig struct {
	Driver       string `yaml:"driver" toml:"driver"` // sqlite, postgres, or memory
	Path         string `yaml:"path" toml:"path"`     // sqlite file or :memory:
	DSN          string `yaml:"dsn" toml:"dsn"`       // postgres connection string
	MaxOpenConns int    `yaml:"max_open_conns" toml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns" toml:"max_idle_conns"`

	ConnMaxLifetime    time.Duration `yaml:"-" toml:"-"`
	ConnMaxLifetimeRaw string        `yaml:"conn_max_lifetime" toml:"conn_max_lifetime"`
}

// DataSource returns the path or DSN the driver should open.
func (d DatabaseConfig) DataSource() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return d.DSN
}

// AuthConfig holds token and password hashing settings
type AuthConfig struct {
	SecretKey string         `yaml:"secret_key" toml:"secret_key"`
	Algorithm string         `yaml:"algorithm" toml:"algorithm"`
	Password  PasswordConfig `yaml:"password" toml:"password"`

	TokenTTL    time.Duration `yaml:"-" toml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl" toml:"token_ttl"`
}

// PasswordConfig holds argon2id cost parameters. Zero values use library defaults.
type PasswordConfig struct {
	MemoryKiB   uint32 `yaml:"memory_kib" toml:"memory_kib"`
	Iterations  uint32 `yaml:"iterations" toml:"iterations"`
	Parallelism uint8  `yaml:"parallelism" toml:"parallelism"`
}

// CORSConfig holds the browser origin allowed outside debug mode.
type CORSConfig struct {
	FrontendURL string `yaml:"frontend_url" toml:"frontend_url"`
}

// LLMConfig holds the OpenAI-compatible provider settings
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url" toml:"base_url"`
	APIKey      string  `yaml:"api_key" toml:"api_key"`
	Model       string  `yaml:"model" toml:"model"`
	MaxTokens   int     `yaml:"max_tokens" toml:"max_tokens"`
	Temperature float32 `yaml:"temperature" toml:"temperature"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// SessionsConfig holds conversation session storage settings
type SessionsConfig struct {
	Store       string      `yaml:"store" toml:"store"` // memory or redis
	MaxSessions int         `yaml:"max_sessions" toml:"max_sessions"`
	MaxHistory  int         `yaml:"max_history" toml:"max_history"`
	Redis       RedisConfig `yaml:"redis" toml:"redis"`

	TTL    time.Duration `yaml:"-" toml:"-"`
	TTLRaw string        `yaml:"ttl" toml:"ttl"`
}

// RedisConfig holds the redis session store connection
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
	Prefix   string `yaml:"prefix" toml:"prefix"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a configuration with every optional field filled in.
// The secret key is left empty and must come from the file or SECRET_KEY.
func Default() *Config {
	return &Config{
		AppName: "AlgoSensei",
		Server: ServerConfig{
			HTTPAddr: "localhost:8000",
		},
		Database: DatabaseConfig{
			Driver:             "sqlite",
			Path:               "algosensei.db",
			MaxOpenConns:       7,
			MaxIdleConns:       5,
			ConnMaxLifetimeRaw: "30m",
		},
		Auth: AuthConfig{
			Algorithm:   "HS256",
			TokenTTLRaw: "24h",
		},
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			MaxTokens:   1024,
			Temperature: 0.7,
			TimeoutRaw:  "60s",
		},
		Sessions: SessionsConfig{
			Store:       "memory",
			MaxSessions: 1000,
			MaxHistory:  20,
			TTLRaw:      "1h",
			Redis: RedisConfig{
				Prefix: "algosensei:session:",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded, then the
// well-known override variables are applied. A .toml extension selects TOML;
// anything else is parsed as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	return finish(cfg)
}

// LoadOrDefault behaves like Load but starts from Default when path is empty
// or does not exist, so a deployment can be configured from env alone.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("checking config file: %w", err)
		}
	}
	return finish(Default())
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from the given .env files into the
// process environment. Missing files are skipped and variables that are
// already set are left alone.
func LoadEnvFile(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnv overlays the deployment environment variables onto cfg.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("APP_NAME", &cfg.AppName)
	str("SECRET_KEY", &cfg.Auth.SecretKey)
	str("ALGORITHM", &cfg.Auth.Algorithm)
	str("FRONTEND_URL", &cfg.CORS.FrontendURL)
	str("DATABASE_DRIVER", &cfg.Database.Driver)
	str("OPENAI_API_KEY", &cfg.LLM.APIKey)
	str("LLM_BASE_URL", &cfg.LLM.BaseURL)
	str("LLM_MODEL", &cfg.LLM.Model)

	if v, ok := lookup("DEBUG"); ok && v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DEBUG %q: %w", v, err)
		}
		cfg.Debug = debug
	}

	if v, ok := lookup("ACCESS_TOKEN_EXPIRE_MINUTES"); ok && v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES %q: %w", v, err)
		}
		cfg.Auth.TokenTTLRaw = (time.Duration(minutes) * time.Minute).String()
	}

	if v, ok := lookup("REDIS_ADDR"); ok && v != "" {
		cfg.Sessions.Redis.Addr = v
		cfg.Sessions.Store = "redis"
	}

	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		if d, _ := lookup("DATABASE_DRIVER"); d == "" && isPostgresURL(v) {
			cfg.Database.Driver = "postgres"
		}
		if cfg.Database.Driver == "sqlite" {
			cfg.Database.Path = v
		} else {
			cfg.Database.DSN = v
		}
	} else if dsn := postgresDSNFromParts(lookup); dsn != "" {
		cfg.Database.DSN = dsn
		if _, ok := lookup("DATABASE_DRIVER"); !ok {
			cfg.Database.Driver = "postgres"
		}
	}

	return nil
}

// isPostgresURL reports whether v uses a postgres URL scheme.
func isPostgresURL(v string) bool {
	return strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://")
}

// postgresDSNFromParts builds a URL from DB_HOST, DB_PORT, DB_NAME, DB_USER,
// and DB_PASS. It returns "" when DB_HOST is unset.
func postgresDSNFromParts(lookup func(string) (string, bool)) string {
	host, _ := lookup("DB_HOST")
	if host == "" {
		return ""
	}
	port, _ := lookup("DB_PORT")
	if port == "" {
		port = "5432"
	}
	name, _ := lookup("DB_NAME")
	user, _ := lookup("DB_USER")
	pass, _ := lookup("DB_PASS")

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + name,
	}
	if user != "" {
		u.User = url.UserPassword(user, pass)
	}
	return u.String()
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Auth.SecretKey == "" {
		return fmt.Errorf("auth.secret_key is required (or set SECRET_KEY)")
	}
	if len(c.Auth.SecretKey) < minSecretLength {
		return fmt.Errorf("auth.secret_key must be at least %d bytes, got %d", minSecretLength, len(c.Auth.SecretKey))
	}

	switch c.Auth.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("auth.algorithm %q is not supported (want HS256, HS384, or HS512)", c.Auth.Algorithm)
	}

	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver %q is not supported (want sqlite, postgres, or memory)", c.Database.Driver)
	}

	switch c.Sessions.Store {
	case "memory":
	case "redis":
		if c.Sessions.Redis.Addr == "" {
			return fmt.Errorf("sessions.redis.addr is required for the redis session store")
		}
	default:
		return fmt.Errorf("sessions.store %q is not supported (want memory or redis)", c.Sessions.Store)
	}

	if c.Sessions.MaxHistory < 0 {
		return fmt.Errorf("sessions.max_history must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"database.conn_max_lifetime", cfg.Database.ConnMaxLifetimeRaw, &cfg.Database.ConnMaxLifetime},
		{"auth.token_ttl", cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL},
		{"llm.timeout", cfg.LLM.TimeoutRaw, &cfg.LLM.Timeout},
		{"sessions.ttl", cfg.Sessions.TTLRaw, &cfg.Sessions.TTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}

// LogLevel returns the configured level, or debug when Debug is set and no
// level was chosen explicitly.
func (c *Config) LogLevel() string {
	if c.Debug && (c.Logging.Level == "" || c.Logging.Level == "info") {
		return "debug"
	}
	if c.Logging.Level == "" {
		return "info"
	}
	return c.Logging.Level
}
