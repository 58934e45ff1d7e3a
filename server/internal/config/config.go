package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backend names.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Default values for the server configuration.
const (
	DefaultHost         = "0.0.0.0"
	DefaultHTTPPort     = 5000
	DefaultStaleTimeout = 20 * time.Second
	DefaultUnitName     = "Unknown Unit"
	DefaultFilePath     = "fleet_data.json"
	DefaultSQLitePath   = "fleet.db"
	DefaultRedisAddr    = "localhost:6379"
	DefaultRedisKey     = "fleetpulse:snapshot"
	DefaultLogMaxSizeMB = 100
	DefaultLogBackups   = 5
	DefaultLogMaxAge    = 30
)

// Config holds the server-side configuration parsed from the `server:` section
// of the config file. Other top-level keys (such as `agent:`) are ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// Host is the interface the HTTP API binds to (default 0.0.0.0).
	Host string `yaml:"host"`

	// HTTPPort is the port the HTTP API listens on (default 5000).
	HTTPPort int `yaml:"http_port"`

	Log   LogConfig   `yaml:"log"`
	Fleet FleetConfig `yaml:"fleet"`
	Store StoreConfig `yaml:"store"`
	CORS  CORSConfig  `yaml:"cors"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.HTTPPort)
}

// LogConfig controls structured logging.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`

	// Format is one of: json | text.
	Format string `yaml:"format"`

	// File, when set, receives a copy of every log line with size-based
	// rotation. Stdout logging is always on.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// SlogLevel maps Level to a slog.Level. Unknown values map to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FleetConfig controls vehicle liveness.
type FleetConfig struct {
	// StaleTimeout is how long a vehicle stays live after its last update.
	StaleTimeout time.Duration `yaml:"stale_timeout"`

	// SweepInterval, when positive, removes stale vehicles on a timer in
	// addition to the removal done by every list. Zero disables it.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// DefaultName is stored for updates that carry no name.
	DefaultName string `yaml:"default_name"`
}

// StoreConfig selects and configures the snapshot backend.
type StoreConfig struct {
	// Backend is one of: memory | file | sqlite | redis (default file).
	Backend string `yaml:"backend"`

	// Serialize holds one lock across each load-modify-save cycle.
	Serialize bool `yaml:"serialize"`

	// StrictWrites reports snapshot write failures to clients as 500s
	// instead of logging them and answering success.
	StrictWrites bool `yaml:"strict_writes"`

	File   FileStoreConfig   `yaml:"file"`
	SQLite SQLiteStoreConfig `yaml:"sqlite"`
	Redis  RedisStoreConfig  `yaml:"redis"`
}

// FileStoreConfig configures the JSON file backend.
type FileStoreConfig struct {
	Path string `yaml:"path"`
}

// SQLiteStoreConfig configures the SQLite backend.
type SQLiteStoreConfig struct {
	Path string `yaml:"path"`
}

// RedisStoreConfig configures the redis backend.
type RedisStoreConfig struct {
	Addr string `yaml:"addr"`

	// PasswordEnv is the name of the environment variable holding the password.
	PasswordEnv string `yaml:"password_env"`

	DB  int    `yaml:"db"`
	Key string `yaml:"key"`
}

// Password returns the redis password resolved from the environment.
func (r RedisStoreConfig) Password() string {
	if r.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(r.PasswordEnv)
}

// CORSConfig controls cross-origin access to /api/*.
type CORSConfig struct {
	// AllowedOrigins defaults to ["*"].
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads and parses the config file at path. An empty path returns the
// defaults. Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return defaults()
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     DefaultHost,
			HTTPPort: DefaultHTTPPort,
			Log: LogConfig{
				Level:      "info",
				Format:     "json",
				MaxSizeMB:  DefaultLogMaxSizeMB,
				MaxBackups: DefaultLogBackups,
				MaxAgeDays: DefaultLogMaxAge,
				Compress:   true,
			},
			Fleet: FleetConfig{
				StaleTimeout: DefaultStaleTimeout,
				DefaultName:  DefaultUnitName,
			},
			Store: StoreConfig{
				Backend: BackendFile,
				File:    FileStoreConfig{Path: DefaultFilePath},
				SQLite:  SQLiteStoreConfig{Path: DefaultSQLitePath},
				Redis:   RedisStoreConfig{Addr: DefaultRedisAddr, Key: DefaultRedisKey},
			},
			CORS: CORSConfig{AllowedOrigins: []string{"*"}},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch strings.ToLower(s.Log.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("server.log.level %q unknown: want debug|info|warn|error", s.Log.Level)
	}
	switch s.Log.Format {
	case "json", "text", "":
	default:
		return fmt.Errorf("server.log.format %q unknown: want json|text", s.Log.Format)
	}
	if s.Fleet.StaleTimeout <= 0 {
		return fmt.Errorf("server.fleet.stale_timeout must be positive")
	}
	if s.Fleet.SweepInterval < 0 {
		return fmt.Errorf("server.fleet.sweep_interval must not be negative")
	}
	switch s.Store.Backend {
	case BackendMemory:
	case BackendFile, "":
		if s.Store.File.Path == "" {
			return fmt.Errorf("server.store.file.path is required for the file backend")
		}
	case BackendSQLite:
		if s.Store.SQLite.Path == "" {
			return fmt.Errorf("server.store.sqlite.path is required for the sqlite backend")
		}
	case BackendRedis:
		if s.Store.Redis.Addr == "" {
			return fmt.Errorf("server.store.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("server.store.backend %q unknown: want memory|file|sqlite|redis", s.Store.Backend)
	}
	return nil
}
