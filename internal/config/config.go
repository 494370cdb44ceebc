package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv
const EnvPrefix = "RETROBOARD_"

// Storage backends
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the runtime configuration of the retro server
type Config struct {
	Storage   *StorageConfig   `mapstructure:"storage" envPrefix:"STORAGE_"`
	HTTP      *HTTPConfig      `mapstructure:"http" envPrefix:"HTTP_"`
	WebSocket *WebSocketConfig `mapstructure:"websocket" envPrefix:"WEBSOCKET_"`
	Retro     *RetroConfig     `mapstructure:"retro" envPrefix:"RETRO_"`
}

// StorageConfig selects and configures the session store
type StorageConfig struct {
	Backend       string        `mapstructure:"backend" env:"BACKEND"`
	DataDir       string        `mapstructure:"data_dir" env:"DATA_DIR"`
	SQLitePath    string        `mapstructure:"sqlite_path" env:"SQLITE_PATH"`
	SQLiteTimeout time.Duration `mapstructure:"sqlite_timeout" env:"SQLITE_TIMEOUT"`
	RedisAddr     string        `mapstructure:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"redis_db" env:"REDIS_DB"`
}

type HTTPConfig struct {
	Host         string        `mapstructure:"host" env:"HOST"`
	Port         int           `mapstructure:"port" env:"PORT"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" env:"WRITE_TIMEOUT"`
	CORSOrigin   string        `mapstructure:"cors_origin" env:"CORS_ORIGIN"`
}

// Addr returns the listen address
func (h *HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// WebSocketConfig holds the heartbeat of the event stream
type WebSocketConfig struct {
	PingInterval time.Duration `mapstructure:"ping_interval" env:"PING_INTERVAL"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" env:"WRITE_TIMEOUT"`
	BufferSize   int           `mapstructure:"buffer_size" env:"BUFFER_SIZE"`
}

// RetroConfig holds the retro defaults and per-connection limits
type RetroConfig struct {
	DefaultTimerDuration int `mapstructure:"default_timer_duration" env:"DEFAULT_TIMER_DURATION"`
	CommandsPerMinute    int `mapstructure:"commands_per_minute" env:"COMMANDS_PER_MINUTE"`
}

// DefaultConfig returns the settings used when nothing overrides them:
// file storage under ./data, HTTP on 3001, a 30s heartbeat.
func DefaultConfig() *Config {
	return &Config{
		Storage: &StorageConfig{
			Backend:       BackendFile,
			DataDir:       "./data",
			SQLitePath:    "./data/retroboard.db",
			SQLiteTimeout: 30 * time.Second,
			RedisAddr:     "localhost:6379",
		},
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         3001,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			CORSOrigin:   "*",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 5 * time.Second,
			BufferSize:   1024,
		},
		Retro: &RetroConfig{
			DefaultTimerDuration: 300,
			CommandsPerMinute:    120,
		},
	}
}

// Validate rejects configurations the server cannot start with
func (c *Config) Validate() error {
	if c.Storage == nil {
		return errors.New("storage configuration is required")
	}
	switch c.Storage.Backend {
	case BackendFile:
		if c.Storage.DataDir == "" {
			return errors.New("storage data dir cannot be empty")
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("sqlite path cannot be empty")
		}
		if c.Storage.SQLiteTimeout <= 0 {
			return errors.New("sqlite timeout must be positive")
		}
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			return errors.New("redis address cannot be empty")
		}
		if c.Storage.RedisDB < 0 {
			return errors.New("redis db cannot be negative")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.HTTP == nil {
		return errors.New("HTTP configuration is required")
	}
	// Port 0 binds an ephemeral port
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return errors.New("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return errors.New("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return errors.New("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return errors.New("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return errors.New("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return errors.New("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return errors.New("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return errors.New("WebSocket buffer size must be positive")
	}

	if c.Retro == nil {
		return errors.New("retro configuration is required")
	}
	if c.Retro.DefaultTimerDuration <= 0 {
		return errors.New("default timer duration must be positive")
	}
	if c.Retro.CommandsPerMinute <= 0 {
		return errors.New("commands per minute must be positive")
	}

	return nil
}

// LoadFromEnv overlays RETROBOARD_* environment variables on the defaults,
// e.g. RETROBOARD_HTTP_PORT or RETROBOARD_STORAGE_BACKEND.
func LoadFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadFromFile reads a JSON or YAML file (chosen by extension) over the
// defaults. Durations are written as strings such as "30s".
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := applyFile(cfg, path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadConfigWithPrecedence resolves file > environment > defaults. An empty
// path skips the file.
func LoadConfigWithPrecedence(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
