// Package config loads the gateway's own YAML configuration and, per
// spec, the Postgres-style "connection service file" naming the target
// database.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig mirrors pkg/logger.LoggingConfig's fields for YAML loading.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePrefix string `yaml:"file_prefix"`
}

// DatabaseConfig controls the facade's connection pool. DSN is normally
// left empty and filled in from the connection service file (see
// serviceconf.go); a directly-configured DSN takes precedence.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MaxRetries      int           `yaml:"max_retries"`
	BackoffUnit     time.Duration `yaml:"backoff_unit"`
}

// ResolverConfig controls the resolved-call cache and special-name remap.
type ResolverConfig struct {
	SpecialNames  map[string]string `yaml:"special_names"`
	CacheTTL      time.Duration     `yaml:"cache_ttl"`
	SweepInterval time.Duration     `yaml:"sweep_interval"`
}

// ErrorMapConfig controls the error-code mapper's optional Redis cache.
type ErrorMapConfig struct {
	Schema     string `yaml:"schema"`
	RedisAddr  string `yaml:"redis_addr"`
	RedisDB    int    `yaml:"redis_db"`
	RedisCache bool   `yaml:"redis_cache"`
}

// RateLimitConfig controls the per-host token bucket.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// AdminConfig controls the JWT-guarded /admin/cache endpoint. Empty
// Secret disables the endpoint entirely.
type AdminConfig struct {
	Secret string `yaml:"secret"`
}

// CORSConfig lists the origins allowed to call the gateway; an empty list
// allows any origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig enables the optional /ws transport.
type WebSocketConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Config is the top-level gateway configuration.
type Config struct {
	Server      ServerConfig    `yaml:"server"`
	Logging     LoggingConfig   `yaml:"logging"`
	Database    DatabaseConfig  `yaml:"database"`
	Resolver    ResolverConfig  `yaml:"resolver"`
	ErrorMap    ErrorMapConfig  `yaml:"error_map"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Admin       AdminConfig     `yaml:"admin"`
	CORS        CORSConfig      `yaml:"cors"`
	WebSocket   WebSocketConfig `yaml:"websocket"`
	ServiceFile string          `yaml:"service_file"`
	Service     string          `yaml:"service"`
}

// Load reads the gateway config from path, applying defaults for any
// zero-valued field a fresh deployment would otherwise have to spell out.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a Config populated with the gateway's out-of-the-box
// settings, the way the teacher's own service defaults ship one service
// per port pre-enabled.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			MaxRetries:      3,
			BackoffUnit:     3 * time.Second,
		},
		Resolver: ResolverConfig{
			CacheTTL:      0,
			SweepInterval: 0,
		},
		ErrorMap: ErrorMapConfig{
			Schema: "public",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
		},
		CORS: CORSConfig{},
	}
}
