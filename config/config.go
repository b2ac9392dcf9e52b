/*
Package config loads the server configuration.

PURPOSE:
  Defaults, overlaid by an optional YAML file, overlaid by command-line
  flags (applied in cmd/server). Validate runs after every layer.

EXAMPLE FILE:
  server:
    listen: ":8080"
    shutdownTimeout: 30s
  store:
    driver: sqlite
    path: ./data/points.db
  log:
    level: debug
    format: json
  cors:
    allowedOrigins: ["http://localhost:5173"]
  seed:
    userID: 0
    userName: default
    payers: [DANNON, UNILEVER, MILLER COORS]
  metrics:
    enabled: true
    path: /metrics
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// SeedConfig names the user that requests without a user id act on, and
// the payers provisioned at startup.
type SeedConfig struct {
	UserID   int64    `yaml:"userID"`
	UserName string   `yaml:"userName"`
	Payers   []string `yaml:"payers"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
	CORS    CORSConfig    `yaml:"cors"`
	Seed    SeedConfig    `yaml:"seed"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen:          ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Driver: DriverSQLite,
			Path:   "points.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Seed: SeedConfig{
			UserID:   0,
			UserName: "default",
			Payers:   []string{"DANNON", "UNILEVER", "MILLER COORS"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if err := cfg.Validate(); err != nil {
			return Config{}, fmt.Errorf("validate config: %w", err)
		}
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

var (
	ErrUnknownDriver = errors.New("store.driver must be one of memory, sqlite, postgres")
	ErrMissingPath   = errors.New("store.path is required for the sqlite driver")
	ErrMissingDSN    = errors.New("store.dsn is required for the postgres driver")
)

// Validate normalizes the config in place and reports the first problem.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	switch cfg.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if strings.TrimSpace(cfg.Store.Path) == "" {
			return ErrMissingPath
		}
	case DriverPostgres:
		if strings.TrimSpace(cfg.Store.DSN) == "" {
			return ErrMissingDSN
		}
	default:
		return fmt.Errorf("%w: got %q", ErrUnknownDriver, cfg.Store.Driver)
	}

	if strings.TrimSpace(cfg.Server.Listen) == "" {
		return fmt.Errorf("server.listen cannot be empty")
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdownTimeout must be positive")
	}
	if cfg.Seed.UserID < 0 {
		return fmt.Errorf("seed.userID cannot be negative")
	}
	for i, name := range cfg.Seed.Payers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("seed.payers[%d] cannot be empty", i)
		}
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/'")
	}
	return nil
}
