// Package config loads service configuration from defaults, an optional YAML
// file and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar overrides the config file location.
const PathEnvVar = "CONFIG_PATH"

// DefaultPaths are tried in order when CONFIG_PATH is unset.
var DefaultPaths = []string{"config.yaml", "config.yml", "/etc/meal-service/config.yaml"}

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	DB        DBConfig        `koanf:"db"`
	Redis     RedisConfig     `koanf:"redis"`
	Discovery DiscoveryConfig `koanf:"discovery"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type ServerConfig struct {
	Port           string        `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	CORSOrigins    []string      `koanf:"cors_origins"`
}

// Driver values for DBConfig.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type DBConfig struct {
	// Driver is postgres or memory. The memory store loses data on exit.
	Driver       string `koanf:"driver"`
	Host         string `koanf:"host"`
	Port         string `koanf:"port"`
	Name         string `koanf:"name"`
	User         string `koanf:"user"`
	Pass         string `koanf:"pass"`
	SSLMode      string `koanf:"sslmode"`
	PingAttempts int    `koanf:"ping_attempts"`
}

// DSN returns the lib/pq connection URL.
func (d DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", d.User, d.Pass, d.Host, d.Port, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Addr      string        `koanf:"addr"`
	SellerTTL time.Duration `koanf:"seller_ttl"`
}

// DiscoveryConfig tunes the candidate pipeline.
type DiscoveryConfig struct {
	DefaultLimit    int `koanf:"default_limit"`
	MaxLimit        int `koanf:"max_limit"`
	OverfetchFactor int `koanf:"overfetch_factor"`
	SellerWorkers   int `koanf:"seller_workers"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			RequestTimeout: 10 * time.Second,
			CORSOrigins:    []string{"*"},
		},
		DB: DBConfig{
			Driver:       DriverPostgres,
			Host:         "localhost",
			Port:         "5432",
			Name:         "meals_db",
			User:         "meals_user",
			Pass:         "meals",
			SSLMode:      "disable",
			PingAttempts: 10,
		},
		Redis: RedisConfig{
			Enabled:   true,
			Addr:      "localhost:6379",
			SellerTTL: 5 * time.Minute,
		},
		Discovery: DiscoveryConfig{
			DefaultLimit:    20,
			MaxLimit:        100,
			OverfetchFactor: 2,
			SellerWorkers:   8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration. A .env file in the working directory, if
// present, is loaded into the environment first.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	if err := splitCSV(k, "server.cors_origins"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges the rest of the service relies on.
func (c *Config) Validate() error {
	d := c.Discovery
	switch {
	case d.DefaultLimit <= 0:
		return fmt.Errorf("discovery.default_limit must be positive, got %d", d.DefaultLimit)
	case d.MaxLimit < d.DefaultLimit:
		return fmt.Errorf("discovery.max_limit (%d) below default_limit (%d)", d.MaxLimit, d.DefaultLimit)
	case d.OverfetchFactor < 1:
		return fmt.Errorf("discovery.overfetch_factor must be >= 1, got %d", d.OverfetchFactor)
	case d.SellerWorkers < 1:
		return fmt.Errorf("discovery.seller_workers must be >= 1, got %d", d.SellerWorkers)
	case c.Server.Port == "":
		return errors.New("server.port is required")
	case c.DB.Driver != DriverPostgres && c.DB.Driver != DriverMemory:
		return fmt.Errorf("db.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, c.DB.Driver)
	}
	return nil
}

func findFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envAliases keeps the flat variable names used by the docker-compose setup.
var envAliases = map[string]string{
	"port":       "server.port",
	"redis_addr": "redis.addr",
	"log_level":  "logging.level",
	"log_format": "logging.format",
}

var sections = []string{"server", "db", "redis", "discovery", "logging"}

// envKey maps DB_HOST to db.host and DISCOVERY_SELLER_WORKERS to
// discovery.seller_workers. Unknown variables map to "" and are skipped.
func envKey(key string) string {
	key = strings.ToLower(key)
	if alias, ok := envAliases[key]; ok {
		return alias
	}
	for _, s := range sections {
		if rest, ok := strings.CutPrefix(key, s+"_"); ok && rest != "" {
			return s + "." + rest
		}
	}
	return ""
}

func splitCSV(k *koanf.Koanf, path string) error {
	s, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	parts := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if err := k.Set(path, parts); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}
