package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported database/sql driver names
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	// App
	Port     string
	Env      string
	LogLevel string

	// Database
	DatabaseURL    string
	DatabaseDriver string

	// Locking
	RedisURL string
	LockTTL  time.Duration

	// Timeouts
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("env", "development")
	v.SetDefault("log_level", "")
	v.SetDefault("database_url", "./bitespeed.db")
	v.SetDefault("database_driver", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("lock_ttl", 10*time.Second)
	v.SetDefault("request_timeout", 5*time.Second)
	v.SetDefault("shutdown_timeout", 5*time.Second)
}

// New returns a viper instance wired to the environment with defaults set.
// A .env file in the working directory is loaded first if present.
func New() *viper.Viper {
	// Missing .env is fine outside local development
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	return v
}

// FromViper builds and validates a Config from v
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:            v.GetString("port"),
		Env:             v.GetString("env"),
		LogLevel:        v.GetString("log_level"),
		DatabaseURL:     v.GetString("database_url"),
		DatabaseDriver:  v.GetString("database_driver"),
		RedisURL:        v.GetString("redis_url"),
		LockTTL:         v.GetDuration("lock_ttl"),
		RequestTimeout:  v.GetDuration("request_timeout"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
	}

	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = DriverFromURL(cfg.DatabaseURL)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// DriverFromURL picks postgres for postgres:// URLs and sqlite3 for anything else
func DriverFromURL(url string) string {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DatabaseDriver != DriverSQLite && c.DatabaseDriver != DriverPostgres {
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
