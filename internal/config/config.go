// Package config loads the daemon configuration from environment variables.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the daemon configuration.
type Config struct {
	Environment string
	ListenAddr  string
	// DatabaseURL selects the store: postgres:// or postgresql:// URLs use
	// the PostgreSQL store, anything else is treated as a SQLite file path.
	DatabaseURL string
	TLSCertFile string
	TLSKeyFile  string
	// IdleTimeout bounds how long a connection may sit between commands.
	IdleTimeout time.Duration
	// AcceptRPS and AcceptBurst configure the per-client connection rate
	// limit; zero disables it.
	AcceptRPS   float64
	AcceptBurst int
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: os.Getenv("APP_ENV"),
		ListenAddr:  getenv("BANK_ADDR", ":8888"),
		DatabaseURL: getenv("DATABASE_URL", "./db/bank.db"),
		TLSCertFile: os.Getenv("BANK_TLS_CERT"),
		TLSKeyFile:  os.Getenv("BANK_TLS_KEY"),
		IdleTimeout: time.Duration(getenvInt("BANK_IDLE_TIMEOUT_SECONDS", 120)) * time.Second,
		AcceptRPS:   float64(getenvInt("BANK_ACCEPT_RPS", 0)),
		AcceptBurst: getenvInt("BANK_ACCEPT_BURST", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is complete. Production and
// staging require TLS material; development may listen in plaintext.
func (c *Config) Validate() error {
	var missing []string

	if c.Environment == "" {
		missing = append(missing, "APP_ENV")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("BANK_TLS_CERT and BANK_TLS_KEY must be set together")
	}

	if c.Environment == "production" || c.Environment == "staging" {
		if c.TLSCertFile == "" {
			return errors.New("TLS is required in " + c.Environment + ": set BANK_TLS_CERT and BANK_TLS_KEY")
		}
	}

	if c.IdleTimeout <= 0 {
		return errors.New("BANK_IDLE_TIMEOUT_SECONDS must be positive")
	}

	return nil
}

// UsesPostgres reports whether DatabaseURL points at a PostgreSQL server.
func (c *Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") ||
		strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// UsesTLS reports whether the listener should wrap connections in TLS.
func (c *Config) UsesTLS() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
