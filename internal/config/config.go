package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr              string `yaml:"addr"`
		ReadHeaderTimeout string `yaml:"read_header_timeout"`
	} `yaml:"server"`

	Log struct {
		Env   string `yaml:"env"`
		Level string `yaml:"level"`
		File  struct {
			Path       string `yaml:"path"`
			MaxSizeMB  int    `yaml:"max_size_mb"`
			MaxBackups int    `yaml:"max_backups"`
			MaxAgeDays int    `yaml:"max_age_days"`
			Compress   bool   `yaml:"compress"`
		} `yaml:"file"`
	} `yaml:"log"`

	Storage struct {
		// memory | redis | postgres | badger
		Driver string `yaml:"driver"`
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Postgres struct {
			DSN             string `yaml:"dsn"`
			MaxConns        int    `yaml:"max_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
		Badger struct {
			Path     string `yaml:"path"`
			InMemory bool   `yaml:"in_memory"`
		} `yaml:"badger"`
	} `yaml:"storage"`

	Signature struct {
		DefaultTimeoutMinutes int    `yaml:"default_timeout_minutes"`
		ExpiryWarningDays     int    `yaml:"expiry_warning_days"`
		MinKeyBits            int    `yaml:"min_key_bits"`
		CleanupGrace          string `yaml:"cleanup_grace"`
		CryptoWorkers         int    `yaml:"crypto_workers"`
	} `yaml:"signature"`

	Metrics struct {
		Enabled *bool  `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
}

// Load reads path (a missing file is not an error), applies the dotenv file
// and environment overrides, then fills defaults and validates durations.
func Load(path, envFile string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if envFile != "" {
		// godotenv never overrides variables already set in the process
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}
	applyEnv(&c)

	if err := c.defaults(); err != nil {
		return nil, err
	}
	return &c, nil
}

func applyEnv(c *Config) {
	setStr := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setStr(&c.Server.Addr, "SIGNATURE_ADDR")
	setStr(&c.Log.Env, "APP_ENV")
	setStr(&c.Log.Level, "LOG_LEVEL")
	setStr(&c.Log.File.Path, "SIGNATURE_LOG_FILE")
	setStr(&c.Storage.Driver, "SIGNATURE_STORAGE_DRIVER")
	setStr(&c.Storage.Redis.Addr, "SIGNATURE_REDIS_ADDR")
	setStr(&c.Storage.Redis.Password, "SIGNATURE_REDIS_PASSWORD")
	setStr(&c.Storage.Postgres.DSN, "SIGNATURE_POSTGRES_DSN")
	setStr(&c.Storage.Badger.Path, "SIGNATURE_BADGER_PATH")
	if v := os.Getenv("SIGNATURE_CRYPTO_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Signature.CryptoWorkers = n
		}
	}
}

func (c *Config) defaults() error {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadHeaderTimeout == "" {
		c.Server.ReadHeaderTimeout = "5s"
	}
	if c.Log.Env == "" {
		c.Log.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Redis.Prefix == "" {
		c.Storage.Redis.Prefix = "signature"
	}
	if c.Storage.Badger.Path == "" {
		c.Storage.Badger.Path = "data/badger"
	}
	if c.Signature.DefaultTimeoutMinutes <= 0 {
		c.Signature.DefaultTimeoutMinutes = 30
	}
	if c.Signature.ExpiryWarningDays <= 0 {
		c.Signature.ExpiryWarningDays = 30
	}
	if c.Signature.MinKeyBits <= 0 {
		c.Signature.MinKeyBits = 2048
	}
	if c.Signature.CleanupGrace == "" {
		c.Signature.CleanupGrace = "24h"
	}
	if c.Signature.CryptoWorkers <= 0 {
		c.Signature.CryptoWorkers = runtime.NumCPU()
	}
	if c.Metrics.Enabled == nil {
		on := true
		c.Metrics.Enabled = &on
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	switch c.Storage.Driver {
	case "memory", "redis", "postgres", "badger":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}

	for name, v := range map[string]string{
		"server.read_header_timeout":         c.Server.ReadHeaderTimeout,
		"signature.cleanup_grace":            c.Signature.CleanupGrace,
		"storage.postgres.conn_max_lifetime": c.Storage.Postgres.ConnMaxLifetime,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	return nil
}

func (c *Config) ReadHeaderTimeout() time.Duration { return mustDuration(c.Server.ReadHeaderTimeout) }
func (c *Config) CleanupGrace() time.Duration      { return mustDuration(c.Signature.CleanupGrace) }
func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.Signature.DefaultTimeoutMinutes) * time.Minute
}
func (c *Config) MetricsEnabled() bool { return c.Metrics.Enabled != nil && *c.Metrics.Enabled }

// durations are validated in Load
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
