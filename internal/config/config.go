// Package config loads client configuration from defaults, an optional YAML
// file, and environment variables, in that order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/Ayaanthaher/ticket-booking/internal/apiclient"
	"github.com/Ayaanthaher/ticket-booking/internal/credstore"
)

// FileEnv names the environment variable pointing at a YAML config file.
const FileEnv = "TICKETS_CONFIG"

// Config is the client's runtime configuration.
type Config struct {
	APIURL         string        `yaml:"api_url"          env:"TICKETS_API_URL"`
	MaxAttempts    int           `yaml:"max_attempts"     env:"TICKETS_MAX_ATTEMPTS"`
	BaseDelay      time.Duration `yaml:"base_delay"       env:"TICKETS_BASE_DELAY"`
	RetryMode      string        `yaml:"retry_mode"       env:"TICKETS_RETRY_MODE"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"  env:"TICKETS_ATTEMPT_TIMEOUT"`

	CredentialStore string `yaml:"credential_store" env:"TICKETS_CREDENTIAL_STORE"`
	CredentialPath  string `yaml:"credential_path"  env:"TICKETS_CREDENTIAL_PATH"`
	DatabaseURL     string `yaml:"database_url"     env:"TICKETS_DATABASE_URL"`

	LogLevel    string `yaml:"log_level"    env:"TICKETS_LOG_LEVEL"`
	OTelEnabled bool   `yaml:"otel_enabled" env:"TICKETS_OTEL_ENABLED"`
	OTelURL     string `yaml:"otel_url"     env:"TICKETS_OTEL_URL"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		APIURL:          "http://localhost:5000/api",
		MaxAttempts:     apiclient.DefaultMaxAttempts,
		BaseDelay:       apiclient.DefaultBaseDelay,
		RetryMode:       "all",
		AttemptTimeout:  30 * time.Second,
		CredentialStore: "file",
		CredentialPath:  credstore.DefaultPath(),
		LogLevel:        "info",
	}
}

// Load builds a Config. path may be empty; then $TICKETS_CONFIG is consulted.
// Environment variables override file values, which override defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects values the client cannot run with.
func (c Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("api url %q must be an absolute http(s) url", c.APIURL))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts))
	}
	if c.BaseDelay < 0 {
		errs = append(errs, fmt.Errorf("base delay cannot be negative"))
	}
	if c.AttemptTimeout < 0 {
		errs = append(errs, fmt.Errorf("attempt timeout cannot be negative"))
	}
	if _, err := apiclient.ParseRetryMode(c.RetryMode); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.CredentialStore) {
	case "memory":
	case "file", "sqlite":
		if c.CredentialPath == "" {
			errs = append(errs, fmt.Errorf("credential path is required for the %s store", c.CredentialStore))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("database url is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown credential store %q", c.CredentialStore))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// Store returns the credential store options.
func (c Config) Store() credstore.Options {
	return credstore.Options{
		Kind:        c.CredentialStore,
		Path:        c.CredentialPath,
		DatabaseURL: c.DatabaseURL,
	}
}
