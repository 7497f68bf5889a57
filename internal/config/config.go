// Package config loads the capibara configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// EnvIntrospectionToken overrides introspection.token so the secret need
// not live in the file.
const EnvIntrospectionToken = "CAPIBARA_INTROSPECTION_TOKEN"

// validate is shared; validator caches struct metadata.
var validate = validator.New()

// Config is the full configuration.
type Config struct {
	Environment   string              `yaml:"environment" validate:"required,oneof=development staging production"`
	Registry      RegistryConfig      `yaml:"registry"`
	Catalog       [][]string          `yaml:"catalog" validate:"dive,min=1,dive,required"`
	Server        ServerConfig        `yaml:"server"`
	Introspection IntrospectionConfig `yaml:"introspection"`
	Log           LogConfig           `yaml:"log"`
}

// RegistryConfig lists where capability declarations are read from.
type RegistryConfig struct {
	Paths []string `yaml:"paths" validate:"dive,required"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// IntrospectionConfig controls the graph export endpoint.
type IntrospectionConfig struct {
	// Enabled defaults to true outside production.
	Enabled *bool  `yaml:"enabled"`
	Token   string `yaml:"token"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" validate:"required,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"required,oneof=text json"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Environment: EnvDevelopment,
		Server:      ServerConfig{Addr: ":8080"},
		Log:         LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over Default and validates the result. An empty path
// yields the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if tok := os.Getenv(EnvIntrospectionToken); tok != "" {
		cfg.Introspection.Token = tok
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// IntrospectionAllowed reports whether the graph export may be served.
// Production requires an explicit token even when enabled.
func (c Config) IntrospectionAllowed() bool {
	enabled := c.Environment != EnvProduction
	if c.Introspection.Enabled != nil {
		enabled = *c.Introspection.Enabled
	}
	if !enabled {
		return false
	}
	if c.Environment == EnvProduction && c.Introspection.Token == "" {
		return false
	}
	return true
}

// Level maps Log.Level to a slog.Level.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger builds a logger writing to w in the configured format.
func (c Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
