// Package config provides Viper-based configuration loading for the poker server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the real-time WebSocket endpoint settings.
type ServerConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener.
	Port int `mapstructure:"port"`
	// Path is the URL path upgraded to a WebSocket.
	Path string `mapstructure:"path"`
	// AllowedOrigins restricts the Origin header; empty allows any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// ReadTimeout is how long a connection may stay silent (no frame, no pong).
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-frame write deadline.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// PingInterval is the keep-alive ping period; must be below ReadTimeout.
	PingInterval time.Duration `mapstructure:"ping_interval"`
	// MaxMessageSize bounds inbound frames in bytes.
	MaxMessageSize int64 `mapstructure:"max_message_size"`
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int `mapstructure:"send_buffer"`
	// ShutdownTimeout bounds graceful shutdown of all services.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// HealthConfig holds the gRPC health endpoint settings.
type HealthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	GRPCHost string `mapstructure:"grpc_host"`
	GRPCPort int    `mapstructure:"grpc_port"`
}

// Addr returns the "host:port" gRPC address.
func (h HealthConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.GRPCHost, h.GRPCPort)
}

// TelemetryConfig holds OpenTelemetry tracing settings.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Endpoint is the OTLP/HTTP collector URL, e.g. "http://localhost:4318".
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// PokerConfig holds voting rules.
type PokerConfig struct {
	// Deck lists the card labels offered to clients, in display order.
	Deck []string `mapstructure:"deck"`
	// StrictVotes rejects votes that are not in Deck.
	StrictVotes bool `mapstructure:"strict_votes"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Health    HealthConfig    `mapstructure:"health"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Poker     PokerConfig     `mapstructure:"poker"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateHealth(c.Health); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateTelemetry(c.Telemetry); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validatePoker(c.Poker); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 0 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 0-65535, got %d", s.Port))
	}
	if !strings.HasPrefix(s.Path, "/") {
		errs = append(errs, fmt.Sprintf("server.path must start with '/', got %q", s.Path))
	}
	if s.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if s.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if s.PingInterval <= 0 || s.PingInterval >= s.ReadTimeout {
		errs = append(errs, fmt.Sprintf("server.ping_interval must be positive and below server.read_timeout, got %s", s.PingInterval))
	}
	if s.MaxMessageSize < 1 {
		errs = append(errs, fmt.Sprintf("server.max_message_size must be >= 1, got %d", s.MaxMessageSize))
	}
	if s.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("server.send_buffer must be >= 1, got %d", s.SendBuffer))
	}
	if s.ShutdownTimeout < 0 {
		errs = append(errs, "server.shutdown_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateHealth(h HealthConfig) error {
	if !h.Enabled {
		return nil
	}
	var errs []string
	if h.GRPCHost == "" {
		errs = append(errs, "health.grpc_host must not be empty")
	}
	if h.GRPCPort < 0 || h.GRPCPort > 65535 {
		errs = append(errs, fmt.Sprintf("health.grpc_port must be 0-65535, got %d", h.GRPCPort))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateTelemetry(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	var errs []string
	if t.Endpoint == "" {
		errs = append(errs, "telemetry.endpoint must not be empty when telemetry is enabled")
	}
	if t.ServiceName == "" {
		errs = append(errs, "telemetry.service_name must not be empty")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validatePoker(p PokerConfig) error {
	if len(p.Deck) == 0 {
		return errors.New("poker.deck must not be empty")
	}
	seen := make(map[string]bool, len(p.Deck))
	for _, card := range p.Deck {
		if strings.TrimSpace(card) == "" {
			return errors.New("poker.deck must not contain blank cards")
		}
		if seen[card] {
			return fmt.Errorf("poker.deck contains duplicate card %q", card)
		}
		seen[card] = true
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path loads defaults and
// environment overrides only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with POKER_ prefix
	v.SetEnvPrefix("POKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance holding only the default values.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.path", "/pokerhub")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.read_timeout", "90s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.ping_interval", "30s")
	v.SetDefault("server.max_message_size", 102400)
	v.SetDefault("server.send_buffer", 64)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("health.enabled", true)
	v.SetDefault("health.grpc_host", "127.0.0.1")
	v.SetDefault("health.grpc_port", 50051)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", "scrumpoker")

	v.SetDefault("poker.deck", []string{"☕", "1", "2", "3", "5", "8", "13", "21", "34", "55", "89", "?"})
	v.SetDefault("poker.strict_votes", false)
}
