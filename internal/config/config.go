// Package config loads client settings from defaults, an optional YAML file
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/omochice/hybrid-chat/internal/control"
	"github.com/omochice/hybrid-chat/internal/trust"
)

// Push transports.
const (
	TransportTLS       = "tls"
	TransportWebSocket = "wss"
)

// Config holds all client settings.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Trust   TrustConfig   `yaml:"trust"`
	Push    PushConfig    `yaml:"push"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig locates the control endpoint.
type ServerConfig struct {
	Host            string            `yaml:"host"`
	Port            int               `yaml:"port"`
	ConnectTimeout  string            `yaml:"connect_timeout"`
	ResponseTimeout string            `yaml:"response_timeout"`
	Endpoints       control.Endpoints `yaml:"endpoints"`
}

// TrustConfig locates the credential file.
type TrustConfig struct {
	Path     string `yaml:"path"`
	Password string `yaml:"password"`
}

// PushConfig selects the push transport.
type PushConfig struct {
	Transport   string `yaml:"transport"` // tls, wss
	Path        string `yaml:"path"`      // wss only
	Binary      bool   `yaml:"binary"`    // wss only
	DialTimeout string `yaml:"dial_timeout"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            12345,
			ConnectTimeout:  "5s",
			ResponseTimeout: "10s",
			Endpoints:       control.DefaultEndpoints(),
		},
		Trust: TrustConfig{
			Path:     "certs/truststore.p12",
			Password: trust.DefaultPassword,
		},
		Push: PushConfig{
			Transport:   TransportTLS,
			Path:        "/push",
			DialTimeout: "5s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set.
// Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error; an empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if host := os.Getenv("CHAT_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("CHAT_PORT"); port != "" {
		p, err := strconv.Atoi(strings.TrimSpace(port))
		if err != nil {
			return fmt.Errorf("invalid CHAT_PORT value: %q", port)
		}
		c.Server.Port = p
	}
	if path := os.Getenv("CHAT_TRUSTSTORE"); path != "" {
		c.Trust.Path = path
	}
	if pw, ok := os.LookupEnv("CHAT_TRUSTSTORE_PASSWORD"); ok {
		c.Trust.Password = pw
	}
	if transport := os.Getenv("CHAT_PUSH_TRANSPORT"); transport != "" {
		c.Push.Transport = strings.ToLower(transport)
	}
	if level := os.Getenv("CHAT_LOG_LEVEL"); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("server host not configured")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Trust.Path == "" {
		return fmt.Errorf("trust store path not configured")
	}

	switch c.Push.Transport {
	case TransportTLS, TransportWebSocket:
	default:
		return fmt.Errorf("unknown push transport %q (want %s or %s)", c.Push.Transport, TransportTLS, TransportWebSocket)
	}
	if c.Push.Binary && c.Push.Transport != TransportWebSocket {
		return fmt.Errorf("binary frames require the %s push transport", TransportWebSocket)
	}

	for name, raw := range map[string]string{
		"connect_timeout":  c.Server.ConnectTimeout,
		"response_timeout": c.Server.ResponseTimeout,
		"dial_timeout":     c.Push.DialTimeout,
	} {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	return nil
}

// GetConnectTimeout returns the control connect timeout.
func (c *Config) GetConnectTimeout() time.Duration {
	return parseDuration(c.Server.ConnectTimeout, control.DefaultConnectTimeout)
}

// GetResponseTimeout returns the control response timeout.
func (c *Config) GetResponseTimeout() time.Duration {
	return parseDuration(c.Server.ResponseTimeout, control.DefaultResponseTimeout)
}

// GetDialTimeout returns the push dial timeout.
func (c *Config) GetDialTimeout() time.Duration {
	return parseDuration(c.Push.DialTimeout, 5*time.Second)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
