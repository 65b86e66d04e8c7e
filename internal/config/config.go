package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all client settings.
type Config struct {
	Gateway *GatewayConfig `yaml:"gateway"`
	Archive *ArchiveConfig `yaml:"archive"`
	Log     *LogConfig     `yaml:"log"`
}

// GatewayConfig controls the transport connection to the chat gateway.
type GatewayConfig struct {
	URL               string        `yaml:"url"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	ReconnectAttempts int           `yaml:"reconnect_attempts"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	JoinTimeout       time.Duration `yaml:"join_timeout"`
}

// ArchiveConfig controls the local transcript recorder. An empty path
// disables recording.
type ArchiveConfig struct {
	Path string `yaml:"path"`
}

// LogConfig selects the logging level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns production-ready defaults. The 5 second join
// timeout is the soft fallback that clears a stuck loading state.
func DefaultConfig() *Config {
	return &Config{
		Gateway: &GatewayConfig{
			URL:               "http://localhost:8080",
			HandshakeTimeout:  10 * time.Second,
			WriteTimeout:      5 * time.Second,
			ReadTimeout:       60 * time.Second,
			PingInterval:      30 * time.Second,
			ReconnectAttempts: 5,
			ReconnectDelay:    2 * time.Second,
			JoinTimeout:       5 * time.Second,
		},
		Archive: &ArchiveConfig{
			Path: "",
		},
		Log: &LogConfig{
			Level: "info",
		},
	}
}

// Validate rejects configurations that cannot produce a working client.
func (c *Config) Validate() error {
	if c.Gateway == nil {
		return fmt.Errorf("gateway configuration is required")
	}

	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway URL cannot be empty")
	}

	if c.Gateway.HandshakeTimeout <= 0 {
		return fmt.Errorf("gateway handshake timeout must be positive")
	}

	if c.Gateway.WriteTimeout <= 0 {
		return fmt.Errorf("gateway write timeout must be positive")
	}

	if c.Gateway.ReadTimeout <= 0 {
		return fmt.Errorf("gateway read timeout must be positive")
	}

	if c.Gateway.PingInterval <= 0 {
		return fmt.Errorf("gateway ping interval must be positive")
	}

	if c.Gateway.ReconnectAttempts < 0 {
		return fmt.Errorf("gateway reconnect attempts cannot be negative")
	}

	if c.Gateway.ReconnectDelay <= 0 {
		return fmt.Errorf("gateway reconnect delay must be positive")
	}

	if c.Gateway.JoinTimeout <= 0 {
		return fmt.Errorf("gateway join timeout must be positive")
	}

	if c.Archive == nil {
		return fmt.Errorf("archive configuration is required")
	}

	if c.Log == nil {
		return fmt.Errorf("log configuration is required")
	}

	return nil
}

// LoadFromEnv applies CHATRELAY_* environment variables over defaults.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if url := os.Getenv("CHATRELAY_GATEWAY_URL"); url != "" {
		config.Gateway.URL = url
	}

	if attempts := os.Getenv("CHATRELAY_RECONNECT_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil {
			config.Gateway.ReconnectAttempts = n
		}
	}

	if delay := os.Getenv("CHATRELAY_RECONNECT_DELAY"); delay != "" {
		if d, err := time.ParseDuration(delay); err == nil {
			config.Gateway.ReconnectDelay = d
		}
	}

	if timeout := os.Getenv("CHATRELAY_JOIN_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Gateway.JoinTimeout = d
		}
	}

	if timeout := os.Getenv("CHATRELAY_HANDSHAKE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Gateway.HandshakeTimeout = d
		}
	}

	if path := os.Getenv("CHATRELAY_ARCHIVE_PATH"); path != "" {
		config.Archive.Path = path
	}

	if level := os.Getenv("CHATRELAY_LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}

	return config
}

// LoadFromFile reads a YAML configuration file over defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// LoadWithPrecedence loads configuration with file > env > defaults
// precedence. A missing or unreadable file falls back to the environment.
func LoadWithPrecedence(configPath string) *Config {
	config := LoadFromEnv()

	if configPath != "" {
		if fileConfig, err := LoadFromFile(configPath); err == nil {
			config = fileConfig
		}
	}

	return config
}
