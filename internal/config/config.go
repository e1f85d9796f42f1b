package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultHost       = "localhost"
	DefaultPort       = 12943
	DefaultMockListen = "127.0.0.1:12943"
)

// ClientConfig addresses the remote key-value endpoint.
// A zero Timeout leaves dial and I/O bounded only by the transport.
type ClientConfig struct {
	Host      string
	Port      int
	Timeout   time.Duration
	HalfClose bool
	LogLevel  string
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Host: DefaultHost,
		Port: DefaultPort,
	}
}

// WithDefaults fills unset address fields.
func (c ClientConfig) WithDefaults() ClientConfig {
	if strings.TrimSpace(c.Host) == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	return c
}

func (c ClientConfig) Addr() string {
	return net.JoinHostPort(strings.TrimSpace(c.Host), strconv.Itoa(c.Port))
}

func (c ClientConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("client config missing host")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("client config port out of range: %d", c.Port)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("client config negative timeout: %v", c.Timeout)
	}
	return nil
}

// MockConfig configures the reference endpoint served by ohuamock.
type MockConfig struct {
	Listen        string
	MetricsListen string
	LogLevel      string
}

func DefaultMockConfig() MockConfig {
	return MockConfig{Listen: DefaultMockListen}
}

func (c MockConfig) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return fmt.Errorf("mock config missing listen")
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("mock config listen invalid: %w", err)
	}
	if c.MetricsListen != "" {
		if _, _, err := net.SplitHostPort(c.MetricsListen); err != nil {
			return fmt.Errorf("mock config metrics_listen invalid: %w", err)
		}
	}
	return nil
}

type fileConfig struct {
	Host          string `toml:"host" yaml:"host"`
	Port          int    `toml:"port" yaml:"port"`
	Timeout       string `toml:"timeout" yaml:"timeout"`
	TimeoutMS     int64  `toml:"timeout_ms" yaml:"timeout_ms"`
	HalfClose     bool   `toml:"half_close" yaml:"half_close"`
	LogLevel      string `toml:"log_level" yaml:"log_level"`
	Listen        string `toml:"listen" yaml:"listen"`
	MetricsListen string `toml:"metrics_listen" yaml:"metrics_listen"`
}

// LoadClientConfig applies the keys defined in path over DefaultClientConfig.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	raw, defined, err := decodeFile(path)
	if err != nil {
		return ClientConfig{}, err
	}

	if defined("host") {
		if host := strings.TrimSpace(raw.Host); host != "" {
			cfg.Host = host
		}
	}
	if defined("port") {
		cfg.Port = raw.Port
	}
	if defined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return ClientConfig{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if defined("timeout_ms") {
		cfg.Timeout = time.Duration(raw.TimeoutMS) * time.Millisecond
	}
	if defined("half_close") {
		cfg.HalfClose = raw.HalfClose
	}
	if defined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if err := cfg.Validate(); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

// LoadMockConfig applies the keys defined in path over DefaultMockConfig.
func LoadMockConfig(path string) (MockConfig, error) {
	cfg := DefaultMockConfig()
	raw, defined, err := decodeFile(path)
	if err != nil {
		return MockConfig{}, err
	}

	if defined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if defined("metrics_listen") {
		cfg.MetricsListen = strings.TrimSpace(raw.MetricsListen)
	}
	if defined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if err := cfg.Validate(); err != nil {
		return MockConfig{}, err
	}
	return cfg, nil
}

// decodeFile reads a TOML or YAML (by extension) config and reports which
// top-level keys the file defines.
func decodeFile(path string) (fileConfig, func(string) bool, error) {
	var raw fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fileConfig{}, nil, fmt.Errorf("config load failed (%s): %w", path, err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fileConfig{}, nil, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		var keys map[string]yaml.Node
		if err := yaml.Unmarshal(data, &keys); err != nil {
			return fileConfig{}, nil, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		return raw, func(key string) bool {
			_, ok := keys[key]
			return ok
		}, nil
	default:
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return fileConfig{}, nil, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		return raw, func(key string) bool {
			return meta.IsDefined(key)
		}, nil
	}
}
