package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlConfig is the on-disk shape of Config. Durations are strings in Go
// syntax ("60s", "1m30s") because YAML has no duration type.
type yamlConfig struct {
	Addr            string `yaml:"addr"`
	DBPath          string `yaml:"db"`
	ChatLogPath     string `yaml:"chat_log"`
	MetricsAddr     string `yaml:"metrics_addr"`
	EchoBroadcast   bool   `yaml:"echo_broadcast"`
	QueueSize       int    `yaml:"queue_size"`
	MaxAuthAttempts int    `yaml:"max_auth_attempts"`
	AuthTimeout     string `yaml:"auth_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// MarshalYAML implements yaml.Marshaler.
func (c Config) MarshalYAML() (any, error) {
	return yamlConfig{
		Addr:            c.Addr,
		DBPath:          c.DBPath,
		ChatLogPath:     c.ChatLogPath,
		MetricsAddr:     c.MetricsAddr,
		EchoBroadcast:   c.EchoBroadcast,
		QueueSize:       c.QueueSize,
		MaxAuthAttempts: c.MaxAuthAttempts,
		AuthTimeout:     c.AuthTimeout.String(),
		WriteTimeout:    c.WriteTimeout.String(),
		ShutdownTimeout: c.ShutdownTimeout.String(),
	}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler. Fields absent from the document
// keep whatever value the receiver already holds.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	raw := yamlConfig{
		Addr:            c.Addr,
		DBPath:          c.DBPath,
		ChatLogPath:     c.ChatLogPath,
		MetricsAddr:     c.MetricsAddr,
		EchoBroadcast:   c.EchoBroadcast,
		QueueSize:       c.QueueSize,
		MaxAuthAttempts: c.MaxAuthAttempts,
		AuthTimeout:     c.AuthTimeout.String(),
		WriteTimeout:    c.WriteTimeout.String(),
		ShutdownTimeout: c.ShutdownTimeout.String(),
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.Addr = raw.Addr
	c.DBPath = raw.DBPath
	c.ChatLogPath = raw.ChatLogPath
	c.MetricsAddr = raw.MetricsAddr
	c.EchoBroadcast = raw.EchoBroadcast
	c.QueueSize = raw.QueueSize
	c.MaxAuthAttempts = raw.MaxAuthAttempts

	for _, d := range []struct {
		name string
		src  string
		dst  *time.Duration
	}{
		{"auth_timeout", raw.AuthTimeout, &c.AuthTimeout},
		{"write_timeout", raw.WriteTimeout, &c.WriteTimeout},
		{"shutdown_timeout", raw.ShutdownTimeout, &c.ShutdownTimeout},
	} {
		parsed, err := time.ParseDuration(d.src)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	return nil
}

// LoadConfig reads a YAML config file on top of the defaults.
// Fields absent from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI flag
	if err != nil {
		return cfg, fmt.Errorf("server: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("server: parse config: %w", err)
	}
	return cfg, nil
}

// WriteDefaultConfig writes the default config as YAML to path, for operators
// bootstrapping a new deployment. Fails if the file already exists.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("server: config %s already exists", path)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("server: marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("server: write config: %w", err)
	}
	return nil
}
