package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Network  NetworkConfig  `toml:"network"`
	Identity IdentityConfig `toml:"identity"`
	Logging  LoggingConfig  `toml:"logging"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

type ServerConfig struct {
	Name string `toml:"name"`

	// ProtocolVersion is the single client protocol revision the server
	// speaks. Handshakes carrying any other version are turned away.
	ProtocolVersion int32 `toml:"protocol_version"`

	// StatusFile points at the YAML document served to status pings.
	StatusFile string `toml:"status_file"`

	StartTime int64 // set at boot, not from config
}

type NetworkConfig struct {
	BindAddress  string        `toml:"bind_address"`
	InQueueSize  int           `toml:"in_queue_size"`
	OutQueueSize int           `toml:"out_queue_size"`
	WriteTimeout time.Duration `toml:"write_timeout"`
	ReadTimeout  time.Duration `toml:"read_timeout"`

	// PacketsPerSecond caps the sustained inbound rate per session.
	// Zero disables the limiter.
	PacketsPerSecond int `toml:"packets_per_second"`

	// DisconnectOnUnknown drops sessions that send unregistered packet
	// ids instead of skipping them.
	DisconnectOnUnknown bool `toml:"disconnect_on_unknown"`
}

type IdentityConfig struct {
	// Enabled turns on identity verification during login. Off, logins
	// complete with a locally derived profile (offline mode).
	Enabled bool          `toml:"enabled"`
	BaseURL string        `toml:"base_url"`
	Timeout time.Duration `toml:"timeout"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Server.StartTime = time.Now().Unix()
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name:            "railsgo",
			ProtocolVersion: 47,
			StatusFile:      "status.yml",
		},
		Network: NetworkConfig{
			BindAddress:         "0.0.0.0:25565",
			InQueueSize:         128,
			OutQueueSize:        256,
			WriteTimeout:        10 * time.Second,
			ReadTimeout:         60 * time.Second,
			PacketsPerSecond:    120,
			DisconnectOnUnknown: false,
		},
		Identity: IdentityConfig{
			Enabled: true,
			BaseURL: "https://sessionserver.mojang.com/session/minecraft",
			Timeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Bind:    "127.0.0.1:9182",
		},
	}
}
