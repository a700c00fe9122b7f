// Package config loads the server configuration from file, environment and
// defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root server configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Data       DataConfig       `mapstructure:"data"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Simulation SimulationLimits `mapstructure:"simulation"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
}

// ServerConfig is the HTTP listener configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig controls logging output
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DataConfig locates the return-series catalog
type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

// CORSConfig lists the allowed browser origins
type CORSConfig struct {
	Origins []string `mapstructure:"origins"`
}

// SimulationLimits carries the server-side simulation defaults. Zero workers
// means one per CPU.
type SimulationLimits struct {
	Workers   int `mapstructure:"workers"`
	BatchSize int `mapstructure:"batchSize"`
}

// WebSocketConfig bounds the progress stream
type WebSocketConfig struct {
	PingInterval time.Duration `mapstructure:"pingInterval"`
	SendBuffer   int           `mapstructure:"sendBuffer"`
	MaxClients   int           `mapstructure:"maxClients"`
}

// Load reads the configuration. An explicit path must exist; with an empty
// path the loader searches for server.yaml and falls back to defaults when
// none is found. Environment variables with the WEALTH_ prefix override the
// file (WEALTH_SERVER_PORT overrides server.port).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("server")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	v.SetEnvPrefix("WEALTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("data.dir", "./data")
	v.SetDefault("cors.origins", []string{"*"})
	v.SetDefault("simulation.workers", 0)
	v.SetDefault("simulation.batchSize", 2000)
	v.SetDefault("websocket.pingInterval", "30s")
	v.SetDefault("websocket.sendBuffer", 64)
	v.SetDefault("websocket.maxClients", 256)
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.Simulation.Workers < 0 {
		return fmt.Errorf("simulation.workers must not be negative, got %d", c.Simulation.Workers)
	}
	if c.Simulation.BatchSize < 0 {
		return fmt.Errorf("simulation.batchSize must not be negative, got %d", c.Simulation.BatchSize)
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("websocket.pingInterval must be positive, got %v", c.WebSocket.PingInterval)
	}
	return nil
}

// Addr returns the listen address in host:port form
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
