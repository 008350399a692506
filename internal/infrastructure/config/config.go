package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"

	"github.com/meridian-robotics/rappd/internal/shared/types"
)

// Config holds all daemon configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Robot      RobotConfig      `toml:"robot"`
	Control    ControlConfig    `toml:"control"`
	Apps       AppsConfig       `toml:"apps"`
	Catalog    CatalogConfig    `toml:"catalog"`
	Gateway    GatewayConfig    `toml:"gateway"`
	Capability CapabilityConfig `toml:"capability"`
	Logging    LogConfig        `toml:"logging"`
	RateLimit  RateLimitConfig  `toml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `toml:"port" envconfig:"PORT"`
	Host string `toml:"host" envconfig:"HOST"`
}

// RobotConfig identifies the robot platform this daemon manages.
type RobotConfig struct {
	Name    string `toml:"name" envconfig:"ROBOT_NAME"`
	Type    string `toml:"type" envconfig:"ROBOT_TYPE"`
	Icon    string `toml:"icon" envconfig:"ROBOT_ICON"`
	OS      string `toml:"os" envconfig:"ROBOT_OS"`
	Version string `toml:"version" envconfig:"ROBOT_VERSION"`
	System  string `toml:"system" envconfig:"ROBOT_SYSTEM"`
}

// ControlConfig holds the remote control policy.
type ControlConfig struct {
	AllowList  []string `toml:"allow_list" envconfig:"CONTROL_ALLOW"`
	DenyList   []string `toml:"deny_list" envconfig:"CONTROL_DENY"`
	Standalone bool     `toml:"standalone" envconfig:"STANDALONE"`
}

// AppsConfig tunes how applications are launched.
type AppsConfig struct {
	// OutputToScreen runs launches on a pty and mirrors their output
	// onto the daemon console.
	OutputToScreen bool `toml:"output_to_screen" envconfig:"APP_OUTPUT_TO_SCREEN"`
}

// CatalogConfig holds rapp descriptor discovery configuration.
type CatalogConfig struct {
	Paths []string `toml:"paths" envconfig:"CATALOG_PATHS"`
	Watch bool     `toml:"watch" envconfig:"CATALOG_WATCH"`
}

// GatewayConfig holds the connection gateway endpoints.
type GatewayConfig struct {
	Address       string `toml:"address" envconfig:"GATEWAY_ADDR"`
	HealthAddress string `toml:"health_address" envconfig:"GATEWAY_HEALTH_ADDR"`
	Enabled       bool   `toml:"enabled" envconfig:"GATEWAY_ENABLED"`
	WaitTries     int    `toml:"wait_tries" envconfig:"GATEWAY_WAIT_TRIES"`
}

// CapabilityConfig holds the capability server endpoint.
type CapabilityConfig struct {
	Address string `toml:"address" envconfig:"CAPABILITY_ADDR"`
	Enabled bool   `toml:"enabled" envconfig:"CAPABILITY_ENABLED"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `toml:"level" envconfig:"LOG_LEVEL"`
	Development bool   `toml:"development" envconfig:"LOG_DEV"`
}

// RateLimitConfig holds API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `toml:"requests_per_second" envconfig:"RATE_LIMIT_RPS"`
	Burst             int  `toml:"burst" envconfig:"RATE_LIMIT_BURST"`
	Enabled           bool `toml:"enabled" envconfig:"RATE_LIMIT_ENABLED"`
}

// Load builds configuration by layering an optional TOML file over the
// compiled defaults, then applying RAPPD_* environment overrides. An
// unset variable never clobbers a value set in the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := envconfig.Process("RAPPD", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8088",
			Host: "0.0.0.0",
		},
		Robot: RobotConfig{
			Name:    "robot",
			Type:    "pc",
			OS:      "linux",
			Version: "noble",
			System:  "ros2",
		},
		Control: ControlConfig{
			Standalone: false,
		},
		Catalog: CatalogConfig{
			Paths: []string{"/etc/rappd/rapps"},
			Watch: true,
		},
		Gateway: GatewayConfig{
			Address:       "http://localhost:9420",
			HealthAddress: "localhost:9421",
			Enabled:       true,
			WaitTries:     10,
		},
		Capability: CapabilityConfig{
			Address: "http://localhost:9430",
			Enabled: true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

// Platform assembles the static platform descriptor served by the API.
func (c *Config) Platform() types.PlatformInfo {
	return types.PlatformInfo{
		OS:       c.Robot.OS,
		Version:  c.Robot.Version,
		System:   c.Robot.System,
		Platform: c.Robot.Type,
		Name:     c.Robot.Name,
		Icon:     c.Robot.Icon,
	}
}
