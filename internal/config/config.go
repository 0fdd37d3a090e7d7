// Package config loads server and client settings from TOML files with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// Well-known ports. The development pair exists so a test server can run
// next to a production one on the same LAN.
const (
	ProductionUDPPort  = 19864
	ProductionTCPPort  = 19865
	DevelopmentUDPPort = 19866
	DevelopmentTCPPort = 19867
)

// ServerConfig carries everything the server binary needs.
type ServerConfig struct {
	UDPPort      int    `toml:"udp_port" env:"ELERP_UDP_PORT"`
	TCPPort      int    `toml:"tcp_port" env:"ELERP_TCP_PORT"`
	DatabasePath string `toml:"database_path" env:"ELERP_DATABASE_PATH"`
	WorksheetDir string `toml:"worksheet_dir" env:"ELERP_WORKSHEET_DIR"`
	ResourcePath string `toml:"resource_path" env:"ELERP_RESOURCE_PATH"`
}

// DefaultServerConfig returns production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		UDPPort:      ProductionUDPPort,
		TCPPort:      ProductionTCPPort,
		DatabasePath: "data/database.db",
		WorksheetDir: "data/worksheets",
		ResourcePath: "res/data.json",
	}
}

// LoadServerConfig reads the TOML file at path when it exists, then
// applies environment overrides. A missing file is not an error; the
// defaults stand.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := loadToml(path, &cfg); err != nil {
		return ServerConfig{}, err
	}
	if err := env.Parse(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("config env overrides: %w", err)
	}
	if err := ValidateServerConfig(cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// UseDevelopmentPorts switches to the development port pair.
func (c *ServerConfig) UseDevelopmentPorts() {
	c.UDPPort = DevelopmentUDPPort
	c.TCPPort = DevelopmentTCPPort
}

func ValidateServerConfig(cfg ServerConfig) error {
	if cfg.UDPPort <= 0 || cfg.UDPPort > 65535 {
		return fmt.Errorf("server config udp_port out of range: %d", cfg.UDPPort)
	}
	if cfg.TCPPort <= 0 || cfg.TCPPort > 65535 {
		return fmt.Errorf("server config tcp_port out of range: %d", cfg.TCPPort)
	}
	if cfg.UDPPort == cfg.TCPPort {
		return fmt.Errorf("server config udp_port and tcp_port collide: %d", cfg.UDPPort)
	}
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return fmt.Errorf("server config missing database_path")
	}
	if strings.TrimSpace(cfg.WorksheetDir) == "" {
		return fmt.Errorf("server config missing worksheet_dir")
	}
	if strings.TrimSpace(cfg.ResourcePath) == "" {
		return fmt.Errorf("server config missing resource_path")
	}
	return nil
}

// ClientConfig carries the client binary's settings.
type ClientConfig struct {
	TeacherName string `toml:"teacher_name" env:"ELERP_TEACHER_NAME"`
	DownloadDir string `toml:"download_dir" env:"ELERP_DOWNLOAD_DIR"`
}

// DefaultClientConfig downloads next to the user's Downloads folder.
func DefaultClientConfig() ClientConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return ClientConfig{DownloadDir: home + string(os.PathSeparator) + "Downloads"}
}

func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := loadToml(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	if err := env.Parse(&cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("config env overrides: %w", err)
	}
	if strings.TrimSpace(cfg.DownloadDir) == "" {
		return ClientConfig{}, fmt.Errorf("client config missing download_dir")
	}
	return cfg, nil
}

// SaveClientConfig writes the client settings back, preserving a
// remembered teacher name across runs.
func SaveClientConfig(path string, cfg ClientConfig) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config marshal failed: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}
