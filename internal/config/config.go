package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Gateway drivers understood by cmd/wellspace.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverFile     = "file"
	DriverS3       = "s3"
	DriverHTTP     = "http"
	DriverPostgres = "postgres"
)

// S3Config holds the bucket settings for the s3 layout gateway
type S3Config struct {
	Bucket    string `json:"bucket"`
	Region    string `json:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"` // optional, e.g. MinIO
	PathStyle bool   `json:"path_style,omitempty"`
	Prefix    string `json:"prefix,omitempty"`
}

// GatewayConfig selects and configures where layout snapshots live
type GatewayConfig struct {
	Driver      string   `json:"driver"`
	SQLitePath  string   `json:"sqlite_path,omitempty"`
	FileDir     string   `json:"file_dir,omitempty"`
	HTTPURL     string   `json:"http_url,omitempty"`
	PostgresDSN string   `json:"postgres_dsn,omitempty"`
	S3          S3Config `json:"s3"`
}

// RelayConfig configures the cross-window selection relay
type RelayConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// Config represents application configuration
type Config struct {
	LogLevel            string        `json:"log_level"` // debug, info, warn, error, none
	LogPath             string        `json:"log_path,omitempty"`
	DataServiceURL      string        `json:"data_service_url"`
	FetchTimeoutSeconds int           `json:"fetch_timeout_seconds"`
	DefaultLayoutName   string        `json:"default_layout_name"`
	ActivityCapacity    int           `json:"activity_capacity"`
	Gateway             GatewayConfig `json:"gateway"`
	Relay               RelayConfig   `json:"relay"`
	ServeAddr           string        `json:"serve_addr"`
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, "wellspace")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", "wellspace")
	default:
		if configHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); configHome != "" {
			return filepath.Join(configHome, "wellspace")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "wellspace")
	}
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "linux":
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, "wellspace")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", "wellspace")
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, "wellspace")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", "wellspace")
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "wellspace")
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	stateDir := defaultStateDir()

	return &Config{
		LogLevel:            "info",
		LogPath:             filepath.Join(stateDir, "wellspace.log"),
		DataServiceURL:      "http://localhost:5000/api",
		FetchTimeoutSeconds: 300,
		DefaultLayoutName:   "default",
		ActivityCapacity:    500,
		Gateway: GatewayConfig{
			Driver:     DriverSQLite,
			SQLitePath: filepath.Join(stateDir, "layouts.db"),
			FileDir:    filepath.Join(stateDir, "layouts"),
		},
		Relay: RelayConfig{
			Enabled: true,
			Addr:    "localhost:8937",
		},
		ServeAddr: "localhost:8937",
	}
}

// Load loads configuration from file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	// Unmarshal into the defaults so only provided fields are overridden
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	defaults := DefaultConfig()
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}
	if cfg.LogPath == "" {
		cfg.LogPath = defaults.LogPath
	}
	if cfg.FetchTimeoutSeconds <= 0 {
		cfg.FetchTimeoutSeconds = defaults.FetchTimeoutSeconds
	}
	if cfg.DefaultLayoutName == "" {
		cfg.DefaultLayoutName = defaults.DefaultLayoutName
	}
	if cfg.ActivityCapacity <= 0 {
		cfg.ActivityCapacity = defaults.ActivityCapacity
	}
	if cfg.Gateway.Driver == "" {
		cfg.Gateway.Driver = defaults.Gateway.Driver
	}
	if cfg.Gateway.SQLitePath == "" {
		cfg.Gateway.SQLitePath = defaults.Gateway.SQLitePath
	}
	if cfg.Gateway.FileDir == "" {
		cfg.Gateway.FileDir = defaults.Gateway.FileDir
	}
	if cfg.Relay.Addr == "" {
		cfg.Relay.Addr = defaults.Relay.Addr
	}
	if cfg.ServeAddr == "" {
		cfg.ServeAddr = defaults.ServeAddr
	}

	return cfg, cfg.Validate()
}

// Validate checks settings that cannot be defaulted
func (c *Config) Validate() error {
	switch c.Gateway.Driver {
	case DriverMemory, DriverSQLite, DriverFile, DriverPostgres:
	case DriverS3:
		if c.Gateway.S3.Bucket == "" {
			return fmt.Errorf("gateway driver s3 requires gateway.s3.bucket")
		}
	case DriverHTTP:
		if c.Gateway.HTTPURL == "" {
			return fmt.Errorf("gateway driver http requires gateway.http_url")
		}
	default:
		return fmt.Errorf("unknown gateway driver %q", c.Gateway.Driver)
	}
	return nil
}

// FetchTimeout returns the client-side bound on a single data fetch
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}
