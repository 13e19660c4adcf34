package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultDebounce    = 250 * time.Millisecond
	defaultBatchLimit  = 500
	defaultBusyTimeout = 250 * time.Millisecond
)

// Config holds the imsg configuration
type Config struct {
	AppDir     string
	ConfigPath string
	StatePath  string
	ChatDBPath string
	// HomeDir replaces "~" in attachment paths. Empty means the user's home.
	HomeDir     string
	LogLevel    string
	LogFormat   string
	BusyTimeout time.Duration
	Watch       WatchConfig
}

// WatchConfig tunes the change watcher.
type WatchConfig struct {
	Debounce        time.Duration
	BatchLimit      int
	MinPollInterval time.Duration
}

// fileConfig is the shape of config.yaml.
type fileConfig struct {
	ChatDB      string        `yaml:"chat_db"`
	StateDB     string        `yaml:"state_db"`
	HomeDir     string        `yaml:"home_dir"`
	LogLevel    string        `yaml:"log_level"`
	LogFormat   string        `yaml:"log_format"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
	Watch       struct {
		Debounce        time.Duration `yaml:"debounce"`
		BatchLimit      int           `yaml:"batch_limit"`
		MinPollInterval time.Duration `yaml:"min_poll_interval"`
	} `yaml:"watch"`
}

// GetAppDir returns the imsg application directory for the current OS
func GetAppDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "imsg")
	case "linux":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "imsg")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, _ := os.UserHomeDir()
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "imsg")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".imsg")
	}
}

// DefaultChatDBPath returns the macOS Messages database location.
func DefaultChatDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "Library", "Messages", "chat.db")
}

// Load returns a Config built from defaults, the optional config.yaml and
// env overrides, in increasing precedence. A .env file in the working
// directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	appDir := GetAppDir()
	cfg := &Config{
		AppDir:      appDir,
		ConfigPath:  getEnv("IMSG_CONFIG", filepath.Join(appDir, "config.yaml")),
		StatePath:   filepath.Join(appDir, "imsg-state.db"),
		ChatDBPath:  DefaultChatDBPath(),
		LogLevel:    "info",
		LogFormat:   "console",
		BusyTimeout: defaultBusyTimeout,
		Watch: WatchConfig{
			Debounce:   defaultDebounce,
			BatchLimit: defaultBatchLimit,
		},
	}

	if err := cfg.mergeFile(cfg.ConfigPath); err != nil {
		return nil, err
	}

	if path := getEnv("IMSG_CHAT_DB", os.Getenv("EVE_SOURCE_CHAT_DB")); path != "" {
		cfg.ChatDBPath = path
	}
	cfg.LogLevel = getEnv("IMSG_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("IMSG_LOG_FORMAT", cfg.LogFormat)
	cfg.ChatDBPath = os.ExpandEnv(cfg.ChatDBPath)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	return cfg, nil
}

// mergeFile overlays the non-zero values of the YAML file at path. A missing
// file is not an error.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if fc.ChatDB != "" {
		c.ChatDBPath = fc.ChatDB
	}
	if fc.StateDB != "" {
		c.StatePath = fc.StateDB
	}
	if fc.HomeDir != "" {
		c.HomeDir = fc.HomeDir
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.LogFormat != "" {
		c.LogFormat = fc.LogFormat
	}
	if fc.BusyTimeout > 0 {
		c.BusyTimeout = fc.BusyTimeout
	}
	if fc.Watch.Debounce > 0 {
		c.Watch.Debounce = fc.Watch.Debounce
	}
	if fc.Watch.BatchLimit > 0 {
		c.Watch.BatchLimit = fc.Watch.BatchLimit
	}
	if fc.Watch.MinPollInterval > 0 {
		c.Watch.MinPollInterval = fc.Watch.MinPollInterval
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
