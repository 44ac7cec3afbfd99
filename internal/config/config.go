package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultKeepExports is how many export files are kept in the sync directory
const DefaultKeepExports = 5

// Config represents the application configuration
type Config struct {
	DBPath          string `yaml:"db_path"`
	SyncDir         string `yaml:"sync_dir"`
	DeviceName      string `yaml:"device_name"`
	DefaultUser     string `yaml:"default_user"`
	KeepExports     int    `yaml:"keep_exports"`
	CompressExports bool   `yaml:"compress_exports"`
	LogLevel        string `yaml:"log_level"`

	// DeviceFromHost is set when DeviceName fell back to the hostname.
	DeviceFromHost bool `yaml:"-"`
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. ~/.config/kindwall/config.yaml (YAML)
func Load() (*Config, error) {
	cfg := &Config{
		KeepExports: DefaultKeepExports,
		LogLevel:    "info",
	}

	// Load .env.local if it exists (walking up parent directories)
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	// YAML config is optional; a malformed one is not
	if err := loadYAMLConfig(cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Override with environment variables
	if dbPath := getEnvOrFile("KINDWALL_DB_PATH", "KINDWALL_DB_PATH_FILE"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if syncDir := os.Getenv("KINDWALL_SYNC_DIR"); syncDir != "" {
		cfg.SyncDir = syncDir
	}
	if device := os.Getenv("KINDWALL_DEVICE"); device != "" {
		cfg.DeviceName = device
	}
	if user := os.Getenv("KINDWALL_USER"); user != "" {
		cfg.DefaultUser = user
	}
	if logLevel := os.Getenv("KINDWALL_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if keep := os.Getenv("KINDWALL_KEEP_EXPORTS"); keep != "" {
		n, err := strconv.Atoi(keep)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid KINDWALL_KEEP_EXPORTS %q: must be a non-negative integer", keep)
		}
		cfg.KeepExports = n
	}
	if compress := os.Getenv("KINDWALL_COMPRESS"); compress != "" {
		b, err := strconv.ParseBool(compress)
		if err != nil {
			return nil, fmt.Errorf("invalid KINDWALL_COMPRESS %q: must be a boolean", compress)
		}
		cfg.CompressExports = b
	}

	// Set defaults if not configured
	if cfg.DBPath == "" {
		// Check for project-local database first
		if _, err := os.Stat(".kindwall/wall.db"); err == nil {
			cfg.DBPath = ".kindwall/wall.db"
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get home directory: %w", err)
			}
			cfg.DBPath = filepath.Join(homeDir, ".local", "share", "kindwall", "wall.db")
		}
	}

	if cfg.SyncDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.SyncDir = filepath.Join(homeDir, "KindnessCompanion", "sync")
	}

	if cfg.DeviceName == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "unknown-device"
		}
		cfg.DeviceName = host
		cfg.DeviceFromHost = true
	}

	return cfg, nil
}

// loadYAMLConfig loads configuration from ~/.config/kindwall/config.yaml
func loadYAMLConfig(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(homeDir, ".config", "kindwall", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
// Returns the path to .env.local if found, empty string otherwise.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		if dir == homeDir {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}

// GetUser returns the importing user from environment or config.
// Priority: KINDWALL_USER > config.default_user
func (c *Config) GetUser() string {
	if user := os.Getenv("KINDWALL_USER"); user != "" {
		return user
	}
	return c.DefaultUser
}
