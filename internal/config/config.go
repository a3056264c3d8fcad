package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	BaseURL      string `yaml:"base_url"`
	APIToken     string `yaml:"api_token"`
	CachePath    string `yaml:"cache_path"`
	Jobs         int    `yaml:"jobs"`
	RetryLimit   int    `yaml:"retry_limit"`
	RetryBaseMS  int    `yaml:"retry_base_ms"`
	RetryCeilMS  int    `yaml:"retry_ceiling_ms"`
	HTTPTimeout  int    `yaml:"http_timeout_ms"`
	Output       string `yaml:"output"`
	VerifySource string `yaml:"verify_source"`
	StoreDBPath  string `yaml:"store_db_path"`
	LogLevel     string `yaml:"log_level"`
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. ~/.config/planport/config.yaml (YAML)
func Load() (*Config, error) {
	cfg := &Config{
		Jobs:         4,
		RetryLimit:   3,
		RetryBaseMS:  250,
		RetryCeilMS:  5000,
		HTTPTimeout:  30000,
		Output:       "table",
		VerifySource: "api",
		LogLevel:     "info",
	}

	// Load .env.local if it exists (walking up parent directories)
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	// Load ~/.config/planport/config.yaml if it exists (optional)
	_ = loadYAMLConfig(cfg)

	// Override with environment variables
	if baseURL := os.Getenv("PLANPORT_BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if token := getEnvOrFile("PLANPORT_API_TOKEN", "PLANPORT_API_TOKEN_FILE"); token != "" {
		cfg.APIToken = token
	}
	if cachePath := os.Getenv("PLANPORT_CACHE_PATH"); cachePath != "" {
		cfg.CachePath = cachePath
	}
	if output := os.Getenv("PLANPORT_OUTPUT"); output != "" {
		cfg.Output = output
	}
	if source := os.Getenv("PLANPORT_VERIFY_SOURCE"); source != "" {
		cfg.VerifySource = source
	}
	if storePath := os.Getenv("PLANPORT_STORE_DB_PATH"); storePath != "" {
		cfg.StoreDBPath = storePath
	}
	if logLevel := os.Getenv("PLANPORT_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}

	// Set defaults if not configured
	if cfg.CachePath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.CachePath = filepath.Join(homeDir, ".local", "share", "planport", "identity.json")
	}

	return cfg, nil
}

// RetryBase returns the first backoff delay as a duration.
func (c *Config) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMS) * time.Millisecond
}

// RetryCeiling returns the backoff cap as a duration.
func (c *Config) RetryCeiling() time.Duration {
	return time.Duration(c.RetryCeilMS) * time.Millisecond
}

// HTTPTimeoutDuration returns the per-request timeout as a duration.
func (c *Config) HTTPTimeoutDuration() time.Duration {
	return time.Duration(c.HTTPTimeout) * time.Millisecond
}

// loadYAMLConfig loads configuration from ~/.config/planport/config.yaml
func loadYAMLConfig(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(homeDir, ".config", "planport", "config.yaml")
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
			return string(data)
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
		// If we can't get home dir, just check cwd
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	// Clean paths for reliable comparison
	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		// Stop if we've reached home directory
		if dir == homeDir {
			break
		}

		// Get parent directory
		parent := filepath.Dir(dir)

		// Stop if we've reached the filesystem root
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}
