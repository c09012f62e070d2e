package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the config file
const (
	EnvBaseURL  = "DATATOP_BASE_URL"
	EnvPassword = "DATATOP_PASSWORD"
	EnvCABundle = "DATATOP_CA_BUNDLE"
)

// ErrNoBaseURL is returned by Validate when no provider URL is configured
var ErrNoBaseURL = errors.New("no base URL configured, run 'datatop config --base-url <url>'")

// Config holds the CLI configuration
type Config struct {
	BaseURL         string        `yaml:"base_url"`
	CABundle        string        `yaml:"ca_bundle,omitempty"`
	PasswordFile    string        `yaml:"password_file,omitempty"`
	HistoryDB       string        `yaml:"history_db,omitempty"`
	RequestInterval time.Duration `yaml:"request_interval,omitempty"` // Minimum spacing between provider calls
	Timeout         time.Duration `yaml:"timeout,omitempty"`          // Per request; zero means none
}

// configPath returns the path to the config file
func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".datatop.yaml"), nil
}

// Load loads the configuration from disk
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return &cfg, nil
}

// Save saves the configuration to disk
func Save(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// LoadDotEnv loads .env from the working directory into the environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv() error {
	err := godotenv.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overrides file settings with the environment
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvCABundle); v != "" {
		c.CABundle = v
	}
}

// Validate checks the settings a provider run needs
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("invalid base URL %q: want http(s)://host[/path]", c.BaseURL)
	}
	if c.RequestInterval < 0 || c.Timeout < 0 {
		return fmt.Errorf("request_interval and timeout must not be negative")
	}
	return nil
}
