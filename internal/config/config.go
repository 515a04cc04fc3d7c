// Package config provides configuration loading and validation for the agent.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/price-publisher/internal/collect"
)

// Defaults for optional settings
const (
	DefaultTopN             = 5
	DefaultScheduleInterval = 24 * time.Hour
	DefaultRunRetryDelay    = 5 * time.Minute
)

// CMS holds the blog endpoint and credentials for the publish action
type CMS struct {
	BaseURL  string `json:"base_url" validate:"required,url"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Config is the agent configuration, loaded from a JSON file with secrets
// filled from the environment. Zero values use defaults where one exists.
type Config struct {
	DatabaseURL   string           `json:"database_url" validate:"required"`
	APIKey        string           `json:"api_key" validate:"required"`
	SessionSecret string           `json:"session_secret" validate:"required"`
	CMS           CMS              `json:"cms"`
	Sources       []collect.Source `json:"sources" validate:"min=1,dive"`

	TopN             int    `json:"top_n" validate:"omitempty,min=1"`
	ScheduleInterval string `json:"schedule_interval,omitempty"` // Go duration string
	UseBrowser       bool   `json:"use_browser,omitempty"`
	Verbose          bool   `json:"verbose,omitempty"`
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// ApplyEnv fills secrets and connection settings from environment variables
// when the config file left them empty. Environment never overrides an
// explicit file value.
func (c *Config) ApplyEnv() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.SessionSecret == "" {
		c.SessionSecret = os.Getenv("SESSION_SECRET")
	}
	if c.CMS.BaseURL == "" {
		c.CMS.BaseURL = os.Getenv("CMS_BASE_URL")
	}
	if c.CMS.Username == "" {
		c.CMS.Username = os.Getenv("CMS_USERNAME")
	}
	if c.CMS.Password == "" {
		c.CMS.Password = os.Getenv("CMS_PASSWORD")
	}
}

// Validate checks the configuration, including per-source selector fields
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := v.Struct(c.CMS); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if _, err := c.Interval(); err != nil {
		return err
	}
	return nil
}

// ResolvedTopN returns the configured top-N size or the default
func (c *Config) ResolvedTopN() int {
	if c.TopN > 0 {
		return c.TopN
	}
	return DefaultTopN
}

// Interval returns the parsed schedule interval or the default
func (c *Config) Interval() (time.Duration, error) {
	if c.ScheduleInterval == "" {
		return DefaultScheduleInterval, nil
	}
	d, err := time.ParseDuration(c.ScheduleInterval)
	if err != nil {
		return 0, fmt.Errorf("config error: invalid schedule_interval %q: %w", c.ScheduleInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config error: schedule_interval must be positive")
	}
	return d, nil
}
