// Package config provides centralized configuration management using Viper.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Failure policies for the execution coordinator.
const (
	PolicyContinue = "continue"
	PolicyAbort    = "abort"
)

// Config holds all configuration values for voiceops.
type Config struct {
	APIURL            string        `mapstructure:"api_url" yaml:"api_url"`
	Session           string        `mapstructure:"session" yaml:"session"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFile           string        `mapstructure:"log_file" yaml:"log_file"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RetryDelay        time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	FailurePolicy     string        `mapstructure:"failure_policy" yaml:"failure_policy"`
	MaxClarifications int           `mapstructure:"max_clarifications" yaml:"max_clarifications"`
	Journal           bool          `mapstructure:"journal" yaml:"journal"`
	HooksFile         string        `mapstructure:"hooks_file" yaml:"hooks_file"`
}

// envKeys lists every key bound to a VOICEOPS_ environment variable.
var envKeys = []string{
	"api_url",
	"session",
	"log_level",
	"log_file",
	"request_timeout",
	"retry_delay",
	"failure_policy",
	"max_clarifications",
	"journal",
	"hooks_file",
}

// Load loads configuration with full precedence:
// CLI flags (applied by the caller) > ENV vars > project config > XDG global config > defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("voiceops")

	v.SetDefault("api_url", "http://localhost:8000")
	v.SetDefault("session", "default")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("retry_delay", 3*time.Second)
	v.SetDefault("failure_policy", PolicyContinue)
	v.SetDefault("max_clarifications", 2)
	v.SetDefault("journal", true)
	v.SetDefault("hooks_file", "")

	v.SetEnvPrefix("VOICEOPS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Explicit ENV bindings for bool/int/duration parsing
	for _, key := range envKeys {
		if err := v.BindEnv(key, "VOICEOPS_"+strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("binding %s env: %w", key, err)
		}
	}

	globalPath := GlobalPath()
	if fileExists(globalPath) {
		v.SetConfigFile(globalPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading global config: %w", err)
		}
	}

	projectPath := ProjectPath()
	if fileExists(projectPath) {
		v.SetConfigFile(projectPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a command.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api_url must be an absolute URL, got %q", c.APIURL)
	}
	switch c.FailurePolicy {
	case PolicyContinue, PolicyAbort:
	default:
		return fmt.Errorf("failure_policy must be %q or %q, got %q", PolicyContinue, PolicyAbort, c.FailurePolicy)
	}
	if c.MaxClarifications < 1 {
		return fmt.Errorf("max_clarifications must be >= 1, got %d", c.MaxClarifications)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must be >= 0")
	}
	return nil
}

// Exists returns true if any config file exists (global or project).
func Exists() bool {
	return fileExists(GlobalPath()) || fileExists(ProjectPath())
}

// GlobalPath returns the XDG global config path.
// Returns ~/.config/voiceops/voiceops.yml or $XDG_CONFIG_HOME/voiceops/voiceops.yml.
func GlobalPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "voiceops", "voiceops.yml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "voiceops", "voiceops.yml")
}

// ProjectPath returns the project-local config path.
func ProjectPath() string {
	return "voiceops.yml"
}

// WriteGlobal writes the config to the XDG global location.
func WriteGlobal(cfg *Config) error {
	path := GlobalPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return write(path, cfg)
}

// WriteProject writes the config to the project-local location.
func WriteProject(cfg *Config) error {
	return write(ProjectPath(), cfg)
}

func write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
