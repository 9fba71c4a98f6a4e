package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points XDG_CONFIG_HOME and the working directory at a temp dir and
// clears VOICEOPS_ variables for the duration of the test.
func isolate(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()

	origWd, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("Failed to change to temp dir: %v", err)
	}

	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "config"))
	for _, key := range envKeys {
		t.Setenv("VOICEOPS_"+strings.ToUpper(key), "")
		_ = os.Unsetenv("VOICEOPS_" + strings.ToUpper(key))
	}
	return tmpDir
}

func TestGlobalPath(t *testing.T) {
	tests := []struct {
		name        string
		xdgConfig   string
		wantContain string
	}{
		{
			name:        "with XDG_CONFIG_HOME set",
			xdgConfig:   "/custom/config",
			wantContain: "/custom/config/voiceops/voiceops.yml",
		},
		{
			name:        "without XDG_CONFIG_HOME",
			xdgConfig:   "",
			wantContain: ".config/voiceops/voiceops.yml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("XDG_CONFIG_HOME", tt.xdgConfig)

			got := GlobalPath()
			if tt.xdgConfig != "" {
				if got != tt.wantContain {
					t.Errorf("GlobalPath() = %v, want %v", got, tt.wantContain)
				}
				return
			}
			if !filepath.IsAbs(got) {
				t.Errorf("GlobalPath() should return absolute path, got %v", got)
			}
			if !strings.HasSuffix(got, tt.wantContain) {
				t.Errorf("GlobalPath() = %v, want suffix %v", got, tt.wantContain)
			}
		})
	}
}

func TestExists(t *testing.T) {
	isolate(t)

	if Exists() {
		t.Error("Exists() = true, want false when no config files exist")
	}

	if err := os.WriteFile(ProjectPath(), []byte("session: test\n"), 0644); err != nil {
		t.Fatalf("Failed to write project config: %v", err)
	}
	if !Exists() {
		t.Error("Exists() = false, want true when project config exists")
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIURL != "http://localhost:8000" {
		t.Errorf("default APIURL = %v", cfg.APIURL)
	}
	if cfg.Session != "default" {
		t.Errorf("default Session = %v", cfg.Session)
	}
	if cfg.RetryDelay != 3*time.Second {
		t.Errorf("default RetryDelay = %v, want 3s", cfg.RetryDelay)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("default RequestTimeout = %v, want 30s", cfg.RequestTimeout)
	}
	if cfg.FailurePolicy != PolicyContinue {
		t.Errorf("default FailurePolicy = %v", cfg.FailurePolicy)
	}
	if cfg.MaxClarifications != 2 {
		t.Errorf("default MaxClarifications = %v, want 2", cfg.MaxClarifications)
	}
	if !cfg.Journal {
		t.Error("journal should default to true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_Precedence(t *testing.T) {
	isolate(t)

	global := &Config{
		APIURL:            "http://global:8000",
		Session:           "global",
		LogLevel:          "warn",
		RequestTimeout:    10 * time.Second,
		RetryDelay:        5 * time.Second,
		FailurePolicy:     PolicyAbort,
		MaxClarifications: 1,
		Journal:           true,
	}
	if err := WriteGlobal(global); err != nil {
		t.Fatalf("WriteGlobal() error = %v", err)
	}
	if err := os.WriteFile(ProjectPath(), []byte("session: project\nretry_delay: 1500ms\n"), 0644); err != nil {
		t.Fatalf("Failed to write project config: %v", err)
	}
	t.Setenv("VOICEOPS_API_URL", "http://env:9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIURL != "http://env:9000" {
		t.Errorf("env should win: APIURL = %v", cfg.APIURL)
	}
	if cfg.Session != "project" {
		t.Errorf("project should override global: Session = %v", cfg.Session)
	}
	if cfg.RetryDelay != 1500*time.Millisecond {
		t.Errorf("project RetryDelay = %v, want 1.5s", cfg.RetryDelay)
	}
	if cfg.FailurePolicy != PolicyAbort {
		t.Errorf("global FailurePolicy = %v, want abort", cfg.FailurePolicy)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("global LogLevel = %v, want warn", cfg.LogLevel)
	}
}

func TestWriteProject(t *testing.T) {
	isolate(t)

	cfg := &Config{
		APIURL:         "http://localhost:8000",
		Session:        "ops",
		LogLevel:       "debug",
		RequestTimeout: 30 * time.Second,
		RetryDelay:     3 * time.Second,
		FailurePolicy:  PolicyContinue,
	}
	if err := WriteProject(cfg); err != nil {
		t.Fatalf("WriteProject() error = %v", err)
	}

	data, err := os.ReadFile(ProjectPath())
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}
	content := string(data)
	for _, field := range []string{
		"api_url: http://localhost:8000",
		"session: ops",
		"log_level: debug",
		"retry_delay: 3s",
		"failure_policy: continue",
	} {
		if !strings.Contains(content, field) {
			t.Errorf("Config file missing expected field: %s\nContent:\n%s", field, content)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := Config{APIURL: "http://localhost:8000", FailurePolicy: PolicyContinue, MaxClarifications: 2}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"abort policy", func(c *Config) { c.FailurePolicy = PolicyAbort }, false},
		{"empty url", func(c *Config) { c.APIURL = "" }, true},
		{"relative url", func(c *Config) { c.APIURL = "localhost" }, true},
		{"unknown policy", func(c *Config) { c.FailurePolicy = "retry" }, true},
		{"single clarification", func(c *Config) { c.MaxClarifications = 1 }, false},
		{"zero clarifications", func(c *Config) { c.MaxClarifications = 0 }, true},
		{"negative clarifications", func(c *Config) { c.MaxClarifications = -1 }, true},
		{"negative retry delay", func(c *Config) { c.RetryDelay = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
