package main

import (
	"fmt"

	"github.com/gosimple/slug"
	"github.com/mark3labs/voiceops/internal/client"
	"github.com/mark3labs/voiceops/internal/config"
	"github.com/mark3labs/voiceops/internal/logger"
	"github.com/mark3labs/voiceops/internal/orchestrator"
)

// loadConfig loads layered config and applies root flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if rootFlags.apiURL != "" {
		cfg.APIURL = rootFlags.apiURL
	}
	if rootFlags.session != "" {
		cfg.Session = rootFlags.session
	}
	if rootFlags.logLevel != "" {
		cfg.LogLevel = rootFlags.logLevel
	}
	if rootFlags.logFile != "" {
		cfg.LogFile = rootFlags.logFile
	}

	if err := logger.Configure(cfg.LogLevel, cfg.LogFile); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// sessionName normalises a session name so it is safe in NATS subjects.
func sessionName(name string) (string, error) {
	s := slug.Make(name)
	if s == "" {
		return "", fmt.Errorf("invalid session name %q", name)
	}
	if len(s) > 64 {
		return "", fmt.Errorf("session name too long (max 64 characters): %s", s)
	}
	return s, nil
}

func newClient(cfg *config.Config) *client.Client {
	return client.New(client.Config{BaseURL: cfg.APIURL, Timeout: cfg.RequestTimeout})
}

// startRuntime loads config and starts a Runtime. The caller must Stop it.
func startRuntime() (*orchestrator.Runtime, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	name, err := sessionName(cfg.Session)
	if err != nil {
		return nil, nil, err
	}

	rt, err := orchestrator.NewRuntime(orchestrator.RuntimeConfig{SessionName: name, App: cfg})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create runtime: %w", err)
	}
	if err := rt.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start runtime: %w", err)
	}
	return rt, cfg, nil
}
