package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/voiceops/internal/config"
	"github.com/spf13/cobra"
)

var setupFlags struct {
	project bool
	force   bool
	apiURL  string
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create voiceops configuration file",
	Long: `Create a voiceops configuration file with default values.

By default, creates a global config at ~/.config/voiceops/voiceops.yml.
Use --project to create a project-local config in the current directory.`,
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().BoolVarP(&setupFlags.project, "project", "p", false, "Create config in current directory instead of global location")
	setupCmd.Flags().BoolVarP(&setupFlags.force, "force", "f", false, "Overwrite existing config file")
	setupCmd.Flags().StringVar(&setupFlags.apiURL, "url", "http://localhost:8000", "Backend base URL to write")
}

func runSetup(cmd *cobra.Command, args []string) error {
	targetPath := config.GlobalPath()
	if setupFlags.project {
		targetPath = config.ProjectPath()
	}

	if !setupFlags.force && fileExists(targetPath) {
		return fmt.Errorf("config file already exists at %s\n\nUse --force to overwrite", targetPath)
	}

	cfg := defaultConfig(setupFlags.apiURL)
	if err := cfg.Validate(); err != nil {
		return err
	}

	var err error
	if setupFlags.project {
		err = config.WriteProject(cfg)
	} else {
		err = config.WriteGlobal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Config written to: %s\n\n", targetPath)
	fmt.Println("Run 'voiceops health' to check the backend, then 'voiceops run' to get started.")
	return nil
}

func defaultConfig(apiURL string) *config.Config {
	return &config.Config{
		APIURL:            apiURL,
		Session:           "default",
		LogLevel:          "info",
		RequestTimeout:    30 * time.Second,
		RetryDelay:        3 * time.Second,
		FailurePolicy:     config.PolicyContinue,
		MaxClarifications: 2,
		Journal:           true,
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
