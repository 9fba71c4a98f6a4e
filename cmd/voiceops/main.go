package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/mark3labs/voiceops/internal/logger"
	"github.com/spf13/cobra"
)

// Version set via ldflags during build
var version = "dev"

func main() {
	defer func() { _ = logger.Close() }()

	if err := fang.Execute(context.Background(), rootCmd, fang.WithVersion(version)); err != nil {
		logger.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}

var rootFlags struct {
	apiURL   string
	session  string
	logLevel string
	logFile  string
}

var rootCmd = &cobra.Command{
	Use:   "voiceops",
	Short: "Voice-driven operations commands with explicit confirmation",
	Long: `voiceops turns a spoken or typed operations command into a traced,
three-stage plan (intent, context, plan) and executes it only after you
confirm. Every executed command is recorded in an append-only audit log and
tickets it touches are tracked locally.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.apiURL, "api-url", "", "Backend base URL (default from config)")
	pf.StringVarP(&rootFlags.session, "session", "s", "", "Session name (default from config)")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&rootFlags.logFile, "log-file", "", "Write logs to this file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(esqlCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(setupCmd)
}
