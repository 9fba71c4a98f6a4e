package main

import (
	"fmt"
	"sort"

	"github.com/mark3labs/voiceops/internal/health"
	"github.com/spf13/cobra"
)

var healthFlags struct {
	reconnect bool
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check backend connectivity",
	Long: `Check the backend health endpoint and print the configured integrations
and index document counts.

With --reconnect a failed check is retried once after the configured retry
delay before giving up.`,
	RunE: runHealth,
}

func init() {
	healthCmd.Flags().BoolVarP(&healthFlags.reconnect, "reconnect", "r", false, "Retry once after the retry delay on failure")
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mon := health.New(newClient(cfg), cfg.RetryDelay)
	defer mon.Close()

	ctx := cmd.Context()
	if healthFlags.reconnect {
		if err := mon.Reconnect(ctx); err != nil {
			fmt.Printf("Backend unreachable, retrying in %s...\n", cfg.RetryDelay)
		}
		if err := mon.Wait(ctx); err != nil {
			return err
		}
	} else {
		_, _ = mon.CheckHealth(ctx)
	}

	return printHealth(cfg.APIURL, mon.State())
}

func printHealth(url string, st health.State) error {
	fmt.Printf("Backend:  %s\n", url)
	fmt.Printf("Status:   %s\n", st.Status)
	if st.Status != health.StatusHealthy {
		if st.Error != "" {
			fmt.Printf("Error:    %s\n", st.Error)
		}
		return fmt.Errorf("backend is %s", st.Status)
	}

	h := st.Health
	fmt.Printf("Jira:     %s\n", configured(h.JiraConfigured))
	fmt.Printf("Slack:    %s\n", configured(h.SlackConfigured))

	names := make([]string, 0, len(h.Indices))
	for name := range h.Indices {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		fmt.Println("Indices:")
		for _, name := range names {
			fmt.Printf("  %-28s %d\n", name, h.Indices[name])
		}
	}
	return nil
}

func configured(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

