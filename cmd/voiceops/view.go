package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/voiceops/internal/readmodel"
	"github.com/spf13/cobra"
)

var viewCmd = &cobra.Command{
	Use:       "view [audit|tickets|analytics|impact|all]",
	Short:     "Print backend read models as JSON",
	Long:      `Fetch the audit log, tickets, analytics and impact views from the backend and print them as JSON.`,
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"audit", "tickets", "analytics", "impact", "all"},
	RunE:      runView,
}

func runView(cmd *cobra.Command, args []string) error {
	which := "all"
	if len(args) == 1 {
		which = args[0]
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	snap, err := readmodel.Fetch(cmd.Context(), newClient(cfg))
	if err != nil {
		return fmt.Errorf("failed to fetch views: %w", err)
	}

	var out any
	switch which {
	case "audit":
		out = snap.AuditLog
	case "tickets":
		out = snap.Tickets
	case "analytics":
		out = snap.Analytics
	case "impact":
		out = snap.Impact
	default:
		out = snap
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
