package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/mark3labs/voiceops/internal/model"
	"github.com/mark3labs/voiceops/internal/readmodel"
	"github.com/spf13/cobra"
)

var esqlCmd = &cobra.Command{
	Use:   "esql [preset]",
	Short: "Run a preset ES|QL query",
	Long: `Run one of the preset ES|QL queries against the backend and print the
result table. Without arguments, the available presets are listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runESQL,
}

func runESQL(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		listPresets(os.Stdout)
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	res := readmodel.RunPreset(cmd.Context(), newClient(cfg), args[0])
	if res.Error != "" {
		return fmt.Errorf("query %s failed: %s", args[0], res.Error)
	}
	return printESQL(os.Stdout, res)
}

func listPresets(out io.Writer) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tNAME\tDESCRIPTION")
	for _, p := range readmodel.Presets() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Name, p.Description)
	}
	_ = w.Flush()
}

func printESQL(out io.Writer, res model.ESQLResult) error {
	if res.Query != "" {
		fmt.Fprintf(out, "%s\n\n", res.Query)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for i, c := range res.Columns {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, c.Name)
	}
	fmt.Fprintln(w)
	for _, row := range res.Values {
		for i, v := range row {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			if v == nil {
				v = "-"
			}
			fmt.Fprint(w, v)
		}
		fmt.Fprintln(w)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d row(s)\n", len(res.Values))
	return nil
}
