package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List all configured sources",
	Long:  "Reads the config and prints a table of every configured source.",
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-25s %-11s %-9s %s\n", "Source", "Kind", "Status", "Endpoint")
	fmt.Fprintln(out, strings.Repeat("─", 72))

	enabled := 0
	for _, s := range cfg.Sources {
		status := "disabled"
		if s.Enabled {
			status = "enabled"
			enabled++
		}
		fmt.Fprintf(out, "%-25s %-11s %-9s %s\n", s.Name, s.Kind, status, s.Endpoint)
	}

	fmt.Fprintf(out, "\nTotal: %d sources (%d enabled, %d disabled)\n", len(cfg.Sources), enabled, len(cfg.Sources)-enabled)
	return nil
}
