package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Perform a single digest run and exit",
	Long:  "Fetches every enabled source once, notifies new matching postings and records them. Exits non-zero when state cannot be read or written.",
	RunE:  runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug, logFormat)

	cfg, err := loadConfig(cfgPath, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	d, err := newDigest(cfg, dryRun, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, err = d.Run(ctx)
	return err
}
