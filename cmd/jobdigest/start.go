package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bensun/jobdigest/internal/scheduler"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the digest on an interval",
	Long:  "Runs once immediately, then once per schedule.interval; blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
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

	sched := scheduler.NewScheduler(func(ctx context.Context) error {
		_, err := d.Run(ctx)
		return err
	}, cfg.Schedule.Interval, logger)
	if err := sched.Run(ctx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	logger.Info("goodbye")
	return nil
}
