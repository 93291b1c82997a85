package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bensun/jobdigest/internal/notifier"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Notification subcommands",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test notification",
	Long:  "Sends a sample digest through every enabled channel and reports each outcome. State is not touched.",
	RunE:  runNotifyTest,
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyTestCmd)
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug, logFormat)

	cfg, err := loadConfig(cfgPath, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	channels := buildChannels(cfg, newHTTPClient(cfg), logger)
	if len(channels) == 0 {
		return fmt.Errorf("no notification channels enabled")
	}
	d := notifier.NewDispatcher(channels, notifier.NewFallback(cfg.Channels.FallbackDir), cfg.Channels.Timeout, logger)

	results := d.Dispatch(context.Background(), notifier.TestMessage(time.Now()))
	for _, r := range results {
		attrs := []any{"channel", r.Channel, "status", r.Status}
		if r.Artifact != "" {
			attrs = append(attrs, "artifact", r.Artifact)
		}
		if r.Err != nil {
			logger.Error("test notification failed", append(attrs, "error", r.Err)...)
			continue
		}
		logger.Info("test notification sent", attrs...)
	}

	if !notifier.Delivered(results, false) {
		return fmt.Errorf("no channel delivered the test notification")
	}
	return nil
}
