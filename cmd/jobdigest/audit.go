package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/bensun/jobdigest/internal/audit"
	"github.com/bensun/jobdigest/internal/config"
	"github.com/bensun/jobdigest/internal/model"
)

const auditFetchTimeout = 2 * time.Minute

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Browse postings and their classification (TUI)",
	Long:  "Shows the source picker, fetches the chosen source and opens a split view of all postings next to the classified ones. Nothing is sent or recorded.",
	RunE:  runAuditCmd,
}

func init() {
	rootCmd.AddCommand(auditCmd)
}

func runAuditCmd(cmd *cobra.Command, args []string) error {
	// Any log output would corrupt the alt screen.
	silent := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg, err := loadConfig(cfgPath, silent)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return runAudit(cfg, silent)
}

func runAudit(cfg *config.Config, logger *slog.Logger) error {
	sources := cfg.EnabledSources()
	if len(sources) == 0 {
		fmt.Println("No enabled sources in config.")
		return nil
	}

	fetcher := buildFetcher(cfg, newHTTPClient(cfg), logger)
	normalizer := newNormalizer(cfg)
	classifier := newClassifier(cfg)
	composer := newComposer(cfg)

	for {
		choice, err := audit.RunSourcePicker(sources)
		if err != nil {
			return fmt.Errorf("source picker: %w", err)
		}
		if choice < 0 {
			return nil
		}
		src := sources[choice]

		postings, err := audit.RunLoader(src.Name, auditFetchTimeout, func(ctx context.Context) ([]model.Posting, error) {
			raw, err := fetcher.Fetch(ctx, src)
			if err != nil {
				return nil, err
			}
			return normalizer.All(src.Name, raw), nil
		})
		if errors.Is(err, audit.ErrCancelled) {
			return nil
		}
		if err != nil {
			fmt.Printf("Error fetching %s: %v\n", src.Name, err)
			continue
		}

		wantQuit, err := audit.RunAuditTUI(postings, classifier, composer)
		if err != nil {
			return fmt.Errorf("audit view: %w", err)
		}
		if wantQuit {
			return nil
		}
	}
}
