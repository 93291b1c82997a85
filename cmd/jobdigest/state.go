package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/bensun/jobdigest/internal/config"
	"github.com/bensun/jobdigest/internal/store"
)

var pruneOlderThan time.Duration

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect the notified-key state",
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every notified key",
	RunE:  runStateList,
}

var statePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Forget keys notified before --older-than (sqlite backend only)",
	RunE:  runStatePrune,
}

func init() {
	statePruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 90*24*time.Hour, "forget keys notified longer ago than this")
	stateCmd.AddCommand(stateListCmd, statePruneCmd)
	rootCmd.AddCommand(stateCmd)
}

type keyLister interface {
	List(ctx context.Context) ([]string, error)
}

func runStateList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	keyStore, closeStore, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening state: %w", err)
	}
	defer closeStore()

	lister, ok := keyStore.(keyLister)
	if !ok {
		return fmt.Errorf("state backend %q cannot list keys", cfg.State.Backend)
	}
	keys, err := lister.List(context.Background())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, k := range keys {
		fmt.Fprintln(out, k)
	}
	fmt.Fprintf(out, "\nTotal: %d notified keys (%s %s)\n", len(keys), cfg.State.Backend, cfg.State.Path)
	return nil
}

func runStatePrune(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug, logFormat)
	cfg, err := loadConfig(cfgPath, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.State.Backend != config.BackendSQLite {
		return fmt.Errorf("prune needs the %s backend; the %s backend keeps no timestamps", config.BackendSQLite, cfg.State.Backend)
	}
	if pruneOlderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}

	lock, err := store.Lock(cfg.State.LockPath)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	s, err := store.NewSQLiteStore(cfg.State.Path)
	if err != nil {
		return fmt.Errorf("opening state: %w", err)
	}
	defer s.Close()

	n, err := s.Prune(context.Background(), pruneOlderThan)
	if err != nil {
		return err
	}
	logger.Info("pruned notified keys", "removed", n, "older_than", pruneOlderThan.String())
	return nil
}
