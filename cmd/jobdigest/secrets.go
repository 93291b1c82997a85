package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bensun/jobdigest/internal/secrets"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage channel secrets in the OS keychain",
}

var secretsSetCmd = &cobra.Command{
	Use:   "set [account]",
	Short: "Store a secret read from stdin",
	Long: "Reads one line from stdin and stores it in the OS keychain. The account defaults to\n" +
		"channels.email.keyring_account, or the one derived from channels.email.from.",
	Args: cobra.MaximumNArgs(1),
	RunE: runSecretsSet,
}

var secretsDeleteCmd = &cobra.Command{
	Use:   "delete [account]",
	Short: "Remove a secret from the OS keychain",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSecretsDelete,
}

func init() {
	secretsCmd.AddCommand(secretsSetCmd, secretsDeleteCmd)
	rootCmd.AddCommand(secretsCmd)
}

func secretAccount(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := loadConfig(cfgPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return "", fmt.Errorf("loading config: %w", err)
	}
	if a := cfg.Channels.Email.KeyringAccount; a != "" {
		return a, nil
	}
	if cfg.Channels.Email.From == "" {
		return "", fmt.Errorf("no account given and channels.email.from is empty")
	}
	return secrets.EmailAccount(cfg.Channels.Email.From), nil
}

func runSecretsSet(cmd *cobra.Command, args []string) error {
	account, err := secretAccount(args)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Secret for %s: ", account)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("reading secret: %w", err)
	}
	if err := secrets.Set(account, strings.TrimRight(line, "\r\n")); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nstored secret for %s\n", account)
	return nil
}

func runSecretsDelete(cmd *cobra.Command, args []string) error {
	account, err := secretAccount(args)
	if err != nil {
		return err
	}
	if err := secrets.Delete(account); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted secret for %s\n", account)
	return nil
}
