package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bensun/jobdigest/internal/classify"
	"github.com/bensun/jobdigest/internal/compose"
	"github.com/bensun/jobdigest/internal/config"
	"github.com/bensun/jobdigest/internal/model"
	"github.com/bensun/jobdigest/internal/normalize"
	"github.com/bensun/jobdigest/internal/notifier"
	"github.com/bensun/jobdigest/internal/ratelimit"
	"github.com/bensun/jobdigest/internal/retry"
	"github.com/bensun/jobdigest/internal/secrets"
	"github.com/bensun/jobdigest/internal/source"
	"github.com/bensun/jobdigest/internal/store"
)

const configEnv = "JOBDIGEST_CONFIG"

var (
	cfgPath   string
	debug     bool
	dryRun    bool
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "jobdigest",
	Short: "Daily digest of new job postings",
	Long: "jobdigest polls job feeds, listing pages and ATS boards, keeps the postings that match\n" +
		"your target employers or startup keywords, and sends each one exactly once by email,\n" +
		"Telegram, Slack or the log. With no subcommand it performs a single run.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runOnce,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: "+configEnv+" env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "log postings instead of sending them and do not record them as notified")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
}

func setupLogger(dbg bool, format string) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > JOBDIGEST_CONFIG env var > "./config.yaml".
// Only the implicit ./config.yaml may be missing; built-in defaults are used then.
func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	explicit := true
	if path == "" {
		if env := os.Getenv(configEnv); env != "" {
			path = env
		} else {
			path = "config.yaml"
			explicit = false
		}
	}
	cfg, err := config.Load(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		logger.Info("no config.yaml found, using built-in defaults")
		return config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	logger.Debug("config loaded", "path", path)
	return cfg, nil
}

func newHTTPClient(cfg *config.Config) *http.Client {
	// Per-request deadlines come from contexts; this is a backstop.
	return &http.Client{Timeout: 2 * max(cfg.Fetch.Timeout, cfg.Channels.Timeout)}
}

func retryPolicy(cfg *config.Config, logger *slog.Logger) retry.Policy {
	return retry.Policy{MaxRetries: cfg.Fetch.Retries, BaseDelay: cfg.Fetch.RetryDelay, Logger: logger}
}

// buildFetcher layers rate limiting and retries over the HTTP fetcher. Retries
// sit outside the limiter so every attempt waits for its turn.
func buildFetcher(cfg *config.Config, client *http.Client, logger *slog.Logger) model.Fetcher {
	var f model.Fetcher = source.NewHTTPFetcher(client, cfg.Fetch.UserAgent)
	f = ratelimit.NewFetcher(f, ratelimit.NewHostLimiter(cfg.Fetch.RatePerHost, 1))
	if cfg.Fetch.Retries > 0 {
		f = retry.NewFetcher(f, retryPolicy(cfg, logger))
	}
	return f
}

// buildChannels returns the enabled channels in delivery order. Telegram and
// slack retry each message part on their own; email is not retried because a
// repeated SMTP submission can deliver the digest twice.
func buildChannels(cfg *config.Config, client *http.Client, logger *slog.Logger) []model.Channel {
	ch := cfg.Channels
	var channels []model.Channel

	if ch.Email.Enabled {
		channels = append(channels, notifier.NewEmailChannel(notifier.EmailConfig{
			Addr:     ch.Email.SMTPAddr,
			From:     ch.Email.From,
			Password: emailPassword(ch.Email, logger),
			To:       ch.Email.To,
			Timeout:  ch.Timeout,
			Logger:   logger,
		}))
	}
	if ch.Telegram.Enabled {
		tg := notifier.NewTelegramChannel(ch.Telegram.BaseURL, ch.Telegram.BotToken, ch.Telegram.ChatID, client)
		channels = append(channels, tg.WithRetry(retryPolicy(cfg, logger)))
	}
	if ch.Slack.Enabled {
		sl := notifier.NewSlackChannel(ch.Slack.WebhookURL, client)
		channels = append(channels, sl.WithRetry(retryPolicy(cfg, logger)))
	}
	if ch.Log.Enabled {
		channels = append(channels, notifier.NewLogChannel(logger))
	}
	return channels
}

// emailPassword returns the configured SMTP password, or the keychain entry
// when the config leaves it empty. A missing secret leaves the channel
// unconfigured so the digest falls back to a file.
func emailPassword(cfg config.EmailConfig, logger *slog.Logger) string {
	account := cfg.KeyringAccount
	if account == "" && cfg.From != "" {
		account = secrets.EmailAccount(cfg.From)
	}
	pw, err := secrets.Resolve(cfg.Password, account)
	switch {
	case errors.Is(err, secrets.ErrNotFound):
		logger.Debug("no smtp password configured", "keyring_account", account)
	case err != nil:
		logger.Warn("reading smtp password from keychain failed", "keyring_account", account, "error", err)
	}
	return pw
}

// openStore opens the configured backend. The returned close func is never nil.
func openStore(cfg *config.Config) (model.KeyStore, func() error, error) {
	switch cfg.State.Backend {
	case config.BackendSQLite:
		s, err := store.NewSQLiteStore(cfg.State.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return store.NewFileStore(cfg.State.Path), func() error { return nil }, nil
	}
}

func newNormalizer(cfg *config.Config) *normalize.Normalizer {
	return normalize.New(cfg.Fetch.SummaryLimit)
}

func newClassifier(cfg *config.Config) *classify.Classifier {
	return classify.New(cfg.Classify.TargetEmployers, cfg.Classify.StartupKeywords)
}

func newComposer(cfg *config.Config) *compose.Composer {
	return compose.New(compose.Options{
		SenderName: cfg.SenderName,
		Subject:    cfg.Compose.Subject,
		Outreach:   cfg.Compose.Outreach,
	})
}

func describeChannels(channels []model.Channel) string {
	if len(channels) == 0 {
		return "none"
	}
	names := make([]string, 0, len(channels))
	for _, c := range channels {
		state := "ready"
		if !c.Configured() {
			state = "fallback"
		}
		names = append(names, fmt.Sprintf("%s(%s)", c.Name(), state))
	}
	return strings.Join(names, ",")
}
