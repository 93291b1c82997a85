package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bensun/jobdigest/internal/model"
)

// Config is the root configuration for a jobdigest deployment.
type Config struct {
	SenderName    string
	NotifyOnEmpty bool // send a "nothing new" message when a run finds no postings
	Sources       []SourceConfig
	Fetch         FetchConfig
	Classify      ClassifyConfig
	Compose       ComposeConfig
	State         StateConfig
	Channels      ChannelsConfig
	Export        ExportConfig
	Metrics       MetricsConfig
	Schedule      ScheduleConfig
}

// SourceConfig describes a single feed, page or ATS board to poll.
type SourceConfig struct {
	Name      string
	Kind      string
	Endpoint  string
	Company   string
	MaxItems  int
	Enabled   bool
	Selectors model.Selectors
}

// Descriptor converts the source into the form consumed by source adapters,
// falling back to defaultMax when no per-source cap is set.
func (s SourceConfig) Descriptor(defaultMax int) model.SourceDescriptor {
	limit := s.MaxItems
	if limit <= 0 {
		limit = defaultMax
	}
	return model.SourceDescriptor{
		Name:      s.Name,
		Kind:      s.Kind,
		Endpoint:  s.Endpoint,
		MaxItems:  limit,
		Company:   s.Company,
		Selectors: s.Selectors,
	}
}

// FetchConfig controls how sources are retrieved.
type FetchConfig struct {
	Timeout      time.Duration // per-source deadline
	MaxItems     int           // default cap per source
	SummaryLimit int           // characters kept from a summary
	UserAgent    string
	Retries      int           // additional attempts after a transient failure
	RetryDelay   time.Duration // delay before the first retry, doubled afterwards
	RatePerHost  float64       // requests per second allowed against one host
}

// ClassifyConfig holds the two ordered keyword lists.
type ClassifyConfig struct {
	TargetEmployers []string
	StartupKeywords []string
}

// ComposeConfig controls digest rendering.
type ComposeConfig struct {
	Subject  string
	Outreach bool // append an outreach message to every posting
}

// StateConfig selects the notified-key backend.
type StateConfig struct {
	Backend  string // "file" or "sqlite"
	Path     string
	LockPath string
}

// ChannelsConfig holds per-channel settings. Secrets are usually expanded
// from the environment by Load.
type ChannelsConfig struct {
	Timeout       time.Duration
	FallbackDir   string
	CountFallback bool // a fallback artifact counts as a delivery
	Email         EmailConfig
	Telegram      TelegramConfig
	Slack         SlackConfig
	Log           LogConfig
}

// EmailConfig configures the SMTP channel.
type EmailConfig struct {
	Enabled        bool
	SMTPAddr       string
	From           string
	Password       string
	To             string
	KeyringAccount string // OS keychain account consulted when Password is empty
}

// TelegramConfig configures the chat-bot channel.
type TelegramConfig struct {
	Enabled  bool
	BotToken string
	ChatID   string
	BaseURL  string
}

// SlackConfig configures the incoming-webhook channel.
type SlackConfig struct {
	Enabled    bool
	WebhookURL string
}

// LogConfig enables the structured-log channel.
type LogConfig struct {
	Enabled bool
}

// ExportConfig names optional artifacts written from every run.
type ExportConfig struct {
	DigestPath string
	CSVPath    string
}

// MetricsConfig controls the Prometheus textfile written after each run.
type MetricsConfig struct {
	Textfile string
}

// ScheduleConfig controls the interval used by the start command.
type ScheduleConfig struct {
	Interval time.Duration
}

// State backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

const (
	defaultTimeout      = 20 * time.Second
	defaultMaxItems     = 10
	defaultSummaryLimit = 250
	defaultUserAgent    = "Mozilla/5.0 (compatible; jobdigest)"
	defaultRetries      = 2
	defaultRetryDelay   = 2 * time.Second
	defaultRatePerHost  = 1.0
	defaultSubject      = "Daily Job Digest"
	defaultSenderName   = "Job Seeker"
	defaultStatePath    = "notified_keys.txt"
	defaultSQLitePath   = "jobdigest.db"
	defaultSMTPAddr     = "smtp.gmail.com:587"
	defaultTelegramURL  = "https://api.telegram.org"
	defaultInterval     = 24 * time.Hour
	defaultFallbackDir  = "."
	slackWebhookPrefix  = "https://hooks.slack.com/"

	// Listing layout of the page scraped by the original script.
	defaultHTMLItem    = "article.jobTuple"
	defaultHTMLTitle   = "a.title"
	defaultHTMLCompany = "a.subTitle"
)

// KnownKinds lists the source kinds understood by the source package.
var KnownKinds = []string{"rss", "html", "greenhouse", "lever", "ashby"}

// rawConfig is used for YAML unmarshaling (snake_case fields and durations as strings).
type rawConfig struct {
	SenderName    string            `yaml:"sender_name"`
	NotifyOnEmpty bool              `yaml:"notify_on_empty"`
	Sources       []rawSourceConfig `yaml:"sources"`
	Fetch         rawFetchConfig    `yaml:"fetch"`
	Classify      rawClassifyConfig `yaml:"classify"`
	Compose       rawComposeConfig  `yaml:"compose"`
	State         rawStateConfig    `yaml:"state"`
	Channels      rawChannelsConfig `yaml:"channels"`
	Export        rawExportConfig   `yaml:"export"`
	Metrics       rawMetricsConfig  `yaml:"metrics"`
	Schedule      rawScheduleConfig `yaml:"schedule"`
}

type rawSourceConfig struct {
	Name      string       `yaml:"name"`
	Kind      string       `yaml:"kind"`
	Endpoint  string       `yaml:"endpoint"`
	Company   string       `yaml:"company"`
	MaxItems  int          `yaml:"max_items"`
	Enabled   *bool        `yaml:"enabled"`
	Selectors rawSelectors `yaml:"selectors"`
}

type rawSelectors struct {
	Item    string `yaml:"item"`
	Title   string `yaml:"title"`
	Link    string `yaml:"link"`
	Company string `yaml:"company"`
	Summary string `yaml:"summary"`
}

type rawFetchConfig struct {
	Timeout      string  `yaml:"timeout"`
	MaxItems     int     `yaml:"max_items"`
	SummaryLimit int     `yaml:"summary_limit"`
	UserAgent    string  `yaml:"user_agent"`
	Retries      *int    `yaml:"retries"`
	RetryDelay   string  `yaml:"retry_delay"`
	RatePerHost  float64 `yaml:"rate_per_host"`
}

type rawClassifyConfig struct {
	TargetEmployers []string `yaml:"target_employers"`
	StartupKeywords []string `yaml:"startup_keywords"`
}

type rawComposeConfig struct {
	Subject  string `yaml:"subject"`
	Outreach *bool  `yaml:"outreach"`
}

type rawStateConfig struct {
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path"`
	LockPath string `yaml:"lock_path"`
}

type rawChannelsConfig struct {
	Timeout       string            `yaml:"timeout"`
	FallbackDir   string            `yaml:"fallback_dir"`
	CountFallback *bool             `yaml:"count_fallback"`
	Email         rawEmailConfig    `yaml:"email"`
	Telegram      rawTelegramConfig `yaml:"telegram"`
	Slack         rawSlackConfig    `yaml:"slack"`
	Log           rawLogConfig      `yaml:"log"`
}

type rawEmailConfig struct {
	Enabled        *bool  `yaml:"enabled"`
	SMTPAddr       string `yaml:"smtp_addr"`
	From           string `yaml:"from"`
	Password       string `yaml:"password"`
	To             string `yaml:"to"`
	KeyringAccount string `yaml:"keyring_account"`
}

type rawTelegramConfig struct {
	Enabled  *bool  `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	BaseURL  string `yaml:"base_url"`
}

type rawSlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

type rawLogConfig struct {
	Enabled bool `yaml:"enabled"`
}

type rawExportConfig struct {
	DigestPath string `yaml:"digest_path"`
	CSVPath    string `yaml:"csv_path"`
}

type rawMetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

type rawScheduleConfig struct {
	Interval string `yaml:"interval"`
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse expands environment variables in data, decodes it and validates the result.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg, err := fromRaw(raw)
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no config file exists: the two
// remote job feeds, no classification lists and channel secrets taken from the
// environment.
func Default() *Config {
	cfg, err := fromRaw(rawConfig{
		Sources: []rawSourceConfig{
			{Name: "WeWorkRemotely", Kind: "rss", Endpoint: "https://weworkremotely.com/categories/remote-data-science-jobs.rss"},
			{Name: "RemoteOK", Kind: "rss", Endpoint: "https://remoteok.com/remote-jobs.rss"},
		},
		Channels: rawChannelsConfig{
			Email: rawEmailConfig{
				From:     os.Getenv("GMAIL_EMAIL"),
				Password: os.Getenv("GMAIL_PASSWORD"),
				To:       os.Getenv("DESTINATION_EMAIL"),
			},
			Telegram: rawTelegramConfig{
				BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
				ChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
			},
		},
	})
	if err != nil {
		// The literal above only contains valid values.
		panic(err)
	}
	return cfg
}

func fromRaw(raw rawConfig) (*Config, error) {
	timeout, err := parseDuration("fetch.timeout", raw.Fetch.Timeout, defaultTimeout)
	if err != nil {
		return nil, err
	}
	retryDelay, err := parseDuration("fetch.retry_delay", raw.Fetch.RetryDelay, defaultRetryDelay)
	if err != nil {
		return nil, err
	}
	channelTimeout, err := parseDuration("channels.timeout", raw.Channels.Timeout, defaultTimeout)
	if err != nil {
		return nil, err
	}
	interval, err := parseDuration("schedule.interval", raw.Schedule.Interval, defaultInterval)
	if err != nil {
		return nil, err
	}

	sources := make([]SourceConfig, 0, len(raw.Sources))
	for _, rs := range raw.Sources {
		sc := SourceConfig{
			Name:     strings.TrimSpace(rs.Name),
			Kind:     strings.ToLower(strings.TrimSpace(rs.Kind)),
			Endpoint: strings.TrimSpace(rs.Endpoint),
			Company:  rs.Company,
			MaxItems: rs.MaxItems,
			Enabled:  boolOr(rs.Enabled, true),
			Selectors: model.Selectors{
				Item:    rs.Selectors.Item,
				Title:   rs.Selectors.Title,
				Link:    rs.Selectors.Link,
				Company: rs.Selectors.Company,
				Summary: rs.Selectors.Summary,
			},
		}
		if sc.Kind == "html" {
			sc.Selectors.Item = stringOr(sc.Selectors.Item, defaultHTMLItem)
			sc.Selectors.Title = stringOr(sc.Selectors.Title, defaultHTMLTitle)
			if rs.Selectors.Item == "" && rs.Selectors.Company == "" {
				sc.Selectors.Company = defaultHTMLCompany
			}
		}
		sources = append(sources, sc)
	}

	backend := strings.ToLower(stringOr(raw.State.Backend, BackendFile))
	statePath := raw.State.Path
	if statePath == "" {
		statePath = defaultStatePath
		if backend == BackendSQLite {
			statePath = defaultSQLitePath
		}
	}

	retries := defaultRetries
	if raw.Fetch.Retries != nil {
		retries = *raw.Fetch.Retries
	}

	cfg := &Config{
		SenderName:    stringOr(raw.SenderName, defaultSenderName),
		NotifyOnEmpty: raw.NotifyOnEmpty,
		Sources:       sources,
		Fetch: FetchConfig{
			Timeout:      timeout,
			MaxItems:     intOr(raw.Fetch.MaxItems, defaultMaxItems),
			SummaryLimit: intOr(raw.Fetch.SummaryLimit, defaultSummaryLimit),
			UserAgent:    stringOr(raw.Fetch.UserAgent, defaultUserAgent),
			Retries:      retries,
			RetryDelay:   retryDelay,
			RatePerHost:  floatOr(raw.Fetch.RatePerHost, defaultRatePerHost),
		},
		Classify: ClassifyConfig{
			TargetEmployers: raw.Classify.TargetEmployers,
			StartupKeywords: raw.Classify.StartupKeywords,
		},
		Compose: ComposeConfig{
			Subject:  stringOr(raw.Compose.Subject, defaultSubject),
			Outreach: boolOr(raw.Compose.Outreach, true),
		},
		State: StateConfig{
			Backend:  backend,
			Path:     statePath,
			LockPath: stringOr(raw.State.LockPath, statePath+".lock"),
		},
		Channels: ChannelsConfig{
			Timeout:       channelTimeout,
			FallbackDir:   stringOr(raw.Channels.FallbackDir, defaultFallbackDir),
			CountFallback: boolOr(raw.Channels.CountFallback, true),
			Email: EmailConfig{
				Enabled:        boolOr(raw.Channels.Email.Enabled, true),
				SMTPAddr:       stringOr(raw.Channels.Email.SMTPAddr, defaultSMTPAddr),
				From:           strings.TrimSpace(raw.Channels.Email.From),
				Password:       raw.Channels.Email.Password,
				To:             strings.TrimSpace(raw.Channels.Email.To),
				KeyringAccount: raw.Channels.Email.KeyringAccount,
			},
			Telegram: TelegramConfig{
				Enabled:  boolOr(raw.Channels.Telegram.Enabled, true),
				BotToken: strings.TrimSpace(raw.Channels.Telegram.BotToken),
				ChatID:   strings.TrimSpace(raw.Channels.Telegram.ChatID),
				BaseURL:  stringOr(raw.Channels.Telegram.BaseURL, defaultTelegramURL),
			},
			Slack: SlackConfig{
				Enabled:    raw.Channels.Slack.Enabled,
				WebhookURL: strings.TrimSpace(raw.Channels.Slack.WebhookURL),
			},
			Log: LogConfig{Enabled: raw.Channels.Log.Enabled},
		},
		Export: ExportConfig{
			DigestPath: raw.Export.DigestPath,
			CSVPath:    raw.Export.CSVPath,
		},
		Metrics:  MetricsConfig{Textfile: raw.Metrics.Textfile},
		Schedule: ScheduleConfig{Interval: interval},
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive, got %v", cfg.Fetch.Timeout)
	}
	if cfg.Channels.Timeout <= 0 {
		return fmt.Errorf("channels.timeout must be positive, got %v", cfg.Channels.Timeout)
	}
	if cfg.Schedule.Interval <= 0 {
		return fmt.Errorf("schedule.interval must be positive, got %v", cfg.Schedule.Interval)
	}
	if cfg.Fetch.MaxItems <= 0 {
		return fmt.Errorf("fetch.max_items must be positive, got %d", cfg.Fetch.MaxItems)
	}
	if cfg.Fetch.SummaryLimit <= 0 {
		return fmt.Errorf("fetch.summary_limit must be positive, got %d", cfg.Fetch.SummaryLimit)
	}
	if cfg.Fetch.Retries < 0 {
		return fmt.Errorf("fetch.retries must not be negative, got %d", cfg.Fetch.Retries)
	}

	seen := make(map[string]bool)
	enabled := 0
	for i, s := range cfg.Sources {
		if s.Name == "" {
			return fmt.Errorf("sources[%d].name is required", i)
		}
		key := strings.ToLower(s.Name)
		if seen[key] {
			return fmt.Errorf("sources[%d]: duplicate source name %q", i, s.Name)
		}
		seen[key] = true
		if s.Endpoint == "" {
			return fmt.Errorf("sources[%d] (%s): endpoint is required", i, s.Name)
		}
		if !knownKind(s.Kind) {
			return fmt.Errorf("sources[%d] (%s): unknown kind %q (want one of %s)", i, s.Name, s.Kind, strings.Join(KnownKinds, ", "))
		}
		if s.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one source must be enabled")
	}

	switch cfg.State.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("state.backend must be %q or %q, got %q", BackendFile, BackendSQLite, cfg.State.Backend)
	}

	if cfg.Channels.Slack.WebhookURL != "" && !strings.HasPrefix(cfg.Channels.Slack.WebhookURL, slackWebhookPrefix) {
		return fmt.Errorf("channels.slack.webhook_url must start with %s", slackWebhookPrefix)
	}

	return nil
}

// EnabledSources returns the enabled sources as descriptors.
func (c *Config) EnabledSources() []model.SourceDescriptor {
	var out []model.SourceDescriptor
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s.Descriptor(c.Fetch.MaxItems))
		}
	}
	return out
}

func knownKind(kind string) bool {
	for _, k := range KnownKinds {
		if k == kind {
			return true
		}
	}
	return false
}

func parseDuration(field, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, raw, err)
	}
	return d, nil
}

func stringOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func intOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func floatOr(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
