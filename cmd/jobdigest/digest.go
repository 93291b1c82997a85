package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bensun/jobdigest/internal/config"
	"github.com/bensun/jobdigest/internal/export"
	"github.com/bensun/jobdigest/internal/metrics"
	"github.com/bensun/jobdigest/internal/model"
	"github.com/bensun/jobdigest/internal/notifier"
	"github.com/bensun/jobdigest/internal/pipeline"
	"github.com/bensun/jobdigest/internal/store"
)

// digest bundles a wired pipeline with its run lock, exports and metrics.
type digest struct {
	cfg        *config.Config
	runner     *pipeline.Runner
	recorder   *metrics.Recorder
	closeStore func() error
	logger     *slog.Logger
}

func newDigest(cfg *config.Config, dry bool, logger *slog.Logger) (*digest, error) {
	sources := cfg.EnabledSources()
	if len(sources) == 0 {
		return nil, fmt.Errorf("no enabled sources")
	}

	keyStore, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening state: %w", err)
	}

	client := newHTTPClient(cfg)
	channels := buildChannels(cfg, client, logger)
	if dry {
		logger.Info("dry-run mode: postings are logged, nothing is recorded as notified")
		keyStore = store.NewReadOnly(keyStore)
		channels = []model.Channel{notifier.NewLogChannel(logger)}
	}
	if len(channels) == 0 {
		logger.Warn("no notification channels enabled, digests will only be exported")
	}

	recorder, err := metrics.New()
	if err != nil {
		closeStore()
		return nil, err
	}

	runner := pipeline.New(pipeline.Deps{
		Fetcher:    buildFetcher(cfg, client, logger),
		Sources:    sources,
		Normalizer: newNormalizer(cfg),
		Classifier: newClassifier(cfg),
		Composer:   newComposer(cfg),
		Dispatcher: notifier.NewDispatcher(channels, notifier.NewFallback(cfg.Channels.FallbackDir), cfg.Channels.Timeout, logger),
		Store:      keyStore,
		Observer:   pipeline.Observers{pipeline.NewLogObserver(logger), recorder},
		Logger:     logger,
	}, pipeline.Options{
		NotifyOnEmpty: cfg.NotifyOnEmpty,
		CountFallback: cfg.Channels.CountFallback,
		SourceTimeout: cfg.Fetch.Timeout,
	})

	logger.Info("pipeline ready",
		"sources", len(sources),
		"channels", describeChannels(channels),
		"state", cfg.State.Backend,
		"state_path", cfg.State.Path,
	)

	return &digest{
		cfg:        cfg,
		runner:     runner,
		recorder:   recorder,
		closeStore: closeStore,
		logger:     logger,
	}, nil
}

// Run performs one run under the run lock.
func (d *digest) Run(ctx context.Context) (*pipeline.Result, error) {
	lock, err := store.Lock(d.cfg.State.LockPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			d.logger.Warn("releasing run lock failed", "error", err)
		}
	}()

	res, runErr := d.runner.Run(ctx)
	d.export(res)
	if err := d.recorder.WriteTextfile(d.cfg.Metrics.Textfile); err != nil {
		d.logger.Warn("metrics export failed", "error", err)
	}
	return res, runErr
}

func (d *digest) export(res *pipeline.Result) {
	if path := d.cfg.Export.DigestPath; path != "" && res.Message != nil {
		if err := export.WriteDigest(path, *res.Message); err != nil {
			d.logger.Warn("digest export failed", "path", path, "error", err)
		}
	}
	if path := d.cfg.Export.CSVPath; path != "" && len(res.Items) > 0 {
		if err := export.WriteCSV(path, res.Items); err != nil {
			d.logger.Warn("csv export failed", "path", path, "error", err)
		}
	}
}

func (d *digest) Close() error {
	return d.closeStore()
}
