package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bensun/jobdigest/internal/model"
)

// DefaultTimeout bounds a single source when Options.Timeout is unset.
const DefaultTimeout = 20 * time.Second

// Options controls Collect.
type Options struct {
	Timeout time.Duration // per-source deadline
}

// Result is the outcome of one source.
type Result struct {
	Source   string
	Items    []model.RawItem // valid items, capped at the source's MaxItems
	Skipped  int             // items dropped for a missing title or link
	Err      error           // *model.SourceFetchError, nil on success
	Duration time.Duration
}

// Collect fetches every source in order. A failing, slow or panicking source
// yields an empty Result with Err set; it never stops the remaining sources.
func Collect(ctx context.Context, fetcher model.Fetcher, sources []model.SourceDescriptor, opts Options, logger *slog.Logger) []Result {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	results := make([]Result, 0, len(sources))
	for _, src := range sources {
		start := time.Now()
		items, err := fetchOne(ctx, fetcher, src, timeout)
		res := Result{Source: src.Name, Duration: time.Since(start)}

		if err != nil {
			res.Err = &model.SourceFetchError{Source: src.Name, Err: err}
			logger.Warn("source failed", "source", src.Name, "kind", src.Kind, "error", err)
			results = append(results, res)
			continue
		}

		for _, it := range items {
			if strings.TrimSpace(it.Title) == "" || strings.TrimSpace(it.Link) == "" {
				res.Skipped++
				continue
			}
			if src.MaxItems > 0 && len(res.Items) >= src.MaxItems {
				break
			}
			res.Items = append(res.Items, it)
		}

		logger.Debug("source fetched",
			"source", src.Name,
			"kind", src.Kind,
			"fetched", len(items),
			"kept", len(res.Items),
			"skipped", res.Skipped,
			"duration", res.Duration,
		)
		results = append(results, res)
	}
	return results
}

func fetchOne(ctx context.Context, fetcher model.Fetcher, src model.SourceDescriptor, timeout time.Duration) (items []model.RawItem, err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			items = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return fetcher.Fetch(ctx, src)
}
