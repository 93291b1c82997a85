// Package pipeline runs one digest cycle end to end:
// fetch → normalize → dedup → classify → compose → notify → persist.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bensun/jobdigest/internal/classify"
	"github.com/bensun/jobdigest/internal/compose"
	"github.com/bensun/jobdigest/internal/dedup"
	"github.com/bensun/jobdigest/internal/model"
	"github.com/bensun/jobdigest/internal/normalize"
	"github.com/bensun/jobdigest/internal/notifier"
	"github.com/bensun/jobdigest/internal/source"
)

// State is a phase of a run. Runs move through the states strictly in order.
// NOTIFYING is skipped when nothing was composed, i.e. an empty run with
// NotifyOnEmpty off goes from COMPOSING straight to PERSISTING.
type State string

const (
	StateIdle        State = "IDLE"
	StateFetching    State = "FETCHING"
	StateDeduping    State = "DEDUPING"
	StateClassifying State = "CLASSIFYING"
	StateComposing   State = "COMPOSING"
	StateNotifying   State = "NOTIFYING"
	StatePersisting  State = "PERSISTING"
)

// Deps are the collaborators of a Runner.
type Deps struct {
	Fetcher    model.Fetcher
	Sources    []model.SourceDescriptor
	Normalizer *normalize.Normalizer
	Classifier *classify.Classifier
	Composer   *compose.Composer
	Dispatcher *notifier.Dispatcher
	Store      model.KeyStore
	Observer   Observer // optional
	Logger     *slog.Logger
}

// Options tune a Runner.
type Options struct {
	NotifyOnEmpty bool          // send the "nothing new" message when no posting qualifies
	CountFallback bool          // a fallback artifact counts as delivery
	SourceTimeout time.Duration // per-source deadline, source.DefaultTimeout when zero
	Now           func() time.Time
}

// Result summarizes one run.
type Result struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	State     State // last state reached before returning to IDLE

	Sources   []source.Result
	Fetched   int                   // normalized postings across all sources
	New       int                   // postings not notified before
	Items     []model.Classified    // qualifying postings, in source order
	Message   *model.Message        // nil when dispatch was skipped
	Channels  []model.ChannelResult // one per channel, empty when dispatch was skipped
	Delivered bool
	Persisted int // keys appended to the store
}

// SourceErrors counts the sources that failed.
func (r *Result) SourceErrors() int {
	n := 0
	for _, s := range r.Sources {
		if s.Err != nil {
			n++
		}
	}
	return n
}

// Runner owns a single digest run. It is not safe for concurrent use; callers
// serialize runs (see store.Lock).
type Runner struct {
	deps Deps
	opts Options
	obs  Observer
	now  func() time.Time
}

// New creates a Runner.
func New(deps Deps, opts Options) *Runner {
	obs := deps.Observer
	if obs == nil {
		obs = NopObserver{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{deps: deps, opts: opts, obs: obs, now: now}
}

// Run executes one run. The returned Result is never nil. The error is a
// *model.StateLoadError, a *model.StatePersistError or the context error when
// the run was interrupted before PERSISTING; source and channel failures are
// recorded in the Result and never returned.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: newRunID(), StartedAt: r.now(), State: StateIdle}
	logger := r.deps.Logger.With("run_id", res.RunID)

	err := r.run(ctx, logger, res)
	res.Duration = r.now().Sub(res.StartedAt)

	if err != nil {
		logger.Error("run failed", "state", res.State, "error", err, "duration", res.Duration)
	} else {
		logger.Info("run complete",
			"sources", len(res.Sources),
			"source_errors", res.SourceErrors(),
			"fetched", res.Fetched,
			"new", res.New,
			"matched", len(res.Items),
			"delivered", res.Delivered,
			"persisted", res.Persisted,
			"duration", res.Duration,
		)
	}
	r.obs.RunFinished(res, err)
	r.obs.StateChanged(res.RunID, res.State, StateIdle)
	return res, err
}

func (r *Runner) run(ctx context.Context, logger *slog.Logger, res *Result) error {
	seen, err := r.deps.Store.Load(ctx)
	if err != nil {
		return &model.StateLoadError{Err: err}
	}
	logger.Debug("loaded notified keys", "count", len(seen))

	r.enter(res, StateFetching)
	res.Sources = source.Collect(ctx, r.deps.Fetcher, r.deps.Sources, source.Options{Timeout: r.opts.SourceTimeout}, logger)
	var postings []model.Posting
	for _, sr := range res.Sources {
		r.obs.SourceFetched(res.RunID, sr)
		postings = append(postings, r.deps.Normalizer.All(sr.Source, sr.Items)...)
	}
	res.Fetched = len(postings)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("interrupted while fetching: %w", err)
	}

	r.enter(res, StateDeduping)
	fresh := dedup.Diff(dedup.Unique(postings), seen)
	res.New = len(fresh)

	r.enter(res, StateClassifying)
	res.Items = r.deps.Classifier.Filter(fresh)

	r.enter(res, StateComposing)
	date := res.StartedAt
	switch {
	case len(res.Items) > 0:
		msg := r.deps.Composer.Message(date, res.Items)
		res.Message = &msg
	case r.opts.NotifyOnEmpty:
		msg := r.deps.Composer.EmptyMessage(date)
		res.Message = &msg
	default:
		logger.Info("no new qualifying postings, skipping notification")
	}

	if res.Message != nil {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("interrupted before notifying: %w", err)
		}
		r.enter(res, StateNotifying)
		res.Channels = r.deps.Dispatcher.Dispatch(ctx, *res.Message)
		for _, cr := range res.Channels {
			r.obs.ChannelDelivered(res.RunID, cr)
		}
		res.Delivered = notifier.Delivered(res.Channels, r.opts.CountFallback)
		if !res.Delivered && len(res.Items) > 0 {
			logger.Error("no channel delivered the digest, postings will be offered again next run",
				"postings", len(res.Items),
				"channels", len(res.Channels),
			)
		}
	}

	r.enter(res, StatePersisting)
	if !res.Delivered || len(res.Items) == 0 {
		return nil
	}
	keys := dedup.Keys(res.Items)
	if err := r.deps.Store.Append(ctx, keys); err != nil {
		return &model.StatePersistError{Keys: len(keys), Err: err}
	}
	res.Persisted = len(keys)
	return nil
}

func (r *Runner) enter(res *Result, next State) {
	prev := res.State
	res.State = next
	r.obs.StateChanged(res.RunID, prev, next)
}

// newRunID returns a time-ordered UUIDv7, falling back to a random v4.
func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
