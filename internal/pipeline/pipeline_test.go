package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/bensun/jobdigest/internal/classify"
	"github.com/bensun/jobdigest/internal/compose"
	"github.com/bensun/jobdigest/internal/model"
	"github.com/bensun/jobdigest/internal/normalize"
	"github.com/bensun/jobdigest/internal/notifier"
	"github.com/bensun/jobdigest/internal/source"
)

// --- Fakes ---

// fakeFetcher serves canned items per source name.
type fakeFetcher struct {
	items map[string][]model.RawItem
	errs  map[string]error
}

func (f *fakeFetcher) Fetch(_ context.Context, src model.SourceDescriptor) ([]model.RawItem, error) {
	if err := f.errs[src.Name]; err != nil {
		return nil, err
	}
	return f.items[src.Name], nil
}

// memStore is an in-memory KeyStore.
type memStore struct {
	keys      model.KeySet
	loadErr   error
	appendErr error
	appends   int
}

func newMemStore() *memStore { return &memStore{keys: model.NewKeySet()} }

func (s *memStore) Load(context.Context) (model.KeySet, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make(model.KeySet, len(s.keys))
	for k := range s.keys {
		out[k] = struct{}{}
	}
	return out, nil
}

func (s *memStore) Append(_ context.Context, keys []string) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appends++
	for _, k := range keys {
		s.keys[k] = struct{}{}
	}
	return nil
}

// recordingChannel records every message it is sent.
type recordingChannel struct {
	name       string
	configured bool
	err        error
	sent       []model.Message
}

func (c *recordingChannel) Name() string     { return c.name }
func (c *recordingChannel) Configured() bool { return c.configured }
func (c *recordingChannel) Send(_ context.Context, msg model.Message) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

// recordingObserver collects events.
type recordingObserver struct {
	states   []State
	sources  []source.Result
	channels []model.ChannelResult
	finished int
	lastErr  error
}

func (o *recordingObserver) StateChanged(_ string, _, to State) { o.states = append(o.states, to) }
func (o *recordingObserver) SourceFetched(_ string, r source.Result) {
	o.sources = append(o.sources, r)
}
func (o *recordingObserver) ChannelDelivered(_ string, r model.ChannelResult) {
	o.channels = append(o.channels, r)
}
func (o *recordingObserver) RunFinished(_ *Result, err error) {
	o.finished++
	o.lastErr = err
}

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	fetcher  *fakeFetcher
	store    *memStore
	channel  *recordingChannel
	observer *recordingObserver
	sources  []model.SourceDescriptor
	opts     Options
	fallback string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		fetcher:  &fakeFetcher{items: map[string][]model.RawItem{}, errs: map[string]error{}},
		store:    newMemStore(),
		channel:  &recordingChannel{name: "email", configured: true},
		observer: &recordingObserver{},
		opts: Options{
			CountFallback: true,
			SourceTimeout: time.Second,
			Now:           func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) },
		},
		fallback: t.TempDir(),
	}
}

func (h *harness) addSource(name string, items ...model.RawItem) {
	h.sources = append(h.sources, model.SourceDescriptor{Name: name, Kind: "rss", Endpoint: "https://example.com/" + name, MaxItems: 10})
	h.fetcher.items[name] = items
}

func (h *harness) runner(employers, startup []string) *Runner {
	return New(Deps{
		Fetcher:    h.fetcher,
		Sources:    h.sources,
		Normalizer: normalize.New(300),
		Classifier: classify.New(employers, startup),
		Composer:   compose.New(compose.Options{SenderName: "Ben"}),
		Dispatcher: notifier.NewDispatcher([]model.Channel{h.channel}, notifier.NewFallback(h.fallback), time.Second, discardLogger()),
		Store:      h.store,
		Observer:   h.observer,
		Logger:     discardLogger(),
	}, h.opts)
}

func item(title, link string) model.RawItem {
	return model.RawItem{Title: title, Link: link, Summary: "<p>Great role</p>"}
}

// --- Tests ---

func TestRun_GoogleScenario(t *testing.T) {
	h := newHarness(t)
	h.addSource("Feed",
		item("ML Engineer at Google", "https://jobs.example.com/a"),
		item("Backend Dev", "https://jobs.example.com/b"),
	)
	r := h.runner([]string{"google"}, nil)

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].Posting.Title != "ML Engineer at Google" || res.Items[0].Tag != model.TagCompany {
		t.Fatalf("Items = %+v", res.Items)
	}
	if res.Fetched != 2 || res.New != 2 || res.Persisted != 1 || !res.Delivered {
		t.Errorf("result = %+v", res)
	}
	if len(h.channel.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(h.channel.sent))
	}
	if want := "Daily Job Digest – 2026-03-01 (1 new job)"; h.channel.sent[0].Subject != want {
		t.Errorf("Subject = %q, want %q", h.channel.sent[0].Subject, want)
	}
	if !h.store.keys.Has(model.IdentityKey("Feed", "https://jobs.example.com/a")) {
		t.Error("posting A should be persisted")
	}
	if h.store.keys.Has(model.IdentityKey("Feed", "https://jobs.example.com/b")) {
		t.Error("unclassified posting B must not be persisted")
	}

	// Second run with identical upstream data notifies nothing.
	res, err = r.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() = %v", err)
	}
	if len(res.Items) != 0 || res.Message != nil || res.Persisted != 0 {
		t.Errorf("second run = %+v", res)
	}
	if len(h.channel.sent) != 1 {
		t.Errorf("second run sent %d extra messages", len(h.channel.sent)-1)
	}
	if res.State != StatePersisting {
		t.Errorf("State = %s, want %s", res.State, StatePersisting)
	}
}

func TestRun_NoDuplicatesAcrossRuns(t *testing.T) {
	h := newHarness(t)
	h.addSource("Feed",
		item("Engineer at Google", "https://x/1"),
		item("Engineer at Google", "https://x/1"), // repeated within the same fetch
	)
	r := h.runner([]string{"google"}, nil)

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("expected the repeated item once, got %d", len(res.Items))
	}

	h.fetcher.items["Feed"] = append(h.fetcher.items["Feed"], item("SRE at Google", "https://x/2"))
	res, err = r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].Posting.Link != "https://x/2" {
		t.Errorf("second run items = %+v", res.Items)
	}

	var links []string
	for _, msg := range h.channel.sent {
		for _, it := range msg.Items {
			links = append(links, it.Posting.Link)
		}
	}
	sort.Strings(links)
	if len(links) != 2 || links[0] != "https://x/1" || links[1] != "https://x/2" {
		t.Errorf("notified links = %v", links)
	}
}

func TestRun_PartialSourceFailure(t *testing.T) {
	h := newHarness(t)
	h.addSource("A", item("Go Dev at Stripe", "https://a/1"))
	h.addSource("B", item("Go Dev at Stripe", "https://b/1"))
	h.addSource("C", item("Go Dev at Stripe", "https://c/1"))
	h.fetcher.errs["B"] = errors.New("connection refused")

	res, err := h.runner([]string{"stripe"}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() = %v, a single source failure must not fail the run", err)
	}
	if res.SourceErrors() != 1 {
		t.Errorf("SourceErrors() = %d, want 1", res.SourceErrors())
	}
	if len(res.Items) != 2 {
		t.Fatalf("expected items from A and C, got %+v", res.Items)
	}
	for _, it := range res.Items {
		if it.Posting.Source == "B" {
			t.Errorf("unexpected posting from failed source: %+v", it)
		}
	}

	var fetchErr *model.SourceFetchError
	if len(h.observer.sources) != 3 || !errors.As(h.observer.sources[1].Err, &fetchErr) {
		t.Errorf("observer sources = %+v", h.observer.sources)
	}
}

func TestRun_StateLoadFailureNotifiesNothing(t *testing.T) {
	h := newHarness(t)
	h.addSource("Feed", item("Engineer at Google", "https://x/1"))
	h.store.loadErr = errors.New("permission denied")

	res, err := h.runner([]string{"google"}, nil).Run(context.Background())
	var loadErr *model.StateLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected *model.StateLoadError, got %v", err)
	}
	if len(h.channel.sent) != 0 {
		t.Error("nothing may be sent when state cannot be loaded")
	}
	if res.State != StateIdle || len(h.observer.states) != 1 || h.observer.states[0] != StateIdle {
		t.Errorf("run should never leave IDLE, states = %v", h.observer.states)
	}
	if h.observer.finished != 1 || !errors.As(h.observer.lastErr, &loadErr) {
		t.Errorf("observer finished = %d, err = %v", h.observer.finished, h.observer.lastErr)
	}
}

func TestRun_PersistFailure(t *testing.T) {
	h := newHarness(t)
	h.addSource("Feed", item("Engineer at Google", "https://x/1"))
	h.store.appendErr = errors.New("disk full")

	res, err := h.runner([]string{"google"}, nil).Run(context.Background())
	var persistErr *model.StatePersistError
	if !errors.As(err, &persistErr) {
		t.Fatalf("expected *model.StatePersistError, got %v", err)
	}
	if persistErr.Keys != 1 {
		t.Errorf("Keys = %d, want 1", persistErr.Keys)
	}
	if len(h.channel.sent) != 1 || !res.Delivered {
		t.Error("the digest should still have been delivered")
	}
}

func TestRun_EmptyRun(t *testing.T) {
	tests := []struct {
		name          string
		notifyOnEmpty bool
		wantSent      int
	}{
		{"silent by default", false, 0},
		{"notify on empty", true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.addSource("Feed", item("Backend Dev", "https://x/1"))
			h.opts.NotifyOnEmpty = tt.notifyOnEmpty

			res, err := h.runner([]string{"google"}, nil).Run(context.Background())
			if err != nil {
				t.Fatalf("Run() = %v", err)
			}
			if len(h.channel.sent) != tt.wantSent {
				t.Fatalf("sent %d messages, want %d", len(h.channel.sent), tt.wantSent)
			}
			if tt.wantSent > 0 && h.channel.sent[0].Body != "Daily Job Digest – 2026-03-01\n\nNo new jobs found today.\n" {
				t.Errorf("empty body = %q", h.channel.sent[0].Body)
			}
			if res.State != StatePersisting || h.store.appends != 0 {
				t.Errorf("State = %s, appends = %d", res.State, h.store.appends)
			}
		})
	}
}

func TestRun_UndeliveredKeysAreNotPersisted(t *testing.T) {
	h := newHarness(t)
	h.addSource("Feed", item("Engineer at Google", "https://x/1"))
	h.channel.err = errors.New("smtp down")

	res, err := h.runner([]string{"google"}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if res.Delivered || res.Persisted != 0 || len(h.store.keys) != 0 {
		t.Errorf("result = %+v, keys = %v", res, h.store.keys)
	}
	if len(h.observer.channels) != 1 || h.observer.channels[0].Status != model.StatusFailed {
		t.Errorf("observer channels = %+v", h.observer.channels)
	}
}

func TestRun_FallbackCountsAsDelivered(t *testing.T) {
	tests := []struct {
		name          string
		countFallback bool
		wantPersisted int
	}{
		{"counted", true, 1},
		{"not counted", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.addSource("Feed", item("Engineer at Google", "https://x/1"))
			h.channel.configured = false
			h.opts.CountFallback = tt.countFallback

			res, err := h.runner([]string{"google"}, nil).Run(context.Background())
			if err != nil {
				t.Fatalf("Run() = %v", err)
			}
			if res.Persisted != tt.wantPersisted {
				t.Errorf("Persisted = %d, want %d", res.Persisted, tt.wantPersisted)
			}
			if res.Channels[0].Status != model.StatusFallback {
				t.Errorf("channel = %+v", res.Channels[0])
			}
		})
	}
}

func TestRun_FallbackArtifactKeepsEveryRun(t *testing.T) {
	h := newHarness(t)
	h.addSource("Feed", item("Engineer at Google", "https://x/1"))
	h.channel.configured = false

	if _, err := h.runner([]string{"google"}, nil).Run(context.Background()); err != nil {
		t.Fatalf("first Run() = %v", err)
	}
	h.fetcher.items["Feed"] = []model.RawItem{item("SRE at Google", "https://x/2")}
	res, err := h.runner([]string{"google"}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() = %v", err)
	}
	if len(h.store.keys) != 2 {
		t.Fatalf("persisted keys = %v, want both postings", h.store.keys)
	}

	data, err := os.ReadFile(res.Channels[0].Artifact)
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	for _, link := range []string{"https://x/1", "https://x/2"} {
		if !strings.Contains(string(data), link) {
			t.Errorf("artifact lost %s:\n%s", link, data)
		}
	}
}

func TestRun_StatesInOrder(t *testing.T) {
	tests := []struct {
		name  string
		items []model.RawItem
		want  []State
	}{
		{
			name:  "new posting",
			items: []model.RawItem{item("Engineer at Google", "https://x/1")},
			want:  []State{StateFetching, StateDeduping, StateClassifying, StateComposing, StateNotifying, StatePersisting, StateIdle},
		},
		{
			name: "silent empty run skips notifying",
			want: []State{StateFetching, StateDeduping, StateClassifying, StateComposing, StatePersisting, StateIdle},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.addSource("Feed", tt.items...)

			if _, err := h.runner([]string{"google"}, nil).Run(context.Background()); err != nil {
				t.Fatalf("Run() = %v", err)
			}
			if len(h.observer.states) != len(tt.want) {
				t.Fatalf("states = %v, want %v", h.observer.states, tt.want)
			}
			for i := range tt.want {
				if h.observer.states[i] != tt.want[i] {
					t.Errorf("state %d = %s, want %s", i, h.observer.states[i], tt.want[i])
				}
			}
		})
	}
}

func TestRun_CancelledBeforeNotifying(t *testing.T) {
	h := newHarness(t)
	h.addSource("Feed", item("Engineer at Google", "https://x/1"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.runner([]string{"google"}, nil).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(h.channel.sent) != 0 || len(h.store.keys) != 0 {
		t.Error("an interrupted run must not notify or persist")
	}
}

func TestNewRunID(t *testing.T) {
	a, b := newRunID(), newRunID()
	if a == "" || a == b {
		t.Errorf("run ids %q and %q should be unique", a, b)
	}
}
