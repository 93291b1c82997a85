package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bensun/jobdigest/internal/model"
	"github.com/bensun/jobdigest/internal/pipeline"
	"github.com/bensun/jobdigest/internal/source"
)

func newRecorder(t *testing.T) *Recorder {
	t.Helper()
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestRecorder_SourcesAndChannels(t *testing.T) {
	r := newRecorder(t)

	r.SourceFetched("run", source.Result{Source: "A", Items: make([]model.RawItem, 3), Duration: time.Second})
	r.SourceFetched("run", source.Result{Source: "A", Items: make([]model.RawItem, 2)})
	r.SourceFetched("run", source.Result{Source: "B", Err: errors.New("boom")})
	r.ChannelDelivered("run", model.ChannelResult{Channel: "email", Status: model.StatusDelivered})
	r.ChannelDelivered("run", model.ChannelResult{Channel: "telegram", Status: model.StatusFallback})

	if got := testutil.ToFloat64(r.sourceItems.WithLabelValues("A")); got != 5 {
		t.Errorf("source items A = %v, want 5", got)
	}
	if got := testutil.ToFloat64(r.sourceErrors.WithLabelValues("B")); got != 1 {
		t.Errorf("source errors B = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.sourceErrors.WithLabelValues("A")); got != 0 {
		t.Errorf("source errors A = %v, want 0", got)
	}
	if got := testutil.ToFloat64(r.channelResults.WithLabelValues("telegram", "fallback")); got != 1 {
		t.Errorf("telegram fallback = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(r.sourceDuration, "jobdigest_source_duration_seconds"); got != 2 {
		t.Errorf("source duration series = %d, want 2", got)
	}
}

func TestRecorder_RunFinished(t *testing.T) {
	r := newRecorder(t)
	started := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	res := &pipeline.Result{
		StartedAt: started,
		Duration:  10 * time.Second,
		Fetched:   7,
		New:       4,
		Items:     make([]model.Classified, 2),
		Persisted: 2,
	}

	r.RunFinished(res, nil)
	if got := testutil.ToFloat64(r.lastSuccess); got != 1 {
		t.Errorf("last success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.lastRun); got != float64(started.Add(10*time.Second).Unix()) {
		t.Errorf("last run = %v", got)
	}
	for stage, want := range map[string]float64{"fetched": 7, "new": 4, "matched": 2, "persisted": 2} {
		if got := testutil.ToFloat64(r.postings.WithLabelValues(stage)); got != want {
			t.Errorf("postings{%s} = %v, want %v", stage, got, want)
		}
	}

	r.RunFinished(&pipeline.Result{StartedAt: started}, &model.StateLoadError{Err: errors.New("x")})
	if got := testutil.ToFloat64(r.lastSuccess); got != 0 {
		t.Errorf("last success after failure = %v, want 0", got)
	}
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := newRecorder(t)
	r.ChannelDelivered("run", model.ChannelResult{Channel: "email", Status: model.StatusDelivered})

	if err := r.WriteTextfile(""); err != nil {
		t.Fatalf("empty path should be a no-op, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "jobdigest.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `jobdigest_channel_results_total{channel="email",status="delivered"} 1`) {
		t.Errorf("textfile missing channel counter:\n%s", data)
	}
}
