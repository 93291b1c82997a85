package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bensun/jobdigest/internal/model"
	"github.com/bensun/jobdigest/internal/retry"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func timePtr(t time.Time) *time.Time { return &t }

func sampleItem(title, company string) model.Classified {
	return model.Classified{
		Posting: model.Posting{
			Source:   "RemoteOK",
			Title:    title,
			Link:     "https://example.com/apply/" + strings.ReplaceAll(title, " ", "-"),
			Summary:  "Build things <fast> & well",
			Company:  company,
			PostedAt: timePtr(time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)),
		},
		Tag: model.TagCompany,
	}
}

func sampleMessage(items ...model.Classified) model.Message {
	return model.Message{Subject: "Daily Job Digest – 2026-01-15 (1 new job)", Body: "digest body", Items: items}
}

// slackRecorder captures webhook payloads.
type slackRecorder struct {
	mu       sync.Mutex
	payloads []slackPayload
}

func (r *slackRecorder) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var p slackPayload
		body, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(body, &p)
		r.mu.Lock()
		r.payloads = append(r.payloads, p)
		r.mu.Unlock()
		w.WriteHeader(status)
	}
}

func TestSlackChannel_SingleItem(t *testing.T) {
	rec := &slackRecorder{}
	srv := httptest.NewServer(rec.handler(http.StatusOK))
	defer srv.Close()

	ch := NewSlackChannel(srv.URL, srv.Client())
	if err := ch.Send(context.Background(), sampleMessage(sampleItem("Backend Engineer", "Acme Corp"))); err != nil {
		t.Fatalf("Send() = %v, want nil", err)
	}

	if len(rec.payloads) != 1 {
		t.Fatalf("expected 1 webhook call, got %d", len(rec.payloads))
	}
	p := rec.payloads[0]
	if len(p.Blocks) != 2 {
		t.Fatalf("expected header + 1 section, got %d blocks", len(p.Blocks))
	}
	if p.Blocks[0].Type != "header" || !strings.HasPrefix(p.Blocks[0].Text.Text, "Daily Job Digest") {
		t.Errorf("header block = %+v", p.Blocks[0])
	}

	section := p.Blocks[1]
	if !strings.Contains(section.Text.Text, "*1. <https://example.com/apply/Backend-Engineer|Backend Engineer>*") {
		t.Errorf("section text = %q", section.Text.Text)
	}
	if !strings.Contains(section.Text.Text, "`COMPANY_MATCH`") || !strings.Contains(section.Text.Text, "Acme Corp") {
		t.Errorf("section text missing tag or company: %q", section.Text.Text)
	}
	if !strings.Contains(section.Text.Text, "&lt;fast&gt; &amp; well") {
		t.Errorf("summary not escaped: %q", section.Text.Text)
	}
	if section.Accessory == nil || section.Accessory.URL != "https://example.com/apply/Backend-Engineer" {
		t.Errorf("accessory = %+v", section.Accessory)
	}
}

func TestSlackChannel_SplitsLongDigests(t *testing.T) {
	rec := &slackRecorder{}
	srv := httptest.NewServer(rec.handler(http.StatusOK))
	defer srv.Close()

	items := make([]model.Classified, 0, 50)
	for i := 0; i < 50; i++ {
		items = append(items, sampleItem(fmt.Sprintf("Role %d", i), ""))
	}
	if err := NewSlackChannel(srv.URL, srv.Client()).Send(context.Background(), sampleMessage(items...)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(rec.payloads) != 2 {
		t.Fatalf("expected 2 webhook calls, got %d", len(rec.payloads))
	}
	if got := len(rec.payloads[0].Blocks); got != slackItemsPerMessage+1 {
		t.Errorf("first payload has %d blocks", got)
	}
	if !strings.Contains(rec.payloads[1].Blocks[1].Text.Text, "*46. ") {
		t.Errorf("numbering should continue across payloads: %q", rec.payloads[1].Blocks[1].Text.Text)
	}
}

func TestSlackChannel_RetryDoesNotRepeatEarlierPayloads(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
		first []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var p slackPayload
		_ = json.NewDecoder(req.Body).Decode(&p)
		mu.Lock()
		calls++
		call := calls
		first = append(first, p.Blocks[1].Text.Text)
		mu.Unlock()
		if call == 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	items := make([]model.Classified, 0, 50)
	for i := 0; i < 50; i++ {
		items = append(items, sampleItem(fmt.Sprintf("Role %d", i), ""))
	}
	ch := NewSlackChannel(srv.URL, srv.Client()).WithRetry(retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond})
	if err := ch.Send(context.Background(), sampleMessage(items...)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls != 3 {
		t.Fatalf("webhook calls = %d, want 3", calls)
	}
	if !strings.Contains(first[0], "*1. ") || !strings.Contains(first[1], "*46. ") || !strings.Contains(first[2], "*46. ") {
		t.Errorf("first posting per call = %q", first)
	}
}

func TestSlackChannel_EmptyDigest(t *testing.T) {
	rec := &slackRecorder{}
	srv := httptest.NewServer(rec.handler(http.StatusOK))
	defer srv.Close()

	msg := model.Message{Subject: "Daily Job Digest – 2026-01-15", Body: "No new jobs found today."}
	if err := NewSlackChannel(srv.URL, srv.Client()).Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(rec.payloads) != 1 || rec.payloads[0].Blocks[1].Text.Text != "No new jobs found today." {
		t.Errorf("payloads = %+v", rec.payloads)
	}
}

func TestSlackChannel_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewSlackChannel(srv.URL, srv.Client()).Send(context.Background(), sampleMessage(sampleItem("x", "")))
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *model.HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusTooManyRequests || httpErr.RetryAfter != 3*time.Second {
		t.Errorf("HTTPError = %+v", httpErr)
	}
}

func TestSlackChannel_Configured(t *testing.T) {
	if NewSlackChannel("", nil).Configured() {
		t.Error("empty webhook should not be configured")
	}
	if !NewSlackChannel("https://hooks.slack.com/services/x", nil).Configured() {
		t.Error("webhook should be configured")
	}
}
