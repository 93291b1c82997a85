package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bensun/jobdigest/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func policy(retries int, delay time.Duration) Policy {
	return Policy{MaxRetries: retries, BaseDelay: delay, Logger: discardLogger()}
}

// mockFetcher calls a function on each invocation, tracking call count.
type mockFetcher struct {
	calls int
	fn    func(attempt int) ([]model.RawItem, error)
}

func (m *mockFetcher) Fetch(_ context.Context, _ model.SourceDescriptor) ([]model.RawItem, error) {
	m.calls++
	return m.fn(m.calls)
}

var src = model.SourceDescriptor{Name: "feed", Kind: "rss", Endpoint: "https://example.com/feed"}

func TestFetcher_SucceedsOnFirstAttempt(t *testing.T) {
	mock := &mockFetcher{fn: func(_ int) ([]model.RawItem, error) {
		return []model.RawItem{{Title: "Engineer", Link: "https://x/1"}}, nil
	}}

	got, err := NewFetcher(mock, policy(2, 10*time.Millisecond)).Fetch(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("unexpected items: %v", got)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call, got %d", mock.calls)
	}
}

func TestFetcher_RetriesOn5xx(t *testing.T) {
	mock := &mockFetcher{fn: func(attempt int) ([]model.RawItem, error) {
		if attempt == 1 {
			return nil, &model.HTTPError{StatusCode: 503, Err: errors.New("service unavailable")}
		}
		return []model.RawItem{{Title: "a", Link: "b"}}, nil
	}}

	got, err := NewFetcher(mock, policy(2, 10*time.Millisecond)).Fetch(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || mock.calls != 2 {
		t.Fatalf("got %d items after %d calls, want 1 after 2", len(got), mock.calls)
	}
}

func TestFetcher_DoesNotRetryOn4xx(t *testing.T) {
	mock := &mockFetcher{fn: func(_ int) ([]model.RawItem, error) {
		return nil, &model.HTTPError{StatusCode: 404, Err: errors.New("not found")}
	}}

	_, err := NewFetcher(mock, policy(2, 10*time.Millisecond)).Fetch(context.Background(), src)
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 404 {
		t.Fatalf("expected HTTPError with status 404, got %v", err)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call (no retry), got %d", mock.calls)
	}
}

func TestFetcher_GivesUpAfterMaxRetries(t *testing.T) {
	mock := &mockFetcher{fn: func(_ int) ([]model.RawItem, error) {
		return nil, &model.HTTPError{StatusCode: 500, Err: errors.New("internal error")}
	}}

	_, err := NewFetcher(mock, policy(2, 10*time.Millisecond)).Fetch(context.Background(), src)
	if err == nil {
		t.Fatal("expected error after max retries, got nil")
	}
	// 1 initial + 2 retries = 3
	if mock.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", mock.calls)
	}
}

func TestFetcher_RespectsContextCancellation(t *testing.T) {
	mock := &mockFetcher{fn: func(_ int) ([]model.RawItem, error) {
		return nil, errors.New("connection reset")
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFetcher(mock, policy(2, time.Second)).Fetch(ctx, src)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", mock.calls)
	}
}

func TestFetcher_StopsWhenDelayExceedsDeadline(t *testing.T) {
	mock := &mockFetcher{fn: func(_ int) ([]model.RawItem, error) {
		return nil, &model.HTTPError{StatusCode: 429, RetryAfter: time.Hour, Err: errors.New("slow down")}
	}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	_, err := NewFetcher(mock, policy(2, 10*time.Millisecond)).Fetch(ctx, src)
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("retry waited past the deadline")
	}
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 429 {
		t.Fatalf("expected the 429 to be returned, got %v", err)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call, got %d", mock.calls)
	}
}

func TestFetcher_NoRetryOnPermanentError(t *testing.T) {
	mock := &mockFetcher{fn: func(_ int) ([]model.RawItem, error) {
		return nil, model.Permanent(errors.New("unsupported source kind"))
	}}

	_, err := NewFetcher(mock, policy(2, 10*time.Millisecond)).Fetch(context.Background(), src)
	var permErr *model.PermanentError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected PermanentError, got %v", err)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call (no retry), got %d", mock.calls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", errors.New("dial tcp: refused"), true},
		{"429", &model.HTTPError{StatusCode: 429}, true},
		{"502", &model.HTTPError{StatusCode: 502}, true},
		{"403", &model.HTTPError{StatusCode: 403}, false},
		{"permanent", model.Permanent(errors.New("rss parse: EOF")), false},
		{"wrapped permanent", fmt.Errorf("source x: %w", model.Permanent(errors.New("bad json"))), false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
