// Package ratelimit spaces out requests that hit the same host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/bensun/jobdigest/internal/model"
)

// HostLimiter keeps one token bucket per host.
type HostLimiter struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	r     rate.Limit
	burst int
}

// NewHostLimiter allows reqPerSec requests per second against each host, with
// the given burst. A non-positive rate disables limiting.
func NewHostLimiter(reqPerSec float64, burst int) *HostLimiter {
	r := rate.Limit(reqPerSec)
	if reqPerSec <= 0 {
		r = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		m:     make(map[string]*rate.Limiter),
		r:     r,
		burst: burst,
	}
}

func (hl *HostLimiter) limiterFor(host string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	if lim, ok := hl.m[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(hl.r, hl.burst)
	hl.m[host] = lim
	return lim
}

// Wait blocks until a request to host is allowed or ctx is done.
func (hl *HostLimiter) Wait(ctx context.Context, host string) error {
	if err := hl.limiterFor(host).Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait for %s: %w", host, err)
	}
	return nil
}

// HostKey returns the bucket a source draws from: the endpoint host for URL
// kinds and the provider name for ATS boards, whose endpoint is only a slug.
func HostKey(src model.SourceDescriptor) string {
	switch src.Kind {
	case "greenhouse", "lever":
		return src.Kind
	}
	u, err := url.Parse(strings.TrimSpace(src.Endpoint))
	if err != nil || u.Host == "" {
		return "_"
	}
	return strings.ToLower(u.Host)
}

// Fetcher is a model.Fetcher decorator that waits for the host's limiter
// before delegating. Sources sharing a host should share one HostLimiter.
type Fetcher struct {
	inner   model.Fetcher
	limiter *HostLimiter
}

// NewFetcher wraps inner with limiter.
func NewFetcher(inner model.Fetcher, limiter *HostLimiter) *Fetcher {
	return &Fetcher{inner: inner, limiter: limiter}
}

// Fetch waits for the rate limiter to allow a request, then delegates.
func (f *Fetcher) Fetch(ctx context.Context, src model.SourceDescriptor) ([]model.RawItem, error) {
	if err := f.limiter.Wait(ctx, HostKey(src)); err != nil {
		return nil, err
	}
	return f.inner.Fetch(ctx, src)
}
