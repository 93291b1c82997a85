// Package source fetches raw job items from feeds, listing pages and ATS boards.
package source

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mmcdole/gofeed"

	"github.com/bensun/jobdigest/internal/model"
)

// Source kinds understood by HTTPFetcher.
const (
	KindRSS        = "rss"
	KindHTML       = "html"
	KindGreenhouse = "greenhouse"
	KindLever      = "lever"
	KindAshby      = "ashby"
)

const (
	greenhouseBaseURL = "https://boards-api.greenhouse.io/v1/boards"
	leverBaseURL      = "https://api.lever.co/v0/postings"
	ashbyBaseURL      = "https://api.ashbyhq.com/posting-api/job-board"
)

// HTTPFetcher implements model.Fetcher for every kind over plain HTTP.
type HTTPFetcher struct {
	client         *http.Client
	userAgent      string
	feeds          *gofeed.Parser
	greenhouseBase string
	leverBase      string
	ashbyBase      string
}

// NewHTTPFetcher returns a fetcher that sends userAgent with every request.
func NewHTTPFetcher(client *http.Client, userAgent string) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{
		client:         client,
		userAgent:      userAgent,
		feeds:          gofeed.NewParser(),
		greenhouseBase: greenhouseBaseURL,
		leverBase:      leverBaseURL,
		ashbyBase:      ashbyBaseURL,
	}
}

// Fetch dispatches on src.Kind and returns the items of one source. The
// returned slice is not capped; Collect applies MaxItems.
func (f *HTTPFetcher) Fetch(ctx context.Context, src model.SourceDescriptor) ([]model.RawItem, error) {
	switch src.Kind {
	case KindRSS:
		return f.fetchRSS(ctx, src)
	case KindHTML:
		return f.fetchHTML(ctx, src)
	case KindGreenhouse:
		return f.fetchGreenhouse(ctx, src)
	case KindLever:
		return f.fetchLever(ctx, src)
	case KindAshby:
		return f.fetchAshby(ctx, src)
	default:
		return nil, model.Permanent(fmt.Errorf("unsupported source kind %q", src.Kind))
	}
}
