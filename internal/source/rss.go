package source

import (
	"bytes"
	"context"
	"fmt"

	"github.com/bensun/jobdigest/internal/model"
)

const feedAccept = "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8"

// fetchRSS reads an RSS or Atom feed. The summary falls back to the full
// content when the feed has no description.
func (f *HTTPFetcher) fetchRSS(ctx context.Context, src model.SourceDescriptor) ([]model.RawItem, error) {
	body, err := f.get(ctx, src.Endpoint, feedAccept)
	if err != nil {
		return nil, fmt.Errorf("rss fetch for %s: %w", src.Name, err)
	}

	feed, err := f.feeds.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, model.Permanent(fmt.Errorf("rss parse for %s: %w", src.Name, err))
	}

	items := make([]model.RawItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		link := it.Link
		if link == "" && len(it.Links) > 0 {
			link = it.Links[0]
		}
		summary := it.Description
		if summary == "" {
			summary = it.Content
		}
		raw := model.RawItem{
			Title:   it.Title,
			Link:    link,
			Summary: summary,
			Company: src.Company,
		}
		if it.PublishedParsed != nil {
			raw.PostedAt = it.PublishedParsed
		} else if it.UpdatedParsed != nil {
			raw.PostedAt = it.UpdatedParsed
		}
		items = append(items, raw)
	}
	return items, nil
}
