package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bensun/jobdigest/internal/model"
)

// fetchHTML scrapes a listing page with the source's CSS selectors. Cards
// without a title element are skipped; relative links are resolved against
// the page URL.
func (f *HTTPFetcher) fetchHTML(ctx context.Context, src model.SourceDescriptor) ([]model.RawItem, error) {
	sel := src.Selectors
	if sel.Item == "" || sel.Title == "" {
		return nil, model.Permanent(fmt.Errorf("html source %s: item and title selectors are required", src.Name))
	}
	base, err := url.Parse(src.Endpoint)
	if err != nil {
		return nil, model.Permanent(fmt.Errorf("html source %s: %w", src.Name, err))
	}

	body, err := f.get(ctx, src.Endpoint, "text/html")
	if err != nil {
		return nil, fmt.Errorf("html fetch for %s: %w", src.Name, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, model.Permanent(fmt.Errorf("html parse for %s: %w", src.Name, err))
	}

	linkSel := sel.Link
	if linkSel == "" {
		linkSel = sel.Title
	}

	var items []model.RawItem
	doc.Find(sel.Item).Each(func(_ int, card *goquery.Selection) {
		titleNode := card.Find(sel.Title).First()
		if titleNode.Length() == 0 {
			return
		}
		href, _ := card.Find(linkSel).First().Attr("href")

		raw := model.RawItem{
			Title:   strings.TrimSpace(titleNode.Text()),
			Link:    resolveLink(base, href),
			Company: src.Company,
		}
		if sel.Company != "" {
			if c := strings.TrimSpace(card.Find(sel.Company).First().Text()); c != "" {
				raw.Company = c
			}
		}
		if sel.Summary != "" {
			if h, err := card.Find(sel.Summary).First().Html(); err == nil {
				raw.Summary = h
			}
		}
		items = append(items, raw)
	})
	return items, nil
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
