package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/bensun/jobdigest/internal/model"
)

// leverPosting is one entry of the public postings API response.
type leverPosting struct {
	Text             string `json:"text"`
	DescriptionPlain string `json:"descriptionPlain"`
	Description      string `json:"description"`
	HostedURL        string `json:"hostedUrl"`
	CreatedAt        int64  `json:"createdAt"` // Unix milliseconds
}

// fetchLever lists a Lever board. src.Endpoint is the company slug.
func (f *HTTPFetcher) fetchLever(ctx context.Context, src model.SourceDescriptor) ([]model.RawItem, error) {
	endpoint := fmt.Sprintf("%s/%s?mode=json", f.leverBase, url.PathEscape(src.Endpoint))

	body, err := f.get(ctx, endpoint, "application/json")
	if err != nil {
		return nil, fmt.Errorf("lever fetch for %s: %w", src.Endpoint, err)
	}

	var postings []leverPosting
	if err := json.Unmarshal(body, &postings); err != nil {
		return nil, model.Permanent(fmt.Errorf("lever decode for %s: %w", src.Endpoint, err))
	}

	company := src.Company
	if company == "" {
		company = src.Name
	}

	items := make([]model.RawItem, 0, len(postings))
	for _, lp := range postings {
		summary := lp.DescriptionPlain
		if summary == "" {
			summary = lp.Description
		}
		raw := model.RawItem{
			Title:   lp.Text,
			Link:    lp.HostedURL,
			Summary: summary,
			Company: company,
		}
		if lp.CreatedAt > 0 {
			t := time.UnixMilli(lp.CreatedAt)
			raw.PostedAt = &t
		}
		items = append(items, raw)
	}
	return items, nil
}
