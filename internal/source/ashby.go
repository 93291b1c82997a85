package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/bensun/jobdigest/internal/model"
)

type ashbyJob struct {
	Title            string `json:"title"`
	JobURL           string `json:"jobUrl"`
	DescriptionPlain string `json:"descriptionPlain"`
	PublishedAt      string `json:"publishedAt"`
	IsListed         bool   `json:"isListed"`
}

type ashbyResponse struct {
	Jobs []ashbyJob `json:"jobs"`
}

// fetchAshby lists an Ashby job board. src.Endpoint is the board name.
// Unlisted postings are dropped.
func (f *HTTPFetcher) fetchAshby(ctx context.Context, src model.SourceDescriptor) ([]model.RawItem, error) {
	endpoint := fmt.Sprintf("%s/%s?includeCompensation=false", f.ashbyBase, url.PathEscape(src.Endpoint))

	body, err := f.get(ctx, endpoint, "application/json")
	if err != nil {
		return nil, fmt.Errorf("ashby fetch for %s: %w", src.Endpoint, err)
	}

	var resp ashbyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, model.Permanent(fmt.Errorf("ashby decode for %s: %w", src.Endpoint, err))
	}

	company := src.Company
	if company == "" {
		company = src.Name
	}

	items := make([]model.RawItem, 0, len(resp.Jobs))
	for _, aj := range resp.Jobs {
		if !aj.IsListed {
			continue
		}
		raw := model.RawItem{
			Title:   aj.Title,
			Link:    aj.JobURL,
			Summary: aj.DescriptionPlain,
			Company: company,
		}
		if t, err := time.Parse(time.RFC3339, aj.PublishedAt); err == nil {
			raw.PostedAt = &t
		}
		items = append(items, raw)
	}
	return items, nil
}
