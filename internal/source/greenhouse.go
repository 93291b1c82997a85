package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/bensun/jobdigest/internal/model"
)

// greenhouseJob is one entry of the public boards API response.
type greenhouseJob struct {
	Title          string `json:"title"`
	AbsoluteURL    string `json:"absolute_url"`
	Content        string `json:"content"` // HTML-escaped description
	FirstPublished string `json:"first_published"`
	UpdatedAt      string `json:"updated_at"`
	Location       struct {
		Name string `json:"name"`
	} `json:"location"`
}

type greenhouseResponse struct {
	Jobs []greenhouseJob `json:"jobs"`
}

// fetchGreenhouse lists a Greenhouse board. src.Endpoint is the board token.
func (f *HTTPFetcher) fetchGreenhouse(ctx context.Context, src model.SourceDescriptor) ([]model.RawItem, error) {
	endpoint := fmt.Sprintf("%s/%s/jobs?content=true", f.greenhouseBase, url.PathEscape(src.Endpoint))

	body, err := f.get(ctx, endpoint, "application/json")
	if err != nil {
		return nil, fmt.Errorf("greenhouse fetch for %s: %w", src.Endpoint, err)
	}

	var resp greenhouseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, model.Permanent(fmt.Errorf("greenhouse decode for %s: %w", src.Endpoint, err))
	}

	company := src.Company
	if company == "" {
		company = src.Name
	}

	items := make([]model.RawItem, 0, len(resp.Jobs))
	for _, gj := range resp.Jobs {
		raw := model.RawItem{
			Title:   gj.Title,
			Link:    gj.AbsoluteURL,
			Summary: gj.Content,
			Company: company,
		}
		// Prefer first_published; updated_at changes on every edit.
		for _, ts := range []string{gj.FirstPublished, gj.UpdatedAt} {
			if ts == "" {
				continue
			}
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				raw.PostedAt = &t
				break
			}
		}
		items = append(items, raw)
	}
	return items, nil
}
