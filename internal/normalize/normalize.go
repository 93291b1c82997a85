// Package normalize turns raw source items into Postings.
package normalize

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bensun/jobdigest/internal/model"
)

// Ellipsis is appended to summaries cut at the configured limit.
const Ellipsis = "..."

// Normalizer canonicalizes raw items. It holds no state besides its limit
// and is safe to share.
type Normalizer struct {
	summaryLimit int
}

// New returns a Normalizer that caps summaries at summaryLimit characters.
// A non-positive limit disables truncation.
func New(summaryLimit int) *Normalizer {
	return &Normalizer{summaryLimit: summaryLimit}
}

// Normalize converts raw into a Posting attributed to source. It returns false
// when the item lacks a title or a link.
func (n *Normalizer) Normalize(source string, raw model.RawItem) (model.Posting, bool) {
	title := collapse(raw.Title)
	link := strings.TrimSpace(raw.Link)
	if title == "" || link == "" {
		return model.Posting{}, false
	}

	return model.Posting{
		Source:   strings.TrimSpace(source),
		Title:    title,
		Link:     link,
		Summary:  Truncate(CleanText(raw.Summary), n.summaryLimit),
		Company:  collapse(raw.Company),
		PostedAt: raw.PostedAt,
	}, true
}

// All normalizes every item of one source, dropping the invalid ones.
func (n *Normalizer) All(source string, items []model.RawItem) []model.Posting {
	out := make([]model.Posting, 0, len(items))
	for _, it := range items {
		if p, ok := n.Normalize(source, it); ok {
			out = append(out, p)
		}
	}
	return out
}

// CleanText converts an HTML or HTML-encoded fragment to plain text.
// Entities are unescaped first so double-encoded feeds lose their tags too;
// script and style bodies are dropped and whitespace is collapsed.
func CleanText(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	unescaped := html.UnescapeString(content)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(unescaped))
	if err != nil {
		return collapse(unescaped)
	}
	doc.Find("script, style").Remove()
	return collapse(doc.Text())
}

// Truncate cuts s to limit runes and appends Ellipsis when anything was removed.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + Ellipsis
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
