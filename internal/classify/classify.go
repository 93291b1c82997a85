// Package classify tags postings against the employer and startup keyword lists.
package classify

import (
	"strings"

	"github.com/bensun/jobdigest/internal/model"
)

// Rule maps any of its needles to a tag. Rules are evaluated in order and the
// first match wins.
type Rule struct {
	Tag     model.Tag
	Needles []string // lower-cased, blanks removed
}

// Classifier evaluates an ordered rule table. Matching is a case-insensitive
// substring test against title, company and summary.
type Classifier struct {
	rules []Rule
}

// New returns a Classifier whose first rule tags target employers and whose
// second rule tags early-stage companies.
func New(targetEmployers, startupKeywords []string) *Classifier {
	return NewWithRules(
		Rule{Tag: model.TagCompany, Needles: targetEmployers},
		Rule{Tag: model.TagStartup, Needles: startupKeywords},
	)
}

// NewWithRules builds a Classifier from an explicit rule table.
func NewWithRules(rules ...Rule) *Classifier {
	c := &Classifier{rules: make([]Rule, 0, len(rules))}
	for _, r := range rules {
		needles := make([]string, 0, len(r.Needles))
		for _, n := range r.Needles {
			n = strings.ToLower(strings.TrimSpace(n))
			if n != "" {
				needles = append(needles, n)
			}
		}
		c.rules = append(c.rules, Rule{Tag: r.Tag, Needles: needles})
	}
	return c
}

// Classify returns the tag of the first rule matching p, or model.TagNone.
func (c *Classifier) Classify(p model.Posting) model.Tag {
	fields := [...]string{
		strings.ToLower(p.Title),
		strings.ToLower(p.Company),
		strings.ToLower(p.Summary),
	}
	for _, r := range c.rules {
		for _, needle := range r.Needles {
			for _, f := range fields {
				if strings.Contains(f, needle) {
					return r.Tag
				}
			}
		}
	}
	return model.TagNone
}

// Filter classifies postings in order and drops those tagged model.TagNone.
func (c *Classifier) Filter(postings []model.Posting) []model.Classified {
	out := make([]model.Classified, 0, len(postings))
	for _, p := range postings {
		if tag := c.Classify(p); tag != model.TagNone {
			out = append(out, model.Classified{Posting: p, Tag: tag})
		}
	}
	return out
}
