// Package compose renders the digest text and per-posting outreach messages.
// Everything here is pure formatting: identical inputs yield identical bytes.
package compose

import (
	"fmt"
	"strings"
	"time"

	"github.com/bensun/jobdigest/internal/model"
)

const (
	dateLayout    = "2006-01-02"
	outreachLabel = "LinkedIn Outreach Message:"

	// EmptyText is the body of the message sent when a run finds nothing new.
	EmptyText = "No new jobs found today."

	defaultPitch = "I have beginner-level experience in Data Science + Machine Learning and would love to contribute."
)

var separator = strings.Repeat("-", 50)

// Options configures a Composer.
type Options struct {
	SenderName string
	Subject    string // digest title, e.g. "Daily Job Digest"
	Outreach   bool   // append an outreach message to each entry
	Pitch      string // second paragraph of the outreach message
}

// Composer formats digests. The zero value is not usable; use New.
type Composer struct {
	opts Options
}

// New returns a Composer. Empty option fields get their defaults.
func New(opts Options) *Composer {
	if opts.SenderName == "" {
		opts.SenderName = "Job Seeker"
	}
	if opts.Subject == "" {
		opts.Subject = "Daily Job Digest"
	}
	if opts.Pitch == "" {
		opts.Pitch = defaultPitch
	}
	return &Composer{opts: opts}
}

// Header returns the first line of a digest for date.
func (c *Composer) Header(date time.Time) string {
	return fmt.Sprintf("%s – %s", c.opts.Subject, date.Format(dateLayout))
}

// Digest renders items as a numbered plain-text digest.
func (c *Composer) Digest(date time.Time, items []model.Classified) string {
	var b strings.Builder
	b.WriteString(c.Header(date))
	b.WriteString("\n\n")

	for i, it := range items {
		p := it.Posting
		fmt.Fprintf(&b, "%d. %s (%s) [%s]\n", i+1, p.Title, p.Source, it.Tag)
		if p.Company != "" {
			fmt.Fprintf(&b, "Company: %s\n", p.Company)
		}
		fmt.Fprintf(&b, "Link: %s\n", p.Link)
		if p.Summary != "" {
			fmt.Fprintf(&b, "Description: %s\n", p.Summary)
		}
		b.WriteString("\n")
		if c.opts.Outreach {
			b.WriteString(outreachLabel)
			b.WriteString("\n")
			b.WriteString(c.Outreach(p))
			b.WriteString("\n")
		}
		b.WriteString(separator)
		b.WriteString("\n\n")
	}
	return b.String()
}

// Outreach renders the personalised message for one posting.
func (c *Composer) Outreach(p model.Posting) string {
	company, role := SplitTitle(p.Title)
	if p.Company != "" {
		company = p.Company
	}

	greeting := "Hi there,"
	if company != "" {
		greeting = fmt.Sprintf("Hi %s hiring team,", company)
	}

	var b strings.Builder
	b.WriteString(greeting)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "I'm %s. I found the role '%s' and I'm really interested.\n", c.opts.SenderName, role)
	b.WriteString(c.opts.Pitch)
	b.WriteString("\n\nCould we connect? Thank you!\n\nBest,\n")
	b.WriteString(c.opts.SenderName)
	b.WriteString("\n")
	return b.String()
}

// Subject returns the notification subject for a digest of n postings.
func (c *Composer) Subject(date time.Time, n int) string {
	noun := "jobs"
	if n == 1 {
		noun = "job"
	}
	return fmt.Sprintf("%s (%d new %s)", c.Header(date), n, noun)
}

// Empty returns the "nothing new" message body for date.
func (c *Composer) Empty(date time.Time) string {
	return c.Header(date) + "\n\n" + EmptyText + "\n"
}

// Message assembles the full notification for items.
func (c *Composer) Message(date time.Time, items []model.Classified) model.Message {
	return model.Message{
		Subject: c.Subject(date, len(items)),
		Body:    c.Digest(date, items),
		Items:   items,
	}
}

// EmptyMessage assembles the notification sent when nothing new was found.
func (c *Composer) EmptyMessage(date time.Time) model.Message {
	return model.Message{
		Subject: c.Header(date) + " - No Jobs",
		Body:    c.Empty(date),
	}
}

// SplitTitle splits feed titles of the form "Company: Role". When the title
// has no such prefix, company is empty and role is the whole title.
func SplitTitle(title string) (company, role string) {
	title = strings.TrimSpace(title)
	i := strings.Index(title, ": ")
	if i <= 0 {
		return "", title
	}
	role = strings.TrimSpace(title[i+2:])
	if role == "" {
		return "", title
	}
	return strings.TrimSpace(title[:i]), role
}
