package model

import (
	"context"
	"strings"
	"time"
)

// Posting is the normalized representation of a job listing from any source.
// It is built fresh on every run and never mutated afterwards.
type Posting struct {
	Source   string     // name of the feed or site it came from
	Title    string     // listing title, never empty
	Link     string     // canonical URL, never empty
	Summary  string     // plain-text description, length-capped
	Company  string     // employer name, empty when the source does not expose it
	PostedAt *time.Time // nullable (not all sources provide this)
}

// Key returns the identity key used for deduplication.
func (p Posting) Key() string {
	return IdentityKey(p.Source, p.Link)
}

// IdentityKey derives the canonical key for a (source, link) pair. Both parts
// are trimmed and lower-cased so cosmetic differences never produce a new key.
func IdentityKey(source, link string) string {
	return strings.ToLower(strings.TrimSpace(source)) + "|" + strings.ToLower(strings.TrimSpace(link))
}

// RawItem is a single unnormalized entry as returned by a source adapter.
type RawItem struct {
	Title    string
	Link     string
	Summary  string // may contain markup
	Company  string
	PostedAt *time.Time
}

// Selectors configures how an HTML listing page is scraped.
type Selectors struct {
	Item    string // one element per posting
	Title   string
	Link    string // element carrying the href; defaults to Title
	Company string
	Summary string
}

// SourceDescriptor identifies one source to poll.
type SourceDescriptor struct {
	Name      string
	Kind      string // rss, html, greenhouse, lever, ashby
	Endpoint  string // feed/page URL, or board token for ATS kinds
	MaxItems  int
	Company   string // employer label for ATS boards
	Selectors Selectors
}

// Tag is the interest category assigned to a posting.
type Tag string

const (
	TagCompany Tag = "COMPANY_MATCH"
	TagStartup Tag = "STARTUP_MATCH"
	TagNone    Tag = "NONE"
)

// Classified pairs a posting with the tag it was assigned.
type Classified struct {
	Posting Posting
	Tag     Tag
}

// KeySet is the set of identity keys that have already been notified.
type KeySet map[string]struct{}

// NewKeySet builds a set from the given keys.
func NewKeySet(keys ...string) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Has reports whether key is in the set. A nil set contains nothing.
func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Message is a rendered notification ready to hand to a channel.
type Message struct {
	Subject string
	Body    string
	Items   []Classified // postings rendered into Body, empty for "nothing new" messages
}

// ChannelStatus describes how a channel handled a message.
type ChannelStatus string

const (
	StatusDelivered ChannelStatus = "delivered"
	StatusFallback  ChannelStatus = "fallback"
	StatusFailed    ChannelStatus = "failed"
)

// ChannelResult records the outcome of one channel for one dispatch.
type ChannelResult struct {
	Channel  string
	Status   ChannelStatus
	Artifact string // fallback file path, if any
	Err      error
}

// Fetcher retrieves the raw items of one source.
type Fetcher interface {
	Fetch(ctx context.Context, src SourceDescriptor) ([]RawItem, error)
}

// Channel is an external notification sink.
type Channel interface {
	Name() string
	// Configured reports whether the channel has every secret it needs.
	Configured() bool
	Send(ctx context.Context, msg Message) error
}

// KeyStore persists the set of notified identity keys.
type KeyStore interface {
	// Load returns the persisted set. A store that was never written is empty, not an error.
	Load(ctx context.Context) (KeySet, error)
	// Append adds keys in a single write.
	Append(ctx context.Context, keys []string) error
}
