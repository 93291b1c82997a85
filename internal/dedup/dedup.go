// Package dedup computes which postings have not been notified yet.
package dedup

import "github.com/bensun/jobdigest/internal/model"

// Diff returns the candidates whose identity key is absent from seen, in input
// order. It never modifies seen.
func Diff(candidates []model.Posting, seen model.KeySet) []model.Posting {
	out := make([]model.Posting, 0, len(candidates))
	for _, p := range candidates {
		if !seen.Has(p.Key()) {
			out = append(out, p)
		}
	}
	return out
}

// Unique drops postings whose identity key already appeared earlier in the
// slice, so one listing is never composed twice into the same digest.
func Unique(postings []model.Posting) []model.Posting {
	seen := make(map[string]struct{}, len(postings))
	out := make([]model.Posting, 0, len(postings))
	for _, p := range postings {
		k := p.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Keys returns the identity keys of items in order.
func Keys(items []model.Classified) []string {
	keys := make([]string, 0, len(items))
	for _, it := range items {
		keys = append(keys, it.Posting.Key())
	}
	return keys
}
