package store

import (
	"context"

	"github.com/bensun/jobdigest/internal/model"
)

// ReadOnly wraps a KeyStore for dry runs: Load is delegated, Append is
// dropped, so every run sees the same baseline.
type ReadOnly struct {
	inner model.KeyStore
}

func NewReadOnly(inner model.KeyStore) *ReadOnly { return &ReadOnly{inner: inner} }

func (s *ReadOnly) Load(ctx context.Context) (model.KeySet, error) { return s.inner.Load(ctx) }
func (s *ReadOnly) Append(context.Context, []string) error         { return nil }
