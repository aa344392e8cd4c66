package cache

import (
	"context"
	"time"
)

// ViewCache holds rendered module views (unit lists, supplier summaries)
// keyed by module-scoped strings. Invalidation happens by key prefix so a
// coordination event can drop every cached view of the affected module.
type ViewCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
}

// NoopViewCache satisfies ViewCache without storing anything.
type NoopViewCache struct{}

func (NoopViewCache) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, nil
}

func (NoopViewCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}

func (NoopViewCache) DeleteByPrefix(_ context.Context, _ string) (int, error) {
	return 0, nil
}
