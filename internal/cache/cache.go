package cache

import (
	"context"
	"time"
)

// NameCache holds resolved display names (store vendor names keyed by store
// id) so listing endpoints do not re-read the owning record per row.
type NameCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type NoopNameCache struct{}

func (NoopNameCache) Get(_ context.Context, _ string) (string, bool, error) {
	return "", false, nil
}

func (NoopNameCache) Set(_ context.Context, _ string, _ string, _ time.Duration) error {
	return nil
}

func (NoopNameCache) Delete(_ context.Context, _ string) error {
	return nil
}
