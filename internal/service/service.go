package service

import (
	"context"
	"strings"
	"time"

	"hatid/backend/internal/cache"
	"hatid/backend/internal/domain"
	"hatid/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo    store.Repository
	names   cache.NameCache
	nameTTL time.Duration
}

func New(repo store.Repository, names cache.NameCache, nameTTL time.Duration) *Service {
	if names == nil {
		names = cache.NoopNameCache{}
	}
	if nameTTL <= 0 {
		nameTTL = 5 * time.Minute
	}

	return &Service{
		repo:    repo,
		names:   names,
		nameTTL: nameTTL,
	}
}

// pageWindow converts a 1-based page number into the limit/offset pair the
// repository expects. Page values below 1 read the first page.
func pageWindow(page int, limit int) (int, int) {
	if limit < 1 {
		limit = 20
	}
	if page < 1 {
		page = 1
	}
	return limit, (page - 1) * limit
}

func pageCount(total int, limit int) int {
	if limit < 1 || total < 1 {
		return 0
	}
	return (total + limit - 1) / limit
}

// parseDate accepts the plain date form used by the entry forms and falls
// back to RFC 3339 for API callers.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, store.ErrInvalidInput
	}
	if parsed, err := time.Parse("2006-01-02", value); err == nil {
		return parsed.UTC(), nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, store.ErrInvalidInput
	}
	return parsed.UTC(), nil
}
