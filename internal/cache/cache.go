package cache

import (
	"context"
	"time"

	"tillpoint/backend/internal/domain"
)

type CatalogCache interface {
	Get(ctx context.Context, key string) (*domain.CatalogEntry, bool, error)
	Set(ctx context.Context, key string, value *domain.CatalogEntry, ttl time.Duration) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) Get(_ context.Context, _ string) (*domain.CatalogEntry, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) Set(_ context.Context, _ string, _ *domain.CatalogEntry, _ time.Duration) error {
	return nil
}
