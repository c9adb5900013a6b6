package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"tillpoint/backend/internal/domain"
)

func TestRedisCatalogCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("TILLPOINT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TILLPOINT_TEST_REDIS_ADDR to run redis cache test")
	}

	ctx := context.Background()
	c := NewRedisCatalogCache(NewRedisClient(addr, "", 0))
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	key := "product:it-" + time.Now().Format("150405.000000")
	if _, ok, err := c.Get(ctx, key); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	entry := &domain.CatalogEntry{ProductID: "p-1", Name: "Coffee", PriceCents: 12100, TaxRatePercent: 21, TracksStock: true, Active: true}
	if err := c.Set(ctx, key, entry, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if *got != *entry {
		t.Fatalf("expected %+v, got %+v", entry, got)
	}
}

func TestNoopCatalogCacheAlwaysMisses(t *testing.T) {
	var c CatalogCache = NoopCatalogCache{}
	_ = c.Set(context.Background(), "k", &domain.CatalogEntry{Name: "x"}, time.Minute)
	if _, ok, _ := c.Get(context.Background(), "k"); ok {
		t.Fatalf("expected noop cache to miss")
	}
}
