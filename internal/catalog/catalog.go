// Package catalog resolves the product and combo references of a cart into
// price, tax rate and stock tracking flags.
package catalog

import (
	"context"
	"log"
	"time"

	"tillpoint/backend/internal/cache"
	"tillpoint/backend/internal/domain"
)

// Ref points at exactly one of a product or a combo.
type Ref struct {
	ProductID string
	ComboID   string
}

func (r Ref) Key() string {
	if r.ComboID != "" {
		return "combo:" + r.ComboID
	}
	return "product:" + r.ProductID
}

func RefOf(line domain.CartLine) Ref {
	return Ref{ProductID: line.ProductID, ComboID: line.ComboID}
}

// Lookup returns an entry for every ref it knows. Unknown refs are absent
// from the result rather than reported as an error.
type Lookup interface {
	Resolve(ctx context.Context, refs []Ref) (map[Ref]domain.CatalogEntry, error)
}

type Source interface {
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	GetCombosByIDs(ctx context.Context, ids []string) (map[string]domain.Combo, error)
}

type RepositoryLookup struct {
	source Source
}

func NewRepositoryLookup(source Source) *RepositoryLookup {
	return &RepositoryLookup{source: source}
}

func (l *RepositoryLookup) Resolve(ctx context.Context, refs []Ref) (map[Ref]domain.CatalogEntry, error) {
	productIDs := make([]string, 0, len(refs))
	comboIDs := make([]string, 0)
	for _, ref := range refs {
		if ref.ComboID != "" {
			comboIDs = append(comboIDs, ref.ComboID)
		} else if ref.ProductID != "" {
			productIDs = append(productIDs, ref.ProductID)
		}
	}

	out := make(map[Ref]domain.CatalogEntry, len(refs))
	if len(productIDs) > 0 {
		products, err := l.source.GetProductsByIDs(ctx, productIDs)
		if err != nil {
			return nil, err
		}
		for id, p := range products {
			out[Ref{ProductID: id}] = domain.CatalogEntry{
				ProductID:      p.ID,
				Name:           p.Name,
				PriceCents:     p.PriceCents,
				TaxRatePercent: p.TaxRatePercent,
				TracksStock:    p.TracksStock,
				Active:         p.Active,
			}
		}
	}
	if len(comboIDs) > 0 {
		combos, err := l.source.GetCombosByIDs(ctx, comboIDs)
		if err != nil {
			return nil, err
		}
		// Combo stock is tracked through its component products, not the combo.
		for id, c := range combos {
			out[Ref{ComboID: id}] = domain.CatalogEntry{
				ComboID:        c.ID,
				Name:           c.Name,
				PriceCents:     c.PriceCents,
				TaxRatePercent: c.TaxRatePercent,
				Active:         c.Active,
			}
		}
	}
	return out, nil
}

// CachedLookup serves entries from a cache and falls through to next for the
// misses. Cache failures are logged and treated as misses.
type CachedLookup struct {
	next  Lookup
	cache cache.CatalogCache
	ttl   time.Duration
}

func NewCachedLookup(next Lookup, c cache.CatalogCache, ttl time.Duration) *CachedLookup {
	if c == nil {
		c = cache.NoopCatalogCache{}
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedLookup{next: next, cache: c, ttl: ttl}
}

func (l *CachedLookup) Resolve(ctx context.Context, refs []Ref) (map[Ref]domain.CatalogEntry, error) {
	out := make(map[Ref]domain.CatalogEntry, len(refs))
	misses := make([]Ref, 0, len(refs))
	seen := make(map[Ref]struct{}, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		entry, ok, err := l.cache.Get(ctx, ref.Key())
		if err != nil {
			log.Printf("[catalog] WARN: cache get %s failed: %v", ref.Key(), err)
		}
		if ok && entry != nil {
			out[ref] = *entry
			continue
		}
		misses = append(misses, ref)
	}
	if len(misses) == 0 {
		return out, nil
	}

	resolved, err := l.next.Resolve(ctx, misses)
	if err != nil {
		return nil, err
	}
	for ref, entry := range resolved {
		out[ref] = entry
		if err := l.cache.Set(ctx, ref.Key(), &entry, l.ttl); err != nil {
			log.Printf("[catalog] WARN: cache set %s failed: %v", ref.Key(), err)
		}
	}
	return out, nil
}
