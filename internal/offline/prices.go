package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tillpoint/backend/internal/catalog"
	"tillpoint/backend/internal/domain"
)

// ErrUnpriced means a sale cannot be queued because the register has no
// price for one of its items.
var ErrUnpriced = errors.New("item has no offline price")

type CatalogSource interface {
	FetchCatalog(ctx context.Context) (domain.CatalogResponse, error)
}

// CatalogStore persists the last fetched catalog so a restarted daemon can
// still price sales before the server comes back.
type CatalogStore interface {
	SaveCatalog(ctx context.Context, snapshot CatalogSnapshot) error
	LoadCatalog(ctx context.Context) (CatalogSnapshot, bool, error)
}

type CatalogSnapshot struct {
	Catalog   domain.CatalogResponse `json:"catalog"`
	FetchedAt time.Time              `json:"fetched_at"`
}

// PriceList is the register's copy of the catalog. Queued sales are priced
// from it so that their replay commits exactly what the customer paid.
type PriceList struct {
	store CatalogStore

	mu        sync.RWMutex
	entries   map[string]domain.CatalogEntry
	fetchedAt time.Time
}

func NewPriceList(store CatalogStore) *PriceList {
	return &PriceList{store: store, entries: map[string]domain.CatalogEntry{}}
}

// Load restores the persisted snapshot, if any.
func (p *PriceList) Load(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	snapshot, ok, err := p.store.LoadCatalog(ctx)
	if err != nil || !ok {
		return err
	}
	p.replace(snapshot)
	return nil
}

// Refresh pulls the current catalog and persists it.
func (p *PriceList) Refresh(ctx context.Context, src CatalogSource, at time.Time) error {
	c, err := src.FetchCatalog(ctx)
	if err != nil {
		return err
	}
	snapshot := CatalogSnapshot{Catalog: c, FetchedAt: at.UTC()}
	p.replace(snapshot)
	if p.store != nil {
		if err := p.store.SaveCatalog(ctx, snapshot); err != nil {
			return fmt.Errorf("persist catalog: %w", err)
		}
	}
	return nil
}

func (p *PriceList) FetchedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fetchedAt
}

// Pin fills the unit price and tax rate of every line from the price list.
// A price the register already set is kept.
func (p *PriceList) Pin(lines []domain.CartLine) ([]domain.CartLine, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]domain.CartLine, len(lines))
	for i, line := range lines {
		entry, ok := p.entries[catalogKey(line)]
		if !ok || !entry.Active {
			return nil, fmt.Errorf("%w: %s", ErrUnpriced, catalogKey(line))
		}
		if line.UnitPriceCents == 0 {
			line.UnitPriceCents = entry.PriceCents
		}
		line.TaxRatePercent = entry.TaxRatePercent
		out[i] = line
	}
	return out, nil
}

func (p *PriceList) replace(snapshot CatalogSnapshot) {
	entries := make(map[string]domain.CatalogEntry, len(snapshot.Catalog.Products)+len(snapshot.Catalog.Combos))
	for _, prod := range snapshot.Catalog.Products {
		entries[catalog.Ref{ProductID: prod.ID}.Key()] = domain.CatalogEntry{
			ProductID:      prod.ID,
			Name:           prod.Name,
			PriceCents:     prod.PriceCents,
			TaxRatePercent: prod.TaxRatePercent,
			TracksStock:    prod.TracksStock,
			Active:         prod.Active,
		}
	}
	for _, combo := range snapshot.Catalog.Combos {
		entries[catalog.Ref{ComboID: combo.ID}.Key()] = domain.CatalogEntry{
			ComboID:        combo.ID,
			Name:           combo.Name,
			PriceCents:     combo.PriceCents,
			TaxRatePercent: combo.TaxRatePercent,
			Active:         combo.Active,
		}
	}

	p.mu.Lock()
	p.entries = entries
	p.fetchedAt = snapshot.FetchedAt
	p.mu.Unlock()
}

func catalogKey(line domain.CartLine) string {
	return catalog.RefOf(line).Key()
}
