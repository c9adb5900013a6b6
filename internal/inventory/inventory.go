// Package inventory turns priced sale lines into per product stock deltas and
// applies them through the commit's unit of work.
package inventory

import (
	"context"
	"fmt"
	"sort"

	"tillpoint/backend/internal/domain"
)

// Adjuster applies a relative change to a product's available and on hand
// quantities at a branch. Implementations must fail with
// store.ErrStockInconsistency when the stock record does not exist.
type Adjuster interface {
	ApplyStockDelta(ctx context.Context, branchID string, productID string, delta int) error
}

type Delta struct {
	ProductID string
	Delta     int
}

// Plan merges the stock effect of every stock tracked product line. A sale
// line of quantity q yields -q, a return line +|q|. Deltas are sorted by
// product id so concurrent commits lock rows in the same order.
func Plan(lines []domain.CalculatedLine) []Delta {
	merged := make(map[string]int)
	for _, line := range lines {
		if !line.TracksStock || line.ProductID == "" {
			continue
		}
		merged[line.ProductID] -= line.Quantity
	}

	out := make([]Delta, 0, len(merged))
	for productID, delta := range merged {
		if delta == 0 {
			continue
		}
		out = append(out, Delta{ProductID: productID, Delta: delta})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// Apply stops at the first failing delta. The caller's transaction is
// expected to roll back whatever was applied before it.
func Apply(ctx context.Context, adj Adjuster, branchID string, lines []domain.CalculatedLine) ([]Delta, error) {
	deltas := Plan(lines)
	for _, d := range deltas {
		if err := adj.ApplyStockDelta(ctx, branchID, d.ProductID, d.Delta); err != nil {
			return nil, fmt.Errorf("adjust stock of %s: %w", d.ProductID, err)
		}
	}
	return deltas, nil
}
