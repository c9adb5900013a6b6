// Package promotion integrates per line discounts into a cart. Deciding which
// promotion applies belongs to a Matcher; this package only ships a simple
// rule based one.
package promotion

import (
	"context"

	"github.com/shopspring/decimal"

	"tillpoint/backend/internal/domain"
)

type Discount struct {
	AmountCents   int64
	PromotionID   string
	PromotionName string
}

// Matcher returns discounts keyed by line id. A line without an entry gets
// no discount.
type Matcher interface {
	Match(ctx context.Context, lines []domain.CartLine) (map[string]Discount, error)
}

type NoopMatcher struct{}

func (NoopMatcher) Match(_ context.Context, _ []domain.CartLine) (map[string]Discount, error) {
	return map[string]Discount{}, nil
}

type RuleSource interface {
	ListActivePromotionRules(ctx context.Context, productIDs []string) ([]domain.PromotionRule, error)
}

type RuleMatcher struct {
	source RuleSource
}

func NewRuleMatcher(source RuleSource) *RuleMatcher {
	return &RuleMatcher{source: source}
}

func (m *RuleMatcher) Match(ctx context.Context, lines []domain.CartLine) (map[string]Discount, error) {
	out := make(map[string]Discount)
	productIDs := make([]string, 0, len(lines))
	for _, line := range lines {
		if eligible(line) {
			productIDs = append(productIDs, line.ProductID)
		}
	}
	if len(productIDs) == 0 {
		return out, nil
	}

	rules, err := m.source.ListActivePromotionRules(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	byProduct := make(map[string][]domain.PromotionRule, len(rules))
	for _, r := range rules {
		byProduct[r.ProductID] = append(byProduct[r.ProductID], r)
	}

	for _, line := range lines {
		if !eligible(line) {
			continue
		}
		var best Discount
		for _, rule := range byProduct[line.ProductID] {
			amount := RuleDiscount(rule, line.UnitPriceCents, line.Quantity)
			if amount > best.AmountCents {
				best = Discount{AmountCents: amount, PromotionID: rule.ID, PromotionName: rule.Name}
			}
		}
		if best.AmountCents > 0 {
			out[line.LineID] = best
		}
	}
	return out, nil
}

// RuleDiscount is the discount a rule grants on quantity units at unit price.
// It never exceeds the line's gross amount.
func RuleDiscount(rule domain.PromotionRule, unitPriceCents int64, quantity int) int64 {
	if !rule.Active || quantity < 1 || quantity < rule.MinQuantity || unitPriceCents <= 0 {
		return 0
	}
	gross := unitPriceCents * int64(quantity)

	var amount int64
	switch rule.Type {
	case domain.PromotionPercent:
		if rule.DiscountPercent <= 0 {
			return 0
		}
		amount = decimal.NewFromInt(gross).
			Mul(decimal.NewFromFloat(rule.DiscountPercent)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
	case domain.PromotionFlatPerUnit:
		amount = rule.FlatPerUnitCents * int64(quantity)
	}
	if amount > gross {
		return gross
	}
	if amount < 0 {
		return 0
	}
	return amount
}

// Apply copies matched discounts onto lines that carry neither a discount nor
// a promotion reference.
func Apply(lines []domain.CartLine, discounts map[string]Discount) []domain.CartLine {
	out := make([]domain.CartLine, len(lines))
	copy(out, lines)
	for i, line := range out {
		if line.DiscountCents != 0 || line.PromotionID != "" {
			continue
		}
		d, ok := discounts[line.LineID]
		if !ok {
			continue
		}
		out[i].DiscountCents = d.AmountCents
		out[i].PromotionID = d.PromotionID
		out[i].PromotionName = d.PromotionName
	}
	return out
}

func eligible(line domain.CartLine) bool {
	return line.ProductID != "" && !line.IsReturn && line.Quantity > 0 &&
		line.DiscountCents == 0 && line.PromotionID == ""
}
