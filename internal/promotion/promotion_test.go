package promotion

import (
	"context"
	"testing"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/store/memory"
)

func TestRuleMatcherAppliesBestEligibleRule(t *testing.T) {
	matcher := NewRuleMatcher(memory.NewSeeded())
	lines := []domain.CartLine{
		{LineID: "L1", ProductID: "prod-milk", Quantity: 3, UnitPriceCents: 2210},
		{LineID: "L2", ProductID: "prod-milk", Quantity: 1, UnitPriceCents: 2210},
		{LineID: "L3", ProductID: "prod-milk", Quantity: 2, IsReturn: true, UnitPriceCents: 2210},
		{LineID: "L4", ProductID: "prod-milk", Quantity: 2, UnitPriceCents: 2210, DiscountCents: 50},
		{LineID: "L5", ProductID: "prod-coffee", Quantity: 5, UnitPriceCents: 12100},
	}

	discounts, err := matcher.Match(context.Background(), lines)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if len(discounts) != 1 {
		t.Fatalf("expected only L1 to match, got %+v", discounts)
	}
	d := discounts["L1"]
	// 10% of 6630
	if d.AmountCents != 663 || d.PromotionID != "promo-milk-2" {
		t.Fatalf("unexpected discount %+v", d)
	}

	applied := Apply(lines, discounts)
	if applied[0].DiscountCents != 663 || applied[0].PromotionName == "" {
		t.Fatalf("expected discount to be applied to L1, got %+v", applied[0])
	}
	if applied[3].DiscountCents != 50 {
		t.Fatalf("expected preset discount to be left alone")
	}
	if lines[0].DiscountCents != 0 {
		t.Fatalf("expected Apply not to mutate its input")
	}
}

func TestRuleDiscount(t *testing.T) {
	flat := domain.PromotionRule{Type: domain.PromotionFlatPerUnit, FlatPerUnitCents: 300, MinQuantity: 1, Active: true}
	if got := RuleDiscount(flat, 1000, 2); got != 600 {
		t.Fatalf("expected 600, got %d", got)
	}
	if got := RuleDiscount(flat, 200, 2); got != 400 {
		t.Fatalf("expected flat discount capped at gross 400, got %d", got)
	}

	pct := domain.PromotionRule{Type: domain.PromotionPercent, DiscountPercent: 15, MinQuantity: 3, Active: true}
	if got := RuleDiscount(pct, 1000, 2); got != 0 {
		t.Fatalf("expected min quantity to gate the rule, got %d", got)
	}
	// 15% of 333 * 3 = 149.85
	if got := RuleDiscount(pct, 333, 3); got != 150 {
		t.Fatalf("expected 150, got %d", got)
	}
	pct.Active = false
	if got := RuleDiscount(pct, 1000, 5); got != 0 {
		t.Fatalf("expected inactive rule to give nothing, got %d", got)
	}
}

func TestNoopMatcherReturnsNothing(t *testing.T) {
	discounts, err := NoopMatcher{}.Match(context.Background(), []domain.CartLine{{LineID: "L1", ProductID: "p", Quantity: 1}})
	if err != nil || len(discounts) != 0 {
		t.Fatalf("expected empty result, got %+v %v", discounts, err)
	}
}
