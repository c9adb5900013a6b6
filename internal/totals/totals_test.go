package totals

import (
	"errors"
	"math"
	"testing"

	"tillpoint/backend/internal/domain"
)

func TestCalculateTotalEqualsSumOfLineSubtotals(t *testing.T) {
	carts := [][]domain.CartLine{
		{
			{ProductID: "p-1", Quantity: 2, UnitPriceCents: 1210, TaxRatePercent: 21},
			{ProductID: "p-2", Quantity: 1, UnitPriceCents: 999, DiscountCents: 100, TaxRatePercent: 10.5},
		},
		{
			{ProductID: "p-1", Quantity: 3, UnitPriceCents: 500, TaxRatePercent: 21},
			{ProductID: "p-1", Quantity: 1, IsReturn: true, UnitPriceCents: 500, TaxRatePercent: 21},
			{ComboID: "c-1", Quantity: -1, UnitPriceCents: 2500, TaxRatePercent: 0},
		},
		{
			{ProductID: "p-3", Quantity: 7, UnitPriceCents: 1, DiscountCents: 3, TaxRatePercent: 27},
		},
	}

	for i, cart := range carts {
		calc, err := Calculate(cart)
		if err != nil {
			t.Fatalf("cart %d: calculate failed: %v", i, err)
		}
		var sum, tax, discount int64
		for _, line := range calc.Lines {
			sum += line.SubtotalCents
			tax += line.TaxCents
			discount += line.DiscountCents
		}
		if calc.Totals.TotalCents != sum {
			t.Fatalf("cart %d: expected total %d to equal line sum %d", i, calc.Totals.TotalCents, sum)
		}
		if calc.Totals.TotalCents != calc.Totals.SubtotalCents {
			t.Fatalf("cart %d: expected total == subtotal, got %d vs %d", i, calc.Totals.TotalCents, calc.Totals.SubtotalCents)
		}
		if calc.Totals.TaxCents != tax || calc.Totals.DiscountCents != discount {
			t.Fatalf("cart %d: cart sums do not match lines", i)
		}
	}
}

func TestCalculateNormalizesQuantities(t *testing.T) {
	calc, err := Calculate([]domain.CartLine{
		{ProductID: "p-1", Quantity: -2, UnitPriceCents: 100},
		{ProductID: "p-1", Quantity: 2, IsReturn: true, UnitPriceCents: 100},
		{ProductID: "p-1", Quantity: -2, IsReturn: true, UnitPriceCents: 100},
		{ProductID: "p-1", Quantity: 5, UnitPriceCents: 100},
	})
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	want := []int{-2, -2, -2, 5}
	for i, line := range calc.Lines {
		if line.Quantity != want[i] {
			t.Fatalf("line %d: expected quantity %d, got %d", i, want[i], line.Quantity)
		}
	}
	if calc.Totals.TotalCents != -100 {
		t.Fatalf("expected exchange to net -100, got %d", calc.Totals.TotalCents)
	}
	if calc.Lines[0].LineID != "L1" || calc.Lines[3].LineID != "L4" {
		t.Fatalf("expected default line ids, got %q and %q", calc.Lines[0].LineID, calc.Lines[3].LineID)
	}
}

func TestCalculateReturnOnlyCartIsNotPositive(t *testing.T) {
	calc, err := Calculate([]domain.CartLine{
		{ProductID: "p-1", Quantity: -2, UnitPriceCents: 1500, TaxRatePercent: 21},
	})
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	if calc.Totals.TotalCents > 0 {
		t.Fatalf("expected non-positive total, got %d", calc.Totals.TotalCents)
	}
	if calc.Totals.TotalCents != -3000 {
		t.Fatalf("expected -3000, got %d", calc.Totals.TotalCents)
	}
}

func TestExtractTaxUsesLineRate(t *testing.T) {
	cases := []struct {
		subtotal int64
		rate     float64
		want     int64
	}{
		{12100, 21, 2100},
		{11050, 10.5, 1050},
		{10000, 0, 0},
		{-12100, 21, -2100},
		{105, 5, 5},
		// 100 * 21 / 121 = 17.355...
		{100, 21, 17},
		// 50 * 10 / 110 = 4.545...
		{50, 10, 5},
	}
	for _, tc := range cases {
		got := ExtractTax(tc.subtotal, tc.rate)
		if got != tc.want {
			t.Fatalf("tax of %d at %.2f%%: expected %d, got %d", tc.subtotal, tc.rate, tc.want, got)
		}
	}
}

func TestCalculateDoesNotUseFixedDenominator(t *testing.T) {
	calc, err := Calculate([]domain.CartLine{
		{ProductID: "p-1", Quantity: 1, UnitPriceCents: 11050, TaxRatePercent: 10.5},
	})
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	// 11050 * 10.5 / 121 would give 959.
	if calc.Totals.TaxCents != 1050 {
		t.Fatalf("expected tax 1050, got %d", calc.Totals.TaxCents)
	}
}

func TestCalculateRejectsMalformedLines(t *testing.T) {
	cases := map[string]domain.CartLine{
		"no reference":   {Quantity: 1, UnitPriceCents: 100},
		"both refs":      {ProductID: "p-1", ComboID: "c-1", Quantity: 1, UnitPriceCents: 100},
		"zero quantity":  {ProductID: "p-1", Quantity: 0, UnitPriceCents: 100},
		"negative price": {ProductID: "p-1", Quantity: 1, UnitPriceCents: -1},
		"negative disc":  {ProductID: "p-1", Quantity: 1, UnitPriceCents: 100, DiscountCents: -5},
		"nan rate":       {ProductID: "p-1", Quantity: 1, UnitPriceCents: 100, TaxRatePercent: math.NaN()},
		"inf rate":       {ProductID: "p-1", Quantity: 1, UnitPriceCents: 100, TaxRatePercent: math.Inf(1)},
		"rate over 100":  {ProductID: "p-1", Quantity: 1, UnitPriceCents: 100, TaxRatePercent: 150},
	}
	for name, line := range cases {
		_, err := Calculate([]domain.CartLine{line})
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", name, err)
		}
	}

	if _, err := Calculate(nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected empty cart to be rejected, got %v", err)
	}
}

func TestCalculateRejectsOutOfRangeAmounts(t *testing.T) {
	cases := map[string][]domain.CartLine{
		"quantity":        {{ProductID: "p-1", Quantity: MaxQuantity + 1, UnitPriceCents: 100}},
		"return quantity": {{ProductID: "p-1", Quantity: -MaxQuantity - 1, UnitPriceCents: 100}},
		"unit price":      {{ProductID: "p-1", Quantity: 1, UnitPriceCents: math.MaxInt64 / 2}},
		"discount":        {{ProductID: "p-1", Quantity: 1, UnitPriceCents: 100, DiscountCents: math.MaxInt64}},
	}
	for name, lines := range cases {
		if _, err := Calculate(lines); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}

	many := make([]domain.CartLine, MaxLines+1)
	for i := range many {
		many[i] = domain.CartLine{ProductID: "p-1", Quantity: 1, UnitPriceCents: 1}
	}
	if _, err := Calculate(many); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected too many lines to be rejected, got %v", err)
	}
}

func TestCalculateLargestCartDoesNotOverflow(t *testing.T) {
	lines := make([]domain.CartLine, MaxLines)
	for i := range lines {
		lines[i] = domain.CartLine{ProductID: "p-1", Quantity: MaxQuantity, UnitPriceCents: MaxUnitPriceCents}
	}
	cart, err := Calculate(lines)
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	want := int64(MaxLines) * MaxQuantity * MaxUnitPriceCents
	if cart.Totals.TotalCents != want || want <= 0 {
		t.Fatalf("expected total %d, got %d", want, cart.Totals.TotalCents)
	}
}
