// Package totals turns cart lines into priced lines and cart totals.
//
// Prices are tax inclusive: the tax of a line is extracted from its subtotal
// using the line's own rate, never a fixed default.
package totals

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"tillpoint/backend/internal/domain"
)

type CalculatedCart struct {
	Lines  []domain.CalculatedLine
	Totals domain.SaleTotals
}

// Bounds on a single line. With these, no line amount or cart sum can
// overflow int64 cents.
const (
	MaxQuantity       = 100_000
	MaxUnitPriceCents = 1_000_000_000_00
	MaxLines          = 500
)

var hundred = decimal.NewFromInt(100)

// NormalizeQuantity forces return lines and negative quantities negative and
// everything else positive.
func NormalizeQuantity(quantity int, isReturn bool) int {
	q := quantity
	if q < 0 {
		q = -q
	}
	if isReturn || quantity < 0 {
		return -q
	}
	return q
}

// ExtractTax returns the tax embedded in a tax inclusive amount, rounded half
// away from zero to whole cents.
func ExtractTax(subtotalCents int64, taxRatePercent float64) int64 {
	if taxRatePercent == 0 || subtotalCents == 0 {
		return 0
	}
	rate := decimal.NewFromFloat(taxRatePercent)
	tax := decimal.NewFromInt(subtotalCents).Mul(rate).Div(hundred.Add(rate))
	return tax.Round(0).IntPart()
}

func Calculate(lines []domain.CartLine) (CalculatedCart, error) {
	if len(lines) == 0 {
		return CalculatedCart{}, domain.Invalid("cart has no lines")
	}
	if len(lines) > MaxLines {
		return CalculatedCart{}, domain.Invalid("cart has %d lines, at most %d allowed", len(lines), MaxLines)
	}

	out := CalculatedCart{Lines: make([]domain.CalculatedLine, 0, len(lines))}
	for i, line := range lines {
		calc, err := calculateLine(line)
		if err != nil {
			return CalculatedCart{}, err
		}
		if calc.LineID == "" {
			calc.LineID = DefaultLineID(i)
		}
		out.Lines = append(out.Lines, calc)
		out.Totals.SubtotalCents += calc.SubtotalCents
		out.Totals.DiscountCents += calc.DiscountCents
		out.Totals.TaxCents += calc.TaxCents
	}
	out.Totals.TotalCents = out.Totals.SubtotalCents
	return out, nil
}

func calculateLine(line domain.CartLine) (domain.CalculatedLine, error) {
	hasProduct := line.ProductID != ""
	hasCombo := line.ComboID != ""
	if hasProduct == hasCombo {
		return domain.CalculatedLine{}, domain.Invalid("line %q must reference exactly one of product or combo", line.LineID)
	}
	if line.Quantity == 0 {
		return domain.CalculatedLine{}, domain.Invalid("line %q has zero quantity", line.LineID)
	}
	if line.Quantity > MaxQuantity || line.Quantity < -MaxQuantity {
		return domain.CalculatedLine{}, domain.Invalid("line %q quantity %d out of range", line.LineID, line.Quantity)
	}
	if line.UnitPriceCents < 0 {
		return domain.CalculatedLine{}, domain.Invalid("line %q has negative unit price", line.LineID)
	}
	if line.UnitPriceCents > MaxUnitPriceCents {
		return domain.CalculatedLine{}, domain.Invalid("line %q unit price %d out of range", line.LineID, line.UnitPriceCents)
	}
	if line.DiscountCents < 0 {
		return domain.CalculatedLine{}, domain.Invalid("line %q has negative discount", line.LineID)
	}
	if line.DiscountCents > line.UnitPriceCents*MaxQuantity {
		return domain.CalculatedLine{}, domain.Invalid("line %q discount %d out of range", line.LineID, line.DiscountCents)
	}
	rate := line.TaxRatePercent
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 || rate > 100 {
		return domain.CalculatedLine{}, domain.Invalid("line %q has invalid tax rate", line.LineID)
	}

	qty := NormalizeQuantity(line.Quantity, line.IsReturn)
	subtotal := line.UnitPriceCents*int64(qty) - line.DiscountCents

	return domain.CalculatedLine{
		LineID:         line.LineID,
		ProductID:      line.ProductID,
		ComboID:        line.ComboID,
		Quantity:       qty,
		UnitPriceCents: line.UnitPriceCents,
		DiscountCents:  line.DiscountCents,
		TaxRatePercent: rate,
		PromotionID:    line.PromotionID,
		PromotionName:  line.PromotionName,
		SubtotalCents:  subtotal,
		TaxCents:       ExtractTax(subtotal, rate),
	}, nil
}

func DefaultLineID(index int) string {
	return "L" + strconv.Itoa(index+1)
}
