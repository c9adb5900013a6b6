// Package payment validates tendered payments against a cart total and folds
// them into per-method buckets for the cash session.
package payment

import (
	"fmt"
	"strings"

	"tillpoint/backend/internal/domain"
)

type Result struct {
	Payments    []domain.Payment
	Totals      domain.MethodTotals
	PaidCents   int64
	ChangeCents int64
}

var methodAliases = map[string]domain.PaymentMethod{
	"cash":          domain.PaymentCash,
	"efectivo":      domain.PaymentCash,
	"debit":         domain.PaymentDebit,
	"debit_card":    domain.PaymentDebit,
	"credit":        domain.PaymentCredit,
	"credit_card":   domain.PaymentCredit,
	"qr":            domain.PaymentQR,
	"qr_code":       domain.PaymentQR,
	"qris":          domain.PaymentQR,
	"gift_card":     domain.PaymentGiftCard,
	"giftcard":      domain.PaymentGiftCard,
	"gift":          domain.PaymentGiftCard,
	"store_credit":  domain.PaymentGiftCard,
	"voucher":       domain.PaymentGiftCard,
	"wallet_point":  domain.PaymentWalletPoint,
	"wallet_points": domain.PaymentWalletPoint,
	"points":        domain.PaymentWalletPoint,
	"transfer":      domain.PaymentTransfer,
	"bank_transfer": domain.PaymentTransfer,
	"other":         domain.PaymentOther,
}

var buckets = map[domain.PaymentMethod]func(*domain.MethodTotals) *int64{
	domain.PaymentCash:        func(t *domain.MethodTotals) *int64 { return &t.Cash },
	domain.PaymentDebit:       func(t *domain.MethodTotals) *int64 { return &t.Debit },
	domain.PaymentCredit:      func(t *domain.MethodTotals) *int64 { return &t.Credit },
	domain.PaymentQR:          func(t *domain.MethodTotals) *int64 { return &t.QR },
	domain.PaymentWalletPoint: func(t *domain.MethodTotals) *int64 { return &t.WalletPoint },
	domain.PaymentTransfer:    func(t *domain.MethodTotals) *int64 { return &t.Transfer },
	domain.PaymentGiftCard:    func(t *domain.MethodTotals) *int64 { return &t.Other },
	domain.PaymentOther:       func(t *domain.MethodTotals) *int64 { return &t.Other },
}

// NormalizeMethod maps a free form method label onto the stored enum. Labels
// are matched case insensitively with spaces and dashes treated as
// underscores. A bare "card" is rejected because it does not say debit or
// credit.
func NormalizeMethod(raw string) (domain.PaymentMethod, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if key == "" {
		return "", domain.Invalid("payment method is required")
	}
	method, ok := methodAliases[key]
	if !ok {
		return "", domain.Invalid("unsupported payment method %q", raw)
	}
	return method, nil
}

// Reconcile checks payments against total and returns them normalized.
// credits maps voucher codes to store credit ids.
func Reconcile(payments []domain.Payment, totalCents int64, credits map[string]string) (Result, error) {
	if totalCents <= 0 {
		if len(payments) > 0 {
			return Result{}, domain.ErrUnexpectedPayment
		}
		return Result{Payments: []domain.Payment{}}, nil
	}

	out := Result{Payments: make([]domain.Payment, 0, len(payments))}
	for i, p := range payments {
		normalized, err := normalize(p, credits)
		if err != nil {
			return Result{}, fmt.Errorf("payment %d: %w", i+1, err)
		}
		out.Payments = append(out.Payments, normalized)
		out.PaidCents += normalized.AmountCents
		out.ChangeCents += normalized.ChangeCents
	}

	if out.PaidCents < totalCents {
		return Result{}, &domain.InsufficientPaymentError{Total: totalCents, Paid: out.PaidCents}
	}
	out.Totals = Aggregate(out.Payments)
	return out, nil
}

func normalize(p domain.Payment, credits map[string]string) (domain.Payment, error) {
	method, err := NormalizeMethod(string(p.Method))
	if err != nil {
		return domain.Payment{}, err
	}
	if p.AmountCents <= 0 {
		return domain.Payment{}, domain.Invalid("amount must be positive")
	}

	out := domain.Payment{
		Method:        method,
		AmountCents:   p.AmountCents,
		Authorization: p.Authorization,
	}

	switch method {
	case domain.PaymentCash:
		if p.TenderedCents != 0 {
			if p.TenderedCents < p.AmountCents {
				return domain.Payment{}, domain.Invalid("tendered %d is less than amount %d", p.TenderedCents, p.AmountCents)
			}
			out.TenderedCents = p.TenderedCents
			out.ChangeCents = p.TenderedCents - p.AmountCents
		}
	case domain.PaymentGiftCard:
		code := strings.TrimSpace(p.VoucherCode)
		if code == "" {
			return domain.Payment{}, domain.Invalid("voucher code is required for gift card payments")
		}
		creditID, ok := credits[code]
		if !ok {
			return domain.Payment{}, fmt.Errorf("%w: %q", domain.ErrUnknownVoucher, code)
		}
		out.VoucherCode = code
		out.StoreCreditID = creditID
	}
	return out, nil
}

// Aggregate folds payments into method buckets. The result does not depend
// on payment order. Payments with an unknown method count as other.
func Aggregate(payments []domain.Payment) domain.MethodTotals {
	var totals domain.MethodTotals
	for _, p := range payments {
		bucket, ok := buckets[p.Method]
		if !ok {
			bucket = buckets[domain.PaymentOther]
		}
		*bucket(&totals) += p.AmountCents
	}
	return totals
}

// VoucherCodes lists the distinct gift card codes referenced by payments, for
// resolving them before Reconcile.
func VoucherCodes(payments []domain.Payment) []string {
	seen := make(map[string]struct{})
	codes := make([]string, 0)
	for _, p := range payments {
		code := strings.TrimSpace(p.VoucherCode)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}
