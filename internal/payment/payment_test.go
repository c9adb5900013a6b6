package payment

import (
	"errors"
	"testing"

	"tillpoint/backend/internal/domain"
)

func TestReconcileAcceptsExactPayment(t *testing.T) {
	res, err := Reconcile([]domain.Payment{
		{Method: "cash", AmountCents: 1000},
		{Method: "Debit", AmountCents: 500},
	}, 1500, nil)
	if err != nil {
		t.Fatalf("expected exact payment to be accepted: %v", err)
	}
	if res.PaidCents != 1500 {
		t.Fatalf("expected paid 1500, got %d", res.PaidCents)
	}
	if res.Totals.Cash != 1000 || res.Totals.Debit != 500 {
		t.Fatalf("unexpected buckets: %+v", res.Totals)
	}
}

func TestReconcileRejectsOneCentShort(t *testing.T) {
	_, err := Reconcile([]domain.Payment{{Method: "cash", AmountCents: 1499}}, 1500, nil)

	var insufficient *domain.InsufficientPaymentError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientPaymentError, got %v", err)
	}
	if insufficient.Total != 1500 || insufficient.Paid != 1499 {
		t.Fatalf("expected total 1500 and paid 1499, got %+v", insufficient)
	}
	if insufficient.Missing() != 1 {
		t.Fatalf("expected 1 cent missing, got %d", insufficient.Missing())
	}
}

func TestReconcileRejectsPaymentOnNonPositiveTotal(t *testing.T) {
	for _, total := range []int64{0, -3000} {
		_, err := Reconcile([]domain.Payment{{Method: "cash", AmountCents: 100}}, total, nil)
		if !errors.Is(err, domain.ErrUnexpectedPayment) {
			t.Fatalf("total %d: expected ErrUnexpectedPayment, got %v", total, err)
		}
	}

	res, err := Reconcile(nil, -3000, nil)
	if err != nil {
		t.Fatalf("expected pure return without payments to pass: %v", err)
	}
	if res.Totals.Sum() != 0 {
		t.Fatalf("expected empty buckets, got %+v", res.Totals)
	}
}

func TestReconcileComputesCashChange(t *testing.T) {
	res, err := Reconcile([]domain.Payment{{Method: "cash", AmountCents: 1500, TenderedCents: 2000}}, 1500, nil)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if res.Payments[0].ChangeCents != 500 || res.ChangeCents != 500 {
		t.Fatalf("expected change 500, got %d", res.Payments[0].ChangeCents)
	}
	if res.Totals.Cash != 1500 {
		t.Fatalf("expected cash bucket to hold the amount not the tender, got %d", res.Totals.Cash)
	}

	_, err = Reconcile([]domain.Payment{{Method: "cash", AmountCents: 1500, TenderedCents: 1000}}, 1500, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected tender below amount to be invalid, got %v", err)
	}
}

func TestReconcileResolvesGiftCards(t *testing.T) {
	credits := map[string]string{"GIFT-100": "credit-1"}
	res, err := Reconcile([]domain.Payment{
		{Method: "Gift Card", AmountCents: 800, VoucherCode: " GIFT-100 "},
		{Method: "cash", AmountCents: 200},
	}, 1000, credits)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	gift := res.Payments[0]
	if gift.Method != domain.PaymentGiftCard || gift.StoreCreditID != "credit-1" {
		t.Fatalf("expected canonical gift card with credit id, got %+v", gift)
	}
	if res.Totals.Other != 800 {
		t.Fatalf("expected gift card in other bucket, got %+v", res.Totals)
	}

	_, err = Reconcile([]domain.Payment{{Method: "voucher", AmountCents: 1000, VoucherCode: "NOPE"}}, 1000, credits)
	if !errors.Is(err, domain.ErrUnknownVoucher) {
		t.Fatalf("expected ErrUnknownVoucher, got %v", err)
	}
}

func TestNormalizeMethod(t *testing.T) {
	cases := map[string]domain.PaymentMethod{
		"CASH":          domain.PaymentCash,
		" gift card ":   domain.PaymentGiftCard,
		"giftcard":      domain.PaymentGiftCard,
		"store-credit":  domain.PaymentGiftCard,
		"QR":            domain.PaymentQR,
		"wallet point":  domain.PaymentWalletPoint,
		"bank transfer": domain.PaymentTransfer,
		"credit_card":   domain.PaymentCredit,
	}
	for raw, want := range cases {
		got, err := NormalizeMethod(raw)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", raw, err)
		}
		if got != want {
			t.Fatalf("%q: expected %s, got %s", raw, want, got)
		}
	}

	for _, raw := range []string{"card", "", "bitcoin"} {
		if _, err := NormalizeMethod(raw); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%q: expected ErrValidation, got %v", raw, err)
		}
	}
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	payments := []domain.Payment{
		{Method: domain.PaymentCash, AmountCents: 100},
		{Method: domain.PaymentQR, AmountCents: 250},
		{Method: domain.PaymentGiftCard, AmountCents: 40},
		{Method: domain.PaymentCash, AmountCents: 60},
		{Method: domain.PaymentTransfer, AmountCents: 5},
		{Method: domain.PaymentOther, AmountCents: 1},
	}
	want := Aggregate(payments)

	reversed := make([]domain.Payment, len(payments))
	for i, p := range payments {
		reversed[len(payments)-1-i] = p
	}
	if got := Aggregate(reversed); got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if want.Cash != 160 || want.Other != 41 || want.Sum() != 456 {
		t.Fatalf("unexpected aggregation %+v", want)
	}
}
