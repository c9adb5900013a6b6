// Package ledger holds the cash session arithmetic: the per sale increment,
// expected drawer cash and the reconciliation of a physical count.
package ledger

import (
	"time"

	"tillpoint/backend/internal/domain"
)

// Delta is the increment one committed sale applies to its session.
func Delta(saleTotalCents int64, totals domain.MethodTotals) domain.CashSessionDelta {
	return domain.CashSessionDelta{
		SalesCount:      1,
		SalesTotalCents: saleTotalCents,
		Totals:          totals,
	}
}

// Apply adds d to the session counters. Deltas commute, so the order in which
// concurrent sales land does not change the result.
func Apply(session domain.CashSession, d domain.CashSessionDelta) domain.CashSession {
	session.SalesCount += d.SalesCount
	session.SalesTotalCents += d.SalesTotalCents
	session.Totals = session.Totals.Add(d.Totals)
	return session
}

func ExpectedCash(session domain.CashSession) int64 {
	return session.OpeningAmountCents + session.Totals.Cash + session.CashDepositsCents - session.CashWithdrawalsCents
}

func CountedTotal(b domain.DenominationBreakdown) (int64, error) {
	var total int64
	for _, pieces := range []map[int64]int{b.Bills, b.Coins} {
		for denomination, count := range pieces {
			if denomination <= 0 {
				return 0, domain.Invalid("denomination must be positive, got %d", denomination)
			}
			if count < 0 {
				return 0, domain.Invalid("count for denomination %d is negative", denomination)
			}
			total += denomination * int64(count)
		}
	}
	if b.VouchersCents < 0 || b.ChecksCents < 0 || b.OtherValuesCents < 0 {
		return 0, domain.Invalid("vouchers, checks and other values cannot be negative")
	}
	return total + b.VouchersCents + b.ChecksCents + b.OtherValuesCents, nil
}

func Classify(differenceCents int64) string {
	switch {
	case differenceCents > 0:
		return domain.CountSurplus
	case differenceCents < 0:
		return domain.CountShortage
	default:
		return domain.CountBalanced
	}
}

// Reconcile compares a count against the session's expected cash. A closing
// count also returns the session closed with its final difference frozen;
// a partial count leaves the session untouched.
func Reconcile(session domain.CashSession, breakdown domain.DenominationBreakdown, mode domain.CashCountMode, at time.Time) (domain.CashCount, domain.CashSession, error) {
	if mode != domain.CashCountPartial && mode != domain.CashCountClosing {
		return domain.CashCount{}, session, domain.Invalid("unknown count mode %q", mode)
	}
	if session.Status != domain.CashSessionOpen {
		return domain.CashCount{}, session, domain.Invalid("cash session %s is not open", session.ID)
	}

	counted, err := CountedTotal(breakdown)
	if err != nil {
		return domain.CashCount{}, session, err
	}
	expected := ExpectedCash(session)
	diff := counted - expected

	count := domain.CashCount{
		CashSessionID:   session.ID,
		Mode:            mode,
		Breakdown:       breakdown,
		CountedCents:    counted,
		ExpectedCents:   expected,
		DifferenceCents: diff,
		Classification:  Classify(diff),
		CreatedAt:       at,
	}

	if mode == domain.CashCountClosing {
		closedAt := at
		session.Status = domain.CashSessionClosed
		session.ClosedAt = &closedAt
		session.ClosingCountedCents = counted
		session.FinalDifferenceCents = diff
	}
	return count, session, nil
}

// ApplyMovement adds a deposit or withdrawal to the session's cash figures.
func ApplyMovement(session domain.CashSession, kind domain.CashMovementKind, amountCents int64) (domain.CashSession, error) {
	if amountCents <= 0 {
		return session, domain.Invalid("movement amount must be positive")
	}
	switch kind {
	case domain.CashMovementDeposit:
		session.CashDepositsCents += amountCents
	case domain.CashMovementWithdrawal:
		session.CashWithdrawalsCents += amountCents
	default:
		return session, domain.Invalid("unknown movement kind %q", kind)
	}
	return session, nil
}
