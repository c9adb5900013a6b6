package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/store"
)

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) NextSaleSequence(ctx context.Context, registerID string, businessDate string) (int, error) {
	if registerID == "" || businessDate == "" {
		return 0, store.ErrInvalidTransaction
	}
	var seq int
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO sale_sequences (register_id, business_date, last_seq)
		VALUES ($1, $2::date, 1)
		ON CONFLICT (register_id, business_date)
		DO UPDATE SET last_seq = sale_sequences.last_seq + 1
		RETURNING last_seq
	`, registerID, businessDate).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (t *pgTx) ApplyStockDelta(ctx context.Context, branchID string, productID string, delta int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE stock_levels
		SET available = available + $3, on_hand = on_hand + $3, updated_at = now()
		WHERE branch_id = $1 AND product_id = $2
	`, branchID, productID, delta)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: branch %s product %s", store.ErrStockInconsistency, branchID, productID)
	}
	return nil
}

func (t *pgTx) FindOpenCashSession(ctx context.Context, tenantID string, username string, registerID string) (*domain.CashSession, error) {
	cs, err := scanCashSession(t.tx.QueryRowContext(ctx, `
		SELECT `+cashSessionColumns+`
		FROM cash_sessions
		WHERE tenant_id = $1 AND username = $2 AND register_id = $3 AND status = $4
	`, tenantID, strings.ToLower(username), registerID, domain.CashSessionOpen))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrSessionNotOpen
		}
		return nil, err
	}
	return cs, nil
}

func (t *pgTx) LockCashSession(ctx context.Context, sessionID string) (*domain.CashSession, error) {
	cs, err := scanCashSession(t.tx.QueryRowContext(ctx, `
		SELECT `+cashSessionColumns+`
		FROM cash_sessions
		WHERE id = $1
		FOR UPDATE
	`, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return cs, nil
}

func (t *pgTx) CreateCashSession(ctx context.Context, cs domain.CashSession) error {
	if cs.ID == "" || cs.RegisterID == "" || cs.Username == "" {
		return store.ErrInvalidTransaction
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cash_sessions (
			id, tenant_id, register_id, username, status, opening_amount_cents, opened_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, cs.ID, cs.TenantID, cs.RegisterID, strings.ToLower(cs.Username), domain.CashSessionOpen, cs.OpeningAmountCents, cs.OpenedAt)
	if err != nil {
		if uniqueViolationOn(err, "cash_sessions_one_open") {
			return store.ErrSessionAlreadyOpen
		}
		return err
	}
	return nil
}

func (t *pgTx) IncrementCashSession(ctx context.Context, sessionID string, d domain.CashSessionDelta) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE cash_sessions
		SET sales_count = sales_count + $2,
			sales_total_cents = sales_total_cents + $3,
			cash_cents = cash_cents + $4,
			debit_cents = debit_cents + $5,
			credit_cents = credit_cents + $6,
			qr_cents = qr_cents + $7,
			wallet_point_cents = wallet_point_cents + $8,
			transfer_cents = transfer_cents + $9,
			other_cents = other_cents + $10
		WHERE id = $1 AND status = $11
	`, sessionID, d.SalesCount, d.SalesTotalCents,
		d.Totals.Cash, d.Totals.Debit, d.Totals.Credit, d.Totals.QR,
		d.Totals.WalletPoint, d.Totals.Transfer, d.Totals.Other,
		domain.CashSessionOpen)
	if err != nil {
		return err
	}
	return expectOneRow(res, store.ErrSessionNotOpen)
}

func (t *pgTx) CloseCashSession(ctx context.Context, sessionID string, countedCents int64, differenceCents int64, closedAt time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE cash_sessions
		SET status = $2, closing_counted_cents = $3, final_difference_cents = $4, closed_at = $5
		WHERE id = $1 AND status = $6
	`, sessionID, domain.CashSessionClosed, countedCents, differenceCents, closedAt, domain.CashSessionOpen)
	if err != nil {
		return err
	}
	return expectOneRow(res, store.ErrSessionNotOpen)
}

func (t *pgTx) InsertSale(ctx context.Context, sale domain.Sale) error {
	if sale.ID == "" || sale.IdempotencyKey == "" || len(sale.Lines) == 0 {
		return store.ErrInvalidTransaction
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, number, sequence, tenant_id, branch_id, register_id, cash_session_id,
			cashier_username, idempotency_key, business_date,
			subtotal_cents, discount_cents, tax_cents, total_cents,
			offline, captured_at, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::date,$11,$12,$13,$14,$15,$16,$17)
	`, sale.ID, sale.Number, sale.Sequence, sale.TenantID, sale.BranchID, sale.RegisterID, sale.CashSessionID,
		sale.CashierUsername, sale.IdempotencyKey, sale.BusinessDate,
		sale.Totals.SubtotalCents, sale.Totals.DiscountCents, sale.Totals.TaxCents, sale.Totals.TotalCents,
		sale.Offline, nullTime(sale.CapturedAt), sale.CreatedAt)
	if err != nil {
		if uniqueViolationOn(err, "sales_tenant_idempotency_key") {
			return store.ErrDuplicateSale
		}
		return err
	}

	for i, l := range sale.Lines {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO sale_lines (
				sale_id, line_no, line_id, product_id, combo_id, quantity, unit_price_cents,
				discount_cents, tax_rate_percent, promotion_id, promotion_name,
				subtotal_cents, tax_cents, tracks_stock
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		`, sale.ID, i+1, l.LineID, nullIfEmpty(l.ProductID), nullIfEmpty(l.ComboID), l.Quantity, l.UnitPriceCents,
			l.DiscountCents, l.TaxRatePercent, nullIfEmpty(l.PromotionID), nullIfEmpty(l.PromotionName),
			l.SubtotalCents, l.TaxCents, l.TracksStock); err != nil {
			return err
		}
	}

	for i, p := range sale.Payments {
		var auth any
		if p.Authorization != nil {
			raw, err := json.Marshal(p.Authorization)
			if err != nil {
				return err
			}
			auth = raw
		}
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO sale_payments (
				sale_id, payment_no, method, amount_cents, tendered_cents, change_cents,
				voucher_code, store_credit_id, authorization_meta
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, sale.ID, i+1, string(p.Method), p.AmountCents, p.TenderedCents, p.ChangeCents,
			nullIfEmpty(p.VoucherCode), nullIfEmpty(p.StoreCreditID), auth); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) InsertCashCount(ctx context.Context, c domain.CashCount) error {
	breakdown, err := json.Marshal(c.Breakdown)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO cash_counts (
			id, cash_session_id, mode, breakdown, counted_cents, expected_cents,
			difference_cents, classification, notes, counted_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, c.ID, c.CashSessionID, string(c.Mode), breakdown, c.CountedCents, c.ExpectedCents,
		c.DifferenceCents, c.Classification, c.Notes, c.CountedBy, c.CreatedAt)
	return err
}

func (t *pgTx) InsertCashMovement(ctx context.Context, m domain.CashMovement) error {
	var column string
	switch m.Kind {
	case domain.CashMovementDeposit:
		column = "cash_deposits_cents"
	case domain.CashMovementWithdrawal:
		column = "cash_withdrawals_cents"
	default:
		return store.ErrInvalidTransaction
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE cash_sessions
		SET `+column+` = `+column+` + $2
		WHERE id = $1 AND status = $3
	`, m.CashSessionID, m.AmountCents, domain.CashSessionOpen)
	if err != nil {
		return err
	}
	if err := expectOneRow(res, store.ErrSessionNotOpen); err != nil {
		return err
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO cash_movements (id, cash_session_id, kind, amount_cents, reason, recorded_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, m.ID, m.CashSessionID, string(m.Kind), m.AmountCents, m.Reason, m.RecordedBy, m.CreatedAt)
	return err
}

func (t *pgTx) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	return insertAuditLog(ctx, t.tx, entry)
}

func expectOneRow(res sql.Result, none error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return none
	}
	return nil
}
