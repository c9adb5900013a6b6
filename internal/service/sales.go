package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tillpoint/backend/internal/catalog"
	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/inventory"
	"tillpoint/backend/internal/ledger"
	"tillpoint/backend/internal/payment"
	"tillpoint/backend/internal/promotion"
	"tillpoint/backend/internal/saleid"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/totals"
	"tillpoint/backend/internal/xid"
)

// CommitSale prices the cart, reconciles its payments and commits the sale in
// a single unit of work: sequence number, stock decrements, cash session
// increment and the sale row either all land or none do. Replaying an
// idempotency key returns the sale committed the first time.
func (s *Service) CommitSale(ctx context.Context, req domain.CommitSaleRequest) (domain.CommitSaleResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CommitSaleResponse{}, err
	}
	req.TenantID = s.tenant(req.TenantID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	req.RegisterID = strings.TrimSpace(req.RegisterID)
	if req.IdempotencyKey == "" {
		return domain.CommitSaleResponse{}, domain.Invalid("idempotency key is required")
	}
	if req.RegisterID == "" {
		return domain.CommitSaleResponse{}, domain.Invalid("register id is required")
	}

	if existing, err := s.repo.FindSaleByIdempotency(ctx, req.TenantID, req.IdempotencyKey); err == nil {
		return domain.CommitSaleResponse{Sale: *existing, Duplicate: true}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.CommitSaleResponse{}, err
	}

	register, err := s.repo.GetRegister(ctx, req.TenantID, req.RegisterID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.CommitSaleResponse{}, domain.Invalid("unknown register %q", req.RegisterID)
		}
		return domain.CommitSaleResponse{}, err
	}

	cart, err := s.priceCart(ctx, req.Lines, req.Offline)
	if err != nil {
		return domain.CommitSaleResponse{}, err
	}

	credits, err := s.repo.ResolveVouchers(ctx, req.TenantID, payment.VoucherCodes(req.Payments))
	if err != nil {
		return domain.CommitSaleResponse{}, err
	}
	paid, err := payment.Reconcile(req.Payments, cart.Totals.TotalCents, credits)
	if err != nil {
		return domain.CommitSaleResponse{}, err
	}

	sale := domain.Sale{
		ID:              xid.New("sale"),
		TenantID:        req.TenantID,
		BranchID:        register.BranchID,
		RegisterID:      register.ID,
		CashierUsername: strings.ToLower(actor.Username),
		IdempotencyKey:  req.IdempotencyKey,
		Lines:           cart.Lines,
		Totals:          cart.Totals,
		Payments:        paid.Payments,
		Offline:         req.Offline,
		CapturedAt:      req.CapturedAt,
	}

	for attempt := 1; ; attempt++ {
		committed, err := s.commitOnce(ctx, *register, sale, paid.Totals)
		if err == nil {
			return domain.CommitSaleResponse{Sale: committed}, nil
		}
		if errors.Is(err, store.ErrDuplicateSale) {
			existing, findErr := s.repo.FindSaleByIdempotency(ctx, req.TenantID, req.IdempotencyKey)
			if findErr != nil {
				return domain.CommitSaleResponse{}, fmt.Errorf("load sale for replayed key: %w", findErr)
			}
			return domain.CommitSaleResponse{Sale: *existing, Duplicate: true}, nil
		}
		if !errors.Is(err, store.ErrConcurrencyConflict) || attempt >= s.maxAttempts {
			return domain.CommitSaleResponse{}, err
		}

		log.Printf("[service] WARN: commit conflict register=%s key=%s attempt=%d/%d, retrying", register.ID, req.IdempotencyKey, attempt, s.maxAttempts)
		select {
		case <-ctx.Done():
			return domain.CommitSaleResponse{}, ctx.Err()
		case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
		}
	}
}

func (s *Service) commitOnce(ctx context.Context, register domain.Register, sale domain.Sale, byMethod domain.MethodTotals) (domain.Sale, error) {
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		session, err := tx.FindOpenCashSession(ctx, sale.TenantID, sale.CashierUsername, register.ID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		sale.CreatedAt = now
		sale.CashSessionID = session.ID
		sale.BusinessDate = saleid.BusinessDate(now, s.location)

		seq, err := tx.NextSaleSequence(ctx, register.ID, sale.BusinessDate)
		if err != nil {
			return err
		}
		number, err := saleid.Format(register.BranchCode, register.Code, sale.BusinessDate, seq)
		if err != nil {
			return err
		}
		sale.Sequence = seq
		sale.Number = number

		if _, err := inventory.Apply(ctx, tx, register.BranchID, sale.Lines); err != nil {
			return err
		}
		if err := tx.IncrementCashSession(ctx, session.ID, ledger.Delta(sale.Totals.TotalCents, byMethod)); err != nil {
			return err
		}
		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}

		detail := fmt.Sprintf("total=%d lines=%d payments=%d offline=%t", sale.Totals.TotalCents, len(sale.Lines), len(sale.Payments), sale.Offline)
		return tx.CreateAuditLog(ctx, s.auditEntry(ctx, sale.TenantID, "sale_commit", "sale", sale.Number, detail))
	})
	if err != nil {
		return domain.Sale{}, err
	}
	return sale, nil
}

// priceCart prices every line from the catalog, applies promotions and
// computes line and cart totals. Tax rates come from the catalog, or for
// offline lines from the catalog snapshot the register priced them with.
//
// An online line may carry a unit price only if it matches the catalog. An
// offline line keeps the price the register pinned when it captured the
// sale, and offline sales get no promotions: the customer already paid what
// the register charged, and replaying against a newer price list must not
// turn a paid sale into a shortfall.
func (s *Service) priceCart(ctx context.Context, lines []domain.CartLine, offline bool) (totals.CalculatedCart, error) {
	if len(lines) == 0 {
		return totals.CalculatedCart{}, domain.Invalid("cart has no lines")
	}

	prepared := make([]domain.CartLine, len(lines))
	refs := make([]catalog.Ref, 0, len(lines))
	for i, line := range lines {
		line.ProductID = strings.TrimSpace(line.ProductID)
		line.ComboID = strings.TrimSpace(line.ComboID)
		if strings.TrimSpace(line.LineID) == "" {
			line.LineID = totals.DefaultLineID(i)
		}
		prepared[i] = line
		refs = append(refs, catalog.RefOf(line))
	}

	entries, err := s.catalog.Resolve(ctx, refs)
	if err != nil {
		return totals.CalculatedCart{}, err
	}

	seen := make(map[string]struct{}, len(prepared))
	for i, line := range prepared {
		if _, dup := seen[line.LineID]; dup {
			return totals.CalculatedCart{}, domain.Invalid("duplicate line id %q", line.LineID)
		}
		seen[line.LineID] = struct{}{}

		entry, ok := entries[catalog.RefOf(line)]
		if !ok || !entry.Active {
			return totals.CalculatedCart{}, domain.Invalid("line %s: unknown or inactive item %s", line.LineID, catalog.RefOf(line).Key())
		}
		switch {
		case line.UnitPriceCents == 0:
			line.UnitPriceCents = entry.PriceCents
		case offline:
		case line.UnitPriceCents != entry.PriceCents:
			return totals.CalculatedCart{}, domain.Invalid("line %s: unit price %d does not match catalog price %d", line.LineID, line.UnitPriceCents, entry.PriceCents)
		}
		if !offline || line.TaxRatePercent == 0 {
			line.TaxRatePercent = entry.TaxRatePercent
		}
		prepared[i] = line
	}

	if !offline {
		discounts, err := s.promotions.Match(ctx, prepared)
		if err != nil {
			return totals.CalculatedCart{}, err
		}
		prepared = promotion.Apply(prepared, discounts)
	}

	cart, err := totals.Calculate(prepared)
	if err != nil {
		return totals.CalculatedCart{}, err
	}
	for i := range cart.Lines {
		cart.Lines[i].TracksStock = entries[catalog.Ref{ProductID: cart.Lines[i].ProductID, ComboID: cart.Lines[i].ComboID}].TracksStock
	}
	return cart, nil
}

// GetSale returns a sale of the default tenant. Cashiers only see the sales
// they rang up.
func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	sale, err := s.repo.FindSaleByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, err
	}
	if sale.TenantID != s.defaultTenantID {
		return domain.Sale{}, store.ErrNotFound
	}
	if err := checkSaleOwner(actor, *sale); err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) LookupSaleByIdempotency(ctx context.Context, tenantID string, key string) (domain.SaleLookupResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.SaleLookupResponse{}, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.SaleLookupResponse{}, domain.Invalid("idempotency key is required")
	}
	sale, err := s.repo.FindSaleByIdempotency(ctx, s.tenant(tenantID), key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SaleLookupResponse{Found: false}, nil
		}
		return domain.SaleLookupResponse{}, err
	}
	if err := checkSaleOwner(actor, *sale); err != nil {
		return domain.SaleLookupResponse{}, err
	}
	return domain.SaleLookupResponse{Found: true, Sale: sale}, nil
}

func checkSaleOwner(actor domain.Actor, sale domain.Sale) error {
	if actor.Role == "admin" || strings.EqualFold(actor.Username, sale.CashierUsername) {
		return nil
	}
	return ErrForbidden
}

// SyncOfflineSales commits a batch of sales captured while the register was
// offline. Entries are independent: one rejection does not stop the rest.
// An entry without its own idempotency key uses its client entry id.
func (s *Service) SyncOfflineSales(ctx context.Context, req domain.OfflineSyncRequest) (domain.OfflineSyncResponse, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.OfflineSyncResponse{}, err
	}
	if len(req.Sales) == 0 {
		return domain.OfflineSyncResponse{}, domain.Invalid("no sales to sync")
	}

	out := domain.OfflineSyncResponse{
		EnvelopeID: req.EnvelopeID,
		Statuses:   make([]domain.OfflineSyncStatus, 0, len(req.Sales)),
	}
	accepted, duplicates, rejected := 0, 0, 0
	for _, entry := range req.Sales {
		commit := entry.Request
		commit.Offline = true
		commit.RegisterID = defaultString(commit.RegisterID, req.RegisterID)
		commit.IdempotencyKey = defaultString(commit.IdempotencyKey, entry.ClientEntryID)

		status := domain.OfflineSyncStatus{ClientEntryID: entry.ClientEntryID}
		res, err := s.CommitSale(ctx, commit)
		switch {
		case err == nil && res.Duplicate:
			status.Status = domain.SyncStatusDuplicate
			duplicates++
		case err == nil:
			status.Status = domain.SyncStatusAccepted
			accepted++
		case IsRejection(err):
			status.Status = domain.SyncStatusRejected
			status.Reason = err.Error()
			rejected++
		default:
			status.Status = domain.SyncStatusRetry
			status.Reason = err.Error()
			log.Printf("[service] WARN: offline entry %s not committed: %v", entry.ClientEntryID, err)
		}
		if err == nil {
			status.SaleID = res.Sale.ID
			status.SaleNumber = res.Sale.Number
		}
		out.Statuses = append(out.Statuses, status)
	}

	s.logAudit(ctx, s.repo, "", "offline_sync", "register", req.RegisterID,
		fmt.Sprintf("envelope=%s accepted=%d duplicate=%d rejected=%d", req.EnvelopeID, accepted, duplicates, rejected))
	return out, nil
}

// IsRejection reports whether err is final for the submitted sale. Retrying
// the same request cannot succeed.
func IsRejection(err error) bool {
	var insufficient *domain.InsufficientPaymentError
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrUnexpectedPayment) ||
		errors.Is(err, domain.ErrUnknownVoucher) ||
		errors.Is(err, store.ErrStockInconsistency) ||
		errors.Is(err, store.ErrSessionNotOpen) ||
		errors.Is(err, store.ErrInvalidTransaction) ||
		errors.As(err, &insufficient)
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
