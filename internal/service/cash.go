package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/ledger"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/xid"
)

// OpenCashSession starts a shift for the calling user on a register. At most
// one session per (tenant, user, register) may be open; the store enforces it.
func (s *Service) OpenCashSession(ctx context.Context, req domain.CashSessionOpenRequest) (domain.CashSessionResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CashSessionResponse{}, err
	}
	req.TenantID = s.tenant(req.TenantID)
	req.RegisterID = strings.TrimSpace(req.RegisterID)
	if req.RegisterID == "" {
		return domain.CashSessionResponse{}, domain.Invalid("register id is required")
	}
	if req.OpeningAmountCents < 0 {
		return domain.CashSessionResponse{}, domain.Invalid("opening amount cannot be negative")
	}
	if _, err := s.repo.GetRegister(ctx, req.TenantID, req.RegisterID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.CashSessionResponse{}, domain.Invalid("unknown register %q", req.RegisterID)
		}
		return domain.CashSessionResponse{}, err
	}

	session := domain.CashSession{
		ID:                 xid.New("cs"),
		TenantID:           req.TenantID,
		RegisterID:         req.RegisterID,
		Username:           strings.ToLower(actor.Username),
		Status:             domain.CashSessionOpen,
		OpeningAmountCents: req.OpeningAmountCents,
		OpenedAt:           s.now().UTC(),
	}
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateCashSession(ctx, session); err != nil {
			return err
		}
		return tx.CreateAuditLog(ctx, s.auditEntry(ctx, session.TenantID, "cash_session_open", "cash_session", session.ID,
			fmt.Sprintf("register=%s opening=%d", session.RegisterID, session.OpeningAmountCents)))
	})
	if err != nil {
		return domain.CashSessionResponse{}, err
	}
	return sessionResponse(session), nil
}

func (s *Service) GetActiveCashSession(ctx context.Context, tenantID string, registerID string) (domain.CashSessionResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CashSessionResponse{}, err
	}
	session, err := s.repo.GetActiveCashSession(ctx, s.tenant(tenantID), strings.ToLower(actor.Username), strings.TrimSpace(registerID))
	if err != nil {
		return domain.CashSessionResponse{}, err
	}
	return sessionResponse(*session), nil
}

func (s *Service) GetCashSession(ctx context.Context, sessionID string) (domain.CashSessionResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CashSessionResponse{}, err
	}
	session, err := s.repo.GetCashSession(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		return domain.CashSessionResponse{}, err
	}
	if err := checkOwner(actor, *session); err != nil {
		return domain.CashSessionResponse{}, err
	}
	return sessionResponse(*session), nil
}

func (s *Service) ListCashCounts(ctx context.Context, sessionID string) ([]domain.CashCount, error) {
	if _, err := s.GetCashSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListCashCounts(ctx, strings.TrimSpace(sessionID))
}

// RecordCashCount reconciles a physical count against the session's expected
// cash. A closing count also closes the session. The count is immutable once
// recorded.
func (s *Service) RecordCashCount(ctx context.Context, sessionID string, req domain.CashCountRequest) (domain.CashCountResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CashCountResponse{}, err
	}
	req.Mode = domain.CashCountMode(strings.ToLower(strings.TrimSpace(string(req.Mode))))

	var out domain.CashCountResponse
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		session, err := tx.LockCashSession(ctx, strings.TrimSpace(sessionID))
		if err != nil {
			return err
		}
		if err := checkOwner(actor, *session); err != nil {
			return err
		}
		if session.Status != domain.CashSessionOpen {
			return store.ErrSessionNotOpen
		}

		count, updated, err := ledger.Reconcile(*session, req.Breakdown, req.Mode, s.now().UTC())
		if err != nil {
			return err
		}
		count.ID = xid.New("cc")
		count.Notes = strings.TrimSpace(req.Notes)
		count.CountedBy = strings.ToLower(actor.Username)
		if err := tx.InsertCashCount(ctx, count); err != nil {
			return err
		}
		if req.Mode == domain.CashCountClosing {
			if err := tx.CloseCashSession(ctx, session.ID, count.CountedCents, count.DifferenceCents, *updated.ClosedAt); err != nil {
				return err
			}
		}

		action := "cash_count_partial"
		if req.Mode == domain.CashCountClosing {
			action = "cash_session_close"
		}
		if err := tx.CreateAuditLog(ctx, s.auditEntry(ctx, session.TenantID, action, "cash_session", session.ID,
			fmt.Sprintf("counted=%d expected=%d difference=%d %s", count.CountedCents, count.ExpectedCents, count.DifferenceCents, count.Classification))); err != nil {
			return err
		}

		out = domain.CashCountResponse{CashCount: count, CashSession: updated}
		return nil
	})
	if err != nil {
		return domain.CashCountResponse{}, err
	}
	return out, nil
}

// RecordCashMovement books a deposit into or a withdrawal from the drawer.
// Manager approval for withdrawals is checked by the caller.
func (s *Service) RecordCashMovement(ctx context.Context, sessionID string, req domain.CashMovementRequest) (domain.CashMovementResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CashMovementResponse{}, err
	}
	req.Kind = domain.CashMovementKind(strings.ToLower(strings.TrimSpace(string(req.Kind))))
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return domain.CashMovementResponse{}, domain.Invalid("reason is required")
	}

	var out domain.CashMovementResponse
	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		session, err := tx.LockCashSession(ctx, strings.TrimSpace(sessionID))
		if err != nil {
			return err
		}
		if err := checkOwner(actor, *session); err != nil {
			return err
		}
		if session.Status != domain.CashSessionOpen {
			return store.ErrSessionNotOpen
		}
		updated, err := ledger.ApplyMovement(*session, req.Kind, req.AmountCents)
		if err != nil {
			return err
		}

		movement := domain.CashMovement{
			ID:            xid.New("cm"),
			CashSessionID: session.ID,
			Kind:          req.Kind,
			AmountCents:   req.AmountCents,
			Reason:        req.Reason,
			RecordedBy:    strings.ToLower(actor.Username),
			CreatedAt:     s.now().UTC(),
		}
		if err := tx.InsertCashMovement(ctx, movement); err != nil {
			return err
		}
		if err := tx.CreateAuditLog(ctx, s.auditEntry(ctx, session.TenantID, "cash_"+string(req.Kind), "cash_session", session.ID,
			fmt.Sprintf("amount=%d reason=%s", req.AmountCents, req.Reason))); err != nil {
			return err
		}

		out = domain.CashMovementResponse{CashMovement: movement, CashSession: updated}
		return nil
	})
	if err != nil {
		return domain.CashMovementResponse{}, err
	}
	return out, nil
}

// checkOwner lets a cashier act on their own sessions only. Admins may act on
// any session, e.g. to close a drawer left open by someone else.
func checkOwner(actor domain.Actor, session domain.CashSession) error {
	if actor.Role == "admin" {
		return nil
	}
	if !strings.EqualFold(actor.Username, session.Username) {
		return ErrForbidden
	}
	return nil
}

func sessionResponse(session domain.CashSession) domain.CashSessionResponse {
	return domain.CashSessionResponse{
		CashSession:       session,
		ExpectedCashCents: ledger.ExpectedCash(session),
	}
}
