package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/store"
)

func newIntegrationStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	databaseURL := os.Getenv("TILLPOINT_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TILLPOINT_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return s, ctx
}

type fixture struct {
	tenantID   string
	branchID   string
	registerID string
	productID  string
	sessionID  string
}

func seedFixture(t *testing.T, s *Store, ctx context.Context) fixture {
	t.Helper()
	stamp := time.Now().UnixNano()
	f := fixture{
		tenantID:   fmt.Sprintf("tenant-it-%d", stamp),
		branchID:   fmt.Sprintf("branch-it-%d", stamp),
		registerID: fmt.Sprintf("reg-it-%d", stamp),
		productID:  fmt.Sprintf("prod-it-%d", stamp),
		sessionID:  fmt.Sprintf("cs-it-%d", stamp),
	}

	stmts := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO branches (id, tenant_id, code, name) VALUES ($1,$2,'CEN','Central')`, []any{f.branchID, f.tenantID}},
		{`INSERT INTO registers (id, tenant_id, branch_id, code, name) VALUES ($1,$2,$3,'R1','Caja 1')`, []any{f.registerID, f.tenantID, f.branchID}},
		{`INSERT INTO products (id, sku, name, price_cents, tax_rate_percent, tracks_stock) VALUES ($1,$1,'IT product',1000,21,true)`, []any{f.productID}},
		{`INSERT INTO stock_levels (branch_id, product_id, available, on_hand) VALUES ($1,$2,100,100)`, []any{f.branchID, f.productID}},
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.CreateCashSession(ctx, domain.CashSession{
			ID:                 f.sessionID,
			TenantID:           f.tenantID,
			RegisterID:         f.registerID,
			Username:           "cashier",
			OpeningAmountCents: 1000000,
			OpenedAt:           time.Now().UTC(),
		})
	})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_payments WHERE sale_id IN (SELECT id FROM sales WHERE tenant_id = $1)`, f.tenantID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_lines WHERE sale_id IN (SELECT id FROM sales WHERE tenant_id = $1)`, f.tenantID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE tenant_id = $1`, f.tenantID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cash_sessions WHERE tenant_id = $1`, f.tenantID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_sequences WHERE register_id = $1`, f.registerID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_levels WHERE branch_id = $1`, f.branchID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, f.productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM registers WHERE id = $1`, f.registerID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM branches WHERE id = $1`, f.branchID)
	})
	return f
}

func commitTestSale(ctx context.Context, s *Store, f fixture, key string, qty int) (int, error) {
	var seq int
	err := s.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		seq, err = tx.NextSaleSequence(ctx, f.registerID, "2024-05-01")
		if err != nil {
			return err
		}
		if err := tx.ApplyStockDelta(ctx, f.branchID, f.productID, -qty); err != nil {
			return err
		}
		if err := tx.IncrementCashSession(ctx, f.sessionID, domain.CashSessionDelta{
			SalesCount: 1, SalesTotalCents: 1000, Totals: domain.MethodTotals{Cash: 1000},
		}); err != nil {
			return err
		}
		return tx.InsertSale(ctx, domain.Sale{
			ID:              "sale-" + key,
			Number:          fmt.Sprintf("CEN-R1-20240501-%04d-%s", seq, key),
			Sequence:        seq,
			TenantID:        f.tenantID,
			BranchID:        f.branchID,
			RegisterID:      f.registerID,
			CashSessionID:   f.sessionID,
			CashierUsername: "cashier",
			IdempotencyKey:  key,
			BusinessDate:    "2024-05-01",
			Lines: []domain.CalculatedLine{{
				LineID: "L1", ProductID: f.productID, Quantity: qty, UnitPriceCents: 1000,
				TaxRatePercent: 21, SubtotalCents: 1000, TaxCents: 174, TracksStock: true,
			}},
			Totals:    domain.SaleTotals{SubtotalCents: 1000, TaxCents: 174, TotalCents: 1000},
			Payments:  []domain.Payment{{Method: domain.PaymentCash, AmountCents: 1000}},
			CreatedAt: time.Now().UTC(),
		})
	})
	return seq, err
}

func TestConcurrentCommitsGetDistinctGaplessSequences(t *testing.T) {
	s, ctx := newIntegrationStore(t)
	f := seedFixture(t, s, ctx)

	const n = 12
	seqs := make([]int, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			var err error
			seqs[i], err = commitTestSale(ctx, s, f, fmt.Sprintf("%s-%d", f.tenantID, i), 1)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent commit: %v", err)
	}

	sort.Ints(seqs)
	for i, seq := range seqs {
		if seq != i+1 {
			t.Fatalf("expected gapless sequences, position %d has %d", i, seq)
		}
	}

	level, err := s.GetStockLevel(ctx, f.branchID, f.productID)
	if err != nil {
		t.Fatalf("stock: %v", err)
	}
	if level.Available != 100-n || level.OnHand != 100-n {
		t.Fatalf("expected stock %d, got %+v", 100-n, level)
	}
	session, err := s.GetCashSession(ctx, f.sessionID)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if session.SalesCount != n || session.Totals.Cash != int64(n)*1000 {
		t.Fatalf("expected %d sales in session, got %+v", n, session)
	}
}

func TestDuplicateIdempotencyKeyRollsBackWholeCommit(t *testing.T) {
	s, ctx := newIntegrationStore(t)
	f := seedFixture(t, s, ctx)
	key := f.tenantID + "-dup"

	if _, err := commitTestSale(ctx, s, f, key, 3); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	_, err := commitTestSale(ctx, s, f, key, 3)
	if !errors.Is(err, store.ErrDuplicateSale) {
		t.Fatalf("expected ErrDuplicateSale, got %v", err)
	}

	level, _ := s.GetStockLevel(ctx, f.branchID, f.productID)
	if level.Available != 97 {
		t.Fatalf("expected duplicate to leave stock at 97, got %d", level.Available)
	}
	sale, err := s.FindSaleByIdempotency(ctx, f.tenantID, key)
	if err != nil {
		t.Fatalf("find sale: %v", err)
	}
	if sale.Sequence != 1 || len(sale.Lines) != 1 || len(sale.Payments) != 1 {
		t.Fatalf("unexpected stored sale %+v", sale)
	}
}

func TestApplyStockDeltaWithoutRowFails(t *testing.T) {
	s, ctx := newIntegrationStore(t)
	f := seedFixture(t, s, ctx)

	err := s.WithinTx(ctx, func(tx store.Tx) error {
		return tx.ApplyStockDelta(ctx, f.branchID, "no-such-product", -1)
	})
	if !errors.Is(err, store.ErrStockInconsistency) {
		t.Fatalf("expected ErrStockInconsistency, got %v", err)
	}
}
