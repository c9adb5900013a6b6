package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

// WithinTx runs fn in a READ COMMITTED transaction. Counters are only ever
// changed with relative updates, so the isolation level does not lose
// increments. Serialization failures and deadlocks surface as
// store.ErrConcurrencyConflict.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return mapTxError(err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		return mapTxError(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return mapTxError(err)
	}
	return nil
}

func (s *Store) GetRegister(ctx context.Context, tenantID string, registerID string) (*domain.Register, error) {
	var r domain.Register
	err := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.tenant_id, r.branch_id, b.code, r.code, r.name
		FROM registers r
		JOIN branches b ON b.id = r.branch_id
		WHERE r.id = $1 AND ($2 = '' OR r.tenant_id = $2)
	`, registerID, tenantID).Scan(&r.ID, &r.TenantID, &r.BranchID, &r.BranchCode, &r.Code, &r.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.queryProducts(ctx, `
		SELECT id, sku, name, price_cents, tax_rate_percent, tracks_stock, active
		FROM products
		WHERE active = true
		ORDER BY name
	`)
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	products, err := s.queryProducts(ctx, `
		SELECT id, sku, name, price_cents, tax_rate_percent, tracks_stock, active
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.PriceCents, &p.TaxRatePercent, &p.TracksStock, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) ListCombos(ctx context.Context) ([]domain.Combo, error) {
	return s.queryCombos(ctx, `
		SELECT id, name, price_cents, tax_rate_percent, active
		FROM combos
		WHERE active = true
		ORDER BY name
	`)
}

func (s *Store) GetCombosByIDs(ctx context.Context, ids []string) (map[string]domain.Combo, error) {
	result := make(map[string]domain.Combo, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	combos, err := s.queryCombos(ctx, `
		SELECT id, name, price_cents, tax_rate_percent, active
		FROM combos
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	for _, c := range combos {
		result[c.ID] = c
	}
	return result, nil
}

func (s *Store) queryCombos(ctx context.Context, query string, args ...any) ([]domain.Combo, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	combos := make([]domain.Combo, 0, 16)
	for rows.Next() {
		var c domain.Combo
		if err := rows.Scan(&c.ID, &c.Name, &c.PriceCents, &c.TaxRatePercent, &c.Active); err != nil {
			return nil, err
		}
		combos = append(combos, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return combos, nil
}

func (s *Store) GetStockLevel(ctx context.Context, branchID string, productID string) (*domain.StockLevel, error) {
	level := domain.StockLevel{BranchID: branchID, ProductID: productID}
	err := s.db.QueryRowContext(ctx, `
		SELECT available, on_hand
		FROM stock_levels
		WHERE branch_id = $1 AND product_id = $2
	`, branchID, productID).Scan(&level.Available, &level.OnHand)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &level, nil
}

func (s *Store) ListActivePromotionRules(ctx context.Context, productIDs []string) ([]domain.PromotionRule, error) {
	rules := make([]domain.PromotionRule, 0, 8)
	if len(productIDs) == 0 {
		return rules, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, product_id, type, discount_percent, flat_per_unit_cents, min_quantity, active, created_at
		FROM promotion_rules
		WHERE active = true AND product_id = ANY($1)
		ORDER BY id
	`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var r domain.PromotionRule
		if err := rows.Scan(&r.ID, &r.Name, &r.ProductID, &r.Type, &r.DiscountPercent, &r.FlatPerUnitCents, &r.MinQuantity, &r.Active, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.CreatedAt = r.CreatedAt.UTC()
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *Store) ResolveVouchers(ctx context.Context, tenantID string, codes []string) (map[string]string, error) {
	result := make(map[string]string, len(codes))
	if len(codes) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT voucher_code, id
		FROM store_credits
		WHERE tenant_id = $1 AND active = true AND voucher_code = ANY($2)
	`, tenantID, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var code, id string
		if err := rows.Scan(&code, &id); err != nil {
			return nil, err
		}
		result[code] = id
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) FindSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	return loadSale(ctx, s.db, "id = $1", id)
}

func (s *Store) FindSaleByIdempotency(ctx context.Context, tenantID string, key string) (*domain.Sale, error) {
	return loadSale(ctx, s.db, "tenant_id = $1 AND idempotency_key = $2", tenantID, key)
}

func loadSale(ctx context.Context, q queryer, where string, args ...any) (*domain.Sale, error) {
	var sale domain.Sale
	var businessDate time.Time
	var capturedAt sql.NullTime

	err := q.QueryRowContext(ctx, `
		SELECT id, number, sequence, tenant_id, branch_id, register_id, cash_session_id,
			cashier_username, idempotency_key, business_date,
			subtotal_cents, discount_cents, tax_cents, total_cents,
			offline, captured_at, created_at
		FROM sales
		WHERE `+where, args...).Scan(
		&sale.ID,
		&sale.Number,
		&sale.Sequence,
		&sale.TenantID,
		&sale.BranchID,
		&sale.RegisterID,
		&sale.CashSessionID,
		&sale.CashierUsername,
		&sale.IdempotencyKey,
		&businessDate,
		&sale.Totals.SubtotalCents,
		&sale.Totals.DiscountCents,
		&sale.Totals.TaxCents,
		&sale.Totals.TotalCents,
		&sale.Offline,
		&capturedAt,
		&sale.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.BusinessDate = businessDate.Format("2006-01-02")
	sale.CreatedAt = sale.CreatedAt.UTC()
	if capturedAt.Valid {
		at := capturedAt.Time.UTC()
		sale.CapturedAt = &at
	}

	lineRows, err := q.QueryContext(ctx, `
		SELECT line_id, COALESCE(product_id,''), COALESCE(combo_id,''), quantity, unit_price_cents,
			discount_cents, tax_rate_percent, COALESCE(promotion_id,''), COALESCE(promotion_name,''),
			subtotal_cents, tax_cents, tracks_stock
		FROM sale_lines
		WHERE sale_id = $1
		ORDER BY line_no ASC
	`, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Lines = make([]domain.CalculatedLine, 0, 8)
	for lineRows.Next() {
		var l domain.CalculatedLine
		if err := lineRows.Scan(&l.LineID, &l.ProductID, &l.ComboID, &l.Quantity, &l.UnitPriceCents,
			&l.DiscountCents, &l.TaxRatePercent, &l.PromotionID, &l.PromotionName,
			&l.SubtotalCents, &l.TaxCents, &l.TracksStock); err != nil {
			_ = lineRows.Close()
			return nil, err
		}
		sale.Lines = append(sale.Lines, l)
	}
	if err := lineRows.Err(); err != nil {
		_ = lineRows.Close()
		return nil, err
	}
	_ = lineRows.Close()

	paymentRows, err := q.QueryContext(ctx, `
		SELECT method, amount_cents, tendered_cents, change_cents,
			COALESCE(voucher_code,''), COALESCE(store_credit_id,''), authorization_meta
		FROM sale_payments
		WHERE sale_id = $1
		ORDER BY payment_no ASC
	`, sale.ID)
	if err != nil {
		return nil, err
	}
	defer paymentRows.Close()

	sale.Payments = make([]domain.Payment, 0, 2)
	for paymentRows.Next() {
		var p domain.Payment
		var method string
		var authRaw []byte
		if err := paymentRows.Scan(&method, &p.AmountCents, &p.TenderedCents, &p.ChangeCents, &p.VoucherCode, &p.StoreCreditID, &authRaw); err != nil {
			return nil, err
		}
		p.Method = domain.PaymentMethod(method)
		if len(authRaw) > 0 {
			var auth domain.Authorization
			if err := json.Unmarshal(authRaw, &auth); err != nil {
				return nil, fmt.Errorf("decode authorization of sale %s: %w", sale.ID, err)
			}
			p.Authorization = &auth
		}
		sale.Payments = append(sale.Payments, p)
	}
	if err := paymentRows.Err(); err != nil {
		return nil, err
	}

	return &sale, nil
}

const cashSessionColumns = `
	id, tenant_id, register_id, username, status, opening_amount_cents,
	sales_count, sales_total_cents, cash_cents, debit_cents, credit_cents, qr_cents,
	wallet_point_cents, transfer_cents, other_cents, cash_deposits_cents,
	cash_withdrawals_cents, closing_counted_cents, final_difference_cents, opened_at, closed_at`

func scanCashSession(row *sql.Row) (*domain.CashSession, error) {
	var cs domain.CashSession
	var closedAt sql.NullTime
	err := row.Scan(
		&cs.ID,
		&cs.TenantID,
		&cs.RegisterID,
		&cs.Username,
		&cs.Status,
		&cs.OpeningAmountCents,
		&cs.SalesCount,
		&cs.SalesTotalCents,
		&cs.Totals.Cash,
		&cs.Totals.Debit,
		&cs.Totals.Credit,
		&cs.Totals.QR,
		&cs.Totals.WalletPoint,
		&cs.Totals.Transfer,
		&cs.Totals.Other,
		&cs.CashDepositsCents,
		&cs.CashWithdrawalsCents,
		&cs.ClosingCountedCents,
		&cs.FinalDifferenceCents,
		&cs.OpenedAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}
	cs.OpenedAt = cs.OpenedAt.UTC()
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		cs.ClosedAt = &at
	}
	return &cs, nil
}

func (s *Store) GetCashSession(ctx context.Context, id string) (*domain.CashSession, error) {
	cs, err := scanCashSession(s.db.QueryRowContext(ctx, `SELECT `+cashSessionColumns+` FROM cash_sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return cs, nil
}

func (s *Store) GetActiveCashSession(ctx context.Context, tenantID string, username string, registerID string) (*domain.CashSession, error) {
	cs, err := scanCashSession(s.db.QueryRowContext(ctx, `
		SELECT `+cashSessionColumns+`
		FROM cash_sessions
		WHERE tenant_id = $1 AND username = $2 AND register_id = $3 AND status = $4
	`, tenantID, strings.ToLower(username), registerID, domain.CashSessionOpen))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return cs, nil
}

func (s *Store) ListCashCounts(ctx context.Context, sessionID string) ([]domain.CashCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cash_session_id, mode, breakdown, counted_cents, expected_cents,
			difference_cents, classification, notes, counted_by, created_at
		FROM cash_counts
		WHERE cash_session_id = $1
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make([]domain.CashCount, 0, 4)
	for rows.Next() {
		var c domain.CashCount
		var mode string
		var breakdown []byte
		if err := rows.Scan(&c.ID, &c.CashSessionID, &mode, &breakdown, &c.CountedCents, &c.ExpectedCents,
			&c.DifferenceCents, &c.Classification, &c.Notes, &c.CountedBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Mode = domain.CashCountMode(mode)
		if err := json.Unmarshal(breakdown, &c.Breakdown); err != nil {
			return nil, fmt.Errorf("decode breakdown of count %s: %w", c.ID, err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (s *Store) GetDailyReport(ctx context.Context, tenantID string, from time.Time, to time.Time) (domain.DailyReport, error) {
	report := domain.DailyReport{
		TenantID:   tenantID,
		ByPayment:  make([]domain.DailyReportPayment, 0, 8),
		ByRegister: make([]domain.DailyReportRegister, 0, 4),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*)::bigint,
			COALESCE(SUM(subtotal_cents),0)::bigint,
			COALESCE(SUM(discount_cents),0)::bigint,
			COALESCE(SUM(tax_cents),0)::bigint,
			COALESCE(SUM(total_cents),0)::bigint
		FROM sales
		WHERE tenant_id = $1
			AND created_at >= $2
			AND created_at < $3
	`, tenantID, from, to).Scan(
		&report.Sales,
		&report.SubtotalCents,
		&report.DiscountCents,
		&report.TaxCents,
		&report.TotalCents,
	)
	if err != nil {
		return report, err
	}

	paymentRows, err := s.db.QueryContext(ctx, `
		SELECT p.method, COALESCE(SUM(p.amount_cents),0)::bigint
		FROM sale_payments p
		JOIN sales s ON s.id = p.sale_id
		WHERE s.tenant_id = $1
			AND s.created_at >= $2
			AND s.created_at < $3
		GROUP BY p.method
		ORDER BY p.method
	`, tenantID, from, to)
	if err != nil {
		return report, err
	}
	for paymentRows.Next() {
		var row domain.DailyReportPayment
		if err := paymentRows.Scan(&row.Method, &row.TotalCents); err != nil {
			_ = paymentRows.Close()
			return report, err
		}
		report.ByPayment = append(report.ByPayment, row)
	}
	if err := paymentRows.Err(); err != nil {
		_ = paymentRows.Close()
		return report, err
	}
	_ = paymentRows.Close()

	registerRows, err := s.db.QueryContext(ctx, `
		SELECT register_id, COUNT(*)::bigint, COALESCE(SUM(total_cents),0)::bigint
		FROM sales
		WHERE tenant_id = $1
			AND created_at >= $2
			AND created_at < $3
		GROUP BY register_id
		ORDER BY register_id
	`, tenantID, from, to)
	if err != nil {
		return report, err
	}
	defer registerRows.Close()
	for registerRows.Next() {
		var row domain.DailyReportRegister
		if err := registerRows.Scan(&row.RegisterID, &row.Sales, &row.TotalCents); err != nil {
			return report, err
		}
		report.ByRegister = append(report.ByRegister, row)
	}
	if err := registerRows.Err(); err != nil {
		return report, err
	}

	return report, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	return insertAuditLog(ctx, s.db, entry)
}

func insertAuditLog(ctx context.Context, q queryer, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, tenant_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.TenantID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE tenant_id = $1
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, tenantID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.TenantID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func uniqueViolationOn(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}

// mapTxError turns serialization failures (40001) and deadlocks (40P01) into
// store.ErrConcurrencyConflict so callers can retry the whole unit of work.
func mapTxError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("%w: %s", store.ErrConcurrencyConflict, pgErr.Message)
	}
	return err
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
