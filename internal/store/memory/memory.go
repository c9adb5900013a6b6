package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/ledger"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/xid"
)

const SeedTenantID = "tenant-main"

type Store struct {
	mu                 sync.RWMutex
	registers          map[string]domain.Register
	products           map[string]domain.Product
	combos             map[string]domain.Combo
	stock              map[string]map[string]domain.StockLevel
	promotions         map[string]domain.PromotionRule
	vouchers           map[string]map[string]string
	sequences          map[string]int
	salesByID          map[string]*domain.Sale
	salesByIdem        map[string]*domain.Sale
	sessionsByID       map[string]domain.CashSession
	openSessionByKey   map[string]string
	countsBySession    map[string][]domain.CashCount
	movementsBySession map[string][]domain.CashMovement
	auditLogs          []domain.AuditLog
	usersByUsername    map[string]domain.UserAccount
}

type devAccount struct {
	username string
	role     string
	envVar   string
	fallback string
}

var devAccounts = []devAccount{
	{username: "admin", role: "admin", envVar: "SEED_ADMIN_PASSWORD", fallback: "admin123"},
	{username: "cashier", role: "cashier", envVar: "SEED_CASHIER_PASSWORD", fallback: "cashier123"},
	{username: "cashier2", role: "cashier", envVar: "SEED_CASHIER_PASSWORD", fallback: "cashier123"},
}

// devUsers hashes the demo accounts of the in-memory store. Each password
// may be overridden through its SEED_* variable.
func devUsers(now time.Time) map[string]domain.UserAccount {
	users := make(map[string]domain.UserAccount, len(devAccounts))
	var defaulted []string
	for _, acct := range devAccounts {
		secret, ok := os.LookupEnv(acct.envVar)
		if !ok || secret == "" {
			secret = acct.fallback
			defaulted = append(defaulted, acct.username)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
		if err != nil {
			panic(fmt.Sprintf("memory store: hash password of %s: %v", acct.username, err))
		}
		users[acct.username] = domain.UserAccount{
			Username:  acct.username,
			Password:  string(hash),
			Role:      acct.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	if len(defaulted) > 0 {
		log.Printf("[memory-store] WARN: demo password in use for %s", strings.Join(defaulted, ", "))
	}
	return users
}

// NewSeeded returns a store with one branch (CEN) holding registers R1 and R2,
// a small catalog, stock for every tracked product and a gift card voucher.
func NewSeeded() *Store {
	registers := []domain.Register{
		{ID: "reg-r1", TenantID: SeedTenantID, BranchID: "branch-cen", BranchCode: "CEN", Code: "R1", Name: "Caja 1"},
		{ID: "reg-r2", TenantID: SeedTenantID, BranchID: "branch-cen", BranchCode: "CEN", Code: "R2", Name: "Caja 2"},
	}
	products := []domain.Product{
		{ID: "prod-coffee", SKU: "CAF-500", Name: "Ground Coffee 500g", PriceCents: 12100, TaxRatePercent: 21, TracksStock: true, Active: true},
		{ID: "prod-milk", SKU: "LEC-1L", Name: "Whole Milk 1L", PriceCents: 2210, TaxRatePercent: 10.5, TracksStock: true, Active: true},
		{ID: "prod-bread", SKU: "PAN-700", Name: "Sliced Bread", PriceCents: 3315, TaxRatePercent: 10.5, TracksStock: true, Active: true},
		{ID: "prod-water", SKU: "AGU-600", Name: "Mineral Water 600ml", PriceCents: 150000, TaxRatePercent: 21, TracksStock: true, Active: true},
		{ID: "prod-giftwrap", SKU: "SRV-WRAP", Name: "Gift Wrapping", PriceCents: 500, TaxRatePercent: 21, TracksStock: false, Active: true},
		{ID: "prod-unstocked", SKU: "NEW-001", Name: "Unreceived Item", PriceCents: 1000, TaxRatePercent: 21, TracksStock: true, Active: true},
	}
	combos := []domain.Combo{
		{ID: "combo-breakfast", Name: "Breakfast Combo", PriceCents: 3000, TaxRatePercent: 21, Active: true},
	}

	productMap := make(map[string]domain.Product, len(products))
	stock := map[string]map[string]domain.StockLevel{"branch-cen": {}}
	for _, p := range products {
		productMap[p.ID] = p
		if !p.TracksStock || p.ID == "prod-unstocked" {
			continue
		}
		stock["branch-cen"][p.ID] = domain.StockLevel{BranchID: "branch-cen", ProductID: p.ID, Available: 120, OnHand: 120}
	}
	registerMap := make(map[string]domain.Register, len(registers))
	for _, r := range registers {
		registerMap[r.ID] = r
	}
	comboMap := make(map[string]domain.Combo, len(combos))
	for _, c := range combos {
		comboMap[c.ID] = c
	}

	return &Store{
		registers: registerMap,
		products:  productMap,
		combos:    comboMap,
		stock:     stock,
		promotions: map[string]domain.PromotionRule{
			"promo-milk-2": {
				ID: "promo-milk-2", Name: "Milk 10% off from 2", ProductID: "prod-milk",
				Type: domain.PromotionPercent, DiscountPercent: 10, MinQuantity: 2, Active: true,
			},
		},
		vouchers: map[string]map[string]string{
			SeedTenantID: {"GIFT-1000": "credit-gift-1000"},
		},
		sequences:          make(map[string]int),
		salesByID:          make(map[string]*domain.Sale),
		salesByIdem:        make(map[string]*domain.Sale),
		sessionsByID:       make(map[string]domain.CashSession),
		openSessionByKey:   make(map[string]string),
		countsBySession:    make(map[string][]domain.CashCount),
		movementsBySession: make(map[string][]domain.CashMovement),
		auditLogs:          make([]domain.AuditLog, 0, 128),
		usersByUsername:    devUsers(time.Now().UTC()),
	}
}

// WithinTx holds the store lock for the whole of fn, which serializes units
// of work. Mutations record an undo step; a failing fn is rolled back in
// reverse order.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *Store) GetRegister(_ context.Context, tenantID string, registerID string) (*domain.Register, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	register, ok := s.registers[registerID]
	if !ok || (tenantID != "" && register.TenantID != tenantID) {
		return nil, store.ErrNotFound
	}
	return &register, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int { return strings.Compare(a.Name, b.Name) })
	return products, nil
}

func (s *Store) ListCombos(_ context.Context) ([]domain.Combo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	combos := make([]domain.Combo, 0, len(s.combos))
	for _, c := range s.combos {
		if !c.Active {
			continue
		}
		combos = append(combos, c)
	}
	slices.SortFunc(combos, func(a, b domain.Combo) int { return strings.Compare(a.Name, b.Name) })
	return combos, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) GetCombosByIDs(_ context.Context, ids []string) (map[string]domain.Combo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Combo, len(ids))
	for _, id := range ids {
		if c, ok := s.combos[id]; ok {
			result[id] = c
		}
	}
	return result, nil
}

func (s *Store) GetStockLevel(_ context.Context, branchID string, productID string) (*domain.StockLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	level, ok := s.stock[branchID][productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &level, nil
}

func (s *Store) ListActivePromotionRules(_ context.Context, productIDs []string) ([]domain.PromotionRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = struct{}{}
	}
	rules := make([]domain.PromotionRule, 0)
	for _, rule := range s.promotions {
		if !rule.Active {
			continue
		}
		if _, ok := wanted[rule.ProductID]; !ok {
			continue
		}
		rules = append(rules, rule)
	}
	slices.SortFunc(rules, func(a, b domain.PromotionRule) int { return strings.Compare(a.ID, b.ID) })
	return rules, nil
}

func (s *Store) ResolveVouchers(_ context.Context, tenantID string, codes []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]string, len(codes))
	for _, code := range codes {
		if creditID, ok := s.vouchers[tenantID][code]; ok {
			result[code] = creditID
		}
	}
	return result, nil
}

func (s *Store) FindSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) FindSaleByIdempotency(_ context.Context, tenantID string, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByIdem[idemKey(tenantID, key)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) GetCashSession(_ context.Context, id string) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &session, nil
}

func (s *Store) GetActiveCashSession(_ context.Context, tenantID string, username string, registerID string) (*domain.CashSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.openSessionByKey[sessionKey(tenantID, username, registerID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	session := s.sessionsByID[id]
	return &session, nil
}

func (s *Store) ListCashCounts(_ context.Context, sessionID string) ([]domain.CashCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := s.countsBySession[sessionID]
	out := make([]domain.CashCount, len(counts))
	copy(out, counts)
	return out, nil
}

func (s *Store) GetDailyReport(_ context.Context, tenantID string, from time.Time, to time.Time) (domain.DailyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.DailyReport{
		TenantID:   tenantID,
		ByPayment:  make([]domain.DailyReportPayment, 0, 8),
		ByRegister: make([]domain.DailyReportRegister, 0, 4),
	}
	byPayment := map[string]*domain.DailyReportPayment{}
	byRegister := map[string]*domain.DailyReportRegister{}

	for _, sale := range s.salesByID {
		if sale.TenantID != tenantID {
			continue
		}
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}

		report.Sales++
		report.SubtotalCents += sale.Totals.SubtotalCents
		report.DiscountCents += sale.Totals.DiscountCents
		report.TaxCents += sale.Totals.TaxCents
		report.TotalCents += sale.Totals.TotalCents

		for _, p := range sale.Payments {
			entry := byPayment[string(p.Method)]
			if entry == nil {
				entry = &domain.DailyReportPayment{Method: string(p.Method)}
				byPayment[string(p.Method)] = entry
			}
			entry.TotalCents += p.AmountCents
		}

		register := byRegister[sale.RegisterID]
		if register == nil {
			register = &domain.DailyReportRegister{RegisterID: sale.RegisterID}
			byRegister[sale.RegisterID] = register
		}
		register.Sales++
		register.TotalCents += sale.Totals.TotalCents
	}

	for _, entry := range byPayment {
		report.ByPayment = append(report.ByPayment, *entry)
	}
	for _, entry := range byRegister {
		report.ByRegister = append(report.ByRegister, *entry)
	}
	slices.SortFunc(report.ByPayment, func(a, b domain.DailyReportPayment) int {
		return strings.Compare(a.Method, b.Method)
	})
	slices.SortFunc(report.ByRegister, func(a, b domain.DailyReportRegister) int {
		return strings.Compare(a.RegisterID, b.RegisterID)
	})
	return report, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditLogs = append(s.auditLogs, fillAudit(entry))
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if tenantID != "" && entry.TenantID != tenantID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidTransaction
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// SetStock overwrites a stock row. Used by seeding and tests.
func (s *Store) SetStock(branchID string, productID string, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.stock[branchID]; !ok {
		s.stock[branchID] = map[string]domain.StockLevel{}
	}
	s.stock[branchID][productID] = domain.StockLevel{BranchID: branchID, ProductID: productID, Available: qty, OnHand: qty}
}

// SetProductPrice changes a catalog price, as a price list update would.
func (s *Store) SetProductPrice(productID string, priceCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	p.PriceCents = priceCents
	s.products[productID] = p
	return nil
}

// memTx mutates the store in place while the store lock is held and keeps an
// undo log for rollback.
type memTx struct {
	s    *Store
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) NextSaleSequence(_ context.Context, registerID string, businessDate string) (int, error) {
	if registerID == "" || businessDate == "" {
		return 0, store.ErrInvalidTransaction
	}
	key := registerID + "|" + businessDate
	prev, existed := t.s.sequences[key]
	t.s.sequences[key] = prev + 1
	t.undo = append(t.undo, func() {
		if existed {
			t.s.sequences[key] = prev
		} else {
			delete(t.s.sequences, key)
		}
	})
	return prev + 1, nil
}

func (t *memTx) ApplyStockDelta(_ context.Context, branchID string, productID string, delta int) error {
	level, ok := t.s.stock[branchID][productID]
	if !ok {
		return fmt.Errorf("%w: branch %s product %s", store.ErrStockInconsistency, branchID, productID)
	}
	prev := level
	level.Available += delta
	level.OnHand += delta
	t.s.stock[branchID][productID] = level
	t.undo = append(t.undo, func() { t.s.stock[branchID][productID] = prev })
	return nil
}

func (t *memTx) FindOpenCashSession(_ context.Context, tenantID string, username string, registerID string) (*domain.CashSession, error) {
	id, ok := t.s.openSessionByKey[sessionKey(tenantID, username, registerID)]
	if !ok {
		return nil, store.ErrSessionNotOpen
	}
	session := t.s.sessionsByID[id]
	return &session, nil
}

func (t *memTx) LockCashSession(_ context.Context, sessionID string) (*domain.CashSession, error) {
	session, ok := t.s.sessionsByID[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &session, nil
}

func (t *memTx) CreateCashSession(_ context.Context, session domain.CashSession) error {
	key := sessionKey(session.TenantID, session.Username, session.RegisterID)
	if _, exists := t.s.openSessionByKey[key]; exists {
		return store.ErrSessionAlreadyOpen
	}
	if session.ID == "" {
		return store.ErrInvalidTransaction
	}
	t.s.sessionsByID[session.ID] = session
	t.s.openSessionByKey[key] = session.ID
	t.undo = append(t.undo, func() {
		delete(t.s.sessionsByID, session.ID)
		delete(t.s.openSessionByKey, key)
	})
	return nil
}

func (t *memTx) IncrementCashSession(_ context.Context, sessionID string, delta domain.CashSessionDelta) error {
	return t.updateSession(sessionID, func(cs domain.CashSession) (domain.CashSession, error) {
		if cs.Status != domain.CashSessionOpen {
			return cs, store.ErrSessionNotOpen
		}
		return ledger.Apply(cs, delta), nil
	})
}

func (t *memTx) CloseCashSession(_ context.Context, sessionID string, countedCents int64, differenceCents int64, closedAt time.Time) error {
	var key string
	err := t.updateSession(sessionID, func(cs domain.CashSession) (domain.CashSession, error) {
		if cs.Status != domain.CashSessionOpen {
			return cs, store.ErrSessionNotOpen
		}
		key = sessionKey(cs.TenantID, cs.Username, cs.RegisterID)
		at := closedAt
		cs.Status = domain.CashSessionClosed
		cs.ClosedAt = &at
		cs.ClosingCountedCents = countedCents
		cs.FinalDifferenceCents = differenceCents
		return cs, nil
	})
	if err != nil {
		return err
	}
	delete(t.s.openSessionByKey, key)
	t.undo = append(t.undo, func() { t.s.openSessionByKey[key] = sessionID })
	return nil
}

func (t *memTx) updateSession(sessionID string, fn func(domain.CashSession) (domain.CashSession, error)) error {
	prev, ok := t.s.sessionsByID[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	next, err := fn(prev)
	if err != nil {
		return err
	}
	t.s.sessionsByID[sessionID] = next
	t.undo = append(t.undo, func() { t.s.sessionsByID[sessionID] = prev })
	return nil
}

func (t *memTx) InsertSale(_ context.Context, sale domain.Sale) error {
	if sale.ID == "" || sale.IdempotencyKey == "" || len(sale.Lines) == 0 {
		return store.ErrInvalidTransaction
	}
	key := idemKey(sale.TenantID, sale.IdempotencyKey)
	if _, exists := t.s.salesByIdem[key]; exists {
		return store.ErrDuplicateSale
	}
	stored := cloneSale(&sale)
	t.s.salesByID[sale.ID] = stored
	t.s.salesByIdem[key] = stored
	t.undo = append(t.undo, func() {
		delete(t.s.salesByID, sale.ID)
		delete(t.s.salesByIdem, key)
	})
	return nil
}

func (t *memTx) InsertCashCount(_ context.Context, count domain.CashCount) error {
	if _, ok := t.s.sessionsByID[count.CashSessionID]; !ok {
		return store.ErrNotFound
	}
	prev := t.s.countsBySession[count.CashSessionID]
	t.s.countsBySession[count.CashSessionID] = append(slices.Clone(prev), cloneCashCount(count))
	t.undo = append(t.undo, func() { t.s.countsBySession[count.CashSessionID] = prev })
	return nil
}

func (t *memTx) InsertCashMovement(_ context.Context, movement domain.CashMovement) error {
	err := t.updateSession(movement.CashSessionID, func(cs domain.CashSession) (domain.CashSession, error) {
		if cs.Status != domain.CashSessionOpen {
			return cs, store.ErrSessionNotOpen
		}
		return ledger.ApplyMovement(cs, movement.Kind, movement.AmountCents)
	})
	if err != nil {
		return err
	}
	prev := t.s.movementsBySession[movement.CashSessionID]
	t.s.movementsBySession[movement.CashSessionID] = append(slices.Clone(prev), movement)
	t.undo = append(t.undo, func() { t.s.movementsBySession[movement.CashSessionID] = prev })
	return nil
}

func (t *memTx) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	n := len(t.s.auditLogs)
	t.s.auditLogs = append(t.s.auditLogs, fillAudit(entry))
	t.undo = append(t.undo, func() { t.s.auditLogs = t.s.auditLogs[:n] })
	return nil
}

func fillAudit(entry domain.AuditLog) domain.AuditLog {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return entry
}

func sessionKey(tenantID string, username string, registerID string) string {
	return tenantID + "|" + strings.ToLower(username) + "|" + registerID
}

func idemKey(tenantID string, key string) string {
	return tenantID + "|" + key
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Lines = slices.Clone(src.Lines)
	dst.Payments = make([]domain.Payment, len(src.Payments))
	for i, p := range src.Payments {
		if p.Authorization != nil {
			auth := *p.Authorization
			p.Authorization = &auth
		}
		dst.Payments[i] = p
	}
	if src.CapturedAt != nil {
		at := *src.CapturedAt
		dst.CapturedAt = &at
	}
	return &dst
}

func cloneCashCount(src domain.CashCount) domain.CashCount {
	dst := src
	dst.Breakdown.Bills = cloneDenominations(src.Breakdown.Bills)
	dst.Breakdown.Coins = cloneDenominations(src.Breakdown.Coins)
	return dst
}

func cloneDenominations(src map[int64]int) map[int64]int {
	if src == nil {
		return nil
	}
	dst := make(map[int64]int, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
