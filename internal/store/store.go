package store

import (
	"context"
	"errors"
	"time"

	"tillpoint/backend/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransaction  = errors.New("invalid transaction")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrStockInconsistency  = errors.New("stock record missing")
	ErrSessionNotOpen      = errors.New("no open cash session")
	ErrSessionAlreadyOpen  = errors.New("cash session already open")
	ErrDuplicateSale       = errors.New("sale already committed for idempotency key")
)

// Tx is the unit of work a sale commit, a cash count or a cash movement runs
// in. Every method either applies inside the surrounding transaction or
// fails it; nothing becomes visible until WithinTx returns nil.
type Tx interface {
	// NextSaleSequence increments and returns the register's counter for the
	// business date, starting at 1.
	NextSaleSequence(ctx context.Context, registerID string, businessDate string) (int, error)
	ApplyStockDelta(ctx context.Context, branchID string, productID string, delta int) error

	// FindOpenCashSession returns the open session for (tenant, user,
	// register) without locking it. IncrementCashSession fails with
	// ErrSessionNotOpen if the session was closed in between.
	FindOpenCashSession(ctx context.Context, tenantID string, username string, registerID string) (*domain.CashSession, error)
	// LockCashSession reads the session and holds its row until the
	// transaction ends.
	LockCashSession(ctx context.Context, sessionID string) (*domain.CashSession, error)
	CreateCashSession(ctx context.Context, session domain.CashSession) error
	IncrementCashSession(ctx context.Context, sessionID string, delta domain.CashSessionDelta) error
	CloseCashSession(ctx context.Context, sessionID string, countedCents int64, differenceCents int64, closedAt time.Time) error

	InsertSale(ctx context.Context, sale domain.Sale) error
	InsertCashCount(ctx context.Context, count domain.CashCount) error
	// InsertCashMovement records the movement and adds it to the session's
	// deposit or withdrawal total.
	InsertCashMovement(ctx context.Context, movement domain.CashMovement) error
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
}

type Repository interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetRegister(ctx context.Context, tenantID string, registerID string) (*domain.Register, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListCombos(ctx context.Context) ([]domain.Combo, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	GetCombosByIDs(ctx context.Context, ids []string) (map[string]domain.Combo, error)
	GetStockLevel(ctx context.Context, branchID string, productID string) (*domain.StockLevel, error)
	ListActivePromotionRules(ctx context.Context, productIDs []string) ([]domain.PromotionRule, error)
	ResolveVouchers(ctx context.Context, tenantID string, codes []string) (map[string]string, error)

	FindSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	FindSaleByIdempotency(ctx context.Context, tenantID string, key string) (*domain.Sale, error)
	GetCashSession(ctx context.Context, id string) (*domain.CashSession, error)
	GetActiveCashSession(ctx context.Context, tenantID string, username string, registerID string) (*domain.CashSession, error)
	ListCashCounts(ctx context.Context, sessionID string) ([]domain.CashCount, error)
	GetDailyReport(ctx context.Context, tenantID string, from time.Time, to time.Time) (domain.DailyReport, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
