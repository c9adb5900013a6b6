package domain

import "time"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type Branch struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
}

type Register struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	BranchID   string `json:"branch_id"`
	BranchCode string `json:"branch_code"`
	Code       string `json:"code"`
	Name       string `json:"name"`
}

type Product struct {
	ID             string  `json:"id"`
	SKU            string  `json:"sku"`
	Name           string  `json:"name"`
	PriceCents     int64   `json:"price_cents"`
	TaxRatePercent float64 `json:"tax_rate_percent"`
	TracksStock    bool    `json:"tracks_stock"`
	Active         bool    `json:"active"`
}

type Combo struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	PriceCents     int64   `json:"price_cents"`
	TaxRatePercent float64 `json:"tax_rate_percent"`
	Active         bool    `json:"active"`
}

type StockLevel struct {
	BranchID  string `json:"branch_id"`
	ProductID string `json:"product_id"`
	Available int    `json:"available"`
	OnHand    int    `json:"on_hand"`
}

// CartLine is one entry of the cart being sold. Exactly one of ProductID and
// ComboID is set. UnitPriceCents and TaxRatePercent may be left zero, in
// which case the catalog values are used.
type CartLine struct {
	LineID         string  `json:"line_id,omitempty"`
	ProductID      string  `json:"product_id,omitempty"`
	ComboID        string  `json:"combo_id,omitempty"`
	Quantity       int     `json:"quantity"`
	IsReturn       bool    `json:"is_return,omitempty"`
	UnitPriceCents int64   `json:"unit_price_cents,omitempty"`
	DiscountCents  int64   `json:"discount_cents,omitempty"`
	TaxRatePercent float64 `json:"tax_rate_percent,omitempty"`
	PromotionID    string  `json:"promotion_id,omitempty"`
	PromotionName  string  `json:"promotion_name,omitempty"`
}

type CalculatedLine struct {
	LineID         string  `json:"line_id"`
	ProductID      string  `json:"product_id,omitempty"`
	ComboID        string  `json:"combo_id,omitempty"`
	Quantity       int     `json:"quantity"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	DiscountCents  int64   `json:"discount_cents"`
	TaxRatePercent float64 `json:"tax_rate_percent"`
	PromotionID    string  `json:"promotion_id,omitempty"`
	PromotionName  string  `json:"promotion_name,omitempty"`
	SubtotalCents  int64   `json:"subtotal_cents"`
	TaxCents       int64   `json:"tax_cents"`
	TracksStock    bool    `json:"tracks_stock"`
}

type SaleTotals struct {
	SubtotalCents int64 `json:"subtotal_cents"`
	DiscountCents int64 `json:"discount_cents"`
	TaxCents      int64 `json:"tax_cents"`
	TotalCents    int64 `json:"total_cents"`
}

type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "cash"
	PaymentDebit       PaymentMethod = "debit"
	PaymentCredit      PaymentMethod = "credit"
	PaymentQR          PaymentMethod = "qr"
	PaymentGiftCard    PaymentMethod = "gift_card"
	PaymentWalletPoint PaymentMethod = "wallet_point"
	PaymentTransfer    PaymentMethod = "transfer"
	PaymentOther       PaymentMethod = "other"
)

// Authorization carries what the payment terminal reported for a card or QR
// payment. It is stored as given.
type Authorization struct {
	Provider  string `json:"provider,omitempty"`
	Code      string `json:"code,omitempty"`
	CardBrand string `json:"card_brand,omitempty"`
	Last4     string `json:"last4,omitempty"`
	Reference string `json:"reference,omitempty"`
}

type Payment struct {
	Method        PaymentMethod  `json:"method"`
	AmountCents   int64          `json:"amount_cents"`
	TenderedCents int64          `json:"tendered_cents,omitempty"`
	ChangeCents   int64          `json:"change_cents,omitempty"`
	VoucherCode   string         `json:"voucher_code,omitempty"`
	StoreCreditID string         `json:"store_credit_id,omitempty"`
	Authorization *Authorization `json:"authorization,omitempty"`
}

// MethodTotals is the per-bucket aggregate of a set of payments. Gift card and
// store credit payments are folded into Other.
type MethodTotals struct {
	Cash        int64 `json:"cash_cents"`
	Debit       int64 `json:"debit_cents"`
	Credit      int64 `json:"credit_cents"`
	QR          int64 `json:"qr_cents"`
	WalletPoint int64 `json:"wallet_point_cents"`
	Transfer    int64 `json:"transfer_cents"`
	Other       int64 `json:"other_cents"`
}

func (m MethodTotals) Sum() int64 {
	return m.Cash + m.Debit + m.Credit + m.QR + m.WalletPoint + m.Transfer + m.Other
}

func (m MethodTotals) Add(o MethodTotals) MethodTotals {
	return MethodTotals{
		Cash:        m.Cash + o.Cash,
		Debit:       m.Debit + o.Debit,
		Credit:      m.Credit + o.Credit,
		QR:          m.QR + o.QR,
		WalletPoint: m.WalletPoint + o.WalletPoint,
		Transfer:    m.Transfer + o.Transfer,
		Other:       m.Other + o.Other,
	}
}

type Sale struct {
	ID              string           `json:"id"`
	Number          string           `json:"number"`
	Sequence        int              `json:"sequence"`
	TenantID        string           `json:"tenant_id"`
	BranchID        string           `json:"branch_id"`
	RegisterID      string           `json:"register_id"`
	CashSessionID   string           `json:"cash_session_id"`
	CashierUsername string           `json:"cashier_username"`
	IdempotencyKey  string           `json:"idempotency_key"`
	BusinessDate    string           `json:"business_date"`
	Lines           []CalculatedLine `json:"lines"`
	Totals          SaleTotals       `json:"totals"`
	Payments        []Payment        `json:"payments"`
	Offline         bool             `json:"offline"`
	CapturedAt      *time.Time       `json:"captured_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

type CommitSaleRequest struct {
	TenantID       string     `json:"tenant_id,omitempty"`
	RegisterID     string     `json:"register_id"`
	IdempotencyKey string     `json:"idempotency_key"`
	Lines          []CartLine `json:"lines"`
	Payments       []Payment  `json:"payments"`
	Offline        bool       `json:"offline,omitempty"`
	CapturedAt     *time.Time `json:"captured_at,omitempty"`
}

type CommitSaleResponse struct {
	Sale      Sale `json:"sale"`
	Duplicate bool `json:"duplicate"`
}

type SaleLookupResponse struct {
	Found bool  `json:"found"`
	Sale  *Sale `json:"sale,omitempty"`
}

type OfflineSale struct {
	ClientEntryID string            `json:"client_entry_id"`
	Request       CommitSaleRequest `json:"request"`
}

type OfflineSyncRequest struct {
	RegisterID string        `json:"register_id"`
	EnvelopeID string        `json:"envelope_id"`
	Sales      []OfflineSale `json:"sales"`
}

type OfflineSyncStatus struct {
	ClientEntryID string `json:"client_entry_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	SaleID        string `json:"sale_id,omitempty"`
	SaleNumber    string `json:"sale_number,omitempty"`
}

type OfflineSyncResponse struct {
	EnvelopeID string              `json:"envelope_id"`
	Statuses   []OfflineSyncStatus `json:"statuses"`
}

type CashSession struct {
	ID                   string       `json:"id"`
	TenantID             string       `json:"tenant_id"`
	RegisterID           string       `json:"register_id"`
	Username             string       `json:"username"`
	Status               string       `json:"status"`
	OpeningAmountCents   int64        `json:"opening_amount_cents"`
	SalesCount           int64        `json:"sales_count"`
	SalesTotalCents      int64        `json:"sales_total_cents"`
	Totals               MethodTotals `json:"totals"`
	CashDepositsCents    int64        `json:"cash_deposits_cents"`
	CashWithdrawalsCents int64        `json:"cash_withdrawals_cents"`
	ClosingCountedCents  int64        `json:"closing_counted_cents,omitempty"`
	FinalDifferenceCents int64        `json:"final_difference_cents,omitempty"`
	OpenedAt             time.Time    `json:"opened_at"`
	ClosedAt             *time.Time   `json:"closed_at,omitempty"`
}

// CashSessionDelta is the commutative increment one committed sale applies to
// its cash session.
type CashSessionDelta struct {
	SalesCount      int64
	SalesTotalCents int64
	Totals          MethodTotals
}

type CashSessionOpenRequest struct {
	TenantID           string `json:"tenant_id,omitempty"`
	RegisterID         string `json:"register_id"`
	OpeningAmountCents int64  `json:"opening_amount_cents"`
}

type CashSessionResponse struct {
	CashSession       CashSession `json:"cash_session"`
	ExpectedCashCents int64       `json:"expected_cash_cents"`
}

// DenominationBreakdown is a physical drawer count. Bills and Coins map a
// denomination in cents to the number of pieces counted.
type DenominationBreakdown struct {
	Bills            map[int64]int `json:"bills,omitempty"`
	Coins            map[int64]int `json:"coins,omitempty"`
	VouchersCents    int64         `json:"vouchers_cents,omitempty"`
	ChecksCents      int64         `json:"checks_cents,omitempty"`
	OtherValuesCents int64         `json:"other_values_cents,omitempty"`
}

type CashCountMode string

const (
	CashCountPartial CashCountMode = "partial"
	CashCountClosing CashCountMode = "closing"
)

type CashCount struct {
	ID              string                `json:"id"`
	CashSessionID   string                `json:"cash_session_id"`
	Mode            CashCountMode         `json:"mode"`
	Breakdown       DenominationBreakdown `json:"breakdown"`
	CountedCents    int64                 `json:"counted_cents"`
	ExpectedCents   int64                 `json:"expected_cents"`
	DifferenceCents int64                 `json:"difference_cents"`
	Classification  string                `json:"classification"`
	Notes           string                `json:"notes,omitempty"`
	CountedBy       string                `json:"counted_by"`
	CreatedAt       time.Time             `json:"created_at"`
}

type CashCountRequest struct {
	Mode      CashCountMode         `json:"mode"`
	Breakdown DenominationBreakdown `json:"breakdown"`
	Notes     string                `json:"notes,omitempty"`
}

type CashCountResponse struct {
	CashCount   CashCount   `json:"cash_count"`
	CashSession CashSession `json:"cash_session"`
}

type CashMovementKind string

const (
	CashMovementDeposit    CashMovementKind = "deposit"
	CashMovementWithdrawal CashMovementKind = "withdrawal"
)

type CashMovement struct {
	ID            string           `json:"id"`
	CashSessionID string           `json:"cash_session_id"`
	Kind          CashMovementKind `json:"kind"`
	AmountCents   int64            `json:"amount_cents"`
	Reason        string           `json:"reason"`
	RecordedBy    string           `json:"recorded_by"`
	CreatedAt     time.Time        `json:"created_at"`
}

type CashMovementRequest struct {
	Kind        CashMovementKind `json:"kind"`
	AmountCents int64            `json:"amount_cents"`
	Reason      string           `json:"reason"`
	ManagerPIN  string           `json:"manager_pin,omitempty"`
}

type CashMovementResponse struct {
	CashMovement CashMovement `json:"cash_movement"`
	CashSession  CashSession  `json:"cash_session"`
}

// PromotionRule is an active discount the rule-based promotion matcher can
// apply to a product line.
type PromotionRule struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	ProductID        string    `json:"product_id"`
	Type             string    `json:"type"`
	DiscountPercent  float64   `json:"discount_percent"`
	FlatPerUnitCents int64     `json:"flat_per_unit_cents"`
	MinQuantity      int       `json:"min_quantity"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
}

type CatalogResponse struct {
	Products []Product `json:"products"`
	Combos   []Combo   `json:"combos"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type DailyReportPayment struct {
	Method     string `json:"method"`
	TotalCents int64  `json:"total_cents"`
}

type DailyReportRegister struct {
	RegisterID string `json:"register_id"`
	Sales      int64  `json:"sales"`
	TotalCents int64  `json:"total_cents"`
}

type DailyReport struct {
	TenantID      string                `json:"tenant_id"`
	Date          string                `json:"date"`
	Sales         int64                 `json:"sales"`
	SubtotalCents int64                 `json:"subtotal_cents"`
	DiscountCents int64                 `json:"discount_cents"`
	TaxCents      int64                 `json:"tax_cents"`
	TotalCents    int64                 `json:"total_cents"`
	ByPayment     []DailyReportPayment  `json:"by_payment"`
	ByRegister    []DailyReportRegister `json:"by_register"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	CashSessionOpen   = "open"
	CashSessionClosed = "closed"
)

const (
	CountBalanced = "balanced"
	CountSurplus  = "surplus"
	CountShortage = "shortage"
)

const (
	SyncStatusAccepted  = "accepted"
	SyncStatusDuplicate = "duplicate"
	SyncStatusRejected  = "rejected"
	SyncStatusRetry     = "retry"
)

const (
	PromotionPercent     = "percent"
	PromotionFlatPerUnit = "flat_per_unit"
)

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// CatalogEntry is what the sale engine needs to know about a product or combo
// reference.
type CatalogEntry struct {
	ProductID      string  `json:"product_id,omitempty"`
	ComboID        string  `json:"combo_id,omitempty"`
	Name           string  `json:"name"`
	PriceCents     int64   `json:"price_cents"`
	TaxRatePercent float64 `json:"tax_rate_percent"`
	TracksStock    bool    `json:"tracks_stock"`
	Active         bool    `json:"active"`
}
