package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/service"
	"tillpoint/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	pinLimiter    *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) (*API, error) {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		return nil, fmt.Errorf("generate csrf secret: %w", err)
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
		csrfSecret:    csrfSecret,
	}, nil
}

// csrfTokenForHour computes the HMAC token of one hour bucket (unix seconds
// truncated to the hour).
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	return a.csrfTokenForHour(time.Now().UTC().Truncate(time.Hour).Unix())
}

// validateCSRFToken accepts the token of the current or the previous hour.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	current := time.Now().UTC().Truncate(time.Hour).Unix()
	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current-3600)))
}

// attemptLimiter is a token bucket per client key: max attempts per window,
// refilled evenly.
type attemptLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

const maxLimiterKeys = 4096

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{
		limit:    rate.Every(window / time.Duration(max)),
		burst:    max,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= maxLimiterKeys {
			l.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	return limiter.Allow()
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("/api/v1/catalog", a.requireAuth(a.handleCatalog, "cashier", "admin"))
	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleCommitSale, "cashier", "admin"))
	mux.HandleFunc("/api/v1/sales/{id}", a.requireAuth(a.handleGetSale, "cashier", "admin"))
	mux.HandleFunc("/api/v1/sales/idempotency/{key}", a.requireAuth(a.handleSaleLookup, "cashier", "admin"))
	mux.HandleFunc("/api/v1/sync/offline-sales", a.requireAuth(a.handleOfflineSync, "cashier", "admin"))

	mux.HandleFunc("/api/v1/cash-sessions/open", a.requireAuth(a.handleCashSessionOpen, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cash-sessions/active", a.requireAuth(a.handleCashSessionActive, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cash-sessions/{id}", a.requireAuth(a.handleCashSession, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cash-sessions/{id}/counts", a.requireAuth(a.handleCashCounts, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cash-sessions/{id}/movements", a.requireAuth(a.handleCashMovements, "cashier", "admin"))

	mux.HandleFunc("/api/v1/reports/daily", a.requireAuth(a.handleDailyReport, "admin"))
	mux.HandleFunc("/api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, "admin"))
	mux.HandleFunc("/api/v1/users/cashiers", a.requireAuth(a.handleCashiers, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		status := http.StatusUnauthorized
		if !errors.Is(err, ErrInvalidCredentials) && !errors.Is(err, ErrInactiveAccount) {
			status = http.StatusInternalServerError
		}
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns the token for the current hour. Mutating requests
// carry it in X-CSRF-Token.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

// Login has no token to present yet; batch sync is sent by registers that
// may have been offline for longer than the token window.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
	"/api/v1/sync/offline-sales",
}

func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	method := r.Method
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	resp, err := a.service.Catalog(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCommitSale takes the idempotency key from the body or from the
// Idempotency-Key header. A replayed key answers 200 with the original sale.
func (a *API) handleCommitSale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.CommitSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	headerKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	bodyKey := strings.TrimSpace(req.IdempotencyKey)
	switch {
	case bodyKey == "":
		req.IdempotencyKey = headerKey
	case headerKey != "" && headerKey != bodyKey:
		writeError(w, http.StatusBadRequest, errors.New("idempotency key header and body disagree"))
		return
	}

	resp, err := a.service.CommitSale(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	sale, err := a.service.GetSale(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (a *API) handleSaleLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	resp, err := a.service.LookupSaleByIdempotency(r.Context(), r.URL.Query().Get("tenant_id"), r.PathValue("key"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleOfflineSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.OfflineSyncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.SyncOfflineSales(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCashSessionOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.CashSessionOpenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.OpenCashSession(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleCashSessionActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	registerID := r.URL.Query().Get("register_id")
	if strings.TrimSpace(registerID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("register_id is required"))
		return
	}
	resp, err := a.service.GetActiveCashSession(r.Context(), tenantID, registerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCashSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	resp, err := a.service.GetCashSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCashCounts(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		counts, err := a.service.ListCashCounts(r.Context(), sessionID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"counts": counts})
	case http.MethodPost:
		var req domain.CashCountRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := a.service.RecordCashCount(r.Context(), sessionID, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	default:
		writeMethodNotAllowed(w)
	}
}

// handleCashMovements requires the manager PIN when a cashier takes cash out
// of the drawer.
func (a *API) handleCashMovements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.CashMovementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	actor, _ := service.ActorFromContext(r.Context())
	if actor.Role != "admin" && strings.EqualFold(strings.TrimSpace(string(req.Kind)), string(domain.CashMovementWithdrawal)) {
		if !a.pinLimiter.Allow("pin:withdrawal:" + clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, errors.New("too many manager pin attempts"))
			return
		}
		if !a.auth.ValidateManagerPIN(req.ManagerPIN) {
			writeError(w, http.StatusForbidden, errors.New("invalid manager pin"))
			return
		}
	}

	resp, err := a.service.RecordCashMovement(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	date := r.URL.Query().Get("date")
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), tenantID, date, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	date := r.URL.Query().Get("date")
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))

	report, err := a.service.DailyReport(r.Context(), tenantID, date)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"daily-report-%s.csv\"", report.Date))
		_, _ = w.Write([]byte(dailyReportToCSV(report)))
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(dailyReportToPrintableHTML(report)))
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (a *API) handleCashiers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cashiers, err := a.auth.ListCashiers(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cashiers": cashiers})
	case http.MethodPost:
		var req domain.CashierCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		cashier, err := a.auth.CreateCashier(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"cashier": cashier})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token, Idempotency-Key, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s id=%s", r.Method, r.URL.Path, time.Since(startedAt), requestID)
	})
}

func dailyReportToCSV(report domain.DailyReport) string {
	lines := []string{
		"section,key,value",
		fmt.Sprintf("summary,date,%s", report.Date),
		fmt.Sprintf("summary,tenant_id,%s", report.TenantID),
		fmt.Sprintf("summary,sales,%d", report.Sales),
		fmt.Sprintf("summary,subtotal_cents,%d", report.SubtotalCents),
		fmt.Sprintf("summary,discount_cents,%d", report.DiscountCents),
		fmt.Sprintf("summary,tax_cents,%d", report.TaxCents),
		fmt.Sprintf("summary,total_cents,%d", report.TotalCents),
	}
	for _, payment := range report.ByPayment {
		lines = append(lines, fmt.Sprintf("payment,%s_total_cents,%d", payment.Method, payment.TotalCents))
	}
	for _, register := range report.ByRegister {
		lines = append(lines, fmt.Sprintf("register,%s_sales,%d", register.RegisterID, register.Sales))
		lines = append(lines, fmt.Sprintf("register,%s_total_cents,%d", register.RegisterID, register.TotalCents))
	}
	return strings.Join(lines, "\n") + "\n"
}

// html/template escapes every field; register ids and methods come from clients.
var dailyReportHTMLTmpl = template.Must(template.New("daily-report").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Daily Report {{.Date}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    h2, h3 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>Daily Report {{.Date}}</h2>
  <p>Tenant: {{.TenantID}}</p>
  <p>Sales: {{.Sales}}</p>
  <p>Subtotal: {{.SubtotalCents}} | Discount: {{.DiscountCents}} | Tax: {{.TaxCents}} | Total: {{.TotalCents}}</p>

  <h3>By Payment</h3>
  <table>
    <thead><tr><th>Method</th><th>Total Cents</th></tr></thead>
    <tbody>{{range .ByPayment}}<tr><td>{{.Method}}</td><td style="text-align:right;">{{.TotalCents}}</td></tr>{{end}}</tbody>
  </table>

  <h3>By Register</h3>
  <table>
    <thead><tr><th>Register</th><th>Sales</th><th>Total Cents</th></tr></thead>
    <tbody>{{range .ByRegister}}<tr><td>{{.RegisterID}}</td><td style="text-align:right;">{{.Sales}}</td><td style="text-align:right;">{{.TotalCents}}</td></tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

func dailyReportToPrintableHTML(report domain.DailyReport) string {
	var buf bytes.Buffer
	if err := dailyReportHTMLTmpl.Execute(&buf, report); err != nil {
		log.Printf("[httpapi] WARN: render daily report: %v", err)
		return "<!doctype html><html><body><p>Report rendering error.</p></body></html>"
	}
	return buf.String()
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// statusFor maps service and store errors onto HTTP statuses and a stable
// machine readable code.
func statusFor(err error) (int, string) {
	var insufficient *domain.InsufficientPaymentError
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.As(err, &insufficient):
		return http.StatusUnprocessableEntity, "insufficient_payment"
	case errors.Is(err, domain.ErrUnexpectedPayment):
		return http.StatusUnprocessableEntity, "unexpected_payment"
	case errors.Is(err, domain.ErrUnknownVoucher):
		return http.StatusUnprocessableEntity, "unknown_voucher"
	case errors.Is(err, domain.ErrValidation), errors.Is(err, store.ErrInvalidTransaction):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, store.ErrConcurrencyConflict):
		return http.StatusConflict, "concurrency_conflict"
	case errors.Is(err, store.ErrStockInconsistency):
		return http.StatusConflict, "stock_inconsistency"
	case errors.Is(err, store.ErrSessionNotOpen):
		return http.StatusConflict, "session_not_open"
	case errors.Is(err, store.ErrSessionAlreadyOpen):
		return http.StatusConflict, "session_already_open"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status >= 500 {
		writeError(w, status, err)
		return
	}

	payload := map[string]any{"error": err.Error(), "code": code}
	var insufficient *domain.InsufficientPaymentError
	if errors.As(err, &insufficient) {
		payload["total_cents"] = insufficient.Total
		payload["paid_cents"] = insufficient.Paid
	}
	writeJSON(w, status, payload)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError masks 5xx messages; 4xx messages are meant for the operator.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		log.Printf("[httpapi] internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
