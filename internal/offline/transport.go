package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"tillpoint/backend/internal/domain"
)

// ErrSyncFailure marks a commit attempt that may not have reached the server
// or whose answer was lost. The entry stays queued and is retried with the
// same idempotency key.
var ErrSyncFailure = errors.New("sync failure")

// RejectedError is a final answer from the server: the sale as submitted will
// never commit.
type RejectedError struct {
	StatusCode int
	Reason     string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("sale rejected (%d): %s", e.StatusCode, e.Reason)
}

type Transport interface {
	CommitSale(ctx context.Context, req domain.CommitSaleRequest) (domain.CommitSaleResponse, error)
}

type HTTPTransport struct {
	baseURL string
	client  *http.Client

	mu       sync.Mutex
	token    string
	csrf     string
	username string
	password string
}

func NewHTTPTransport(baseURL string, token string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// WithLogin lets the transport obtain its own token and sign in again once
// the server stops accepting it.
func (t *HTTPTransport) WithLogin(username string, password string) *HTTPTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.username = strings.TrimSpace(username)
	t.password = password
	return t
}

func (t *HTTPTransport) CommitSale(ctx context.Context, req domain.CommitSaleRequest) (domain.CommitSaleResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return domain.CommitSaleResponse{}, err
	}
	csrf, err := t.csrfToken(ctx)
	if err != nil {
		return domain.CommitSaleResponse{}, fmt.Errorf("%w: csrf token: %v", ErrSyncFailure, err)
	}

	status, raw, err := t.send(ctx, http.MethodPost, "/api/v1/sales", body, map[string]string{
		"Idempotency-Key": req.IdempotencyKey,
		"X-CSRF-Token":    csrf,
	})
	if err != nil {
		return domain.CommitSaleResponse{}, err
	}

	if status == http.StatusOK || status == http.StatusCreated {
		var out domain.CommitSaleResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			return domain.CommitSaleResponse{}, fmt.Errorf("%w: decode response: %v", ErrSyncFailure, err)
		}
		return out, nil
	}

	var apiErr struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	_ = json.Unmarshal(raw, &apiErr)
	if status == http.StatusForbidden {
		t.resetCSRF()
	}
	if retryable(status, apiErr.Code) {
		return domain.CommitSaleResponse{}, fmt.Errorf("%w: server answered %d %s", ErrSyncFailure, status, apiErr.Error)
	}
	return domain.CommitSaleResponse{}, &RejectedError{StatusCode: status, Reason: apiErr.Error}
}

// FetchCatalog downloads the price list the register prices offline sales
// with.
func (t *HTTPTransport) FetchCatalog(ctx context.Context) (domain.CatalogResponse, error) {
	status, raw, err := t.send(ctx, http.MethodGet, "/api/v1/catalog", nil, nil)
	if err != nil {
		return domain.CatalogResponse{}, err
	}
	if status != http.StatusOK {
		return domain.CatalogResponse{}, fmt.Errorf("%w: catalog answered %d", ErrSyncFailure, status)
	}
	var out domain.CatalogResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.CatalogResponse{}, fmt.Errorf("%w: decode catalog: %v", ErrSyncFailure, err)
	}
	return out, nil
}

// send performs an authenticated request. A 401 with login credentials
// configured triggers one fresh login and one resend.
func (t *HTTPTransport) send(ctx context.Context, method string, path string, body []byte, headers map[string]string) (int, []byte, error) {
	for attempt := 0; ; attempt++ {
		token, err := t.accessToken(ctx)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: login: %v", ErrSyncFailure, err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return 0, nil, err
		}
		if body != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			httpReq.Header.Set(k, v)
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}

		res, err := t.client.Do(httpReq)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %v", ErrSyncFailure, err)
		}
		raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
		res.Body.Close()
		if err != nil {
			return 0, nil, fmt.Errorf("%w: read response: %v", ErrSyncFailure, err)
		}

		if res.StatusCode == http.StatusUnauthorized && attempt == 0 && t.canLogin() {
			t.resetToken()
			continue
		}
		return res.StatusCode, raw, nil
	}
}

func (t *HTTPTransport) canLogin() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.username != ""
}

func (t *HTTPTransport) resetToken() {
	t.mu.Lock()
	t.token = ""
	t.mu.Unlock()
}

// accessToken returns the current token, signing in first when there is none
// and credentials are configured.
func (t *HTTPTransport) accessToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token != "" || t.username == "" {
		return t.token, nil
	}

	body, err := json.Marshal(domain.LoginRequest{Username: t.username, Password: t.password})
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/v1/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	res, err := t.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", res.StatusCode)
	}
	var login domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&login); err != nil {
		return "", err
	}
	if login.AccessToken == "" {
		return "", errors.New("empty access token")
	}
	t.token = login.AccessToken
	return t.token, nil
}

// csrfToken fetches the hourly token once and reuses it until the server
// refuses it.
func (t *HTTPTransport) csrfToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.csrf != "" {
		return t.csrf, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/api/v1/auth/csrf-token", nil)
	if err != nil {
		return "", err
	}
	res, err := t.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", res.StatusCode)
	}
	var payload struct {
		Token string `json:"csrf_token"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", err
	}
	t.csrf = payload.Token
	return t.csrf, nil
}

func (t *HTTPTransport) resetCSRF() {
	t.mu.Lock()
	t.csrf = ""
	t.mu.Unlock()
}

// retryable separates transient statuses from rejections of the sale itself.
// An expired token or rate limit is a problem of the register, not the sale.
func retryable(status int, code string) bool {
	switch {
	case status >= 500:
		return true
	case status == http.StatusUnauthorized, status == http.StatusForbidden,
		status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status == http.StatusConflict && code == "concurrency_conflict":
		return true
	default:
		return false
	}
}
