package httpapi

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"tillpoint/backend/internal/domain"
)

const tokenIssuer = "tillpoint"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account is inactive")

	errBadToken = errors.New("invalid or expired token")
)

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// AuthManager issues and verifies access tokens and owns the account cache
// used to check passwords.
type AuthManager struct {
	secret     []byte
	tokenTTL   time.Duration
	managerPIN string
	parser     *jwtlib.Parser
	accounts   *accountCache
}

type tillClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

// NewAuthManager refuses to start without a signing secret. An empty manager
// PIN disables every PIN gated action.
func NewAuthManager(ctx context.Context, secret string, tokenTTL time.Duration, managerPIN string, userStore UserStore) (*AuthManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth secret is required")
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	a := &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		parser: jwtlib.NewParser(
			jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
			jwtlib.WithIssuer(tokenIssuer),
			jwtlib.WithExpirationRequired(),
		),
		accounts: &accountCache{store: userStore, byName: map[string]credential{}},
	}
	if pin := strings.TrimSpace(managerPIN); pin != "" {
		hashed, err := hashSecret(pin)
		if err != nil {
			return nil, fmt.Errorf("hash manager pin: %w", err)
		}
		a.managerPIN = hashed
	}
	if err := a.accounts.sync(ctx); err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	return a, nil
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	// accounts created on another instance show up on their first login
	if err := a.accounts.sync(ctx); err != nil {
		return domain.LoginResponse{}, err
	}
	username := normalizeUsername(req.Username)
	cred, ok := a.accounts.get(username)
	switch {
	case !ok || !matchesHash(cred.password, req.Password):
		return domain.LoginResponse{}, ErrInvalidCredentials
	case !cred.active:
		return domain.LoginResponse{}, ErrInactiveAccount
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(username, cred.role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        cred.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(raw string) (domain.Actor, error) {
	var claims tillClaims
	if _, err := a.parser.ParseWithClaims(raw, &claims, a.signingKey); err != nil {
		return domain.Actor{}, errBadToken
	}
	if claims.Subject == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Username: claims.Subject, Role: claims.Role}, nil
}

func (a *AuthManager) signingKey(*jwtlib.Token) (any, error) {
	return a.secret, nil
}

func (a *AuthManager) sign(username, role string, expiresAt time.Time) (string, error) {
	now := time.Now().UTC()
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, tillClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		Role: role,
	}).SignedString(a.secret)
}

func (a *AuthManager) ValidateManagerPIN(pin string) bool {
	return a.managerPIN != "" && matchesHash(a.managerPIN, strings.TrimSpace(pin))
}

func (a *AuthManager) CreateCashier(ctx context.Context, req domain.CashierCreateRequest) (domain.CashierUser, error) {
	if err := a.accounts.sync(ctx); err != nil {
		return domain.CashierUser{}, err
	}
	username := normalizeUsername(req.Username)
	if err := validateCashier(username, req.Password); err != nil {
		return domain.CashierUser{}, err
	}
	if _, taken := a.accounts.get(username); taken {
		return domain.CashierUser{}, domain.Invalid("username already exists")
	}

	hashed, err := hashSecret(req.Password)
	if err != nil {
		return domain.CashierUser{}, fmt.Errorf("hash password: %w", err)
	}
	cred := credential{password: hashed, role: "cashier", active: true, created: time.Now().UTC()}
	if err := a.accounts.add(ctx, username, cred); err != nil {
		return domain.CashierUser{}, err
	}
	return cred.user(username), nil
}

func (a *AuthManager) ListCashiers(ctx context.Context) ([]domain.CashierUser, error) {
	if err := a.accounts.sync(ctx); err != nil {
		return nil, err
	}
	return a.accounts.withRole("cashier"), nil
}

func validateCashier(username, password string) error {
	if len(username) < 4 {
		return domain.Invalid("username must be at least 4 characters")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.Invalid("username must not contain spaces")
	}
	if len(strings.TrimSpace(password)) < 6 {
		return domain.Invalid("password must be at least 6 characters")
	}
	return nil
}

func normalizeUsername(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

type credential struct {
	password string
	role     string
	active   bool
	created  time.Time
}

func (c credential) user(username string) domain.CashierUser {
	return domain.CashierUser{Username: username, Role: c.role, Active: c.active, CreatedAt: c.created}
}

// accountCache mirrors the user store in memory. Without a store it only
// holds accounts created through it.
type accountCache struct {
	store UserStore

	mu     sync.RWMutex
	byName map[string]credential
}

func (c *accountCache) get(username string) (credential, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cred, ok := c.byName[username]
	return cred, ok
}

func (c *accountCache) add(ctx context.Context, username string, cred credential) error {
	if c.store != nil {
		err := c.store.CreateUser(ctx, domain.UserAccount{
			Username:  username,
			Password:  cred.password,
			Role:      cred.role,
			Active:    cred.active,
			CreatedAt: cred.created,
		})
		if err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.byName[username] = cred
	c.mu.Unlock()
	return nil
}

func (c *accountCache) withRole(role string) []domain.CashierUser {
	c.mu.RLock()
	out := make([]domain.CashierUser, 0, len(c.byName))
	for username, cred := range c.byName {
		if cred.role == role {
			out = append(out, cred.user(username))
		}
	}
	c.mu.RUnlock()
	slices.SortFunc(out, func(x, y domain.CashierUser) int {
		return strings.Compare(x.Username, y.Username)
	})
	return out
}

// sync reloads every stored account. A password stored in plain text is
// hashed and written back before it is cached.
func (c *accountCache) sync(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	stored, err := c.store.ListUsers(ctx)
	if err != nil {
		return err
	}

	fresh := make(map[string]credential, len(stored))
	for _, acct := range stored {
		username := normalizeUsername(acct.Username)
		if username == "" {
			continue
		}
		password := acct.Password
		if !isBcrypt(password) {
			if password, err = hashSecret(password); err != nil {
				return err
			}
			if err := c.store.UpdateUserPassword(ctx, username, password); err != nil {
				return fmt.Errorf("rehash password of %s: %w", username, err)
			}
		}
		fresh[username] = credential{password: password, role: acct.Role, active: acct.Active, created: acct.CreatedAt}
	}

	c.mu.Lock()
	for username, cred := range fresh {
		c.byName[username] = cred
	}
	c.mu.Unlock()
	return nil
}

func hashSecret(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	return string(hashed), err
}

// matchesHash treats a blank input or a stored value that is not a bcrypt
// hash as a mismatch.
func matchesHash(hashed, plain string) bool {
	if strings.TrimSpace(plain) == "" || !isBcrypt(hashed) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}

func isBcrypt(value string) bool {
	_, err := bcrypt.Cost([]byte(value))
	return err == nil
}
