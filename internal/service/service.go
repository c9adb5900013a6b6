package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"tillpoint/backend/internal/catalog"
	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/promotion"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/xid"
)

var (
	ErrUnauthenticated = errors.New("authenticated actor required")
	ErrForbidden       = errors.New("not allowed for this actor")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	DefaultTenantID   string
	Location          *time.Location
	CommitMaxAttempts int
	// Now is the server clock; the business date of a sale comes from it.
	Now func() time.Time
}

type Service struct {
	repo            store.Repository
	catalog         catalog.Lookup
	promotions      promotion.Matcher
	defaultTenantID string
	location        *time.Location
	maxAttempts     int
	now             func() time.Time
}

func New(repo store.Repository, lookup catalog.Lookup, matcher promotion.Matcher, opts Options) *Service {
	if opts.DefaultTenantID == "" {
		opts.DefaultTenantID = "tenant-main"
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.CommitMaxAttempts < 1 {
		opts.CommitMaxAttempts = 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if lookup == nil {
		lookup = catalog.NewRepositoryLookup(repo)
	}
	if matcher == nil {
		matcher = promotion.NoopMatcher{}
	}

	return &Service{
		repo:            repo,
		catalog:         lookup,
		promotions:      matcher,
		defaultTenantID: opts.DefaultTenantID,
		location:        opts.Location,
		maxAttempts:     opts.CommitMaxAttempts,
		now:             opts.Now,
	}
}

func (s *Service) Catalog(ctx context.Context) (domain.CatalogResponse, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.CatalogResponse{}, err
	}
	combos, err := s.repo.ListCombos(ctx)
	if err != nil {
		return domain.CatalogResponse{}, err
	}
	return domain.CatalogResponse{Products: products, Combos: combos}, nil
}

// DailyReport aggregates the sales of one business day. Day boundaries follow
// the configured business timezone.
func (s *Service) DailyReport(ctx context.Context, tenantID string, date string) (domain.DailyReport, error) {
	tenantID = s.tenant(tenantID)
	from, err := s.dayStart(date)
	if err != nil {
		return domain.DailyReport{}, err
	}
	to := from.AddDate(0, 0, 1)

	report, err := s.repo.GetDailyReport(ctx, tenantID, from.UTC(), to.UTC())
	if err != nil {
		return domain.DailyReport{}, err
	}
	report.TenantID = tenantID
	report.Date = from.Format("2006-01-02")
	return report, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, tenantID string, date string, limit int) ([]domain.AuditLog, error) {
	tenantID = s.tenant(tenantID)
	if limit < 1 {
		limit = 100
	}

	var from, to time.Time
	if strings.TrimSpace(date) == "" {
		to = s.now().UTC().Add(time.Minute)
		from = to.Add(-24 * time.Hour)
	} else {
		day, err := s.dayStart(date)
		if err != nil {
			return nil, err
		}
		from, to = day.UTC(), day.AddDate(0, 0, 1).UTC()
	}
	return s.repo.ListAuditLogs(ctx, tenantID, from, to, limit)
}

func (s *Service) dayStart(date string) (time.Time, error) {
	if strings.TrimSpace(date) == "" {
		now := s.now().In(s.location)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location), nil
	}
	day, err := time.ParseInLocation("2006-01-02", date, s.location)
	if err != nil {
		return time.Time{}, domain.Invalid("date must be YYYY-MM-DD")
	}
	return day, nil
}

func (s *Service) tenant(tenantID string) string {
	if strings.TrimSpace(tenantID) == "" {
		return s.defaultTenantID
	}
	return tenantID
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || strings.TrimSpace(actor.Username) == "" {
		return domain.Actor{}, ErrUnauthenticated
	}
	return actor, nil
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
}

func (s *Service) auditEntry(ctx context.Context, tenantID string, action string, entityType string, entityID string, detail string) domain.AuditLog {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}
	return domain.AuditLog{
		ID:            xid.New("audit"),
		TenantID:      s.tenant(tenantID),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}
}

// logAudit writes outside any unit of work; a failure is logged, not returned.
func (s *Service) logAudit(ctx context.Context, w auditWriter, tenantID string, action string, entityType string, entityID string, detail string) {
	if err := w.CreateAuditLog(ctx, s.auditEntry(ctx, tenantID, action, entityType, entityID, detail)); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
