package offline

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"tillpoint/backend/internal/domain"
)

const (
	StateQueued       = "queued"
	StateSyncing      = "syncing"
	StateRetryQueued  = "retry_queued"
	StateAbandoned    = "abandoned"
	StateAcknowledged = "acknowledged"
)

var ErrEntryNotFound = errors.New("pending entry not found")

// Entry is a sale the server has not acknowledged yet. Its ID doubles as the
// idempotency key of the request, fixed at enqueue time.
type Entry struct {
	ID        string                   `json:"id"`
	Request   domain.CommitSaleRequest `json:"request"`
	Totals    domain.SaleTotals        `json:"totals"`
	CreatedAt time.Time                `json:"created_at"`
	Attempts  int                      `json:"attempts"`
	State     string                   `json:"state"`
	LastError string                   `json:"last_error,omitempty"`
}

// Storage keeps pending entries in enqueue order and the entries that were
// given up on.
type Storage interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context) ([]Entry, error)
	Update(ctx context.Context, entry Entry) error
	Remove(ctx context.Context, id string) error
	AppendDeadLetter(ctx context.Context, entry Entry) error
	ListDeadLetters(ctx context.Context) ([]Entry, error)
}

type MemoryStorage struct {
	mu       sync.Mutex
	entries  []Entry
	dead     []Entry
	snapshot *CatalogSnapshot
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryStorage) List(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries), nil
}

func (s *MemoryStorage) Update(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(entry.ID)
	if i < 0 {
		return ErrEntryNotFound
	}
	s.entries[i] = entry
	return nil
}

func (s *MemoryStorage) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return ErrEntryNotFound
	}
	s.entries = slices.Delete(s.entries, i, i+1)
	return nil
}

func (s *MemoryStorage) AppendDeadLetter(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dead = append(s.dead, entry)
	return nil
}

func (s *MemoryStorage) ListDeadLetters(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.dead), nil
}

func (s *MemoryStorage) SaveCatalog(_ context.Context, snapshot CatalogSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = &snapshot
	return nil
}

func (s *MemoryStorage) LoadCatalog(_ context.Context) (CatalogSnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		return CatalogSnapshot{}, false, nil
	}
	return *s.snapshot, true, nil
}

func (s *MemoryStorage) indexOf(id string) int {
	return slices.IndexFunc(s.entries, func(e Entry) bool { return e.ID == id })
}
