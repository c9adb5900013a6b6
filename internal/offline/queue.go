// Package offline buffers sales a register could not commit and replays them
// once the server is reachable again. Each entry carries the idempotency key
// it was created with, so a replay whose first reply was lost commits once.
package offline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/payment"
	"tillpoint/backend/internal/totals"
)

const DefaultMaxAttempts = 5

var ErrDrainInProgress = errors.New("drain already in progress")

type QueueOptions struct {
	MaxAttempts int
	// Prices pins unit prices and tax rates on queued lines. Without it every
	// line must already carry a unit price.
	Prices *PriceList
	Now    func() time.Time
	// OnAbandon is called for every entry removed without acknowledgement.
	OnAbandon func(entry Entry, cause error)
}

type Queue struct {
	storage     Storage
	transport   Transport
	maxAttempts int
	now         func() time.Time
	onAbandon   func(Entry, error)
	prices      *PriceList

	draining sync.Mutex
}

type DrainResult struct {
	Acknowledged int
	Retried      int
	Abandoned    int
	Remaining    int
}

func NewQueue(storage Storage, transport Transport, opts QueueOptions) *Queue {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OnAbandon == nil {
		opts.OnAbandon = func(entry Entry, cause error) {
			log.Printf("[offline] ERROR: abandoned sale %s after %d attempts: %v", entry.ID, entry.Attempts, cause)
		}
	}
	return &Queue{
		storage:     storage,
		transport:   transport,
		maxAttempts: opts.MaxAttempts,
		now:         opts.Now,
		onAbandon:   opts.OnAbandon,
		prices:      opts.Prices,
	}
}

// Enqueue prices the sale, checks its payments and stores it. A request
// without an idempotency key gets one here; it never changes afterwards.
// A sale that cannot be priced or is not covered by its payments is refused,
// so the register can settle it with the customer still present.
func (q *Queue) Enqueue(ctx context.Context, req domain.CommitSaleRequest) (Entry, error) {
	req, charged, err := q.price(req)
	if err != nil {
		return Entry{}, err
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		req.IdempotencyKey = uuid.NewString()
	}
	now := q.now().UTC()
	if req.CapturedAt == nil {
		req.CapturedAt = &now
	}
	req.Offline = true

	entry := Entry{
		ID:        req.IdempotencyKey,
		Request:   req,
		Totals:    charged,
		CreatedAt: now,
		State:     StateQueued,
	}

	if err := q.storage.Append(ctx, entry); err != nil {
		return Entry{}, fmt.Errorf("enqueue sale %s: %w", entry.ID, err)
	}
	return entry, nil
}

// price pins every line to the register's prices and computes the totals the
// server will reproduce at replay.
func (q *Queue) price(req domain.CommitSaleRequest) (domain.CommitSaleRequest, domain.SaleTotals, error) {
	lines := req.Lines
	if q.prices != nil {
		pinned, err := q.prices.Pin(lines)
		if err != nil {
			return req, domain.SaleTotals{}, err
		}
		lines = pinned
	}
	for _, line := range lines {
		if line.UnitPriceCents == 0 {
			return req, domain.SaleTotals{}, fmt.Errorf("%w: %s", ErrUnpriced, catalogKey(line))
		}
	}

	cart, err := totals.Calculate(lines)
	if err != nil {
		return req, domain.SaleTotals{}, err
	}
	// Vouchers are resolved by the server; here they only count towards
	// coverage.
	credits := make(map[string]string)
	for _, code := range payment.VoucherCodes(req.Payments) {
		credits[code] = code
	}
	if _, err := payment.Reconcile(req.Payments, cart.Totals.TotalCents, credits); err != nil {
		return req, domain.SaleTotals{}, err
	}

	req.Lines = lines
	return req, cart.Totals, nil
}

func (q *Queue) Pending(ctx context.Context) ([]Entry, error) {
	return q.storage.List(ctx)
}

func (q *Queue) DeadLetters(ctx context.Context) ([]Entry, error) {
	return q.storage.ListDeadLetters(ctx)
}

// Drain replays pending entries oldest first, one at a time. A transport
// failure ends the pass so later sales never overtake an earlier one.
// Concurrent calls return ErrDrainInProgress.
func (q *Queue) Drain(ctx context.Context) (DrainResult, error) {
	if !q.draining.TryLock() {
		return DrainResult{}, ErrDrainInProgress
	}
	defer q.draining.Unlock()

	var result DrainResult
	entries, err := q.storage.List(ctx)
	if err != nil {
		return result, err
	}

	for _, entry := range entries {
		if err = ctx.Err(); err != nil {
			break
		}
		var stop bool
		stop, err = q.replay(ctx, entry, &result)
		if stop || err != nil {
			break
		}
	}

	if rest, listErr := q.storage.List(context.WithoutCancel(ctx)); listErr == nil {
		result.Remaining = len(rest)
	}
	return result, err
}

func (q *Queue) replay(ctx context.Context, entry Entry, result *DrainResult) (bool, error) {
	entry.State = StateSyncing
	if err := q.storage.Update(ctx, entry); err != nil {
		return true, err
	}

	resp, sendErr := q.transport.CommitSale(ctx, entry.Request)
	switch {
	case sendErr == nil:
		if err := q.storage.Remove(ctx, entry.ID); err != nil {
			return true, err
		}
		result.Acknowledged++
		if resp.Duplicate {
			log.Printf("[offline] sale %s already committed as %s", entry.ID, resp.Sale.Number)
		}
		return false, nil

	case ctx.Err() != nil:
		// cancelled mid flight; not counted as an attempt
		entry.State = StateQueued
		return true, q.storage.Update(context.WithoutCancel(ctx), entry)
	}

	entry.LastError = sendErr.Error()
	var rejected *RejectedError
	if errors.As(sendErr, &rejected) {
		entry.Attempts++
		return false, q.abandon(ctx, entry, sendErr, result)
	}

	entry.Attempts++
	if entry.Attempts >= q.maxAttempts {
		return true, q.abandon(ctx, entry, sendErr, result)
	}
	entry.State = StateRetryQueued
	result.Retried++
	log.Printf("[offline] WARN: sale %s attempt %d/%d failed: %v", entry.ID, entry.Attempts, q.maxAttempts, sendErr)
	return true, q.storage.Update(ctx, entry)
}

func (q *Queue) abandon(ctx context.Context, entry Entry, cause error, result *DrainResult) error {
	entry.State = StateAbandoned
	if err := q.storage.AppendDeadLetter(ctx, entry); err != nil {
		return err
	}
	if err := q.storage.Remove(ctx, entry.ID); err != nil {
		return err
	}
	result.Abandoned++
	q.onAbandon(entry, cause)
	return nil
}

// Run drains on every tick and whenever online fires, until ctx is done.
func (q *Queue) Run(ctx context.Context, interval time.Duration, online <-chan struct{}) error {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-online:
		}

		result, err := q.Drain(ctx)
		if err != nil && !errors.Is(err, ErrDrainInProgress) && ctx.Err() == nil {
			log.Printf("[offline] WARN: drain failed: %v", err)
			continue
		}
		if result.Acknowledged+result.Abandoned > 0 {
			log.Printf("[offline] drained acknowledged=%d abandoned=%d remaining=%d", result.Acknowledged, result.Abandoned, result.Remaining)
		}
	}
}

// Submitter commits online when it can and falls back to the queue when the
// server is unreachable.
type Submitter struct {
	transport Transport
	queue     *Queue
}

type SubmitResult struct {
	Sale      *domain.Sale
	Duplicate bool
	Queued    bool
	Entry     *Entry
}

func NewSubmitter(transport Transport, queue *Queue) *Submitter {
	return &Submitter{transport: transport, queue: queue}
}

// Submit sends req directly unless older sales are still pending, in which
// case it queues behind them. A rejection is returned to the caller as is.
func (s *Submitter) Submit(ctx context.Context, req domain.CommitSaleRequest) (SubmitResult, error) {
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	pending, err := s.queue.Pending(ctx)
	if err != nil {
		return SubmitResult{}, err
	}
	if len(pending) == 0 {
		resp, err := s.transport.CommitSale(ctx, req)
		if err == nil {
			return SubmitResult{Sale: &resp.Sale, Duplicate: resp.Duplicate}, nil
		}
		if !errors.Is(err, ErrSyncFailure) {
			return SubmitResult{}, err
		}
		log.Printf("[offline] WARN: server unreachable, queueing sale %s: %v", req.IdempotencyKey, err)
	}

	entry, err := s.queue.Enqueue(ctx, req)
	if err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{Queued: true, Entry: &entry}, nil
}
