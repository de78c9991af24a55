package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/revrec-engine/revrec"
)

// =============================================================================
// STORE - Interface for entry persistence (append-only)
// =============================================================================

// Store persists journal entries. There is no Update and no Delete.
type Store interface {
	// Append persists one entry. Returns ErrDuplicateIdempotencyKey if the
	// key exists.
	Append(ctx context.Context, e JournalEntry) error

	// AppendBatch persists entries atomically: all or none.
	AppendBatch(ctx context.Context, es []JournalEntry) error

	// Load returns a contract's entries ordered by period, then posting order.
	Load(ctx context.Context, contractID string) ([]JournalEntry, error)

	// LoadRange returns entries with from <= period <= to.
	LoadRange(ctx context.Context, contractID string, from, to revrec.Period) ([]JournalEntry, error)

	// Exists checks whether an idempotency key was already posted.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// =============================================================================
// LEDGER - Idempotent posting on top of a Store
// =============================================================================

type Ledger struct {
	Store Store

	now func() time.Time
}

func NewLedger(store Store) *Ledger {
	return &Ledger{Store: store, now: func() time.Time { return time.Now().UTC() }}
}

// prepare validates e and stamps its id and creation time.
func (l *Ledger) prepare(e JournalEntry) (JournalEntry, error) {
	if err := e.Validate(); err != nil {
		return e, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now()
	}
	e.Amount = revrec.RoundCents(e.Amount)
	return e, nil
}

func (l *Ledger) Append(ctx context.Context, e JournalEntry) error {
	e, err := l.prepare(e)
	if err != nil {
		return err
	}
	if e.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, e.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, e)
}

// AppendBatch posts entries atomically and returns them as stored.
func (l *Ledger) AppendBatch(ctx context.Context, es []JournalEntry) ([]JournalEntry, error) {
	prepared := make([]JournalEntry, len(es))
	for i, e := range es {
		p, err := l.prepare(e)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if p.IdempotencyKey != "" {
			exists, err := l.Store.Exists(ctx, p.IdempotencyKey)
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, ErrDuplicateIdempotencyKey
			}
		}
		prepared[i] = p
	}
	if err := l.Store.AppendBatch(ctx, prepared); err != nil {
		return nil, err
	}
	return prepared, nil
}

func (l *Ledger) Entries(ctx context.Context, contractID string) ([]JournalEntry, error) {
	return l.Store.Load(ctx, contractID)
}

func (l *Ledger) EntriesInRange(ctx context.Context, contractID string, from, to revrec.Period) ([]JournalEntry, error) {
	return l.Store.LoadRange(ctx, contractID, from, to)
}

// Balances nets every account of a contract: debits positive, credits
// negative.
func (l *Ledger) Balances(ctx context.Context, contractID string) (map[string]decimal.Decimal, error) {
	entries, err := l.Store.Load(ctx, contractID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal)
	for _, e := range entries {
		out[e.Debit] = out[e.Debit].Add(e.Amount)
		out[e.Credit] = out[e.Credit].Sub(e.Amount)
	}
	return out, nil
}

// Activity returns the net credit posted to account per period. For a
// revenue account this is the revenue recognized each month.
func (l *Ledger) Activity(ctx context.Context, contractID, account string) (revrec.Schedule, error) {
	entries, err := l.Store.Load(ctx, contractID)
	if err != nil {
		return revrec.Schedule{}, err
	}
	s := revrec.NewSchedule()
	for _, e := range entries {
		switch account {
		case e.Credit:
			s.Add(e.Period, e.Amount)
		case e.Debit:
			s.Add(e.Period, e.Amount.Neg())
		}
	}
	return s, nil
}
