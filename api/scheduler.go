/*
scheduler.go - Automated month-end posting scheduler

PURPOSE:
  Periodically books the journal entries that have come due for every
  stored contract. An entry is due once its period is on or before the
  current month. Entries already in the ledger are skipped by idempotency
  key, so each run only adds what the previous one could not.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Builds each stored contract with the shared Builder
  - Posts due entries one batch per contract
  - Logs posted and skipped counts

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)
  - Now: clock, replaceable in tests

USAGE:
  scheduler := NewPostingScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: PostJournal endpoint (manual posting)
  - ledger/poster.go: entry construction
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warp/revrec-engine/ledger"
	"github.com/warp/revrec-engine/revrec"
	"go.uber.org/zap"
)

// PostingScheduler handles automated month-end posting.
type PostingScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool
	Now           func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// PostingRun summarises one scheduler pass.
type PostingRun struct {
	Through   revrec.Period `json:"through"`
	Contracts int           `json:"contracts"`
	Posted    int           `json:"posted"`
	Skipped   int           `json:"skipped"`
	Failed    []string      `json:"failed,omitempty"`
}

// NewPostingScheduler creates a new scheduler.
func NewPostingScheduler(handler *Handler) *PostingScheduler {
	return &PostingScheduler{
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Now:           time.Now,
	}
}

// Start begins the scheduler.
func (ps *PostingScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	log := ps.Handler.Logger
	if !ps.Enabled {
		log.Info("posting scheduler disabled, not starting")
		return
	}
	if ps.ticker != nil {
		return
	}

	ps.ticker = time.NewTicker(ps.CheckInterval)
	ps.stop = make(chan struct{})
	ps.wg.Add(1)

	go ps.run()

	log.Info("posting scheduler started", zap.Duration("interval", ps.CheckInterval))
}

// Stop stops the scheduler and waits for a running pass to finish.
func (ps *PostingScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.ticker != nil {
		ps.ticker.Stop()
		close(ps.stop)
		ps.wg.Wait()
		ps.ticker = nil
		ps.Handler.Logger.Info("posting scheduler stopped")
	}
}

func (ps *PostingScheduler) run() {
	defer ps.wg.Done()

	// Run immediately on start
	ps.RunOnce(context.Background())

	for {
		select {
		case <-ps.ticker.C:
			ps.RunOnce(context.Background())
		case <-ps.stop:
			return
		}
	}
}

// RunOnce posts every due entry and reports what happened. A contract
// that fails to build is logged and listed, the others still post.
func (ps *PostingScheduler) RunOnce(ctx context.Context) PostingRun {
	h := ps.Handler
	run := PostingRun{Through: revrec.PeriodOf(ps.Now())}

	records, err := h.Store.ListContracts(ctx)
	if err != nil {
		h.Logger.Error("posting scheduler: list contracts", zap.Error(err))
		return run
	}

	for _, rec := range records {
		posted, skipped, err := ps.postContract(ctx, rec.DocumentJSON, run.Through)
		if err != nil {
			h.Logger.Error("posting scheduler: contract failed", zap.String("contract_id", rec.ID), zap.Error(err))
			run.Failed = append(run.Failed, rec.ID)
			continue
		}
		run.Contracts++
		run.Posted += posted
		run.Skipped += skipped
	}

	if run.Posted > 0 || len(run.Failed) > 0 {
		h.Logger.Info("posting scheduler completed",
			zap.Stringer("through", run.Through),
			zap.Int("posted", run.Posted),
			zap.Int("skipped", run.Skipped),
			zap.Int("failed", len(run.Failed)))
	}
	return run
}

func (ps *PostingScheduler) postContract(ctx context.Context, doc string, through revrec.Period) (posted, skipped int, err error) {
	h := ps.Handler

	c, err := h.Factory.ParseContract([]byte(doc))
	if err != nil {
		return 0, 0, err
	}
	resp, err := h.Builder.Build(c)
	if err != nil {
		return 0, 0, err
	}

	var due []ledger.JournalEntry
	for _, e := range h.Poster.Entries(resp, revrec.Period{}) {
		if e.Period.After(through) {
			continue
		}
		exists, err := h.Store.Exists(ctx, e.IdempotencyKey)
		if err != nil {
			return 0, 0, fmt.Errorf("check %s: %w", e.IdempotencyKey, err)
		}
		if exists {
			skipped++
			continue
		}
		due = append(due, e)
	}

	if len(due) == 0 {
		return 0, skipped, nil
	}
	if _, err := h.Ledger.AppendBatch(ctx, due); err != nil {
		return 0, skipped, err
	}
	return len(due), skipped, nil
}
