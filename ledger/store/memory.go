// Package store provides ledger.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/revrec-engine/ledger"
	"github.com/warp/revrec-engine/revrec"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	entries     map[string][]ledger.JournalEntry
	idempotency map[string]bool
}

var _ ledger.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		entries:     make(map[string][]ledger.JournalEntry),
		idempotency: make(map[string]bool),
	}
}

// Append adds a single entry. Append-only.
func (m *Memory) Append(_ context.Context, e ledger.JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.IdempotencyKey != "" && m.idempotency[e.IdempotencyKey] {
		return ledger.ErrDuplicateIdempotencyKey
	}
	m.appendLocked(e)
	return nil
}

// AppendBatch adds multiple entries atomically.
func (m *Memory) AppendBatch(_ context.Context, es []ledger.JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check every key first, including duplicates inside the batch
	seen := make(map[string]bool, len(es))
	for _, e := range es {
		if e.IdempotencyKey == "" {
			continue
		}
		if m.idempotency[e.IdempotencyKey] || seen[e.IdempotencyKey] {
			return ledger.ErrDuplicateIdempotencyKey
		}
		seen[e.IdempotencyKey] = true
	}

	for _, e := range es {
		m.appendLocked(e)
	}
	return nil
}

func (m *Memory) appendLocked(e ledger.JournalEntry) {
	es := m.entries[e.ContractID]

	// Insert after every entry of the same or an earlier period, keeping
	// posting order within a period.
	i := sort.Search(len(es), func(i int) bool {
		return es[i].Period.After(e.Period)
	})

	es = append(es, ledger.JournalEntry{})
	copy(es[i+1:], es[i:])
	es[i] = e
	m.entries[e.ContractID] = es

	if e.IdempotencyKey != "" {
		m.idempotency[e.IdempotencyKey] = true
	}
}

func (m *Memory) Load(_ context.Context, contractID string) ([]ledger.JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.JournalEntry, len(m.entries[contractID]))
	copy(result, m.entries[contractID])
	return result, nil
}

func (m *Memory) LoadRange(_ context.Context, contractID string, from, to revrec.Period) ([]ledger.JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.JournalEntry
	for _, e := range m.entries[contractID] {
		if !e.Period.Before(from) && !e.Period.After(to) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}
