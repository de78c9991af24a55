/*
Package sqlite provides a SQLite-backed contract repository and journal.

PURPOSE:
  Persists the two things the revenue engine does not own: the contract
  documents callers submit, and the journal entries the poster produces.
  In production the same patterns apply to PostgreSQL with only minor
  dialect differences.

INTERFACES IMPLEMENTED:
  ledger.Store: append-only journal entries

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on journal_entries
  - No DELETE statements on journal_entries (Reset aside)
  - Corrections via reversal entries only

KEY TABLES:
  contracts:        Contract documents as submitted (JSON), upserted by id
  journal_entries:  Immutable double-entry postings

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. With PostgreSQL, database-level
  concurrency control handles this instead.

USAGE:
  store, err := sqlite.New("./data/revrec.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  journal := ledger.NewLedger(store)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - ledger/ledger.go: Store interface
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/revrec-engine/ledger"
	"github.com/warp/revrec-engine/revrec"
)

// Store implements the contract repository and ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ ledger.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection (used by the health endpoint).
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Contracts (documents as submitted)
	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		customer TEXT NOT NULL,
		document_json TEXT NOT NULL,
		version INTEGER DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contracts_customer
		ON contracts(customer);

	-- Journal entries (append-only)
	CREATE TABLE IF NOT EXISTS journal_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		contract_id TEXT NOT NULL,
		period TEXT NOT NULL,
		debit_account TEXT NOT NULL,
		credit_account TEXT NOT NULL,
		amount TEXT NOT NULL,
		memo TEXT,
		kind TEXT NOT NULL,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	-- Period-ordered reads per contract (hot path)
	CREATE INDEX IF NOT EXISTS idx_journal_contract_period
		ON journal_entries(contract_id, period, seq);
	CREATE INDEX IF NOT EXISTS idx_journal_idempotency
		ON journal_entries(idempotency_key) WHERE idempotency_key IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// JOURNAL STORE (ledger.Store interface)
// =============================================================================

// Append adds an entry to the journal.
func (s *Store) Append(ctx context.Context, e ledger.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendEntry(ctx, s.db, e)
}

func (s *Store) appendEntry(ctx context.Context, db interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, e ledger.JournalEntry) error {
	query := `
		INSERT INTO journal_entries
		(id, contract_id, period, debit_account, credit_account, amount, memo, kind, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx, query,
		e.ID,
		e.ContractID,
		e.Period.String(),
		e.Debit,
		e.Credit,
		e.Amount.StringFixed(revrec.CentPlaces),
		e.Memo,
		string(e.Kind),
		nullString(e.IdempotencyKey),
		createdAt.Format(time.RFC3339Nano),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append journal entry: %w", err)
	}

	return nil
}

// AppendBatch adds multiple entries atomically.
func (s *Store) AppendBatch(ctx context.Context, es []ledger.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for duplicate idempotency keys within the batch first
	keys := make(map[string]bool)
	for _, e := range es {
		if e.IdempotencyKey != "" {
			if keys[e.IdempotencyKey] {
				return ledger.ErrDuplicateIdempotencyKey
			}
			keys[e.IdempotencyKey] = true
		}
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, e := range es {
		if err := s.appendEntry(ctx, sqlTx, e); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

const entryColumns = `id, contract_id, period, debit_account, credit_account, amount, memo, kind, idempotency_key, created_at`

// Load returns all entries for a contract.
func (s *Store) Load(ctx context.Context, contractID string) ([]ledger.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + entryColumns + `
		FROM journal_entries
		WHERE contract_id = ?
		ORDER BY period ASC, seq ASC
	`

	return s.queryEntries(ctx, query, contractID)
}

// LoadRange returns entries within [from, to]. Period strings sort
// chronologically, so a text comparison is enough.
func (s *Store) LoadRange(ctx context.Context, contractID string, from, to revrec.Period) ([]ledger.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + entryColumns + `
		FROM journal_entries
		WHERE contract_id = ? AND period >= ? AND period <= ?
		ORDER BY period ASC, seq ASC
	`

	return s.queryEntries(ctx, query, contractID, from.String(), to.String())
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM journal_entries WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

// AllEntries returns the most recent entries across contracts (admin view).
func (s *Store) AllEntries(ctx context.Context, limit int) ([]ledger.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + entryColumns + `
		FROM journal_entries
		ORDER BY seq DESC
		LIMIT ?
	`

	return s.queryEntries(ctx, query, limit)
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]ledger.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (ledger.JournalEntry, error) {
	var (
		e              ledger.JournalEntry
		period         string
		amount         string
		memo           sql.NullString
		kind           string
		idempotencyKey sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&e.ID, &e.ContractID, &period, &e.Debit, &e.Credit,
		&amount, &memo, &kind, &idempotencyKey, &createdAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan journal entry: %w", err)
	}

	if e.Period, err = revrec.ParsePeriod(period); err != nil {
		return e, fmt.Errorf("journal entry %s: %w", e.ID, err)
	}
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return e, fmt.Errorf("journal entry %s: bad amount %q: %w", e.ID, amount, err)
	}
	e.Memo = memo.String
	e.Kind = ledger.Kind(kind)
	e.IdempotencyKey = idempotencyKey.String
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	return e, nil
}

// =============================================================================
// CONTRACT REPOSITORY
// =============================================================================

// ContractRecord is a stored contract document.
type ContractRecord struct {
	ID           string
	Customer     string
	DocumentJSON string
	Version      int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SaveContract upserts a contract document, bumping its version.
func (s *Store) SaveContract(ctx context.Context, c ContractRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO contracts (id, customer, document_json, version, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			customer = excluded.customer,
			document_json = excluded.document_json,
			version = contracts.version + 1,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, query, c.ID, c.Customer, c.DocumentJSON, now, now)
	if err != nil {
		return fmt.Errorf("failed to save contract %s: %w", c.ID, err)
	}
	return nil
}

// GetContract retrieves a contract by ID. Returns nil, nil when absent.
func (s *Store) GetContract(ctx context.Context, id string) (*ContractRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c ContractRecord
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, customer, document_json, version, created_at, updated_at FROM contracts WHERE id = ?",
		id,
	).Scan(&c.ID, &c.Customer, &c.DocumentJSON, &c.Version, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &c, nil
}

// ListContracts returns every contract ordered by id.
func (s *Store) ListContracts(ctx context.Context) ([]ContractRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryContracts(ctx,
		"SELECT id, customer, document_json, version, created_at, updated_at FROM contracts ORDER BY id",
	)
}

// GetContracts returns the contracts with the given ids, in id order.
// Unknown ids are skipped.
func (s *Store) GetContracts(ctx context.Context, ids []string) ([]ContractRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	return s.queryContracts(ctx,
		"SELECT id, customer, document_json, version, created_at, updated_at FROM contracts WHERE id IN ("+placeholders+") ORDER BY id",
		args...,
	)
}

func (s *Store) queryContracts(ctx context.Context, query string, args ...any) ([]ContractRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	defer rows.Close()

	var contracts []ContractRecord
	for rows.Next() {
		var c ContractRecord
		var createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.Customer, &c.DocumentJSON, &c.Version, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"journal_entries", "contracts"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
