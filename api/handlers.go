/*
handlers.go - HTTP API handlers for the revenue recognition engine

PURPOSE:
  Exposes the recognition engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the builder,
  the ledger and the reports.

ENDPOINTS:
  Contracts:
    POST   /api/contracts/allocate          Allocate and schedule a contract
    POST   /api/contracts/modify/catchup    Cumulative catch-up for a modification
    POST   /api/contracts                   Save a contract document
    GET    /api/contracts                   List stored contracts
    GET    /api/contracts/{id}              Get a stored contract
    GET    /api/contracts/{id}/allocation   Allocate a stored contract

  Reports:
    POST   /api/reports/disclosure          Disclosure for a contract
    POST   /api/reports/consolidated        Totals across stored contracts

  Journal:
    POST   /api/journal/post                Post a contract's entries
    POST   /api/journal/catchup             Post a modification's catch-up
    GET    /api/journal/{contractID}        Entries, optionally ?from=&to=
    GET    /api/journal/{contractID}/balances  Net balance per account

REQUEST FLOW:
  1. Read the body (bounded by maxBodyBytes)
  2. Parse and validate through the contract factory
  3. Build with the shared Builder
  4. Serialize DTOs
  5. Map errors to status codes

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed JSON, validation errors
  - 404: Contract not found
  - 409: Journal entries already posted (idempotency)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/warp/revrec-engine/factory"
	"github.com/warp/revrec-engine/ledger"
	"github.com/warp/revrec-engine/report"
	"github.com/warp/revrec-engine/revrec"
	"github.com/warp/revrec-engine/store/sqlite"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

var errNotFound = errors.New("not found")

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Factory *factory.ContractFactory
	Builder *revrec.Builder
	Ledger  *ledger.Ledger
	Poster  *ledger.Poster
	Logger  *zap.Logger

	// ConcurrencyLimit bounds parallel builds in consolidated reports.
	ConcurrencyLimit int

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler wires the handler around a store. The store doubles as the
// journal backend.
func NewHandler(store *sqlite.Store, builder *revrec.Builder, poster *ledger.Poster, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:            store,
		Factory:          factory.NewContractFactory(),
		Builder:          builder,
		Ledger:           ledger.NewLedger(store),
		Poster:           poster,
		Logger:           logger,
		ConcurrencyLimit: 8,
	}
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// =============================================================================
// CONTRACT ENDPOINTS
// =============================================================================

// AllocateContract builds the posted contract document.
func (h *Handler) AllocateContract(w http.ResponseWriter, r *http.Request) {
	c, ok := h.readContract(w, r)
	if !ok {
		return
	}

	resp, err := h.Builder.Build(c)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationResponseDTO(resp))
}

// CatchupModification computes the catch-up for {base, modification}.
func (h *Handler) CatchupModification(w http.ResponseWriter, r *http.Request) {
	res, ok := h.catchup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toCatchupDTO(res))
}

// SaveContract validates and stores a contract document.
func (h *Handler) SaveContract(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	cj, err := h.Factory.Decode(body)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	c, err := h.Factory.FromJSON(cj)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	// Reject documents the engine cannot build.
	if _, err := h.Builder.Build(c); err != nil {
		h.writeDomainError(w, err)
		return
	}

	doc, err := json.Marshal(cj)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode contract", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.SaveContract(ctx, sqlite.ContractRecord{
		ID:           c.ID,
		Customer:     c.Customer,
		DocumentJSON: string(doc),
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save contract", err)
		return
	}

	rec, err := h.Store.GetContract(ctx, c.ID)
	if err != nil || rec == nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload contract", err)
		return
	}

	h.Logger.Info("contract saved", zap.String("contract_id", rec.ID), zap.Int("version", rec.Version))
	writeJSON(w, http.StatusCreated, toContractSummaryDTO(*rec))
}

// ListContracts returns every stored contract without documents.
func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.ListContracts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list contracts", err)
		return
	}

	result := make([]ContractSummaryDTO, 0, len(records))
	for _, rec := range records {
		result = append(result, toContractSummaryDTO(rec))
	}
	writeJSON(w, http.StatusOK, result)
}

// GetContract returns a stored contract with its document.
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	rec, err := h.storedContract(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ContractDTO{
		ContractSummaryDTO: toContractSummaryDTO(*rec),
		Document:           json.RawMessage(rec.DocumentJSON),
	})
}

// GetContractAllocation builds a stored contract.
func (h *Handler) GetContractAllocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := h.storedContract(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	c, err := h.Factory.ParseContract([]byte(rec.DocumentJSON))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	resp, err := h.Builder.Build(c)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationResponseDTO(resp))
}

// =============================================================================
// REPORT ENDPOINTS
// =============================================================================

// Disclosure builds the footnote data for the posted contract.
func (h *Handler) Disclosure(w http.ResponseWriter, r *http.Request) {
	c, ok := h.readContract(w, r)
	if !ok {
		return
	}

	resp, err := h.Builder.Build(c)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDisclosureDTO(report.NewDisclosure(c, resp)))
}

// Consolidated totals stored contracts. ?format=csv returns CSV.
func (h *Handler) Consolidated(w http.ResponseWriter, r *http.Request) {
	var req ConsolidatedRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	ctx := r.Context()
	var (
		records []sqlite.ContractRecord
		err     error
	)
	if len(req.ContractIDs) == 0 {
		records, err = h.Store.ListContracts(ctx)
	} else {
		records, err = h.Store.GetContracts(ctx, req.ContractIDs)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load contracts", err)
		return
	}

	contracts := make([]revrec.Contract, 0, len(records))
	for _, rec := range records {
		c, err := h.Factory.ParseContract([]byte(rec.DocumentJSON))
		if err != nil {
			h.writeDomainError(w, fmt.Errorf("contract %s: %w", rec.ID, err))
			return
		}
		contracts = append(contracts, c)
	}

	out, err := report.Consolidate(ctx, h.Builder, contracts, h.ConcurrencyLimit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="consolidated_revenue.csv"`)
		if err := out.WriteCSV(w); err != nil {
			h.Logger.Error("write consolidated csv", zap.Error(err))
		}
		return
	}
	writeJSON(w, http.StatusOK, toConsolidatedDTO(out))
}

// =============================================================================
// JOURNAL ENDPOINTS
// =============================================================================

// PostJournal books every entry of the posted contract. Posting the same
// contract twice is rejected with 409.
func (h *Handler) PostJournal(w http.ResponseWriter, r *http.Request) {
	c, ok := h.readContract(w, r)
	if !ok {
		return
	}

	resp, err := h.Builder.Build(c)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	posted, err := h.Ledger.AppendBatch(r.Context(), h.Poster.Entries(resp, revrec.Period{}))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.Logger.Info("journal posted", zap.String("contract_id", c.ID), zap.Int("entries", len(posted)))
	writeJSON(w, http.StatusCreated, PostJournalResponse{
		ContractID: c.ID,
		Count:      len(posted),
		Entries:    toJournalEntryDTOs(posted),
	})
}

// PostCatchup books the catch-up entry of a modification. A zero
// catch-up posts nothing.
func (h *Handler) PostCatchup(w http.ResponseWriter, r *http.Request) {
	res, ok := h.catchup(w, r)
	if !ok {
		return
	}

	out := PostJournalResponse{ContractID: res.ContractID, Entries: []JournalEntryDTO{}}
	if e, ok := h.Poster.Catchup(res); ok {
		posted, err := h.Ledger.AppendBatch(r.Context(), []ledger.JournalEntry{e})
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		out.Entries = toJournalEntryDTOs(posted)
		out.Count = len(posted)
	}
	writeJSON(w, http.StatusCreated, out)
}

// GetJournal lists a contract's entries, optionally bounded by ?from and
// ?to periods (YYYY-MM, inclusive).
func (h *Handler) GetJournal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contractID := chi.URLParam(r, "contractID")

	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" && to == "" {
		entries, err := h.Ledger.Entries(ctx, contractID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load journal", err)
			return
		}
		writeJSON(w, http.StatusOK, toJournalEntryDTOs(entries))
		return
	}

	fromP, err := parsePeriodParam(from, revrec.Period{Year: 1, Month: 1})
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from period", err)
		return
	}
	toP, err := parsePeriodParam(to, revrec.Period{Year: 9999, Month: 12})
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to period", err)
		return
	}

	entries, err := h.Ledger.EntriesInRange(ctx, contractID, fromP, toP)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load journal", err)
		return
	}
	writeJSON(w, http.StatusOK, toJournalEntryDTOs(entries))
}

// GetBalances returns the net balance per account (debit positive).
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.Ledger.Balances(r.Context(), chi.URLParam(r, "contractID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balances", err)
		return
	}

	result := make(map[string]float64, len(balances))
	for account, bal := range balances {
		result[account] = money(bal)
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// HELPERS
// =============================================================================

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body", err)
		return nil, false
	}
	return body, true
}

func (h *Handler) readContract(w http.ResponseWriter, r *http.Request) (revrec.Contract, bool) {
	body, ok := readBody(w, r)
	if !ok {
		return revrec.Contract{}, false
	}
	c, err := h.Factory.ParseContract(body)
	if err != nil {
		h.writeDomainError(w, err)
		return revrec.Contract{}, false
	}
	return c, true
}

func (h *Handler) catchup(w http.ResponseWriter, r *http.Request) (*revrec.CatchupResult, bool) {
	body, ok := readBody(w, r)
	if !ok {
		return nil, false
	}
	base, mod, err := h.Factory.ParseCatchupRequest(body)
	if err != nil {
		h.writeDomainError(w, err)
		return nil, false
	}
	res, err := h.Builder.Catchup(base, mod)
	if err != nil {
		h.writeDomainError(w, err)
		return nil, false
	}
	return res, true
}

func (h *Handler) storedContract(ctx context.Context, id string) (*sqlite.ContractRecord, error) {
	rec, err := h.Store.GetContract(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("contract %s: %w", id, errNotFound)
	}
	return rec, nil
}

func parsePeriodParam(s string, def revrec.Period) (revrec.Period, error) {
	if s == "" {
		return def, nil
	}
	return revrec.ParsePeriod(s)
}

// writeDomainError maps engine, factory and ledger errors to a status.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var verr *revrec.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "Validation failed",
			Code:  "validation_error",
			Details: map[string]string{
				"po_id":  verr.ObligationID,
				"field":  verr.Field,
				"reason": err.Error(),
			},
		})
	case errors.Is(err, factory.ErrMalformedJSON):
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
	case errors.Is(err, ledger.ErrInvalidEntry):
		writeError(w, http.StatusBadRequest, "Invalid journal entry", err)
	case errors.Is(err, errNotFound):
		writeError(w, http.StatusNotFound, "Contract not found", err)
	case errors.Is(err, ledger.ErrDuplicateIdempotencyKey):
		writeError(w, http.StatusConflict, "Entries already posted", err)
	default:
		h.Logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
