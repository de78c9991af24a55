/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's decimal model from the external API contract: amounts go
  out as JSON numbers rounded to cents, schedules as {"YYYY-MM": amount}.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Allocation:
    AllocationResponseDTO, AllocationDTO, AdjustmentsDTO

  Modification:
    CatchupDTO

  Journal:
    JournalEntryDTO, PostJournalResponse

  Contracts:
    ContractSummaryDTO, ContractDTO

  Reports:
    DisclosureDTO, ConsolidatedDTO, ConsolidatedRequest

VALIDATION:
  Request bodies are contract documents and are validated by the factory.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/contract.go: ContractJSON document type
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/revrec-engine/ledger"
	"github.com/warp/revrec-engine/report"
	"github.com/warp/revrec-engine/revrec"
	"github.com/warp/revrec-engine/store/sqlite"
)

// =============================================================================
// ALLOCATION DTOs
// =============================================================================

// AllocationDTO is one obligation's share of the price.
type AllocationDTO struct {
	POID           string  `json:"po_id"`
	Method         string  `json:"method"`
	SSP            float64 `json:"ssp"`
	AllocatedPrice float64 `json:"allocated_price"`
}

// ReturnsDTO is the expected-returns triple.
type ReturnsDTO struct {
	ContraRevenue   float64 `json:"contra_revenue"`
	RefundLiability float64 `json:"refund_liability"`
	ReturnsAsset    float64 `json:"returns_asset"`
}

// AdjustmentsDTO carries variable consideration results.
type AdjustmentsDTO struct {
	Returns                    *ReturnsDTO        `json:"returns,omitempty"`
	LoyaltyDeferred            *float64           `json:"loyalty_deferred,omitempty"`
	LoyaltyExpectedRedemption  *float64           `json:"loyalty_expected_redemption,omitempty"`
	LoyaltyBreakage            *float64           `json:"loyalty_breakage,omitempty"`
	LoyaltyRecognitionSchedule map[string]float64 `json:"loyalty_recognition_schedule,omitempty"`
}

// AllocationResponseDTO is the result of building a contract.
type AllocationResponseDTO struct {
	ContractID         string                        `json:"contract_id"`
	TransactionPrice   float64                       `json:"transaction_price"`
	AllocatedPrice     float64                       `json:"allocated_price"`
	Allocated          []AllocationDTO               `json:"allocated"`
	Schedules          map[string]map[string]float64 `json:"schedules"`
	CommissionSchedule map[string]float64            `json:"commission_schedule,omitempty"`
	Adjustments        *AdjustmentsDTO               `json:"adjustments,omitempty"`
}

// =============================================================================
// MODIFICATION DTOs
// =============================================================================

// CatchupDTO is the cumulative catch-up for one modification.
type CatchupDTO struct {
	ContractID     string             `json:"contract_id"`
	EffectiveMonth string             `json:"effective_month"`
	Old            map[string]float64 `json:"old"`
	New            map[string]float64 `json:"new"`
	Delta          map[string]float64 `json:"delta"`
	Final          map[string]float64 `json:"final"`
	CatchupAmount  float64            `json:"catchup_amount"`
	JournalEntry   JournalEntryDTO    `json:"journal_entry"`
}

// =============================================================================
// JOURNAL DTOs
// =============================================================================

// JournalEntryDTO is a single posting.
type JournalEntryDTO struct {
	ID             string     `json:"id,omitempty"`
	ContractID     string     `json:"contract_id"`
	Period         string     `json:"period"`
	Debit          string     `json:"debit"`
	Credit         string     `json:"credit"`
	Amount         float64    `json:"amount"`
	Memo           string     `json:"memo"`
	Kind           string     `json:"kind,omitempty"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
}

// PostJournalResponse lists the entries appended by one posting.
type PostJournalResponse struct {
	ContractID string            `json:"contract_id"`
	Count      int               `json:"count"`
	Entries    []JournalEntryDTO `json:"entries"`
}

// =============================================================================
// CONTRACT DTOs
// =============================================================================

type ContractSummaryDTO struct {
	ID        string    `json:"contract_id"`
	Customer  string    `json:"customer"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContractDTO includes the stored document verbatim.
type ContractDTO struct {
	ContractSummaryDTO
	Document json.RawMessage `json:"document"`
}

// =============================================================================
// REPORT DTOs
// =============================================================================

type RollforwardRowDTO struct {
	Period        string  `json:"period"`
	Activity      float64 `json:"activity"`
	EndingBalance float64 `json:"ending_balance"`
}

type ObligationRevenueDTO struct {
	POID           string             `json:"po_id"`
	Method         string             `json:"method"`
	AllocatedPrice float64            `json:"allocated_price"`
	Schedule       map[string]float64 `json:"schedule"`
}

// DisclosureDTO is the ASC 606 footnote data for one contract.
type DisclosureDTO struct {
	ContractID            string                 `json:"contract_id"`
	Customer              string                 `json:"customer"`
	TransactionPrice      float64                `json:"transaction_price"`
	Disaggregation        []ObligationRevenueDTO `json:"disaggregation"`
	Rollforward           []RollforwardRowDTO    `json:"rollforward"`
	Adjustments           *AdjustmentsDTO        `json:"adjustments,omitempty"`
	RPO                   float64                `json:"rpo"`
	CommissionRollforward []RollforwardRowDTO    `json:"commission_rollforward,omitempty"`
}

// ConsolidatedRequest selects stored contracts; empty means all.
type ConsolidatedRequest struct {
	ContractIDs []string `json:"contract_ids"`
}

type ConsolidatedRowDTO struct {
	Period            string  `json:"period"`
	Revenue           float64 `json:"revenue"`
	CommissionExpense float64 `json:"commission_expense"`
}

type NoteDTO struct {
	ContractID  string          `json:"contract_id"`
	Adjustments *AdjustmentsDTO `json:"adjustments"`
}

// ConsolidatedDTO totals revenue and commission across contracts.
type ConsolidatedDTO struct {
	Contracts []string             `json:"contracts"`
	Rows      []ConsolidatedRowDTO `json:"rows"`
	Notes     []NoteDTO            `json:"notes"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func money(d decimal.Decimal) float64 {
	v, _ := revrec.RoundCents(d).Float64()
	return v
}

func moneyPtr(d decimal.Decimal) *float64 {
	v := money(d)
	return &v
}

func scheduleDTO(s revrec.Schedule) map[string]float64 {
	out := make(map[string]float64, s.Len())
	for _, e := range s.Entries() {
		out[e.Period.String()] = money(e.Amount)
	}
	return out
}

func toAdjustmentsDTO(a revrec.Adjustments) *AdjustmentsDTO {
	if a.IsEmpty() {
		return nil
	}
	dto := &AdjustmentsDTO{}
	if r := a.Returns; r != nil {
		dto.Returns = &ReturnsDTO{
			ContraRevenue:   money(r.ContraRevenue),
			RefundLiability: money(r.RefundLiability),
			ReturnsAsset:    money(r.ReturnsAsset),
		}
	}
	if l := a.Loyalty; l != nil {
		dto.LoyaltyDeferred = moneyPtr(l.Deferred)
		dto.LoyaltyExpectedRedemption = moneyPtr(l.ExpectedRedemption)
		dto.LoyaltyBreakage = moneyPtr(l.Breakage)
		dto.LoyaltyRecognitionSchedule = scheduleDTO(l.Schedule)
	}
	return dto
}

func toAllocationResponseDTO(resp *revrec.AllocationResponse) AllocationResponseDTO {
	dto := AllocationResponseDTO{
		ContractID:       resp.ContractID,
		TransactionPrice: money(resp.TransactionPrice),
		AllocatedPrice:   money(resp.AllocatedPrice),
		Allocated:        make([]AllocationDTO, 0, len(resp.Allocations)),
		Schedules:        make(map[string]map[string]float64, len(resp.Schedules)),
		Adjustments:      toAdjustmentsDTO(resp.Adjustments),
	}
	for _, a := range resp.Allocations {
		dto.Allocated = append(dto.Allocated, AllocationDTO{
			POID:           a.ObligationID,
			Method:         string(a.Method),
			SSP:            money(a.SSP),
			AllocatedPrice: money(a.Allocated),
		})
		dto.Schedules[a.ObligationID] = scheduleDTO(resp.Schedules[a.ObligationID])
	}
	if resp.CommissionSchedule != nil {
		dto.CommissionSchedule = scheduleDTO(*resp.CommissionSchedule)
	}
	return dto
}

func toCatchupDTO(res *revrec.CatchupResult) CatchupDTO {
	je := res.JournalEntry
	return CatchupDTO{
		ContractID:     res.ContractID,
		EffectiveMonth: res.EffectivePeriod.String(),
		Old:            scheduleDTO(res.Old),
		New:            scheduleDTO(res.New),
		Delta:          scheduleDTO(res.Delta),
		Final:          scheduleDTO(res.Final),
		CatchupAmount:  money(res.CatchupAmount),
		JournalEntry: JournalEntryDTO{
			ContractID: je.ContractID,
			Period:     je.Period.String(),
			Debit:      je.DebitAccount,
			Credit:     je.CreditAccount,
			Amount:     money(je.Amount),
			Memo:       je.Memo,
		},
	}
}

func toJournalEntryDTO(e ledger.JournalEntry) JournalEntryDTO {
	dto := JournalEntryDTO{
		ID:             e.ID,
		ContractID:     e.ContractID,
		Period:         e.Period.String(),
		Debit:          e.Debit,
		Credit:         e.Credit,
		Amount:         money(e.Amount),
		Memo:           e.Memo,
		Kind:           string(e.Kind),
		IdempotencyKey: e.IdempotencyKey,
	}
	if !e.CreatedAt.IsZero() {
		t := e.CreatedAt
		dto.CreatedAt = &t
	}
	return dto
}

func toJournalEntryDTOs(es []ledger.JournalEntry) []JournalEntryDTO {
	out := make([]JournalEntryDTO, 0, len(es))
	for _, e := range es {
		out = append(out, toJournalEntryDTO(e))
	}
	return out
}

func toContractSummaryDTO(r sqlite.ContractRecord) ContractSummaryDTO {
	return ContractSummaryDTO{ID: r.ID, Customer: r.Customer, Version: r.Version, UpdatedAt: r.UpdatedAt}
}

func toRollforwardDTOs(rows []report.RollforwardRow) []RollforwardRowDTO {
	out := make([]RollforwardRowDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, RollforwardRowDTO{
			Period:        r.Period.String(),
			Activity:      money(r.Activity),
			EndingBalance: money(r.EndingBal),
		})
	}
	return out
}

func toDisclosureDTO(d report.Disclosure) DisclosureDTO {
	dto := DisclosureDTO{
		ContractID:       d.ContractID,
		Customer:         d.Customer,
		TransactionPrice: money(d.TransactionPrice),
		Rollforward:      toRollforwardDTOs(d.Rollforward),
		Adjustments:      toAdjustmentsDTO(d.Adjustments),
		RPO:              money(d.RemainingObligations),
	}
	for _, o := range d.ByObligation {
		dto.Disaggregation = append(dto.Disaggregation, ObligationRevenueDTO{
			POID:           o.ObligationID,
			Method:         string(o.Method),
			AllocatedPrice: money(o.Allocated),
			Schedule:       scheduleDTO(o.Schedule),
		})
	}
	if len(d.Commission) > 0 {
		dto.CommissionRollforward = toRollforwardDTOs(d.Commission)
	}
	return dto
}

func toConsolidatedDTO(c *report.Consolidated) ConsolidatedDTO {
	dto := ConsolidatedDTO{
		Contracts: c.Contracts,
		Rows:      make([]ConsolidatedRowDTO, 0, len(c.Rows)),
		Notes:     make([]NoteDTO, 0, len(c.Notes)),
	}
	for _, r := range c.Rows {
		dto.Rows = append(dto.Rows, ConsolidatedRowDTO{
			Period:            r.Period.String(),
			Revenue:           money(r.Revenue),
			CommissionExpense: money(r.CommissionExpense),
		})
	}
	for _, n := range c.Notes {
		dto.Notes = append(dto.Notes, NoteDTO{ContractID: n.ContractID, Adjustments: toAdjustmentsDTO(n.Adjustments)})
	}
	return dto
}
