/*
Package revrec provides the revenue-recognition engine.

PURPOSE:
  This package turns a customer contract (performance obligations plus
  variable-consideration terms) into period-keyed monetary schedules, and
  reconciles two such schedules when a contract is modified. It is pure:
  no I/O, no shared state, no blocking. Callers pass structured contracts
  in and receive schedules out.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal.Decimal rounded to cents at every boundary
  - Method: the recognition method tag of an obligation
  - Obligation / Contract: the immutable input of one allocation run
  - AllocationResponse: the unit of output consumed by posting/reporting

DESIGN PRINCIPLES:
  1. Precision: every amount is a decimal.Decimal, never a float64
  2. Exact reconciliation: splits use one drift rule (schedule.go)
  3. Typed parameters: each method carries its own parameter struct
  4. Immutability: a run never mutates its input contract

USAGE:
  b := revrec.NewBuilder(revrec.DefaultPolicy(), logger)
  resp, err := b.Build(contract)
  if revrec.IsValidation(err) {
      // bad input, nothing was computed
  }

SEE ALSO:
  - schedule.go: Schedule accumulator and the drift rule
  - methods.go: Recognition variants
  - builder.go: Contract orchestration
  - catchup.go: Modification catch-up
*/
package revrec

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - decimal amounts in a 2-place currency unit
// =============================================================================

// CentPlaces is the number of decimal places every boundary amount carries.
const CentPlaces int32 = 2

// RoundCents rounds half away from zero to the cent.
func RoundCents(d decimal.Decimal) decimal.Decimal { return d.Round(CentPlaces) }

// Cents builds a cent-rounded amount from a float literal. Intended for
// tests and defaults, not for parsing user input.
func Cents(v float64) decimal.Decimal { return RoundCents(decimal.NewFromFloat(v)) }

// MustMoney parses a decimal string and panics on malformed input.
func MustMoney(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var (
	one                = decimal.NewFromInt(1)
	milestoneTolerance = decimal.RequireFromString("0.01")
)

// =============================================================================
// METHOD - recognition method tag
// =============================================================================

type Method string

const (
	MethodPointInTime     Method = "point_in_time"
	MethodStraightLine    Method = "straight_line"
	MethodMilestone       Method = "milestone"
	MethodPercentComplete Method = "percent_complete"
	MethodUsageBased      Method = "usage_based"
)

// Valid reports whether m is a known method tag.
func (m Method) Valid() bool {
	switch m {
	case MethodPointInTime, MethodStraightLine, MethodMilestone, MethodPercentComplete, MethodUsageBased:
		return true
	}
	return false
}

// =============================================================================
// CONTRACT INPUT
// =============================================================================

// Obligation is a distinct promised good or service: the unit of
// allocation and scheduling. IDs are unique within a contract.
type Obligation struct {
	ID          string
	Description string
	SSP         decimal.Decimal
	Recognition Recognition

	// Optional dates. StartDate feeds the loyalty and commission reference
	// date when the contract does not supply one.
	StartDate *time.Time
	EndDate   *time.Time
}

// Method returns the recognition method tag, or "" when unset.
func (o Obligation) Method() Method {
	if o.Recognition == nil {
		return ""
	}
	return o.Recognition.Method()
}

// VariableConsideration holds returns and loyalty terms. All rates are in [0,1].
type VariableConsideration struct {
	ReturnsRate         decimal.Decimal
	LoyaltyPct          decimal.Decimal
	LoyaltyMonths       int
	LoyaltyBreakageRate decimal.Decimal

	// LoyaltyStart overrides the policy's loyalty reference date.
	LoyaltyStart *time.Time
}

// CommissionPlan describes incremental costs of obtaining the contract.
type CommissionPlan struct {
	TotalCommission decimal.Decimal
	BenefitMonths   int

	// PracticalExpedient elects to expense costs whose benefit period is
	// one year or less.
	PracticalExpedient bool
}

// Contract is the input of one allocation run.
type Contract struct {
	ID               string
	Customer         string
	TransactionPrice decimal.Decimal
	Obligations      []Obligation
	Variable         *VariableConsideration
	Commission       *CommissionPlan
}

// Modification adds/removes obligations and changes the price from an
// effective date. It only lives for the duration of one catch-up run.
type Modification struct {
	EffectiveDate       time.Time
	PriceDelta          decimal.Decimal
	RemoveObligationIDs []string
	AddObligations      []Obligation
}

// IsNoop reports whether the modification changes nothing.
func (m Modification) IsNoop() bool {
	return m.PriceDelta.IsZero() && len(m.RemoveObligationIDs) == 0 && len(m.AddObligations) == 0
}

// =============================================================================
// ALLOCATION OUTPUT
// =============================================================================

type Allocation struct {
	ObligationID string          `json:"po_id"`
	Method       Method          `json:"method"`
	SSP          decimal.Decimal `json:"ssp"`
	Allocated    decimal.Decimal `json:"allocated_price"`
}

// ReturnsAdjustment is the expected-returns constraint on point-in-time
// revenue. ContraRevenue is negative by convention.
type ReturnsAdjustment struct {
	ContraRevenue   decimal.Decimal `json:"contra_revenue"`
	RefundLiability decimal.Decimal `json:"refund_liability"`
	ReturnsAsset    decimal.Decimal `json:"returns_asset"`
}

// LoyaltyAdjustment is the material-right deferral and how it unwinds.
type LoyaltyAdjustment struct {
	Deferred           decimal.Decimal `json:"loyalty_deferred"`
	ExpectedRedemption decimal.Decimal `json:"expected_redemption"`
	Breakage           decimal.Decimal `json:"breakage"`
	ReferenceDate      time.Time       `json:"reference_date"`
	Schedule           Schedule        `json:"loyalty_recognition_schedule"`
}

type Adjustments struct {
	Returns *ReturnsAdjustment `json:"returns,omitempty"`
	Loyalty *LoyaltyAdjustment `json:"loyalty,omitempty"`
}

// IsEmpty reports whether no adjustment was recorded.
func (a Adjustments) IsEmpty() bool { return a.Returns == nil && a.Loyalty == nil }

// AllocationResponse is what every downstream collaborator consumes.
type AllocationResponse struct {
	ContractID         string              `json:"contract_id"`
	TransactionPrice   decimal.Decimal     `json:"transaction_price"`
	AllocatedPrice     decimal.Decimal     `json:"allocated_price"`
	Allocations        []Allocation        `json:"allocated"`
	Schedules          map[string]Schedule `json:"schedules"`
	Adjustments        Adjustments         `json:"adjustments"`
	CommissionSchedule *Schedule           `json:"commission_schedule,omitempty"`
}

// Combined flattens every obligation schedule into one period→amount map.
func (r *AllocationResponse) Combined() Schedule {
	out := NewSchedule()
	for _, a := range r.Allocations {
		out.Merge(r.Schedules[a.ObligationID])
	}
	return out
}

// AllocatedFor returns the allocated amount of one obligation.
func (r *AllocationResponse) AllocatedFor(obligationID string) (decimal.Decimal, bool) {
	for _, a := range r.Allocations {
		if a.ObligationID == obligationID {
			return a.Allocated, true
		}
	}
	return decimal.Zero, false
}
