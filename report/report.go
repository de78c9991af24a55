/*
report.go - Disclosure and consolidation reports

PURPOSE:
  Turns AllocationResponses into the figures an ASC 606 footnote needs:
  revenue disaggregated by obligation, the contract balance rollforward,
  remaining performance obligations and the deferred commission
  rollforward. Consolidate does the same across a book of contracts.

ROLLFORWARD:
  deferred(end of p) = opening - sum(recognized up to p)

  The opening balance is the allocated price, so a fully scheduled
  contract rolls down to zero. Loyalty liability is reported separately
  under adjustments.

SEE ALSO:
  - revrec/builder.go: produces the AllocationResponse
  - api/handlers.go: /api/reports endpoints
*/
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/warp/revrec-engine/revrec"
)

// =============================================================================
// TYPES
// =============================================================================

// RollforwardRow is one period of a balance rollforward.
type RollforwardRow struct {
	Period    revrec.Period   `json:"period"`
	Activity  decimal.Decimal `json:"activity"`
	EndingBal decimal.Decimal `json:"ending_balance"`
}

// ObligationRevenue is revenue disaggregated for one obligation.
type ObligationRevenue struct {
	ObligationID string          `json:"po_id"`
	Method       revrec.Method   `json:"method"`
	Allocated    decimal.Decimal `json:"allocated_price"`
	Schedule     revrec.Schedule `json:"schedule"`
}

// Disclosure is the per-contract footnote data.
type Disclosure struct {
	ContractID           string              `json:"contract_id"`
	Customer             string              `json:"customer"`
	TransactionPrice     decimal.Decimal     `json:"transaction_price"`
	ByObligation         []ObligationRevenue `json:"disaggregation"`
	Rollforward          []RollforwardRow    `json:"rollforward"`
	Adjustments          revrec.Adjustments  `json:"adjustments"`
	RemainingObligations decimal.Decimal     `json:"rpo"`
	Commission           []RollforwardRow    `json:"commission_rollforward,omitempty"`
}

// Note records the adjustments of one contract in a consolidated report.
type Note struct {
	ContractID  string             `json:"contract_id"`
	Adjustments revrec.Adjustments `json:"adjustments"`
}

// ConsolidatedRow is one period across every contract.
type ConsolidatedRow struct {
	Period            revrec.Period   `json:"period"`
	Revenue           decimal.Decimal `json:"revenue"`
	CommissionExpense decimal.Decimal `json:"commission_expense"`
}

// Consolidated totals a book of contracts by period.
type Consolidated struct {
	Contracts  []string          `json:"contracts"`
	Revenue    revrec.Schedule   `json:"revenue"`
	Commission revrec.Schedule   `json:"commission"`
	Rows       []ConsolidatedRow `json:"rows"`
	Notes      []Note            `json:"notes"`
}

// =============================================================================
// BUILDING BLOCKS
// =============================================================================

// Summarize sums schedules period by period.
func Summarize(schedules map[string]revrec.Schedule) revrec.Schedule {
	out := revrec.NewSchedule()
	for _, s := range schedules {
		out.Merge(s)
	}
	return out
}

// Rollforward walks recognized in period order, reducing opening.
func Rollforward(opening decimal.Decimal, recognized revrec.Schedule) []RollforwardRow {
	bal := revrec.RoundCents(opening)
	rows := make([]RollforwardRow, 0, recognized.Len())
	for _, e := range recognized.Entries() {
		bal = bal.Sub(e.Amount)
		rows = append(rows, RollforwardRow{Period: e.Period, Activity: e.Amount, EndingBal: bal})
	}
	return rows
}

// RemainingPerformanceObligations is the price not yet recognized by the
// end of asOf. A zero asOf counts every scheduled period.
func RemainingPerformanceObligations(price decimal.Decimal, recognized revrec.Schedule, asOf revrec.Period) decimal.Decimal {
	if !asOf.IsZero() {
		recognized = recognized.Filter(func(p revrec.Period) bool { return !p.After(asOf) })
	}
	return revrec.RoundCents(price).Sub(recognized.Total())
}

// =============================================================================
// DISCLOSURE
// =============================================================================

// NewDisclosure assembles the footnote for one built contract.
func NewDisclosure(c revrec.Contract, resp *revrec.AllocationResponse) Disclosure {
	d := Disclosure{
		ContractID:       resp.ContractID,
		Customer:         c.Customer,
		TransactionPrice: resp.TransactionPrice,
		Adjustments:      resp.Adjustments,
	}

	for _, a := range resp.Allocations {
		d.ByObligation = append(d.ByObligation, ObligationRevenue{
			ObligationID: a.ObligationID,
			Method:       a.Method,
			Allocated:    a.Allocated,
			Schedule:     resp.Schedules[a.ObligationID],
		})
	}

	combined := resp.Combined()
	d.Rollforward = Rollforward(resp.AllocatedPrice, combined)
	d.RemainingObligations = RemainingPerformanceObligations(resp.AllocatedPrice, combined, revrec.Period{})

	if resp.CommissionSchedule != nil {
		d.Commission = Rollforward(resp.CommissionSchedule.Total(), *resp.CommissionSchedule)
	}
	return d
}

// =============================================================================
// CONSOLIDATION
// =============================================================================

// Consolidate builds every contract (at most limit concurrently) and
// totals revenue and commission expense per period.
func Consolidate(ctx context.Context, b *revrec.Builder, contracts []revrec.Contract, limit int) (*Consolidated, error) {
	resps, err := b.BuildAll(ctx, contracts, limit)
	if err != nil {
		return nil, fmt.Errorf("consolidate: %w", err)
	}

	out := &Consolidated{
		Contracts:  make([]string, 0, len(resps)),
		Revenue:    revrec.NewSchedule(),
		Commission: revrec.NewSchedule(),
		Notes:      []Note{},
	}
	for _, resp := range resps {
		out.Contracts = append(out.Contracts, resp.ContractID)
		out.Revenue.Merge(resp.Combined())
		if resp.CommissionSchedule != nil {
			out.Commission.Merge(*resp.CommissionSchedule)
		}
		if !resp.Adjustments.IsEmpty() {
			out.Notes = append(out.Notes, Note{ContractID: resp.ContractID, Adjustments: resp.Adjustments})
		}
	}

	all := out.Revenue.Clone()
	all.Merge(out.Commission)
	for _, p := range all.Periods() {
		out.Rows = append(out.Rows, ConsolidatedRow{
			Period:            p,
			Revenue:           out.Revenue.Get(p),
			CommissionExpense: out.Commission.Get(p),
		})
	}
	return out, nil
}

// WriteCSV writes Period,Revenue,Commission_Expense rows.
func (c *Consolidated) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Period", "Revenue", "Commission_Expense"}); err != nil {
		return err
	}
	for _, r := range c.Rows {
		rec := []string{
			r.Period.String(),
			r.Revenue.StringFixed(revrec.CentPlaces),
			r.CommissionExpense.StringFixed(revrec.CentPlaces),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
