/*
catchup.go - Contract modification, cumulative catch-up method

PURPOSE:
  A modification changes the price or the obligation set from an
  effective month. Months already closed keep what they recognized; the
  revenue they would have recognized under the new terms is compressed
  into one adjustment posted in the effective month.

ALGORITHM:
  old     = Build(base).Combined()
  new     = Build(base - removed + added, price + delta).Combined()
  delta   = new - old               over the union of months
  catchup = sum(delta[p]) for p < effective
  final   = old[p < effective] + new[p >= effective], final[effective] += catchup

EXAMPLE:
  Base: 1200 over 2025-01..2025-12 (100/month)
  Mod:  +120 effective 2025-07 (110/month)
  catchup = 6 * 10 = 60, so final[2025-07] = 110 + 60 = 170
*/
package revrec

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// JournalEntry is the posting that records a catch-up. The engine only
// computes it; persisting it belongs to the ledger.
type JournalEntry struct {
	ContractID    string          `json:"contract_id"`
	Period        Period          `json:"period"`
	DebitAccount  string          `json:"debit"`
	CreditAccount string          `json:"credit"`
	Amount        decimal.Decimal `json:"amount"`
	Memo          string          `json:"memo"`
}

type CatchupResult struct {
	ContractID      string          `json:"contract_id"`
	EffectivePeriod Period          `json:"effective_month"`
	Old             Schedule        `json:"old_schedule"`
	New             Schedule        `json:"new_schedule"`
	Delta           Schedule        `json:"delta_by_period"`
	Final           Schedule        `json:"final_schedule"`
	CatchupAmount   decimal.Decimal `json:"catchup_amount"`
	JournalEntry    JournalEntry    `json:"journal_entry"`

	// Modified is the full allocation of the modified contract.
	Modified *AllocationResponse `json:"modified"`
}

// ApplyModification returns the modified contract. The base contract is
// not touched: the obligation slice is rebuilt.
func ApplyModification(base Contract, mod Modification) (Contract, error) {
	if mod.EffectiveDate.IsZero() {
		return Contract{}, invalid("effective_date", ErrMissingParameter, "modification requires an effective date")
	}

	remove := make(map[string]bool, len(mod.RemoveObligationIDs))
	for _, id := range mod.RemoveObligationIDs {
		remove[id] = true
	}

	existing := make(map[string]bool, len(base.Obligations))
	obligations := make([]Obligation, 0, len(base.Obligations)+len(mod.AddObligations))
	for _, o := range base.Obligations {
		existing[o.ID] = true
		if remove[o.ID] {
			continue
		}
		obligations = append(obligations, o)
	}
	for _, id := range mod.RemoveObligationIDs {
		if !existing[id] {
			return Contract{}, &ValidationError{ObligationID: id, Field: "remove_po_ids", Reason: "not in base contract", Err: ErrUnknownObligation}
		}
	}
	for _, o := range mod.AddObligations {
		if existing[o.ID] && !remove[o.ID] {
			return Contract{}, &ValidationError{ObligationID: o.ID, Field: "add_pos", Reason: "already in base contract", Err: ErrDuplicateObligation}
		}
		obligations = append(obligations, o)
	}

	price := base.TransactionPrice.Add(mod.PriceDelta)
	if price.IsNegative() {
		return Contract{}, invalid("transaction_price_delta", ErrNegativeAmount, "modified price %s is negative", price.String())
	}

	modified := base
	modified.TransactionPrice = price
	modified.Obligations = obligations
	return modified, nil
}

// Catchup computes the cumulative catch-up for mod against base.
func (b *Builder) Catchup(base Contract, mod Modification) (*CatchupResult, error) {
	modified, err := ApplyModification(base, mod)
	if err != nil {
		return nil, err
	}

	before, err := b.Build(base)
	if err != nil {
		return nil, fmt.Errorf("base contract: %w", err)
	}
	after, err := b.Build(modified)
	if err != nil {
		return nil, fmt.Errorf("modified contract: %w", err)
	}

	effective := PeriodOf(mod.EffectiveDate)
	res := diffSchedules(before.Combined(), after.Combined(), effective)
	res.ContractID = base.ID
	res.Modified = after
	res.JournalEntry = b.catchupEntry(base.ID, effective, res.CatchupAmount)

	b.logger.Info("modification catch-up computed",
		zap.String("contract_id", base.ID),
		zap.Stringer("effective_month", effective),
		zap.String("catchup_amount", res.CatchupAmount.StringFixed(CentPlaces)),
	)
	return res, nil
}

// diffSchedules implements the catch-up arithmetic on two combined
// schedules.
func diffSchedules(prev, next Schedule, effective Period) *CatchupResult {
	delta := NewSchedule()
	for _, p := range prev.Periods() {
		delta.Add(p, next.Get(p).Sub(prev.Get(p)))
	}
	for _, p := range next.Periods() {
		if !prev.Has(p) {
			delta.Add(p, next.Get(p))
		}
	}

	catchup := decimal.Zero
	for _, e := range delta.Entries() {
		if e.Period.Before(effective) {
			catchup = catchup.Add(e.Amount)
		}
	}
	catchup = RoundCents(catchup)

	final := prev.Filter(func(p Period) bool { return p.Before(effective) })
	final.Merge(next.Filter(func(p Period) bool { return !p.Before(effective) }))
	if !catchup.IsZero() {
		final.Add(effective, catchup)
	}

	return &CatchupResult{
		EffectivePeriod: effective,
		Old:             prev,
		New:             next,
		Delta:           delta,
		Final:           final,
		CatchupAmount:   catchup,
	}
}

// catchupEntry debits deferred revenue and credits revenue for a positive
// catch-up. A negative one reverses the accounts; the amount is always
// non-negative.
func (b *Builder) catchupEntry(contractID string, effective Period, amount decimal.Decimal) JournalEntry {
	debit, credit := b.policy.DeferredRevenueAccount, b.policy.RevenueAccount
	if amount.IsNegative() {
		debit, credit = credit, debit
	}
	return JournalEntry{
		ContractID:    contractID,
		Period:        effective,
		DebitAccount:  debit,
		CreditAccount: credit,
		Amount:        amount.Abs(),
		Memo:          fmt.Sprintf("Cumulative catch-up for contract %s effective %s", contractID, effective),
	}
}
