package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/revrec-engine/revrec"
)

// =============================================================================
// POSTER - AllocationResponse -> journal entries
// =============================================================================
//
// ENTRIES PER CONTRACT:
//   inception   Dr Revenue            Cr Refund Liability    returns reserve
//   inception   Dr Returns Asset      Cr Cost of Goods Sold  returns asset
//   inception   Dr Revenue            Cr Loyalty Liability   loyalty deferral
//   each month  Dr Deferred Revenue   Cr Revenue             recognized revenue
//   each month  Dr Loyalty Liability  Cr Revenue             loyalty release
//   each month  Dr Commission Expense Cr Deferred Costs      amortization
//
// Zero amounts are skipped. A negative amount swaps debit and credit so
// every stored entry is positive.

type Poster struct {
	accounts Accounts
}

// NewPoster fills blank accounts from DefaultAccounts.
func NewPoster(accounts Accounts) *Poster {
	return &Poster{accounts: accounts.withDefaults()}
}

func (p *Poster) Accounts() Accounts { return p.accounts }

// Entries builds every entry for resp. inception is the month returns and
// loyalty deferral are booked; when zero, the first scheduled month is used.
func (p *Poster) Entries(resp *revrec.AllocationResponse, inception revrec.Period) []JournalEntry {
	if inception.IsZero() {
		inception = InceptionPeriod(resp)
	}
	a := p.accounts
	id := resp.ContractID
	var out []JournalEntry

	if r := resp.Adjustments.Returns; r != nil {
		out = appendEntry(out, id, inception, KindReturnsReserve, a.Revenue, a.RefundLiability, r.RefundLiability,
			fmt.Sprintf("Expected returns reserve %s", id))
		out = appendEntry(out, id, inception, KindReturnsAsset, a.ReturnsAsset, a.CostOfGoodsSold, r.ReturnsAsset,
			fmt.Sprintf("Expected returns asset %s", id))
	}

	if l := resp.Adjustments.Loyalty; l != nil {
		out = appendEntry(out, id, inception, KindLoyaltyDeferral, a.Revenue, a.LoyaltyLiability, l.Deferred,
			fmt.Sprintf("Loyalty material right deferral %s", id))
	}

	for _, e := range resp.Combined().Entries() {
		out = appendEntry(out, id, e.Period, KindRevenue, a.DeferredRevenue, a.Revenue, e.Amount,
			fmt.Sprintf("Revenue recognition %s", id))
	}

	if l := resp.Adjustments.Loyalty; l != nil {
		for _, e := range l.Schedule.Entries() {
			out = appendEntry(out, id, e.Period, KindLoyaltyRelease, a.LoyaltyLiability, a.Revenue, e.Amount,
				fmt.Sprintf("Loyalty redemption/breakage %s", id))
		}
	}

	if resp.CommissionSchedule != nil {
		for _, e := range resp.CommissionSchedule.Entries() {
			out = appendEntry(out, id, e.Period, KindCommission, a.CommissionExpense, a.DeferredContractCosts, e.Amount,
				fmt.Sprintf("Commission amortization %s", id))
		}
	}
	return out
}

// Catchup converts the engine's catch-up record into a ledger entry. A
// zero catch-up produces no entry.
func (p *Poster) Catchup(res *revrec.CatchupResult) (JournalEntry, bool) {
	je := res.JournalEntry
	if je.Amount.IsZero() {
		return JournalEntry{}, false
	}
	return JournalEntry{
		ContractID:     je.ContractID,
		Period:         je.Period,
		Debit:          je.DebitAccount,
		Credit:         je.CreditAccount,
		Amount:         je.Amount,
		Memo:           je.Memo,
		Kind:           KindCatchup,
		IdempotencyKey: idempotencyKey(je.ContractID, KindCatchup, je.Period, je.DebitAccount) + ":" + je.Amount.StringFixed(revrec.CentPlaces),
	}, true
}

// InceptionPeriod is the earliest month any schedule of resp touches.
func InceptionPeriod(resp *revrec.AllocationResponse) revrec.Period {
	var first revrec.Period
	consider := func(s revrec.Schedule) {
		ps := s.Periods()
		if len(ps) > 0 && (first.IsZero() || ps[0].Before(first)) {
			first = ps[0]
		}
	}
	consider(resp.Combined())
	if resp.Adjustments.Loyalty != nil {
		consider(resp.Adjustments.Loyalty.Schedule)
	}
	if resp.CommissionSchedule != nil {
		consider(*resp.CommissionSchedule)
	}
	return first
}

func appendEntry(out []JournalEntry, contractID string, period revrec.Period, kind Kind, debit, credit string, amount decimal.Decimal, memo string) []JournalEntry {
	if amount.IsZero() || period.IsZero() {
		return out
	}
	if amount.IsNegative() {
		debit, credit = credit, debit
		amount = amount.Abs()
	}
	return append(out, JournalEntry{
		ContractID:     contractID,
		Period:         period,
		Debit:          debit,
		Credit:         credit,
		Amount:         amount,
		Memo:           memo,
		Kind:           kind,
		IdempotencyKey: idempotencyKey(contractID, kind, period, debit),
	})
}

// idempotencyKey identifies an entry by what it books, so reposting the
// same allocation is rejected instead of doubled.
func idempotencyKey(contractID string, kind Kind, period revrec.Period, debit string) string {
	return fmt.Sprintf("%s:%s:%s:%s", contractID, kind, period, debit)
}
