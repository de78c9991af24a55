/*
Package ledger records the accounting entries produced by the revenue engine.

PURPOSE:
  The engine computes schedules; the ledger is where they become journal
  entries. Every recognized month, returns reserve, loyalty deferral,
  commission amortization and modification catch-up is one double-entry
  record with a positive amount, a debit account and a credit account.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. BALANCED: every entry debits and credits the same positive amount
  3. IDEMPOTENT: same idempotency key = same entry (no duplicates)

CORRECTIONS:
  A wrong posting is never edited. Post the reversing entry (accounts
  swapped) and then the right one; both stay in the journal.

SEE ALSO:
  - poster.go: AllocationResponse -> entries
  - ledger.go: Store interface and idempotent Ledger
  - store/memory.go: In-memory store for tests
  - store/sqlite: SQLite store
*/
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/revrec-engine/revrec"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned when an entry was already posted.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrInvalidEntry is returned for an entry that cannot be posted.
	ErrInvalidEntry = errors.New("invalid journal entry")
)

// =============================================================================
// ENTRY
// =============================================================================

// Kind classifies what produced an entry.
type Kind string

const (
	KindRevenue         Kind = "revenue_recognition"
	KindReturnsReserve  Kind = "returns_reserve"
	KindReturnsAsset    Kind = "returns_asset"
	KindLoyaltyDeferral Kind = "loyalty_deferral"
	KindLoyaltyRelease  Kind = "loyalty_recognition"
	KindCommission      Kind = "commission_amortization"
	KindCatchup         Kind = "modification_catchup"
)

// JournalEntry is one double-entry posting.
type JournalEntry struct {
	ID             string          `json:"id"`
	ContractID     string          `json:"contract_id"`
	Period         revrec.Period   `json:"period"`
	Debit          string          `json:"debit"`
	Credit         string          `json:"credit"`
	Amount         decimal.Decimal `json:"amount"`
	Memo           string          `json:"memo"`
	Kind           Kind            `json:"kind"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Validate checks the double-entry shape.
func (e JournalEntry) Validate() error {
	switch {
	case e.ContractID == "":
		return fmt.Errorf("%w: missing contract id", ErrInvalidEntry)
	case e.Period.IsZero():
		return fmt.Errorf("%w: missing period", ErrInvalidEntry)
	case e.Debit == "" || e.Credit == "":
		return fmt.Errorf("%w: missing account", ErrInvalidEntry)
	case e.Debit == e.Credit:
		return fmt.Errorf("%w: debit and credit are both %s", ErrInvalidEntry, e.Debit)
	case e.Amount.IsNegative():
		return fmt.Errorf("%w: negative amount %s", ErrInvalidEntry, e.Amount)
	}
	return nil
}

// Reversal returns the entry that cancels e.
func (e JournalEntry) Reversal(idempotencyKey string) JournalEntry {
	r := e
	r.ID = ""
	r.Debit, r.Credit = e.Credit, e.Debit
	r.Memo = "Reversal: " + e.Memo
	r.IdempotencyKey = idempotencyKey
	r.CreatedAt = time.Time{}
	return r
}

// =============================================================================
// CHART OF ACCOUNTS
// =============================================================================

// Accounts names the ledger accounts the poster writes to.
type Accounts struct {
	Revenue               string `mapstructure:"revenue" json:"revenue"`
	DeferredRevenue       string `mapstructure:"deferred_revenue" json:"deferred_revenue"`
	CommissionExpense     string `mapstructure:"commission_expense" json:"commission_expense"`
	DeferredContractCosts string `mapstructure:"deferred_contract_costs" json:"deferred_contract_costs"`
	RefundLiability       string `mapstructure:"refund_liability" json:"refund_liability"`
	ReturnsAsset          string `mapstructure:"returns_asset" json:"returns_asset"`
	CostOfGoodsSold       string `mapstructure:"cost_of_goods_sold" json:"cost_of_goods_sold"`
	LoyaltyLiability      string `mapstructure:"loyalty_liability" json:"loyalty_liability"`
}

func DefaultAccounts() Accounts {
	return Accounts{
		Revenue:               "4000-Revenue",
		DeferredRevenue:       "2100-Deferred Revenue",
		CommissionExpense:     "6100-Commission Expense",
		DeferredContractCosts: "1305-Deferred Contract Costs",
		RefundLiability:       "2300-Refund Liability",
		ReturnsAsset:          "1400-Returns Asset",
		CostOfGoodsSold:       "5000-Cost of Goods Sold",
		LoyaltyLiability:      "2150-Loyalty Liability",
	}
}

// withDefaults fills blank accounts from DefaultAccounts.
func (a Accounts) withDefaults() Accounts {
	d := DefaultAccounts()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&a.Revenue, d.Revenue)
	fill(&a.DeferredRevenue, d.DeferredRevenue)
	fill(&a.CommissionExpense, d.CommissionExpense)
	fill(&a.DeferredContractCosts, d.DeferredContractCosts)
	fill(&a.RefundLiability, d.RefundLiability)
	fill(&a.ReturnsAsset, d.ReturnsAsset)
	fill(&a.CostOfGoodsSold, d.CostOfGoodsSold)
	fill(&a.LoyaltyLiability, d.LoyaltyLiability)
	return a
}
