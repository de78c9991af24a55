/*
builder.go - Contract orchestration

PURPOSE:
  Build runs one contract through the engine in a single pass:

    1. validate everything (no computation on bad input)
    2. defer the loyalty liability out of the price
    3. allocate the net price across obligations by SSP
    4. schedule each obligation with its own method
    5. constrain point-in-time revenue for expected returns
    6. expense or amortize the commission plan

POLICY:
  Two simplifications are exposed as Policy rather than buried in code:
  the returns asset ratio (default 0.60) and the reference date used for
  loyalty and commission schedules when the contract supplies none
  (default: the first obligation's start date). Callers may override both.

SEE ALSO:
  - catchup.go: two builds diffed for a modification
*/
package revrec

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// POLICY
// =============================================================================

// ReferenceFunc picks the reference date for loyalty and commission
// schedules. ok is false when the contract has none.
type ReferenceFunc func(c Contract) (ref time.Time, ok bool)

// FirstObligationStart returns the start date of the first obligation that
// has one.
func FirstObligationStart(c Contract) (time.Time, bool) {
	for _, o := range c.Obligations {
		if o.StartDate != nil && !o.StartDate.IsZero() {
			return *o.StartDate, true
		}
	}
	return time.Time{}, false
}

type Policy struct {
	ReturnsAssetRatio decimal.Decimal
	ReferenceDate     ReferenceFunc

	// Accounts used for the catch-up journal entry.
	RevenueAccount         string
	DeferredRevenueAccount string
}

func DefaultPolicy() Policy {
	return Policy{
		ReturnsAssetRatio:      DefaultReturnsAssetRatio,
		ReferenceDate:          FirstObligationStart,
		RevenueAccount:         "4000-Revenue",
		DeferredRevenueAccount: "2100-Deferred Revenue",
	}
}

// =============================================================================
// BUILDER
// =============================================================================

// Builder is stateless apart from its policy; one instance may be shared
// across goroutines.
type Builder struct {
	policy Policy
	logger *zap.Logger
}

// NewBuilder fills an unset ReferenceDate and empty account names from
// DefaultPolicy. ReturnsAssetRatio is taken as given, so a zero ratio books
// no returns asset; start from DefaultPolicy for the 0.60 proxy. A nil
// logger disables logging.
func NewBuilder(policy Policy, logger *zap.Logger) *Builder {
	def := DefaultPolicy()
	if policy.ReferenceDate == nil {
		policy.ReferenceDate = def.ReferenceDate
	}
	if policy.RevenueAccount == "" {
		policy.RevenueAccount = def.RevenueAccount
	}
	if policy.DeferredRevenueAccount == "" {
		policy.DeferredRevenueAccount = def.DeferredRevenueAccount
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{policy: policy, logger: logger}
}

func (b *Builder) Policy() Policy { return b.policy }

// Build computes allocations, schedules and adjustments for c.
func (b *Builder) Build(c Contract) (*AllocationResponse, error) {
	if err := b.validate(c); err != nil {
		return nil, err
	}

	resp := &AllocationResponse{
		ContractID:       c.ID,
		TransactionPrice: RoundCents(c.TransactionPrice),
		Schedules:        make(map[string]Schedule, len(c.Obligations)),
	}
	current := resp.TransactionPrice

	// Loyalty comes out of the price before allocation.
	if vc := c.Variable; vc != nil && vc.LoyaltyPct.IsPositive() {
		ref, _ := b.loyaltyReference(c)
		liability := LoyaltyLiability(current, vc.LoyaltyPct)
		adj, err := LoyaltyRecognition(liability, ref, vc.LoyaltyMonths, vc.LoyaltyBreakageRate)
		if err != nil {
			return nil, err
		}
		current = current.Sub(liability)
		resp.Adjustments.Loyalty = &adj
	}
	resp.AllocatedPrice = current

	allocations, err := allocateObligations(c.Obligations, current)
	if err != nil {
		return nil, err
	}
	resp.Allocations = allocations

	pit := decimal.Zero
	for i, o := range c.Obligations {
		amount := allocations[i].Allocated
		s, err := o.Recognition.Schedule(amount)
		if err != nil {
			return nil, forObligation(o.ID, err)
		}
		resp.Schedules[o.ID] = s
		if o.Method() == MethodPointInTime {
			pit = pit.Add(amount)
		}
	}

	if vc := c.Variable; vc != nil && vc.ReturnsRate.IsPositive() {
		adj := ExpectedReturns(pit, vc.ReturnsRate, b.policy.ReturnsAssetRatio)
		resp.Adjustments.Returns = &adj
	}

	if cp := c.Commission; cp != nil && cp.TotalCommission.IsPositive() {
		ref, _ := b.policy.ReferenceDate(c)
		s := CommissionSchedule(*cp, ref)
		resp.CommissionSchedule = &s
	}

	b.logger.Debug("contract allocated",
		zap.String("contract_id", c.ID),
		zap.Int("obligations", len(c.Obligations)),
		zap.String("allocated_price", current.StringFixed(CentPlaces)),
		zap.Bool("returns", resp.Adjustments.Returns != nil),
		zap.Bool("loyalty", resp.Adjustments.Loyalty != nil),
	)
	return resp, nil
}

func (b *Builder) loyaltyReference(c Contract) (time.Time, bool) {
	if c.Variable != nil && c.Variable.LoyaltyStart != nil && !c.Variable.LoyaltyStart.IsZero() {
		return *c.Variable.LoyaltyStart, true
	}
	return b.policy.ReferenceDate(c)
}

// =============================================================================
// VALIDATION
// =============================================================================

func (b *Builder) validate(c Contract) error {
	if c.TransactionPrice.IsNegative() {
		return invalid("transaction_price", ErrNegativeAmount, "transaction price %s is negative", c.TransactionPrice.String())
	}

	seen := make(map[string]bool, len(c.Obligations))
	for _, o := range c.Obligations {
		if o.ID == "" {
			return invalid("po_id", ErrMissingParameter, "obligation has no id")
		}
		if seen[o.ID] {
			return &ValidationError{ObligationID: o.ID, Field: "po_id", Reason: "duplicate obligation id", Err: ErrDuplicateObligation}
		}
		seen[o.ID] = true

		if o.SSP.IsNegative() {
			return &ValidationError{ObligationID: o.ID, Field: "ssp", Reason: "ssp " + o.SSP.String() + " is negative", Err: ErrNegativeAmount}
		}
		if o.Recognition == nil {
			return &ValidationError{ObligationID: o.ID, Field: "method", Reason: "no recognition method", Err: ErrMissingParameter}
		}
		if err := o.Recognition.Validate(); err != nil {
			return forObligation(o.ID, err)
		}
	}

	if vc := c.Variable; vc != nil {
		rates := []struct {
			field string
			v     decimal.Decimal
		}{
			{"returns_rate", vc.ReturnsRate},
			{"loyalty_pct", vc.LoyaltyPct},
			{"loyalty_breakage_rate", vc.LoyaltyBreakageRate},
		}
		for _, r := range rates {
			if err := checkUnitRange(r.field, r.v); err != nil {
				return err
			}
		}
		if vc.LoyaltyPct.IsPositive() {
			if vc.LoyaltyMonths <= 0 {
				return invalid("loyalty_months", ErrMissingParameter, "loyalty_months must be positive, got %d", vc.LoyaltyMonths)
			}
			if _, ok := b.loyaltyReference(c); !ok {
				return invalid("loyalty_start", ErrMissingParameter, "no loyalty reference date and no obligation start date")
			}
		}
	}

	if cp := c.Commission; cp != nil {
		if cp.TotalCommission.IsNegative() {
			return invalid("commission.total_commission", ErrNegativeAmount, "commission %s is negative", cp.TotalCommission.String())
		}
		if cp.TotalCommission.IsPositive() {
			if cp.BenefitMonths <= 0 {
				return invalid("commission.benefit_months", ErrMissingParameter, "benefit_months must be positive, got %d", cp.BenefitMonths)
			}
			if _, ok := b.policy.ReferenceDate(c); !ok {
				return invalid("commission", ErrMissingParameter, "no obligation start date to amortize from")
			}
		}
	}
	return nil
}

// =============================================================================
// BATCH
// =============================================================================

// BuildAll builds contracts concurrently, at most limit at a time (limit
// <= 0 means unbounded). Results keep the input order. The first failure
// cancels the remaining work and is returned wrapped with its contract id.
func (b *Builder) BuildAll(ctx context.Context, contracts []Contract, limit int) ([]*AllocationResponse, error) {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	out := make([]*AllocationResponse, len(contracts))
	for i, c := range contracts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			resp, err := b.Build(c)
			if err != nil {
				return fmt.Errorf("contract %s: %w", c.ID, err)
			}
			out[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
