/*
variable.go - Variable consideration: expected returns and loyalty

PURPOSE:
  Two estimates reshape the transaction price:

  RETURNS: a share of point-in-time revenue is expected to come back.
    contra_revenue   = -round(pit * rate, 2)
    refund_liability = -contra_revenue
    returns_asset    =  round(refund_liability * asset_ratio, 2)
  The asset ratio is a proxy for the cost of goods recovered. It defaults
  to 0.60 and is configurable through Policy.

  LOYALTY: points granted with the sale are a material right. A slice of
  the price is deferred before allocation and recognized later:
    liability = round(price * pct, 2)
    expected  = round(liability * (1 - breakage), 2)   straight-line
    breakage  = liability - expected                   final month
*/
package revrec

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultReturnsAssetRatio is the cost-of-returned-goods proxy.
var DefaultReturnsAssetRatio = decimal.RequireFromString("0.60")

// =============================================================================
// RETURNS
// =============================================================================

// ExpectedReturns computes the returns triple. Either input being zero
// yields the all-zero triple.
func ExpectedReturns(pitRevenue, rate, assetRatio decimal.Decimal) ReturnsAdjustment {
	if pitRevenue.IsZero() || rate.IsZero() {
		return ReturnsAdjustment{
			ContraRevenue:   decimal.Zero,
			RefundLiability: decimal.Zero,
			ReturnsAsset:    decimal.Zero,
		}
	}
	contra := RoundCents(pitRevenue.Mul(rate)).Neg()
	refund := contra.Neg()
	return ReturnsAdjustment{
		ContraRevenue:   contra,
		RefundLiability: refund,
		ReturnsAsset:    RoundCents(refund.Mul(assetRatio)),
	}
}

// =============================================================================
// LOYALTY
// =============================================================================

// LoyaltyLiability is the amount deferred out of the transaction price.
func LoyaltyLiability(price, pct decimal.Decimal) decimal.Decimal {
	return RoundCents(price.Mul(pct))
}

// LoyaltyRecognition splits liability into redemption and breakage and
// builds the schedule that releases it: redemption straight-line over
// months starting at start's month, breakage all in the last month.
func LoyaltyRecognition(liability decimal.Decimal, start time.Time, months int, breakageRate decimal.Decimal) (LoyaltyAdjustment, error) {
	if months <= 0 {
		return LoyaltyAdjustment{}, invalid("loyalty_months", ErrMissingParameter, "loyalty_months must be positive, got %d", months)
	}
	if err := checkUnitRange("loyalty_breakage_rate", breakageRate); err != nil {
		return LoyaltyAdjustment{}, err
	}

	expected := RoundCents(liability.Mul(one.Sub(breakageRate)))
	breakage := liability.Sub(expected)

	adj := LoyaltyAdjustment{
		Deferred:           liability,
		ExpectedRedemption: expected,
		Breakage:           breakage,
		ReferenceDate:      FloorToMonth(start),
		Schedule:           NewSchedule(),
	}
	if liability.IsZero() {
		return adj, nil
	}

	first := PeriodOf(start)
	periods := make([]Period, months)
	for i := range periods {
		periods[i] = first.AddMonths(i)
	}
	adj.Schedule = evenly(expected, periods)
	adj.Schedule.Add(periods[months-1], breakage)
	return adj, nil
}

// LoyaltyRecognitionSchedule is LoyaltyRecognition without the split.
func LoyaltyRecognitionSchedule(liability decimal.Decimal, start time.Time, months int, breakageRate decimal.Decimal) (Schedule, error) {
	adj, err := LoyaltyRecognition(liability, start, months, breakageRate)
	if err != nil {
		return Schedule{}, err
	}
	return adj.Schedule, nil
}
