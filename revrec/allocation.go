package revrec

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// ALLOCATION - relative SSP
// =============================================================================

// Allocate splits total across obligations in proportion to their
// standalone selling prices. The result has the same length and order as
// ssps and sums to total exactly: every entry but the last is rounded to
// the cent, the last takes the remainder. When every SSP is zero the
// split is even. An empty list allocates nothing.
func Allocate(ssps []decimal.Decimal, total decimal.Decimal) ([]decimal.Decimal, error) {
	for _, v := range ssps {
		if v.IsNegative() {
			return nil, invalid("ssp", ErrNegativeAmount, "ssp %s is negative", v.String())
		}
	}
	return distribute(RoundCents(total), ssps), nil
}

// allocateObligations pairs each obligation with its share of total.
func allocateObligations(obligations []Obligation, total decimal.Decimal) ([]Allocation, error) {
	ssps := make([]decimal.Decimal, len(obligations))
	for i, o := range obligations {
		ssps[i] = o.SSP
	}
	amounts, err := Allocate(ssps, total)
	if err != nil {
		return nil, err
	}

	out := make([]Allocation, len(obligations))
	for i, o := range obligations {
		out[i] = Allocation{
			ObligationID: o.ID,
			Method:       o.Method(),
			SSP:          o.SSP,
			Allocated:    amounts[i],
		}
	}
	return out, nil
}
