package revrec_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/revrec-engine/revrec"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func money(s string) decimal.Decimal { return revrec.MustMoney(s) }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func period(s string) revrec.Period { return revrec.MustParsePeriod(s) }

// amounts renders a schedule as period -> "0.00" for readable assertions.
func amounts(s revrec.Schedule) map[string]string {
	out := make(map[string]string, s.Len())
	for _, e := range s.Entries() {
		out[e.Period.String()] = e.Amount.StringFixed(2)
	}
	return out
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, money(want).StringFixed(2), got.StringFixed(2), msgAndArgs...)
}

func straightLine(id string, ssp string, start, end time.Time) revrec.Obligation {
	return revrec.Obligation{
		ID:          id,
		SSP:         money(ssp),
		Recognition: revrec.StraightLine{Start: start, End: end},
		StartDate:   &start,
		EndDate:     &end,
	}
}

func pointInTime(id string, ssp string, at time.Time) revrec.Obligation {
	return revrec.Obligation{
		ID:          id,
		SSP:         money(ssp),
		Recognition: revrec.PointInTime{At: at},
		StartDate:   &at,
	}
}
