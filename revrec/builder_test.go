package revrec_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/revrec-engine/revrec"
	"go.uber.org/zap/zaptest"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestBuilder(t *testing.T) *revrec.Builder {
	return revrec.NewBuilder(revrec.DefaultPolicy(), zaptest.NewLogger(t))
}

// bundleContract is hardware at delivery plus a year of support, with
// loyalty points and expected returns.
func bundleContract() revrec.Contract {
	return revrec.Contract{
		ID:               "C-100",
		Customer:         "Acme",
		TransactionPrice: money("1000"),
		Obligations: []revrec.Obligation{
			pointInTime("hardware", "600", date(2025, time.January, 1)),
			straightLine("support", "400", date(2025, time.January, 1), date(2025, time.December, 31)),
		},
		Variable: &revrec.VariableConsideration{
			ReturnsRate:         money("0.05"),
			LoyaltyPct:          money("0.1"),
			LoyaltyMonths:       12,
			LoyaltyBreakageRate: money("0.2"),
		},
	}
}

// =============================================================================
// BUILD
// =============================================================================

func TestBuild_Bundle(t *testing.T) {
	// GIVEN: 1000 with 10% loyalty deferral, 5% returns
	// WHEN: building
	// THEN: 900 is allocated 60/40, returns hit the point-in-time share only

	resp, err := newTestBuilder(t).Build(bundleContract())
	require.NoError(t, err)

	assertMoney(t, "1000", resp.TransactionPrice)
	assertMoney(t, "900", resp.AllocatedPrice)
	require.Len(t, resp.Allocations, 2)
	assert.Equal(t, "hardware", resp.Allocations[0].ObligationID)
	assert.Equal(t, revrec.MethodPointInTime, resp.Allocations[0].Method)
	assertMoney(t, "540", resp.Allocations[0].Allocated)
	assertMoney(t, "360", resp.Allocations[1].Allocated)

	assert.Equal(t, map[string]string{"2025-01": "540.00"}, amounts(resp.Schedules["hardware"]))
	support := resp.Schedules["support"]
	assert.Equal(t, 12, support.Len())
	assertMoney(t, "30", support.Get(period("2025-06")))

	require.NotNil(t, resp.Adjustments.Returns)
	assertMoney(t, "-27", resp.Adjustments.Returns.ContraRevenue)
	assertMoney(t, "27", resp.Adjustments.Returns.RefundLiability)
	assertMoney(t, "16.20", resp.Adjustments.Returns.ReturnsAsset)

	require.NotNil(t, resp.Adjustments.Loyalty)
	assertMoney(t, "100", resp.Adjustments.Loyalty.Deferred)
	assert.Equal(t, date(2025, time.January, 1), resp.Adjustments.Loyalty.ReferenceDate)
	assertMoney(t, "100", resp.Adjustments.Loyalty.Schedule.Total())

	combined := resp.Combined()
	assertMoney(t, "570", combined.Get(period("2025-01")))
	assertMoney(t, "900", combined.Total())
	assert.Nil(t, resp.CommissionSchedule)
}

func TestBuild_SchedulesReconcileToAllocation(t *testing.T) {
	c := revrec.Contract{
		ID:               "C-odd",
		TransactionPrice: money("10000.01"),
		Obligations: []revrec.Obligation{
			straightLine("a", "3", date(2025, time.January, 1), date(2025, time.July, 1)),
			straightLine("b", "7", date(2025, time.March, 1), date(2026, time.February, 1)),
			pointInTime("c", "11", date(2025, time.May, 9)),
			{ID: "d", SSP: money("13"), Recognition: revrec.UsageBased{Curve: []revrec.UsageShare{
				{Period: period("2025-01"), Share: money("3")},
				{Period: period("2025-02"), Share: money("7")},
			}}},
		},
	}

	resp, err := newTestBuilder(t).Build(c)
	require.NoError(t, err)
	for _, a := range resp.Allocations {
		assertMoney(t, a.Allocated.String(), resp.Schedules[a.ObligationID].Total(), "obligation %s", a.ObligationID)
	}
	assertMoney(t, "10000.01", resp.Combined().Total())
}

func TestBuild_NoObligations(t *testing.T) {
	resp, err := newTestBuilder(t).Build(revrec.Contract{ID: "empty", TransactionPrice: money("500")})
	require.NoError(t, err)
	assert.Empty(t, resp.Allocations)
	assert.Zero(t, resp.Combined().Len())
	assert.True(t, resp.Adjustments.IsEmpty())
}

func TestBuild_ReturnsWithoutPointInTime_ZeroTriple(t *testing.T) {
	c := revrec.Contract{
		ID:               "C-svc",
		TransactionPrice: money("1200"),
		Obligations: []revrec.Obligation{
			straightLine("svc", "1200", date(2025, time.January, 1), date(2025, time.December, 1)),
		},
		Variable: &revrec.VariableConsideration{ReturnsRate: money("0.1")},
	}

	resp, err := newTestBuilder(t).Build(c)
	require.NoError(t, err)
	require.NotNil(t, resp.Adjustments.Returns)
	assert.True(t, resp.Adjustments.Returns.RefundLiability.IsZero())
	assert.Nil(t, resp.Adjustments.Loyalty)
}

func TestBuild_ExplicitLoyaltyStartOverridesPolicy(t *testing.T) {
	c := bundleContract()
	c.Variable.LoyaltyStart = datePtr(2025, time.April, 20)

	resp, err := newTestBuilder(t).Build(c)
	require.NoError(t, err)
	first := resp.Adjustments.Loyalty.Schedule.Periods()[0]
	assert.Equal(t, "2025-04", first.String())
}

func TestBuild_CustomPolicy(t *testing.T) {
	policy := revrec.Policy{
		ReturnsAssetRatio: money("0.5"),
		ReferenceDate: func(revrec.Contract) (time.Time, bool) {
			return date(2030, time.June, 1), true
		},
	}
	b := revrec.NewBuilder(policy, nil)

	resp, err := b.Build(bundleContract())
	require.NoError(t, err)
	assertMoney(t, "13.50", resp.Adjustments.Returns.ReturnsAsset)
	assert.Equal(t, "2030-06", resp.Adjustments.Loyalty.Schedule.Periods()[0].String())
	assert.Equal(t, "4000-Revenue", b.Policy().RevenueAccount)
}

func TestNewBuilder_ZeroPolicy(t *testing.T) {
	// GIVEN: an empty policy
	// WHEN: building the bundle
	// THEN: reference date and accounts come from the defaults, the returns
	// asset ratio stays zero as given

	b := revrec.NewBuilder(revrec.Policy{}, nil)
	assert.True(t, b.Policy().ReturnsAssetRatio.IsZero())
	assert.Equal(t, "4000-Revenue", b.Policy().RevenueAccount)
	assert.Equal(t, "2100-Deferred Revenue", b.Policy().DeferredRevenueAccount)

	resp, err := b.Build(bundleContract())
	require.NoError(t, err)
	require.NotNil(t, resp.Adjustments.Returns)
	assert.True(t, resp.Adjustments.Returns.ReturnsAsset.IsZero())
	assert.False(t, resp.Adjustments.Returns.RefundLiability.IsZero())

	def := revrec.NewBuilder(revrec.DefaultPolicy(), nil)
	assert.Equal(t, "0.6", def.Policy().ReturnsAssetRatio.String())
}

func TestBuild_Commission(t *testing.T) {
	c := bundleContract()
	c.Commission = &revrec.CommissionPlan{TotalCommission: money("1200"), BenefitMonths: 24}

	resp, err := newTestBuilder(t).Build(c)
	require.NoError(t, err)
	require.NotNil(t, resp.CommissionSchedule)
	assert.Equal(t, 24, resp.CommissionSchedule.Len())
	assertMoney(t, "50", resp.CommissionSchedule.Get(period("2026-12")))
	assertMoney(t, "1200", resp.CommissionSchedule.Total())
}

func TestBuild_DoesNotMutateInput(t *testing.T) {
	c := bundleContract()
	_, err := newTestBuilder(t).Build(c)
	require.NoError(t, err)
	assertMoney(t, "1000", c.TransactionPrice)
	assert.Len(t, c.Obligations, 2)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestBuild_MissingParameter_NamesObligation(t *testing.T) {
	// GIVEN: a straight-line obligation without an end date
	// WHEN: building
	// THEN: validation error naming the obligation and the field

	c := revrec.Contract{
		ID:               "C-bad",
		TransactionPrice: money("100"),
		Obligations: []revrec.Obligation{
			{ID: "support", SSP: money("100"), Recognition: revrec.StraightLine{Start: date(2025, time.January, 1)}},
		},
	}

	_, err := newTestBuilder(t).Build(c)

	var verr *revrec.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "support", verr.ObligationID)
	assert.Equal(t, "end_date", verr.Field)
	assert.ErrorIs(t, err, revrec.ErrMissingParameter)
	assert.ErrorIs(t, err, revrec.ErrValidation)
	assert.Contains(t, err.Error(), "support")
}

func TestBuild_MilestoneSum_NamesObligation(t *testing.T) {
	c := revrec.Contract{
		ID:               "C-ms",
		TransactionPrice: money("100"),
		Obligations: []revrec.Obligation{
			{ID: "impl", SSP: money("100"), Recognition: revrec.Milestones{Milestones: []revrec.Milestone{
				{PercentOfPrice: money("0.5"), MetDate: datePtr(2025, time.January, 1)},
			}}},
		},
	}

	_, err := newTestBuilder(t).Build(c)

	var verr *revrec.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "impl", verr.ObligationID)
	assert.ErrorIs(t, err, revrec.ErrMilestoneSum)
}

func TestBuild_ValidationErrors(t *testing.T) {
	jan := date(2025, time.January, 1)
	tests := []struct {
		name   string
		mutate func(c *revrec.Contract)
		want   error
	}{
		{"negative price", func(c *revrec.Contract) { c.TransactionPrice = money("-1") }, revrec.ErrNegativeAmount},
		{"duplicate id", func(c *revrec.Contract) {
			c.Obligations = append(c.Obligations, pointInTime("hardware", "1", jan))
		}, revrec.ErrDuplicateObligation},
		{"negative ssp", func(c *revrec.Contract) { c.Obligations[0].SSP = money("-5") }, revrec.ErrNegativeAmount},
		{"missing method", func(c *revrec.Contract) { c.Obligations[0].Recognition = nil }, revrec.ErrMissingParameter},
		{"missing id", func(c *revrec.Contract) { c.Obligations[1].ID = "" }, revrec.ErrMissingParameter},
		{"rate above one", func(c *revrec.Contract) { c.Variable.ReturnsRate = money("1.5") }, revrec.ErrRateOutOfRange},
		{"loyalty months", func(c *revrec.Contract) { c.Variable.LoyaltyMonths = 0 }, revrec.ErrMissingParameter},
		{"loyalty without reference", func(c *revrec.Contract) {
			for i := range c.Obligations {
				c.Obligations[i].StartDate = nil
			}
		}, revrec.ErrMissingParameter},
		{"commission months", func(c *revrec.Contract) {
			c.Commission = &revrec.CommissionPlan{TotalCommission: money("10")}
		}, revrec.ErrMissingParameter},
		{"negative commission", func(c *revrec.Contract) {
			c.Commission = &revrec.CommissionPlan{TotalCommission: money("-10"), BenefitMonths: 3}
		}, revrec.ErrNegativeAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := bundleContract()
			tt.mutate(&c)

			resp, err := newTestBuilder(t).Build(c)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, revrec.IsValidation(err))
		})
	}
}

// =============================================================================
// BATCH
// =============================================================================

func TestBuildAll_PreservesOrder(t *testing.T) {
	contracts := make([]revrec.Contract, 8)
	for i := range contracts {
		c := bundleContract()
		c.ID = fmt.Sprintf("C-%d", i)
		c.TransactionPrice = money("1000").Add(decimal.NewFromInt(int64(100 * i)))
		contracts[i] = c
	}

	out, err := newTestBuilder(t).BuildAll(context.Background(), contracts, 3)
	require.NoError(t, err)
	require.Len(t, out, len(contracts))
	for i, resp := range out {
		assert.Equal(t, contracts[i].ID, resp.ContractID)
		assertMoney(t, contracts[i].TransactionPrice.String(), resp.TransactionPrice)
	}
}

func TestBuildAll_FirstErrorWrapped(t *testing.T) {
	good := bundleContract()
	bad := bundleContract()
	bad.ID = "C-broken"
	bad.TransactionPrice = money("-1")

	_, err := newTestBuilder(t).BuildAll(context.Background(), []revrec.Contract{good, bad}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "C-broken")
	assert.True(t, errors.Is(err, revrec.ErrValidation))
}

func TestBuildAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestBuilder(t).BuildAll(ctx, []revrec.Contract{bundleContract()}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
