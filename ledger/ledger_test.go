package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/revrec-engine/ledger"
	"github.com/warp/revrec-engine/ledger/store"
	"github.com/warp/revrec-engine/revrec"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger() *ledger.Ledger {
	return ledger.NewLedger(store.NewMemory())
}

func entry(period, key string, amount string) ledger.JournalEntry {
	return ledger.JournalEntry{
		ContractID:     "C-1",
		Period:         revrec.MustParsePeriod(period),
		Debit:          "2100-Deferred Revenue",
		Credit:         "4000-Revenue",
		Amount:         revrec.MustMoney(amount),
		Memo:           "test",
		Kind:           ledger.KindRevenue,
		IdempotencyKey: key,
	}
}

func bundleResponse(t *testing.T) *revrec.AllocationResponse {
	jan := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	dec := time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC)
	c := revrec.Contract{
		ID:               "C-1",
		TransactionPrice: revrec.MustMoney("1000"),
		Obligations: []revrec.Obligation{
			{ID: "hw", SSP: revrec.MustMoney("600"), Recognition: revrec.PointInTime{At: jan}, StartDate: &jan},
			{ID: "svc", SSP: revrec.MustMoney("400"), Recognition: revrec.StraightLine{Start: jan, End: dec}},
		},
		Variable: &revrec.VariableConsideration{
			ReturnsRate:         revrec.MustMoney("0.05"),
			LoyaltyPct:          revrec.MustMoney("0.1"),
			LoyaltyMonths:       12,
			LoyaltyBreakageRate: revrec.MustMoney("0.2"),
		},
		Commission: &revrec.CommissionPlan{TotalCommission: revrec.MustMoney("240"), BenefitMonths: 24},
	}
	resp, err := revrec.NewBuilder(revrec.DefaultPolicy(), nil).Build(c)
	require.NoError(t, err)
	return resp
}

// =============================================================================
// LEDGER TESTS
// =============================================================================

func TestLedger_AppendStampsIDAndTime(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	require.NoError(t, l.Append(ctx, entry("2025-01", "k1", "10")))

	entries, err := l.Entries(ctx, "C-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].CreatedAt.IsZero())
}

func TestLedger_DuplicateIdempotencyKey_Rejected(t *testing.T) {
	// GIVEN: an entry already posted
	// WHEN: posting again with the same key
	// THEN: rejected, journal unchanged

	ctx := context.Background()
	l := newTestLedger()

	require.NoError(t, l.Append(ctx, entry("2025-01", "k1", "10")))
	err := l.Append(ctx, entry("2025-01", "k1", "10"))
	assert.ErrorIs(t, err, ledger.ErrDuplicateIdempotencyKey)

	entries, _ := l.Entries(ctx, "C-1")
	assert.Len(t, entries, 1)
}

func TestLedger_AppendBatch_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	require.NoError(t, l.Append(ctx, entry("2025-02", "existing", "5")))

	_, err := l.AppendBatch(ctx, []ledger.JournalEntry{
		entry("2025-01", "new-1", "10"),
		entry("2025-02", "existing", "5"),
	})
	assert.ErrorIs(t, err, ledger.ErrDuplicateIdempotencyKey)

	entries, _ := l.Entries(ctx, "C-1")
	assert.Len(t, entries, 1, "batch must not be partially applied")
}

func TestLedger_InvalidEntry(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	bad := entry("2025-01", "", "10")
	bad.Credit = bad.Debit
	assert.ErrorIs(t, l.Append(ctx, bad), ledger.ErrInvalidEntry)

	neg := entry("2025-01", "", "-1")
	assert.ErrorIs(t, l.Append(ctx, neg), ledger.ErrInvalidEntry)
}

func TestLedger_EntriesOrderedByPeriod(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	_, err := l.AppendBatch(ctx, []ledger.JournalEntry{
		entry("2025-03", "c", "3"),
		entry("2025-01", "a", "1"),
		entry("2025-02", "b", "2"),
	})
	require.NoError(t, err)

	entries, err := l.Entries(ctx, "C-1")
	require.NoError(t, err)
	var got []string
	for _, e := range entries {
		got = append(got, e.Period.String())
	}
	assert.Equal(t, []string{"2025-01", "2025-02", "2025-03"}, got)

	ranged, err := l.EntriesInRange(ctx, "C-1", revrec.MustParsePeriod("2025-02"), revrec.MustParsePeriod("2025-03"))
	require.NoError(t, err)
	assert.Len(t, ranged, 2)
}

func TestLedger_Reversal_NetsToZero(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()

	orig := entry("2025-01", "orig", "40")
	require.NoError(t, l.Append(ctx, orig))
	require.NoError(t, l.Append(ctx, orig.Reversal("orig-rev")))

	balances, err := l.Balances(ctx, "C-1")
	require.NoError(t, err)
	assert.True(t, balances["4000-Revenue"].IsZero())
	assert.True(t, balances["2100-Deferred Revenue"].IsZero())
}

// =============================================================================
// POSTER TESTS
// =============================================================================

func TestPoster_Entries_Balanced(t *testing.T) {
	resp := bundleResponse(t)
	entries := ledger.NewPoster(ledger.Accounts{}).Entries(resp, revrec.Period{})

	require.NotEmpty(t, entries)
	for _, e := range entries {
		assert.NoError(t, e.Validate())
		assert.True(t, e.Amount.IsPositive(), "%s %s", e.Kind, e.Period)
	}

	kinds := map[ledger.Kind]int{}
	for _, e := range entries {
		kinds[e.Kind]++
	}
	assert.Equal(t, 1, kinds[ledger.KindReturnsReserve])
	assert.Equal(t, 1, kinds[ledger.KindReturnsAsset])
	assert.Equal(t, 1, kinds[ledger.KindLoyaltyDeferral])
	assert.Equal(t, 12, kinds[ledger.KindRevenue])
	assert.Equal(t, 12, kinds[ledger.KindLoyaltyRelease])
	assert.Equal(t, 24, kinds[ledger.KindCommission])
}

func TestPoster_PostedRevenueMatchesSchedules(t *testing.T) {
	// GIVEN: a bundle with loyalty and returns
	// WHEN: posting every entry
	// THEN: credits to revenue per month equal the obligation schedules plus
	//       the loyalty release, and inception carries the deferrals

	ctx := context.Background()
	resp := bundleResponse(t)
	poster := ledger.NewPoster(ledger.DefaultAccounts())
	l := newTestLedger()

	_, err := l.AppendBatch(ctx, poster.Entries(resp, revrec.Period{}))
	require.NoError(t, err)

	activity, err := l.Activity(ctx, "C-1", "4000-Revenue")
	require.NoError(t, err)

	combined := resp.Combined()
	loyalty := resp.Adjustments.Loyalty.Schedule
	feb := revrec.MustParsePeriod("2025-02")
	assert.True(t, combined.Get(feb).Add(loyalty.Get(feb)).Equal(activity.Get(feb)))

	// January: 540 hardware + 30 support + 6.67 loyalty - 27 returns - 100 deferral
	jan := revrec.MustParsePeriod("2025-01")
	assert.Equal(t, "449.67", activity.Get(jan).StringFixed(2))

	balances, err := l.Balances(ctx, "C-1")
	require.NoError(t, err)
	assert.True(t, balances["2150-Loyalty Liability"].IsZero(), "loyalty liability fully released")
	assert.True(t, balances["1305-Deferred Contract Costs"].Equal(decimal.NewFromInt(-240)))
}

func TestPoster_Repost_Rejected(t *testing.T) {
	ctx := context.Background()
	resp := bundleResponse(t)
	poster := ledger.NewPoster(ledger.DefaultAccounts())
	l := newTestLedger()

	_, err := l.AppendBatch(ctx, poster.Entries(resp, revrec.Period{}))
	require.NoError(t, err)
	_, err = l.AppendBatch(ctx, poster.Entries(resp, revrec.Period{}))
	assert.ErrorIs(t, err, ledger.ErrDuplicateIdempotencyKey)
}

func TestPoster_Catchup(t *testing.T) {
	jan := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	dec := time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC)
	base := revrec.Contract{
		ID:               "C-2",
		TransactionPrice: revrec.MustMoney("1200"),
		Obligations: []revrec.Obligation{
			{ID: "svc", SSP: revrec.MustMoney("1200"), Recognition: revrec.StraightLine{Start: jan, End: dec}},
		},
	}
	b := revrec.NewBuilder(revrec.DefaultPolicy(), nil)
	poster := ledger.NewPoster(ledger.DefaultAccounts())

	res, err := b.Catchup(base, revrec.Modification{
		EffectiveDate: time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
		PriceDelta:    revrec.MustMoney("-120"),
	})
	require.NoError(t, err)

	e, ok := poster.Catchup(res)
	require.True(t, ok)
	assert.Equal(t, ledger.KindCatchup, e.Kind)
	assert.Equal(t, "4000-Revenue", e.Debit)
	assert.Equal(t, "60.00", e.Amount.StringFixed(2))

	noop, err := b.Catchup(base, revrec.Modification{EffectiveDate: jan})
	require.NoError(t, err)
	_, ok = poster.Catchup(noop)
	assert.False(t, ok)
}
