package revrec_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/revrec-engine/revrec"
)

func TestAddMonths_RollsOverYear(t *testing.T) {
	// GIVEN: mid-November
	// WHEN: adding two months
	// THEN: first of January next year

	got := revrec.AddMonths(date(2025, time.November, 15), 2)
	assert.Equal(t, date(2026, time.January, 1), got)
}

func TestAddMonths_NormalizesDay(t *testing.T) {
	assert.Equal(t, date(2025, time.February, 1), revrec.AddMonths(date(2025, time.January, 31), 1))
	assert.Equal(t, date(2025, time.March, 1), revrec.AddMonths(date(2025, time.March, 20), 0))
}

func TestAddMonths_Negative(t *testing.T) {
	assert.Equal(t, date(2024, time.December, 1), revrec.AddMonths(date(2025, time.January, 10), -1))
	assert.Equal(t, date(2023, time.December, 1), revrec.AddMonths(date(2025, time.January, 10), -13))
}

func TestMonthsBetween_Inclusive(t *testing.T) {
	var got []time.Time
	for m := range revrec.MonthsBetween(date(2025, time.January, 20), date(2025, time.March, 1)) {
		got = append(got, m)
	}
	assert.Equal(t, []time.Time{
		date(2025, time.January, 1),
		date(2025, time.February, 1),
		date(2025, time.March, 1),
	}, got)
}

func TestMonthsBetween_EndBeforeStart_Empty(t *testing.T) {
	count := 0
	for range revrec.MonthsBetween(date(2025, time.May, 1), date(2025, time.April, 30)) {
		count++
	}
	assert.Zero(t, count)
}

func TestMonthsBetween_Restartable(t *testing.T) {
	seq := revrec.MonthsBetween(date(2025, time.January, 1), date(2025, time.June, 1))

	first, second := 0, 0
	for range seq {
		first++
	}
	for range seq {
		second++
	}
	assert.Equal(t, 6, first)
	assert.Equal(t, first, second)
}

func TestParsePeriod(t *testing.T) {
	p, err := revrec.ParsePeriod("2025-07")
	require.NoError(t, err)
	assert.Equal(t, revrec.Period{Year: 2025, Month: time.July}, p)
	assert.Equal(t, "2025-07", p.String())

	for _, bad := range []string{"2025-7", "2025-13", "25-07", "2025/07", ""} {
		_, err := revrec.ParsePeriod(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestPeriod_StringOrderMatchesChronology(t *testing.T) {
	a, b := period("2024-12"), period("2025-01")
	assert.True(t, a.Before(b))
	assert.Less(t, a.String(), b.String())
	assert.Equal(t, b, a.Next())
}

func TestPeriod_JSONMapKey(t *testing.T) {
	b, err := json.Marshal(map[revrec.Period]int{period("2025-02"): 2, period("2025-01"): 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"2025-01":1,"2025-02":2}`, string(b))
}
