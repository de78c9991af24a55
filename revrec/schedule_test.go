package revrec_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/revrec-engine/revrec"
)

func TestSchedule_AddAccumulates(t *testing.T) {
	s := revrec.NewSchedule()
	s.Add(period("2025-02"), money("10.005"))
	s.Add(period("2025-02"), money("5"))
	s.Add(period("2025-01"), money("1"))

	assert.Equal(t, []revrec.Period{period("2025-01"), period("2025-02")}, s.Periods())
	assertMoney(t, "15.01", s.Get(period("2025-02")))
	assertMoney(t, "16.01", s.Total())
}

func TestSchedule_ZeroValueUsable(t *testing.T) {
	var s revrec.Schedule
	assert.Zero(t, s.Len())
	s.Add(period("2025-01"), money("1"))
	assert.Equal(t, 1, s.Len())
}

func TestSchedule_MergeAndClone(t *testing.T) {
	a := revrec.NewSchedule()
	a.Add(period("2025-01"), money("100"))
	b := revrec.NewSchedule()
	b.Add(period("2025-01"), money("50"))
	b.Add(period("2025-02"), money("25"))

	c := a.Clone()
	c.Merge(b)

	assert.Equal(t, map[string]string{"2025-01": "150.00", "2025-02": "25.00"}, amounts(c))
	assert.Equal(t, map[string]string{"2025-01": "100.00"}, amounts(a), "clone is independent")
}

func TestSchedule_EqualTreatsMissingAsZero(t *testing.T) {
	a := revrec.NewSchedule()
	a.Add(period("2025-01"), money("100"))
	a.Add(period("2025-02"), money("0"))
	b := revrec.NewSchedule()
	b.Add(period("2025-01"), money("100"))

	assert.True(t, a.Equal(b))
	b.Add(period("2025-03"), money("1"))
	assert.False(t, a.Equal(b))
}

func TestSchedule_JSONChronological(t *testing.T) {
	s := revrec.NewSchedule()
	s.Add(period("2025-03"), money("33.34"))
	s.Add(period("2024-12"), money("1"))
	s.Add(period("2025-01"), money("33.333"))

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `{"2024-12":1.00,"2025-01":33.33,"2025-03":33.34}`, string(b))

	var back revrec.Schedule
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.Equal(s))
}

func TestSchedule_UnmarshalRejectsBadPeriod(t *testing.T) {
	var s revrec.Schedule
	assert.Error(t, json.Unmarshal([]byte(`{"2025-1":10}`), &s))
}
