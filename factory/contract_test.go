package factory_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/revrec-engine/factory"
	"github.com/warp/revrec-engine/revrec"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return data
}

// =============================================================================
// CONTRACT PARSING
// =============================================================================

func TestParseContract_Bundle(t *testing.T) {
	f := factory.NewContractFactory()

	c, err := f.ParseContract(readFixture(t, "bundle.json"))
	require.NoError(t, err)

	assert.Equal(t, "C-100", c.ID)
	assert.Equal(t, "Acme", c.Customer)
	assert.Equal(t, "1000.00", c.TransactionPrice.StringFixed(2))
	require.Len(t, c.Obligations, 2)

	hw := c.Obligations[0]
	assert.Equal(t, revrec.MethodPointInTime, hw.Method())
	pit, ok := hw.Recognition.(revrec.PointInTime)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC), pit.At)

	sl, ok := c.Obligations[1].Recognition.(revrec.StraightLine)
	require.True(t, ok)
	assert.Equal(t, 12, sl.Months())

	require.NotNil(t, c.Variable)
	assert.Equal(t, "0.05", c.Variable.ReturnsRate.String())
	assert.Equal(t, 12, c.Variable.LoyaltyMonths)

	require.NotNil(t, c.Commission)
	assert.Equal(t, 24, c.Commission.BenefitMonths)
	assert.False(t, c.Commission.PracticalExpedient)
}

func TestParseContract_BuildsEndToEnd(t *testing.T) {
	c, err := factory.NewContractFactory().ParseContract(readFixture(t, "bundle.json"))
	require.NoError(t, err)

	resp, err := revrec.NewBuilder(revrec.DefaultPolicy(), nil).Build(c)
	require.NoError(t, err)
	assert.Equal(t, "900.00", resp.AllocatedPrice.StringFixed(2))
	assert.True(t, resp.Combined().Total().Equal(resp.AllocatedPrice))
}

func TestParseContract_MethodParams(t *testing.T) {
	doc := `{
	  "contract_id": "C-1", "transaction_price": 900,
	  "pos": [
	    {"po_id": "impl", "ssp": 300, "method": "milestone",
	     "params": {"milestones": [
	       {"id": "m1", "percent_of_price": 0.4, "met_date": "2025-02-10"},
	       {"id": "m2", "percent_of_price": 0.6}
	     ]}},
	    {"po_id": "build", "ssp": 300, "method": "percent_complete",
	     "params": {"percent_schedule": [
	       {"period": "2025-01", "percent_cumulative": 0.25},
	       {"period": "2025-02", "percent_cumulative": 1}
	     ]}},
	    {"po_id": "api", "ssp": 300, "method": "usage_based",
	     "params": {"usage_curve": [
	       {"period": "2025-01", "share": 1},
	       {"period": "2025-02", "share": 3}
	     ]}}
	  ]
	}`

	c, err := factory.NewContractFactory().ParseContract([]byte(doc))
	require.NoError(t, err)
	require.Len(t, c.Obligations, 3)

	ms := c.Obligations[0].Recognition.(revrec.Milestones)
	require.Len(t, ms.Milestones, 2)
	assert.True(t, ms.Milestones[0].Met())
	assert.False(t, ms.Milestones[1].Met())

	pc := c.Obligations[1].Recognition.(revrec.PercentComplete)
	assert.Equal(t, "2025-02", pc.Progress[1].Period.String())

	ub := c.Obligations[2].Recognition.(revrec.UsageBased)
	assert.Equal(t, "3", ub.Curve[1].Share.String())
}

func TestParseContract_Defaults(t *testing.T) {
	doc := `{
	  "contract_id": "C-1", "transaction_price": 100,
	  "pos": [{"po_id": "a", "ssp": 100, "method": "point_in_time", "start_date": "2025-01-01"}],
	  "variable": {"loyalty_pct": 0.1},
	  "commission": {"total_commission": 50}
	}`

	c, err := factory.NewContractFactory().ParseContract([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 12, c.Variable.LoyaltyMonths)
	assert.Equal(t, 12, c.Commission.BenefitMonths)
}

func TestParseContract_ValidationErrors(t *testing.T) {
	tests := []struct {
		name         string
		doc          string
		obligationID string
		field        string
		sentinel     error
	}{
		{
			name:     "missing contract id",
			doc:      `{"transaction_price": 1, "pos": []}`,
			field:    "contract_id",
			sentinel: revrec.ErrMissingParameter,
		},
		{
			name:     "missing po id",
			doc:      `{"contract_id": "C", "pos": [{"ssp": 1, "method": "point_in_time", "start_date": "2025-01-01"}]}`,
			field:    "po_id",
			sentinel: revrec.ErrMissingParameter,
		},
		{
			name:         "unknown method",
			doc:          `{"contract_id": "C", "pos": [{"po_id": "x", "ssp": 1, "method": "magic"}]}`,
			obligationID: "x",
			field:        "method",
			sentinel:     revrec.ErrUnknownMethod,
		},
		{
			name:         "bad date",
			doc:          `{"contract_id": "C", "pos": [{"po_id": "x", "ssp": 1, "method": "point_in_time", "start_date": "01/02/2025"}]}`,
			obligationID: "x",
			field:        "start_date",
			sentinel:     revrec.ErrValidation,
		},
		{
			name:         "straight line without end",
			doc:          `{"contract_id": "C", "pos": [{"po_id": "x", "ssp": 1, "method": "straight_line", "start_date": "2025-01-01"}]}`,
			obligationID: "x",
			field:        "end_date",
			sentinel:     revrec.ErrMissingParameter,
		},
		{
			name:         "milestone without milestones",
			doc:          `{"contract_id": "C", "pos": [{"po_id": "x", "ssp": 1, "method": "milestone"}]}`,
			obligationID: "x",
			field:        "params.milestones",
			sentinel:     revrec.ErrMissingParameter,
		},
		{
			name:         "milestones not summing to one",
			doc:          `{"contract_id": "C", "pos": [{"po_id": "x", "ssp": 1, "method": "milestone", "params": {"milestones": [{"id": "m", "percent_of_price": 0.5}]}}]}`,
			obligationID: "x",
			sentinel:     revrec.ErrMilestoneSum,
		},
		{
			name:         "bad progress period",
			doc:          `{"contract_id": "C", "pos": [{"po_id": "x", "ssp": 1, "method": "percent_complete", "params": {"percent_schedule": [{"period": "2025-1", "percent_cumulative": 1}]}}]}`,
			obligationID: "x",
			field:        "params.percent_schedule[0].period",
			sentinel:     revrec.ErrValidation,
		},
		{
			name:     "loyalty months below one",
			doc:      `{"contract_id": "C", "pos": [], "variable": {"loyalty_months": 0}}`,
			field:    "variable.loyalty_months",
			sentinel: revrec.ErrValidation,
		},
	}

	f := factory.NewContractFactory()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ParseContract([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.True(t, revrec.IsValidation(err))

			var verr *revrec.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.obligationID, verr.ObligationID)
			if tt.field != "" {
				assert.Equal(t, tt.field, verr.Field)
			}
		})
	}
}

func TestParseContract_MalformedJSON(t *testing.T) {
	_, err := factory.NewContractFactory().ParseContract([]byte(`{"contract_id": `))
	assert.ErrorIs(t, err, factory.ErrMalformedJSON)
	assert.False(t, revrec.IsValidation(err))
}

func TestToJSON_RoundTrip(t *testing.T) {
	// GIVEN: a parsed contract
	// WHEN: converting back to a document and parsing again
	// THEN: the rebuilt contract allocates identically

	f := factory.NewContractFactory()
	b := revrec.NewBuilder(revrec.DefaultPolicy(), nil)

	c, err := f.ParseContract(readFixture(t, "bundle.json"))
	require.NoError(t, err)

	again, err := f.FromJSON(f.ToJSON(c))
	require.NoError(t, err)

	want, err := b.Build(c)
	require.NoError(t, err)
	got, err := b.Build(again)
	require.NoError(t, err)
	assert.True(t, want.Combined().Equal(got.Combined()))
}

// =============================================================================
// MODIFICATIONS
// =============================================================================

func TestParseModification(t *testing.T) {
	f := factory.NewContractFactory()

	mod, err := f.ParseModification(readFixture(t, "modification.json"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), mod.EffectiveDate)
	assert.Equal(t, "120", mod.PriceDelta.String())
	assert.Empty(t, mod.AddObligations)

	_, err = f.ParseModification([]byte(`{"transaction_price_delta": 5}`))
	assert.ErrorIs(t, err, revrec.ErrMissingParameter)
}

func TestParseModification_AddAndRemove(t *testing.T) {
	doc := `{
	  "effective_date": "2025-04-01",
	  "remove_po_ids": ["old"],
	  "add_pos": [{"po_id": "new", "ssp": 10, "method": "point_in_time", "start_date": "2025-04-01"}]
	}`

	mod, err := factory.NewContractFactory().ParseModification([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, mod.RemoveObligationIDs)
	require.Len(t, mod.AddObligations, 1)
	assert.Equal(t, "new", mod.AddObligations[0].ID)
}

func TestParseCatchupRequest(t *testing.T) {
	doc := `{"base": ` + string(readFixture(t, "service.json")) + `, "modification": ` + string(readFixture(t, "modification.json")) + `}`

	base, mod, err := factory.NewContractFactory().ParseCatchupRequest([]byte(doc))
	require.NoError(t, err)

	res, err := revrec.NewBuilder(revrec.DefaultPolicy(), nil).Catchup(base, mod)
	require.NoError(t, err)
	assert.Equal(t, "60.00", res.CatchupAmount.StringFixed(2))
}
