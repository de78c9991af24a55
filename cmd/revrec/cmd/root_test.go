package cmd_test

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/revrec-engine/cmd/revrec/cmd"
)

const testdata = "../../../factory/testdata"

func fixture(name string) string { return filepath.Join(testdata, name) }

// run executes the CLI with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := cmd.NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAllocate(t *testing.T) {
	// GIVEN: the hardware + support bundle
	// WHEN: allocating it
	// THEN: the hardware gets 60% of the adjusted price

	out, err := run(t, "allocate", fixture("bundle.json"))
	require.NoError(t, err)

	var resp struct {
		ContractID     string          `json:"contract_id"`
		AllocatedPrice decimal.Decimal `json:"allocated_price"`
		Allocated      []struct {
			ObligationID string          `json:"po_id"`
			Allocated    decimal.Decimal `json:"allocated_price"`
		} `json:"allocated"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "C-100", resp.ContractID)
	assert.Equal(t, "900.00", resp.AllocatedPrice.StringFixed(2))
	require.Len(t, resp.Allocated, 2)
	assert.Equal(t, "hardware", resp.Allocated[0].ObligationID)
	assert.Equal(t, "540.00", resp.Allocated[0].Allocated.StringFixed(2))
}

func TestAllocate_Errors(t *testing.T) {
	_, err := run(t, "allocate", fixture("missing.json"))
	assert.Error(t, err)

	_, err = run(t, "allocate")
	assert.Error(t, err)

	_, err = run(t, "allocate", fixture("modification.json"))
	assert.Error(t, err)
}

func TestCatchup(t *testing.T) {
	// GIVEN: the bundle and a +120 price change effective July
	// WHEN: computing the catch-up
	// THEN: the catch-up amount is 60

	out, err := run(t, "catchup", fixture("bundle.json"), fixture("modification.json"))
	require.NoError(t, err)

	var res struct {
		EffectiveMonth string          `json:"effective_month"`
		CatchupAmount  decimal.Decimal `json:"catchup_amount"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "2025-07", res.EffectiveMonth)
	assert.Equal(t, "60.00", res.CatchupAmount.StringFixed(2))
}

func TestJournal(t *testing.T) {
	out, err := run(t, "journal", fixture("bundle.json"))
	require.NoError(t, err)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	assert.Len(t, entries, 51)

	out, err = run(t, "journal", "--through", "2025-03", fixture("service.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	assert.Len(t, entries, 3)

	_, err = run(t, "journal", "--through", "March", fixture("service.json"))
	assert.Error(t, err)
}

func TestJournal_PostIsIdempotent(t *testing.T) {
	// GIVEN: an empty SQLite journal
	// WHEN: posting the service contract through March twice
	// THEN: the first run posts three entries, the second nothing

	db := filepath.Join(t.TempDir(), "revrec.db")
	args := []string{"journal", "--post", "--db", db, "--through", "2025-03", fixture("service.json")}

	out, err := run(t, args...)
	require.NoError(t, err)
	var posted []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &posted))
	require.Len(t, posted, 3)
	assert.NotEmpty(t, posted[0]["id"])

	out, err = run(t, args...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &posted))
	assert.Empty(t, posted)
}

func TestReportConsolidated(t *testing.T) {
	out, err := run(t, "report", "consolidated", "--format", "csv", fixture("bundle.json"), fixture("service.json"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, "Period,Revenue,Commission_Expense", lines[0])
	assert.Equal(t, "2025-01,670.00,10.00", lines[1])

	_, err = run(t, "report", "consolidated", "--format", "xml", fixture("service.json"))
	assert.Error(t, err)
}

func TestReportDisclosure(t *testing.T) {
	out, err := run(t, "report", "disclosure", fixture("service.json"))
	require.NoError(t, err)

	var d struct {
		ContractID  string `json:"contract_id"`
		Rollforward []struct {
			Period        string          `json:"period"`
			EndingBalance decimal.Decimal `json:"ending_balance"`
		} `json:"rollforward"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, "C-200", d.ContractID)
	require.Len(t, d.Rollforward, 12)
	assert.Equal(t, "1100.00", d.Rollforward[0].EndingBalance.StringFixed(2))
	assert.True(t, d.Rollforward[11].EndingBalance.IsZero())
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "revrec version")
}
