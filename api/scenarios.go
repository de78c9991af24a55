/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built contract books that populate the database with
	realistic contracts. Each scenario exercises a different part of the
	engine: bundles with variable consideration, milestone and
	percent-complete projects, usage-based APIs, commissions.

AVAILABLE SCENARIOS:

	hardware-bundle:  Hardware + support with returns and loyalty points
	services-project: Milestone implementation and percent-complete build
	usage-platform:   Usage-based API plus a subscription with commission

HOW SCENARIOS WORK:
 1. Reset database (clear contracts and journal)
 2. Parse each contract document through the factory
 3. Build it to prove the document is valid
 4. Save it to the contract repository

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "hardware-bundle"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: contract endpoints
  - factory/contract.go: contract JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/warp/revrec-engine/store/sqlite"
)

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "hardware-bundle",
		Name:        "Hardware Bundle",
		Description: "Point-in-time hardware with a year of support, expected returns and loyalty points",
		Category:    "variable_consideration",
	},
	{
		ID:          "services-project",
		Name:        "Services Project",
		Description: "Milestone implementation plus a percent-complete custom build",
		Category:    "over_time",
	},
	{
		ID:          "usage-platform",
		Name:        "Usage Platform",
		Description: "Usage-based API consumption and a two-year subscription with capitalised commission",
		Category:    "over_time",
	},
}

var scenarioDocuments = map[string][]string{
	"hardware-bundle": {`{
		"contract_id": "HB-1001", "customer": "Acme Retail", "transaction_price": 1000,
		"pos": [
			{"po_id": "hardware", "description": "POS terminals", "ssp": 600,
			 "method": "point_in_time", "start_date": "2025-01-15"},
			{"po_id": "support", "description": "Support plan", "ssp": 400,
			 "method": "straight_line", "start_date": "2025-01-01", "end_date": "2025-12-31"}
		],
		"variable": {"returns_rate": 0.05, "loyalty_pct": 0.1, "loyalty_months": 12, "loyalty_breakage_rate": 0.2},
		"commission": {"total_commission": 60, "benefit_months": 12, "practical_expedient_1yr": true}
	}`},
	"services-project": {`{
		"contract_id": "SP-2001", "customer": "Globex", "transaction_price": 50000,
		"pos": [
			{"po_id": "implementation", "description": "Implementation", "ssp": 30000, "method": "milestone",
			 "params": {"milestones": [
				{"id": "design", "percent_of_price": 0.3, "met_date": "2025-02-20"},
				{"id": "build", "percent_of_price": 0.5, "met_date": "2025-05-10"},
				{"id": "golive", "percent_of_price": 0.2}
			 ]}},
			{"po_id": "custom", "description": "Custom module", "ssp": 25000, "method": "percent_complete",
			 "params": {"percent_schedule": [
				{"period": "2025-03", "percent_cumulative": 0.2},
				{"period": "2025-04", "percent_cumulative": 0.55},
				{"period": "2025-05", "percent_cumulative": 0.9},
				{"period": "2025-06", "percent_cumulative": 1}
			 ]}}
		]
	}`},
	"usage-platform": {`{
		"contract_id": "UP-3001", "customer": "Initech", "transaction_price": 12000,
		"pos": [
			{"po_id": "api", "description": "API calls", "ssp": 4000, "method": "usage_based",
			 "params": {"usage_curve": [
				{"period": "2025-01", "share": 1}, {"period": "2025-02", "share": 2},
				{"period": "2025-03", "share": 3}, {"period": "2025-04", "share": 4}
			 ]}}
		]
	}`, `{
		"contract_id": "UP-3002", "customer": "Initech", "transaction_price": 24000,
		"pos": [
			{"po_id": "subscription", "description": "Platform subscription", "ssp": 24000,
			 "method": "straight_line", "start_date": "2025-01-01", "end_date": "2026-12-31"}
		],
		"commission": {"total_commission": 2400, "benefit_months": 24}
	}`},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, map[string]any{"loaded": false})
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, map[string]any{"loaded": true, "scenario": s})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"loaded": false})
}

// LoadScenario resets the database and loads one scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	docs, ok := scenarioDocuments[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := h.loadContracts(ctx, docs); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears contracts and the journal.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadContracts(ctx context.Context, docs []string) error {
	for _, doc := range docs {
		cj, err := h.Factory.Decode([]byte(doc))
		if err != nil {
			return err
		}
		c, err := h.Factory.FromJSON(cj)
		if err != nil {
			return fmt.Errorf("contract %s: %w", cj.ContractID, err)
		}
		if _, err := h.Builder.Build(c); err != nil {
			return fmt.Errorf("contract %s: %w", c.ID, err)
		}

		canonical, err := json.Marshal(cj)
		if err != nil {
			return err
		}
		if err := h.Store.SaveContract(ctx, sqlite.ContractRecord{
			ID:           c.ID,
			Customer:     c.Customer,
			DocumentJSON: string(canonical),
		}); err != nil {
			return fmt.Errorf("save %s: %w", c.ID, err)
		}
	}
	return nil
}
