/*
Package factory provides JSON to Go contract conversion.

PURPOSE:
  Converts JSON contract documents into revrec.Contract and
  revrec.Modification values. Contracts arrive from the HTTP API, the CLI
  and the contract repository in the same shape, so the conversion and
  its validation live in one place.

JSON SCHEMA:
  {
    "contract_id": "C-100",
    "customer": "Acme",
    "transaction_price": 1000,
    "pos": [
      {"po_id": "hw", "description": "Hardware", "ssp": 600,
       "method": "point_in_time", "start_date": "2025-01-15"},
      {"po_id": "svc", "description": "Support", "ssp": 400,
       "method": "straight_line", "start_date": "2025-01-01", "end_date": "2025-12-31"},
      {"po_id": "impl", "ssp": 300, "method": "milestone",
       "params": {"milestones": [{"id": "m1", "percent_of_price": 1, "met_date": "2025-03-10"}]}}
    ],
    "variable": {"returns_rate": 0.05, "loyalty_pct": 0.1,
                 "loyalty_months": 12, "loyalty_breakage_rate": 0.2},
    "commission": {"total_commission": 240, "benefit_months": 24,
                   "practical_expedient_1yr": false}
  }

  Method params:
    milestone          params.milestones[]       {id, description, percent_of_price, met_date}
    percent_complete   params.percent_schedule[] {period "YYYY-MM", percent_cumulative}
    usage_based        params.usage_curve[]      {period "YYYY-MM", share}

KEY FEATURES:
  - Shape validation with struct tags (go-playground/validator)
  - Method parameter checks while building the recognition variant
  - Every failure is a *revrec.ValidationError naming po_id and field
  - Amounts decode as decimals, never floats

USAGE:
  f := factory.NewContractFactory()
  contract, err := f.ParseContract(body)
  resp, err := builder.Build(contract)

SEE ALSO:
  - revrec/types.go: Contract and Obligation
  - revrec/methods.go: recognition variants
  - api/handlers.go: HTTP entry points
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/revrec-engine/revrec"
)

// ErrMalformedJSON wraps decode failures, as opposed to documents that
// decode but fail validation.
var ErrMalformedJSON = errors.New("malformed JSON")

const (
	dateLayout = "2006-01-02"

	// defaultMonths applies when loyalty_months or benefit_months is absent.
	defaultMonths = 12
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ContractJSON is the JSON representation of a contract.
type ContractJSON struct {
	ContractID       string           `json:"contract_id" validate:"required"`
	Customer         string           `json:"customer"`
	TransactionPrice decimal.Decimal  `json:"transaction_price"`
	Standard         string           `json:"standard,omitempty" validate:"omitempty,oneof=ASC606 IFRS15"`
	Obligations      []ObligationJSON `json:"pos"`
	Variable         *VariableJSON    `json:"variable,omitempty"`
	Commission       *CommissionJSON  `json:"commission,omitempty"`
}

// ObligationJSON represents one performance obligation.
type ObligationJSON struct {
	ID          string          `json:"po_id" validate:"required"`
	Description string          `json:"description,omitempty"`
	SSP         decimal.Decimal `json:"ssp"`
	Method      string          `json:"method" validate:"required,oneof=point_in_time straight_line milestone percent_complete usage_based"`
	StartDate   string          `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate     string          `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Params      *ParamsJSON     `json:"params,omitempty"`
}

// ParamsJSON carries method-specific parameters.
type ParamsJSON struct {
	Milestones      []MilestoneJSON `json:"milestones,omitempty" validate:"dive"`
	PercentSchedule []ProgressJSON  `json:"percent_schedule,omitempty" validate:"dive"`
	UsageCurve      []UsageJSON     `json:"usage_curve,omitempty" validate:"dive"`
}

type MilestoneJSON struct {
	ID             string          `json:"id"`
	Description    string          `json:"description,omitempty"`
	PercentOfPrice decimal.Decimal `json:"percent_of_price"`
	MetDate        string          `json:"met_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type ProgressJSON struct {
	Period            string          `json:"period" validate:"required,datetime=2006-01"`
	PercentCumulative decimal.Decimal `json:"percent_cumulative"`
}

type UsageJSON struct {
	Period string          `json:"period" validate:"required,datetime=2006-01"`
	Share  decimal.Decimal `json:"share"`
}

// VariableJSON represents variable consideration terms.
type VariableJSON struct {
	ReturnsRate         decimal.Decimal `json:"returns_rate"`
	LoyaltyPct          decimal.Decimal `json:"loyalty_pct"`
	LoyaltyMonths       *int            `json:"loyalty_months,omitempty" validate:"omitempty,gte=1"`
	LoyaltyBreakageRate decimal.Decimal `json:"loyalty_breakage_rate"`
	LoyaltyStart        string          `json:"loyalty_start,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// CommissionJSON represents an incremental cost of obtaining the contract.
type CommissionJSON struct {
	TotalCommission    decimal.Decimal `json:"total_commission"`
	BenefitMonths      *int            `json:"benefit_months,omitempty" validate:"omitempty,gte=1"`
	PracticalExpedient bool            `json:"practical_expedient_1yr,omitempty"`
}

// ModificationJSON represents a contract modification.
type ModificationJSON struct {
	EffectiveDate string           `json:"effective_date" validate:"required,datetime=2006-01-02"`
	PriceDelta    decimal.Decimal  `json:"transaction_price_delta"`
	RemoveIDs     []string         `json:"remove_po_ids,omitempty" validate:"dive,required"`
	Add           []ObligationJSON `json:"add_pos,omitempty"`
}

// CatchupRequestJSON pairs a base contract with a modification.
type CatchupRequestJSON struct {
	Base         ContractJSON     `json:"base"`
	Modification ModificationJSON `json:"modification"`
}

// =============================================================================
// CONTRACT FACTORY
// =============================================================================

// ContractFactory converts JSON contracts to Go structs.
type ContractFactory struct {
	validate *validator.Validate
}

// NewContractFactory creates a factory whose validation errors use JSON
// field names.
func NewContractFactory() *ContractFactory {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &ContractFactory{validate: v}
}

// Decode unmarshals a contract document without converting it.
func (f *ContractFactory) Decode(data []byte) (ContractJSON, error) {
	var cj ContractJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return ContractJSON{}, fmt.Errorf("%w: contract: %w", ErrMalformedJSON, err)
	}
	return cj, nil
}

// ParseContract parses and validates a contract document.
func (f *ContractFactory) ParseContract(data []byte) (revrec.Contract, error) {
	cj, err := f.Decode(data)
	if err != nil {
		return revrec.Contract{}, err
	}
	return f.FromJSON(cj)
}

// ParseModification parses and validates a modification document.
func (f *ContractFactory) ParseModification(data []byte) (revrec.Modification, error) {
	var mj ModificationJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return revrec.Modification{}, fmt.Errorf("%w: modification: %w", ErrMalformedJSON, err)
	}
	return f.ModificationFromJSON(mj)
}

// ParseCatchupRequest parses a {"base", "modification"} document.
func (f *ContractFactory) ParseCatchupRequest(data []byte) (revrec.Contract, revrec.Modification, error) {
	var req CatchupRequestJSON
	if err := json.Unmarshal(data, &req); err != nil {
		return revrec.Contract{}, revrec.Modification{}, fmt.Errorf("%w: catch-up request: %w", ErrMalformedJSON, err)
	}
	base, err := f.FromJSON(req.Base)
	if err != nil {
		return revrec.Contract{}, revrec.Modification{}, err
	}
	mod, err := f.ModificationFromJSON(req.Modification)
	if err != nil {
		return revrec.Contract{}, revrec.Modification{}, err
	}
	return base, mod, nil
}

// FromJSON converts ContractJSON to revrec.Contract.
func (f *ContractFactory) FromJSON(cj ContractJSON) (revrec.Contract, error) {
	if err := f.check("", cj); err != nil {
		return revrec.Contract{}, err
	}

	c := revrec.Contract{
		ID:               cj.ContractID,
		Customer:         cj.Customer,
		TransactionPrice: cj.TransactionPrice,
	}

	obligations, err := f.obligations(cj.Obligations)
	if err != nil {
		return revrec.Contract{}, err
	}
	c.Obligations = obligations

	if cj.Variable != nil {
		vc, err := parseVariable(*cj.Variable)
		if err != nil {
			return revrec.Contract{}, err
		}
		c.Variable = vc
	}

	if cj.Commission != nil {
		months := defaultMonths
		if cj.Commission.BenefitMonths != nil {
			months = *cj.Commission.BenefitMonths
		}
		c.Commission = &revrec.CommissionPlan{
			TotalCommission:    cj.Commission.TotalCommission,
			BenefitMonths:      months,
			PracticalExpedient: cj.Commission.PracticalExpedient,
		}
	}

	return c, nil
}

// ModificationFromJSON converts ModificationJSON to revrec.Modification.
func (f *ContractFactory) ModificationFromJSON(mj ModificationJSON) (revrec.Modification, error) {
	if err := f.check("", mj); err != nil {
		return revrec.Modification{}, err
	}

	effective, err := parseDate("effective_date", mj.EffectiveDate)
	if err != nil {
		return revrec.Modification{}, err
	}

	added, err := f.obligations(mj.Add)
	if err != nil {
		return revrec.Modification{}, err
	}

	return revrec.Modification{
		EffectiveDate:       *effective,
		PriceDelta:          mj.PriceDelta,
		RemoveObligationIDs: mj.RemoveIDs,
		AddObligations:      added,
	}, nil
}

// ToJSON converts a Contract back to its document form.
func (f *ContractFactory) ToJSON(c revrec.Contract) ContractJSON {
	cj := ContractJSON{
		ContractID:       c.ID,
		Customer:         c.Customer,
		TransactionPrice: c.TransactionPrice,
	}

	for _, o := range c.Obligations {
		cj.Obligations = append(cj.Obligations, obligationToJSON(o))
	}

	if vc := c.Variable; vc != nil {
		months := vc.LoyaltyMonths
		cj.Variable = &VariableJSON{
			ReturnsRate:         vc.ReturnsRate,
			LoyaltyPct:          vc.LoyaltyPct,
			LoyaltyMonths:       &months,
			LoyaltyBreakageRate: vc.LoyaltyBreakageRate,
			LoyaltyStart:        formatDate(vc.LoyaltyStart),
		}
	}

	if cp := c.Commission; cp != nil {
		months := cp.BenefitMonths
		cj.Commission = &CommissionJSON{
			TotalCommission:    cp.TotalCommission,
			BenefitMonths:      &months,
			PracticalExpedient: cp.PracticalExpedient,
		}
	}

	return cj
}

// =============================================================================
// OBLIGATIONS
// =============================================================================

func (f *ContractFactory) obligations(ojs []ObligationJSON) ([]revrec.Obligation, error) {
	out := make([]revrec.Obligation, 0, len(ojs))
	for _, oj := range ojs {
		if err := f.check(oj.ID, oj); err != nil {
			return nil, err
		}
		o, err := parseObligation(oj)
		if err != nil {
			return nil, stampObligation(oj.ID, err)
		}
		out = append(out, o)
	}
	return out, nil
}

func parseObligation(oj ObligationJSON) (revrec.Obligation, error) {
	start, err := parseDate("start_date", oj.StartDate)
	if err != nil {
		return revrec.Obligation{}, err
	}
	end, err := parseDate("end_date", oj.EndDate)
	if err != nil {
		return revrec.Obligation{}, err
	}

	var params ParamsJSON
	if oj.Params != nil {
		params = *oj.Params
	}

	var rec revrec.Recognition
	switch revrec.Method(oj.Method) {
	case revrec.MethodPointInTime:
		if start == nil {
			return revrec.Obligation{}, missing("start_date")
		}
		rec = revrec.PointInTime{At: *start}

	case revrec.MethodStraightLine:
		if start == nil {
			return revrec.Obligation{}, missing("start_date")
		}
		if end == nil {
			return revrec.Obligation{}, missing("end_date")
		}
		rec = revrec.StraightLine{Start: *start, End: *end}

	case revrec.MethodMilestone:
		if len(params.Milestones) == 0 {
			return revrec.Obligation{}, missing("params.milestones")
		}
		ms := make([]revrec.Milestone, 0, len(params.Milestones))
		for _, mj := range params.Milestones {
			met, err := parseDate("met_date", mj.MetDate)
			if err != nil {
				return revrec.Obligation{}, err
			}
			ms = append(ms, revrec.Milestone{
				ID:             mj.ID,
				Description:    mj.Description,
				PercentOfPrice: mj.PercentOfPrice,
				MetDate:        met,
			})
		}
		rec = revrec.Milestones{Milestones: ms}

	case revrec.MethodPercentComplete:
		if len(params.PercentSchedule) == 0 {
			return revrec.Obligation{}, missing("params.percent_schedule")
		}
		progress := make([]revrec.Progress, 0, len(params.PercentSchedule))
		for _, pj := range params.PercentSchedule {
			p, err := parsePeriod(pj.Period)
			if err != nil {
				return revrec.Obligation{}, err
			}
			progress = append(progress, revrec.Progress{Period: p, PercentCumulative: pj.PercentCumulative})
		}
		rec = revrec.PercentComplete{Progress: progress}

	case revrec.MethodUsageBased:
		if len(params.UsageCurve) == 0 {
			return revrec.Obligation{}, missing("params.usage_curve")
		}
		curve := make([]revrec.UsageShare, 0, len(params.UsageCurve))
		for _, uj := range params.UsageCurve {
			p, err := parsePeriod(uj.Period)
			if err != nil {
				return revrec.Obligation{}, err
			}
			curve = append(curve, revrec.UsageShare{Period: p, Share: uj.Share})
		}
		rec = revrec.UsageBased{Curve: curve}

	default:
		return revrec.Obligation{}, &revrec.ValidationError{
			Field:  "method",
			Reason: fmt.Sprintf("unknown method %q", oj.Method),
			Err:    revrec.ErrUnknownMethod,
		}
	}

	if err := rec.Validate(); err != nil {
		return revrec.Obligation{}, err
	}

	return revrec.Obligation{
		ID:          oj.ID,
		Description: oj.Description,
		SSP:         oj.SSP,
		Recognition: rec,
		StartDate:   start,
		EndDate:     end,
	}, nil
}

func obligationToJSON(o revrec.Obligation) ObligationJSON {
	oj := ObligationJSON{
		ID:          o.ID,
		Description: o.Description,
		SSP:         o.SSP,
		Method:      string(o.Method()),
		StartDate:   formatDate(o.StartDate),
		EndDate:     formatDate(o.EndDate),
	}

	switch r := o.Recognition.(type) {
	case revrec.PointInTime:
		if oj.StartDate == "" {
			oj.StartDate = r.At.Format(dateLayout)
		}
	case revrec.StraightLine:
		if oj.StartDate == "" {
			oj.StartDate = r.Start.Format(dateLayout)
		}
		if oj.EndDate == "" {
			oj.EndDate = r.End.Format(dateLayout)
		}
	case revrec.Milestones:
		p := &ParamsJSON{}
		for _, m := range r.Milestones {
			p.Milestones = append(p.Milestones, MilestoneJSON{
				ID:             m.ID,
				Description:    m.Description,
				PercentOfPrice: m.PercentOfPrice,
				MetDate:        formatDate(m.MetDate),
			})
		}
		oj.Params = p
	case revrec.PercentComplete:
		p := &ParamsJSON{}
		for _, pr := range r.Progress {
			p.PercentSchedule = append(p.PercentSchedule, ProgressJSON{
				Period:            pr.Period.String(),
				PercentCumulative: pr.PercentCumulative,
			})
		}
		oj.Params = p
	case revrec.UsageBased:
		p := &ParamsJSON{}
		for _, u := range r.Curve {
			p.UsageCurve = append(p.UsageCurve, UsageJSON{Period: u.Period.String(), Share: u.Share})
		}
		oj.Params = p
	}
	return oj
}

func parseVariable(vj VariableJSON) (*revrec.VariableConsideration, error) {
	months := defaultMonths
	if vj.LoyaltyMonths != nil {
		months = *vj.LoyaltyMonths
	}
	start, err := parseDate("loyalty_start", vj.LoyaltyStart)
	if err != nil {
		return nil, err
	}
	return &revrec.VariableConsideration{
		ReturnsRate:         vj.ReturnsRate,
		LoyaltyPct:          vj.LoyaltyPct,
		LoyaltyMonths:       months,
		LoyaltyBreakageRate: vj.LoyaltyBreakageRate,
		LoyaltyStart:        start,
	}, nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// check runs struct-tag validation and reports the first failure as a
// *revrec.ValidationError.
func (f *ContractFactory) check(obligationID string, s any) error {
	err := f.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate: %w", err)
	}

	e := verrs[0]
	sentinel := revrec.ErrValidation
	switch {
	case e.Tag() == "required":
		sentinel = revrec.ErrMissingParameter
	case e.Tag() == "oneof" && e.Field() == "method":
		sentinel = revrec.ErrUnknownMethod
	}

	return &revrec.ValidationError{
		ObligationID: obligationID,
		Field:        fieldPath(e.Namespace()),
		Reason:       validationMessage(e),
		Err:          sentinel,
	}
}

// fieldPath drops the root struct name: "ObligationJSON.params.milestones[0].met_date"
// becomes "params.milestones[0].met_date".
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "lte":
		return "Must be less than or equal to " + e.Param()
	case "datetime":
		return "Must match layout " + e.Param()
	default:
		return "Invalid value"
	}
}

func stampObligation(id string, err error) error {
	var verr *revrec.ValidationError
	if errors.As(err, &verr) && verr.ObligationID == "" {
		cp := *verr
		cp.ObligationID = id
		return &cp
	}
	return err
}

func missing(field string) error {
	return &revrec.ValidationError{Field: field, Reason: "This field is required", Err: revrec.ErrMissingParameter}
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

// parseDate returns nil for an empty string.
func parseDate(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, &revrec.ValidationError{Field: field, Reason: "Must match layout " + dateLayout, Err: err}
	}
	return &t, nil
}

func parsePeriod(s string) (revrec.Period, error) {
	p, err := revrec.ParsePeriod(s)
	if err != nil {
		return revrec.Period{}, &revrec.ValidationError{Field: "period", Reason: "Must match layout " + revrec.PeriodLayout, Err: err}
	}
	return p, nil
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
