/*
methods.go - Recognition method variants

PURPOSE:
  Each recognition method is its own type carrying exactly the parameters
  it needs. An obligation holds one of them behind the Recognition
  interface, so there is no string-keyed dispatch and no loosely typed
  parameter bag: a missing parameter is caught by Validate() when the
  variant is constructed, not discovered halfway through a build.

METHODS:
  PointInTime      - the whole amount in one month
  StraightLine     - equal monthly amounts over an inclusive month range
  Milestones       - percent-of-price lumps on dated events (strict sum)
  PercentComplete  - incremental progress toward completion (lenient)
  UsageBased       - amount spread along a usage curve

STRICT VS LENIENT:
  Milestones reject percentages that do not sum to 100% (+/- 0.01).
  PercentComplete accepts a regressing cumulative percentage and simply
  recognizes nothing for that period. Both behaviors are deliberate.

SEE ALSO:
  - schedule.go: distribute() and the drift rule
  - builder.go: dispatch per obligation
*/
package revrec

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Recognition turns an allocated amount into a period schedule.
type Recognition interface {
	Method() Method

	// Validate checks the variant's own parameters.
	Validate() error

	// Schedule validates and builds the schedule for amount.
	Schedule(amount decimal.Decimal) (Schedule, error)
}

// Compile-time interface checks
var (
	_ Recognition = PointInTime{}
	_ Recognition = StraightLine{}
	_ Recognition = Milestones{}
	_ Recognition = PercentComplete{}
	_ Recognition = UsageBased{}
)

func checkUnitRange(field string, v decimal.Decimal) error {
	if v.IsNegative() || v.GreaterThan(one) {
		return invalid(field, ErrRateOutOfRange, "%s is outside [0,1]", v.String())
	}
	return nil
}

// =============================================================================
// POINT IN TIME
// =============================================================================

type PointInTime struct {
	At time.Time
}

func (PointInTime) Method() Method { return MethodPointInTime }

func (r PointInTime) Validate() error {
	if r.At.IsZero() {
		return invalid("at", ErrMissingParameter, "point_in_time requires a recognition date")
	}
	return nil
}

func (r PointInTime) Schedule(amount decimal.Decimal) (Schedule, error) {
	if err := r.Validate(); err != nil {
		return Schedule{}, err
	}
	s := NewSchedule()
	s.Add(PeriodOf(r.At), amount)
	return s, nil
}

// =============================================================================
// STRAIGHT LINE
// =============================================================================

// StraightLine recognizes evenly over Start..End by month, inclusive.
// End before Start is valid and yields an empty schedule.
type StraightLine struct {
	Start time.Time
	End   time.Time
}

func (StraightLine) Method() Method { return MethodStraightLine }

func (r StraightLine) Validate() error {
	if r.Start.IsZero() {
		return invalid("start_date", ErrMissingParameter, "straight_line requires a start date")
	}
	if r.End.IsZero() {
		return invalid("end_date", ErrMissingParameter, "straight_line requires an end date")
	}
	return nil
}

func (r StraightLine) Schedule(amount decimal.Decimal) (Schedule, error) {
	if err := r.Validate(); err != nil {
		return Schedule{}, err
	}
	return evenly(amount, MonthRange(r.Start, r.End)), nil
}

// Months returns the number of months in the range.
func (r StraightLine) Months() int { return len(MonthRange(r.Start, r.End)) }

// =============================================================================
// MILESTONES
// =============================================================================

// Milestone is a dated event worth a fraction of the price. A nil MetDate
// means the milestone has not been reached yet.
type Milestone struct {
	ID             string
	Description    string
	PercentOfPrice decimal.Decimal
	MetDate        *time.Time
}

func (m Milestone) Met() bool { return m.MetDate != nil && !m.MetDate.IsZero() }

type Milestones struct {
	Milestones []Milestone
}

func (Milestones) Method() Method { return MethodMilestone }

// Validate enforces the 100% rule. The check is strict: a plan that does
// not sum to 1.0 within 0.01 is rejected, never normalized.
func (r Milestones) Validate() error {
	if len(r.Milestones) == 0 {
		return invalid("milestones", ErrMissingParameter, "milestone method requires at least one milestone")
	}
	sum := decimal.Zero
	for _, m := range r.Milestones {
		if err := checkUnitRange("milestones.percent_of_price", m.PercentOfPrice); err != nil {
			return err
		}
		sum = sum.Add(m.PercentOfPrice)
	}
	if sum.Sub(one).Abs().GreaterThan(milestoneTolerance) {
		return invalid("milestones", ErrMilestoneSum, "percentages sum to %s", sum.String())
	}
	return nil
}

// Schedule puts round(pct * amount) into each met milestone's month and
// nothing else. Unmet milestones are skipped, and a plan whose percentages
// sum to 0.995 recognizes 99.5% even when every milestone is met.
func (r Milestones) Schedule(amount decimal.Decimal) (Schedule, error) {
	if err := r.Validate(); err != nil {
		return Schedule{}, err
	}
	s := NewSchedule()
	for _, m := range r.Milestones {
		if !m.Met() {
			continue
		}
		s.Add(PeriodOf(*m.MetDate), RoundCents(m.PercentOfPrice.Mul(amount)))
	}
	return s, nil
}

// =============================================================================
// PERCENT COMPLETE
// =============================================================================

// Progress is the cumulative completion reported for one period.
type Progress struct {
	Period            Period
	PercentCumulative decimal.Decimal
}

type PercentComplete struct {
	Progress []Progress
}

func (PercentComplete) Method() Method { return MethodPercentComplete }

func (r PercentComplete) Validate() error {
	if len(r.Progress) == 0 {
		return invalid("percent_schedule", ErrMissingParameter, "percent_complete requires a progress schedule")
	}
	for _, p := range r.Progress {
		if p.Period.IsZero() {
			return invalid("percent_schedule.period", ErrMissingParameter, "progress entry has no period")
		}
		if err := checkUnitRange("percent_schedule.percent_cumulative", p.PercentCumulative); err != nil {
			return err
		}
	}
	return nil
}

// Schedule recognizes the increase over the highest cumulative percentage
// seen so far. A period whose percentage regresses gets 0 and does not
// lower the high-water mark.
//
// Each period is round(amount * cum) less what was already recognized,
// not round(amount * (cum - prev)). The two can differ by a cent (10.01
// at 50% then 100% gives 5.01/5.00 here, 5.01/5.01 per increment); this
// form keeps a schedule that reaches 100% equal to amount.
func (r PercentComplete) Schedule(amount decimal.Decimal) (Schedule, error) {
	if err := r.Validate(); err != nil {
		return Schedule{}, err
	}
	progress := slices.Clone(r.Progress)
	slices.SortStableFunc(progress, func(a, b Progress) int { return a.Period.Compare(b.Period) })

	s := NewSchedule()
	high := decimal.Zero
	recognized := decimal.Zero
	for _, p := range progress {
		inc := decimal.Zero
		if p.PercentCumulative.GreaterThan(high) {
			toDate := RoundCents(amount.Mul(p.PercentCumulative))
			inc = toDate.Sub(recognized)
			recognized = toDate
			high = p.PercentCumulative
		}
		s.Add(p.Period, inc)
	}
	return s, nil
}

// =============================================================================
// USAGE BASED
// =============================================================================

// UsageShare is one point of a usage curve. Shares are relative weights;
// they need not sum to 1.
type UsageShare struct {
	Period Period
	Share  decimal.Decimal
}

type UsageBased struct {
	Curve []UsageShare
}

func (UsageBased) Method() Method { return MethodUsageBased }

func (r UsageBased) Validate() error {
	if len(r.Curve) == 0 {
		return invalid("usage_curve", ErrMissingParameter, "usage_based requires a usage curve")
	}
	sum := decimal.Zero
	for _, u := range r.Curve {
		if u.Period.IsZero() {
			return invalid("usage_curve.period", ErrMissingParameter, "usage entry has no period")
		}
		if u.Share.IsNegative() {
			return invalid("usage_curve.share", ErrNegativeAmount, "share %s is negative", u.Share.String())
		}
		sum = sum.Add(u.Share)
	}
	if sum.IsZero() {
		return invalid("usage_curve", ErrMissingParameter, "usage curve has no positive share")
	}
	return nil
}

func (r UsageBased) Schedule(amount decimal.Decimal) (Schedule, error) {
	if err := r.Validate(); err != nil {
		return Schedule{}, err
	}
	// Same-period points are combined so the drift lands on a distinct
	// final month.
	weights := make(map[Period]decimal.Decimal, len(r.Curve))
	for _, u := range r.Curve {
		weights[u.Period] = weights[u.Period].Add(u.Share)
	}
	periods := make([]Period, 0, len(weights))
	for p := range weights {
		periods = append(periods, p)
	}
	slices.SortFunc(periods, Period.Compare)

	ws := make([]decimal.Decimal, len(periods))
	for i, p := range periods {
		ws[i] = weights[p]
	}
	return spread(amount, periods, ws), nil
}
