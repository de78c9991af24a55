package revrec

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COMMISSION - incremental costs of obtaining a contract
// =============================================================================

// ExpedientMonths is the benefit period at or under which the practical
// expedient lets costs be expensed immediately.
const ExpedientMonths = 12

// AmortizeCommission spreads total straight-line over months months from
// start's month. months <= 0 yields an empty schedule.
func AmortizeCommission(total decimal.Decimal, months int, start time.Time) Schedule {
	if months <= 0 {
		return NewSchedule()
	}
	first := PeriodOf(start)
	periods := make([]Period, months)
	for i := range periods {
		periods[i] = first.AddMonths(i)
	}
	return evenly(total, periods)
}

// CommissionSchedule expenses the plan. Costs are capitalized and
// amortized unless the practical expedient is elected and the benefit
// period is a year or less, in which case everything lands in the
// reference month.
func CommissionSchedule(plan CommissionPlan, reference time.Time) Schedule {
	if plan.PracticalExpedient && plan.BenefitMonths <= ExpedientMonths {
		s := NewSchedule()
		s.Add(PeriodOf(reference), plan.TotalCommission)
		return s
	}
	return AmortizeCommission(plan.TotalCommission, plan.BenefitMonths, reference)
}
