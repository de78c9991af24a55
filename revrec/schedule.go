/*
schedule.go - Period-keyed amounts and the drift rule

PURPOSE:
  A Schedule maps calendar months to cent amounts. Every schedule in the
  engine (per obligation, combined, loyalty, commission, catch-up) is built
  through the same accumulator, and every split of an amount across N
  buckets goes through distribute().

THE DRIFT RULE:
  Splitting 100.00 over 3 months cannot be done with equal cent amounts.
  All buckets except the last get round(total * w[i] / sum(w), 2); the last
  gets total - running sum. The sum therefore ties out to the cent no matter
  what rounding happened earlier. If all weights are zero the split is even.

  distribute(100, [1,1,1]) = [33.33, 33.33, 33.34]
  distribute(1000, [80,20]) = [800.00, 200.00]

SEE ALSO:
  - allocation.go: SSP allocation (same rule, obligations as buckets)
  - methods.go: straight-line and usage-based (months as buckets)
*/
package revrec

import (
	"bytes"
	"encoding/json"
	"slices"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DISTRIBUTE - the one place rounding drift is absorbed
// =============================================================================

func distribute(total decimal.Decimal, weights []decimal.Decimal) []decimal.Decimal {
	n := len(weights)
	if n == 0 {
		return []decimal.Decimal{}
	}

	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}
	even := sum.IsZero()
	count := decimal.NewFromInt(int64(n))

	out := make([]decimal.Decimal, n)
	running := decimal.Zero
	for i := 0; i < n-1; i++ {
		var share decimal.Decimal
		if even {
			share = total.Div(count)
		} else {
			share = total.Mul(weights[i]).Div(sum)
		}
		out[i] = RoundCents(share)
		running = running.Add(out[i])
	}
	out[n-1] = RoundCents(total.Sub(running))
	return out
}

// spread distributes total over periods by weight; the last period in the
// given order absorbs the drift. Callers pass periods chronologically.
func spread(total decimal.Decimal, periods []Period, weights []decimal.Decimal) Schedule {
	s := NewSchedule()
	for i, amt := range distribute(total, weights) {
		s.Add(periods[i], amt)
	}
	return s
}

// evenly is spread with equal weights.
func evenly(total decimal.Decimal, periods []Period) Schedule {
	weights := make([]decimal.Decimal, len(periods))
	for i := range weights {
		weights[i] = one
	}
	return spread(total, periods, weights)
}

// =============================================================================
// SCHEDULE - ordered period accumulator
// =============================================================================

// Schedule maps periods to amounts. The zero value is an empty schedule
// ready to use; use NewSchedule for clarity.
type Schedule struct {
	amounts map[Period]decimal.Decimal
}

func NewSchedule() Schedule {
	return Schedule{amounts: make(map[Period]decimal.Decimal)}
}

// Add accumulates amt into p's bucket, creating it if needed.
func (s *Schedule) Add(p Period, amt decimal.Decimal) {
	if s.amounts == nil {
		s.amounts = make(map[Period]decimal.Decimal)
	}
	s.amounts[p] = RoundCents(s.amounts[p].Add(amt))
}

// Get returns p's amount (zero when absent).
func (s Schedule) Get(p Period) decimal.Decimal { return s.amounts[p] }

// Has reports whether p has a bucket, even a zero one.
func (s Schedule) Has(p Period) bool {
	_, ok := s.amounts[p]
	return ok
}

func (s Schedule) Len() int { return len(s.amounts) }

// Periods returns the bucket keys chronologically.
func (s Schedule) Periods() []Period {
	ps := make([]Period, 0, len(s.amounts))
	for p := range s.amounts {
		ps = append(ps, p)
	}
	slices.SortFunc(ps, Period.Compare)
	return ps
}

// Entry is one period/amount pair.
type Entry struct {
	Period Period
	Amount decimal.Decimal
}

// Entries returns the buckets chronologically.
func (s Schedule) Entries() []Entry {
	ps := s.Periods()
	out := make([]Entry, len(ps))
	for i, p := range ps {
		out[i] = Entry{Period: p, Amount: s.amounts[p]}
	}
	return out
}

// Total sums every bucket.
func (s Schedule) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range s.amounts {
		total = total.Add(v)
	}
	return total
}

// Last returns the chronologically final period.
func (s Schedule) Last() (Period, bool) {
	ps := s.Periods()
	if len(ps) == 0 {
		return Period{}, false
	}
	return ps[len(ps)-1], true
}

// Merge accumulates every bucket of o into s.
func (s *Schedule) Merge(o Schedule) {
	for p, v := range o.amounts {
		s.Add(p, v)
	}
}

// Clone returns an independent copy.
func (s Schedule) Clone() Schedule {
	out := NewSchedule()
	for p, v := range s.amounts {
		out.amounts[p] = v
	}
	return out
}

// Filter returns the buckets for which keep is true.
func (s Schedule) Filter(keep func(Period) bool) Schedule {
	out := NewSchedule()
	for p, v := range s.amounts {
		if keep(p) {
			out.amounts[p] = v
		}
	}
	return out
}

// Equal compares two schedules bucket by bucket. A missing bucket equals a
// zero bucket.
func (s Schedule) Equal(o Schedule) bool {
	for p, v := range s.amounts {
		if !v.Equal(o.Get(p)) {
			return false
		}
	}
	for p, v := range o.amounts {
		if !v.Equal(s.Get(p)) {
			return false
		}
	}
	return true
}

// ScheduleOf builds a schedule from "YYYY-MM" keyed amounts.
func ScheduleOf(m map[string]decimal.Decimal) (Schedule, error) {
	s := NewSchedule()
	for k, v := range m {
		p, err := ParsePeriod(k)
		if err != nil {
			return Schedule{}, err
		}
		s.Add(p, v)
	}
	return s, nil
}

// Strings returns the schedule keyed by canonical period string.
func (s Schedule) Strings() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(s.amounts))
	for p, v := range s.amounts {
		out[p.String()] = v
	}
	return out
}

// MarshalJSON writes {"YYYY-MM": 12.34, ...} in chronological order.
func (s Schedule) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s.Entries() {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(e.Period.String())
		buf.WriteString(`":`)
		buf.WriteString(e.Amount.StringFixed(CentPlaces))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Schedule) UnmarshalJSON(b []byte) error {
	var raw map[string]decimal.Decimal
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ScheduleOf(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
