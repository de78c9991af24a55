package revrec

import (
	"fmt"
	"iter"
	"time"
)

// =============================================================================
// PERIOD - A calendar month, the key of every schedule
// =============================================================================

// Period is a calendar month. Its canonical form is the fixed-width
// "YYYY-MM" string, so string order and chronological order agree.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodLayout is the time layout of the canonical period string.
const PeriodLayout = "2006-01"

// PeriodOf truncates t to its calendar month.
func PeriodOf(t time.Time) Period { return Period{Year: t.Year(), Month: t.Month()} }

// ParsePeriod parses a "YYYY-MM" key.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse(PeriodLayout, s)
	if err != nil || len(s) != len(PeriodLayout) {
		return Period{}, fmt.Errorf("invalid period %q (want YYYY-MM)", s)
	}
	return PeriodOf(t), nil
}

// MustParsePeriod parses a "YYYY-MM" key and panics on error.
func MustParsePeriod(s string) Period {
	p, err := ParsePeriod(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Period) String() string { return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month)) }

// Start returns the first day of the month, UTC.
func (p Period) Start() time.Time { return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC) }

func (p Period) index() int { return p.Year*12 + int(p.Month) - 1 }

// Compare returns -1, 0 or +1.
func (p Period) Compare(o Period) int {
	switch a, b := p.index(), o.index(); {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (p Period) Before(o Period) bool { return p.Compare(o) < 0 }
func (p Period) After(o Period) bool  { return p.Compare(o) > 0 }
func (p Period) IsZero() bool         { return p.Year == 0 && p.Month == 0 }

// AddMonths returns the period n months later (n may be negative).
func (p Period) AddMonths(n int) Period { return PeriodOf(AddMonths(p.Start(), n)) }

// Next returns the following month.
func (p Period) Next() Period { return p.AddMonths(1) }

func (p Period) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Period) UnmarshalText(b []byte) error {
	parsed, err := ParsePeriod(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// =============================================================================
// MONTH ARITHMETIC
// =============================================================================

// FloorToMonth returns the first day of t's month, UTC.
func FloorToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths returns the first day of the month n calendar months after t's
// month. The day component is always normalized to 1, so Jan 31 + 1 is
// Feb 1 (never Mar 3).
func AddMonths(t time.Time, n int) time.Time {
	m := int(t.Month()) - 1 + n
	y := t.Year() + m/12
	m %= 12
	if m < 0 {
		m += 12
		y--
	}
	return time.Date(y, time.Month(m+1), 1, 0, 0, 0, 0, time.UTC)
}

// MonthsBetween yields the first-of-month dates from start's month to end's
// month inclusive. It is empty when end's month precedes start's month.
// The sequence is lazy and may be ranged over more than once.
func MonthsBetween(start, end time.Time) iter.Seq[time.Time] {
	first, last := FloorToMonth(start), FloorToMonth(end)
	return func(yield func(time.Time) bool) {
		for cur := first; !cur.After(last); cur = AddMonths(cur, 1) {
			if !yield(cur) {
				return
			}
		}
	}
}

// MonthRange materializes MonthsBetween as periods.
func MonthRange(start, end time.Time) []Period {
	var out []Period
	for m := range MonthsBetween(start, end) {
		out = append(out, PeriodOf(m))
	}
	return out
}
