package tracking

import (
	"fmt"
	"time"
)

// =============================================================================
// MONTH - The aggregation grain for every period-scoped query
// =============================================================================

// Month identifies a calendar month as "YYYY-MM". It is the only period
// grain in the system: metrics, anomaly snapshots, and narratives are all
// keyed by Month. The string form sorts chronologically, which the snapshot
// stores rely on for range scans.
type Month string

// MonthOf returns the month containing the given day.
func MonthOf(t time.Time) Month {
	return Month(t.UTC().Format("2006-01"))
}

// ParseMonth validates and normalizes a "YYYY-MM" string.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return "", fmt.Errorf("invalid month %q: %w", s, err)
	}
	return MonthOf(t), nil
}

// Time returns midnight UTC on the first day of the month.
func (m Month) Time() time.Time {
	t, err := time.Parse("2006-01", string(m))
	if err != nil {
		return time.Time{}
	}
	return t
}

func (m Month) IsZero() bool { return m == "" }

// Prev returns the preceding calendar month.
func (m Month) Prev() Month { return MonthOf(m.Time().AddDate(0, -1, 0)) }

// Next returns the following calendar month.
func (m Month) Next() Month { return MonthOf(m.Time().AddDate(0, 1, 0)) }

// Before reports chronological order. Lexical order on the normalized
// string form is chronological order.
func (m Month) Before(other Month) bool { return m < other }

// Contains reports whether the given day falls inside the month.
func (m Month) Contains(t time.Time) bool { return MonthOf(t) == m }

// Display renders the month for narrative text, e.g. "January 2026".
func (m Month) Display() string {
	t := m.Time()
	if t.IsZero() {
		return string(m)
	}
	return t.Format("January 2006")
}

func (m Month) String() string { return string(m) }
