package item

import (
	"fmt"
	"time"
)

// PeriodOf returns the consolidation period ID for a point in time,
// one period per ISO week (e.g. "2026-W35").
func PeriodOf(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// CurrentPeriod returns the period ID for the current week.
func CurrentPeriod() string {
	return PeriodOf(time.Now())
}
