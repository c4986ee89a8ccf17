package pipeline

import (
	"time"

	"podcaster/internal/domain"
)

// Due reports whether a series with cadence publishes on day (UTC).
// Weekly series publish on Mondays and monthly series on the first.
func Due(cadence domain.Cadence, day time.Time) bool {
	day = day.UTC()
	switch cadence {
	case domain.CadenceDaily:
		return true
	case domain.CadenceWeekly:
		return day.Weekday() == time.Monday
	case domain.CadenceMonthly:
		return day.Day() == 1
	}
	return false
}

// DueSeries lists, in catalog order, the series due on day.
func DueSeries(catalog domain.SeriesCatalog, day time.Time) []string {
	var due []string
	for _, s := range catalog.All() {
		if Due(s.Cadence, day) {
			due = append(due, s.ID)
		}
	}
	return due
}
