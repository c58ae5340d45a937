// Package recurrence computes the next occurrence date of a repeating task.
package recurrence

import (
	"time"

	"daily-planner/internal/model"
)

// NextDate returns the occurrence following current for the given mode.
//
// For monthly series originalDay is the day of month of the series anchor. It
// is passed on every call so that clamping to a short month does not drift the
// nominal day: Jan 31 -> Feb 28 -> Mar 31. A non-positive originalDay uses the
// day of current. RepeatNone returns current unchanged.
func NextDate(current model.Date, mode model.RepeatMode, originalDay int) model.Date {
	switch mode {
	case model.RepeatDaily:
		return current.AddDays(1)
	case model.RepeatWeekly:
		return current.AddDays(7)
	case model.RepeatMonthly:
		if originalDay <= 0 {
			originalDay = current.Day
		}
		year, month := current.Year, current.Month+1
		if month > time.December {
			year, month = year+1, time.January
		}
		return model.Date{Year: year, Month: month, Day: min(originalDay, DaysInMonth(year, month))}
	default:
		return current
	}
}

// DaysInMonth returns the length of month in year.
func DaysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
