package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"daily-planner/internal/model"
)

func date(y int, m time.Month, d int) model.Date {
	return model.Date{Year: y, Month: m, Day: d}
}

func TestNextDate(t *testing.T) {
	tests := []struct {
		name        string
		current     model.Date
		mode        model.RepeatMode
		originalDay int
		want        model.Date
	}{
		{"daily", date(2025, 6, 10), model.RepeatDaily, 0, date(2025, 6, 11)},
		{"daily across year end", date(2025, 12, 31), model.RepeatDaily, 0, date(2026, 1, 1)},
		{"weekly", date(2025, 6, 28), model.RepeatWeekly, 0, date(2025, 7, 5)},
		{"monthly plain", date(2025, 3, 15), model.RepeatMonthly, 15, date(2025, 4, 15)},
		{"monthly clamps to february", date(2025, 1, 31), model.RepeatMonthly, 31, date(2025, 2, 28)},
		{"monthly clamps to leap february", date(2024, 1, 31), model.RepeatMonthly, 31, date(2024, 2, 29)},
		{"monthly recovers nominal day", date(2025, 2, 28), model.RepeatMonthly, 31, date(2025, 3, 31)},
		{"monthly clamps to 30 day month", date(2025, 3, 31), model.RepeatMonthly, 31, date(2025, 4, 30)},
		{"monthly december rolls year", date(2025, 12, 31), model.RepeatMonthly, 31, date(2026, 1, 31)},
		{"monthly without original day", date(2025, 5, 20), model.RepeatMonthly, 0, date(2025, 6, 20)},
		{"none is identity", date(2025, 5, 20), model.RepeatNone, 0, date(2025, 5, 20)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextDate(tt.current, tt.mode, tt.originalDay))
		})
	}
}

func TestNextDate_MonthlyChainDoesNotDrift(t *testing.T) {
	d := date(2025, 1, 31)
	var got []model.Date
	for i := 0; i < 4; i++ {
		d = NextDate(d, model.RepeatMonthly, 31)
		got = append(got, d)
	}
	assert.Equal(t, []model.Date{
		date(2025, 2, 28),
		date(2025, 3, 31),
		date(2025, 4, 30),
		date(2025, 5, 31),
	}, got)
}

func TestDaysInMonth(t *testing.T) {
	assert.Equal(t, 31, DaysInMonth(2025, time.January))
	assert.Equal(t, 28, DaysInMonth(2025, time.February))
	assert.Equal(t, 29, DaysInMonth(2024, time.February))
	assert.Equal(t, 30, DaysInMonth(2025, time.November))
	assert.Equal(t, 31, DaysInMonth(2025, time.December))
}
