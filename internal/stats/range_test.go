package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateDateRange_Daily(t *testing.T) {
	tests := []struct {
		name     string
		target   time.Time
		wantDate string
	}{
		{"just after midnight", time.Date(2025, 3, 12, 0, 0, 1, 0, time.Local), "2025-03-11"},
		{"midday", time.Date(2025, 3, 12, 12, 30, 0, 0, time.Local), "2025-03-11"},
		{"last millisecond of day", time.Date(2025, 3, 12, 23, 59, 59, 999_000_000, time.Local), "2025-03-11"},
		{"first of month", time.Date(2025, 3, 1, 8, 0, 0, 0, time.Local), "2025-02-28"},
		{"leap year", time.Date(2024, 3, 1, 8, 0, 0, 0, time.Local), "2024-02-29"},
		{"new year", time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local), "2024-12-31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := CalculateDateRange(ReportTypeDaily, tt.target)
			require.NoError(t, err)

			assert.Equal(t, tt.wantDate, r.ReportDate)
			assert.Equal(t, tt.wantDate, r.Start.Format(dateLayout))
			assert.Equal(t, 0, r.Start.Hour())
			assert.Equal(t, 0, r.Start.Minute())
			assert.Equal(t, tt.wantDate, r.End.Format(dateLayout))
			assert.Equal(t, 23, r.End.Hour())
			assert.Equal(t, 999, r.End.Nanosecond()/int(time.Millisecond))

			next := r.End.Add(time.Millisecond)
			assert.True(t, startOfDay(tt.target).Equal(next))
		})
	}
}

func TestCalculateDateRange_Weekly(t *testing.T) {
	tests := []struct {
		name     string
		target   time.Time
		wantDate string
	}{
		// 2025-03-10 is a Monday
		{"monday morning", time.Date(2025, 3, 10, 0, 5, 0, 0, time.Local), "2025-03-03"},
		{"wednesday", time.Date(2025, 3, 12, 15, 0, 0, 0, time.Local), "2025-03-03"},
		{"sunday night", time.Date(2025, 3, 16, 23, 59, 0, 0, time.Local), "2025-03-03"},
		{"next monday", time.Date(2025, 3, 17, 9, 0, 0, 0, time.Local), "2025-03-10"},
		{"across year boundary", time.Date(2025, 1, 2, 9, 0, 0, 0, time.Local), "2024-12-23"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := CalculateDateRange(ReportTypeWeekly, tt.target)
			require.NoError(t, err)

			assert.Equal(t, tt.wantDate, r.ReportDate)
			assert.Equal(t, time.Monday, r.Start.Weekday())
			assert.Equal(t, time.Sunday, r.End.Weekday())
			assert.Equal(t, 23, r.End.Hour())
			assert.True(t, r.End.Before(tt.target))

			// the window ends exactly where the target's week begins
			weekStart := r.End.Add(time.Millisecond)
			assert.Equal(t, time.Monday, weekStart.Weekday())
			assert.False(t, weekStart.After(tt.target))
			assert.True(t, tt.target.Sub(weekStart) < 7*24*time.Hour+time.Hour)
		})
	}
}

func TestCalculateDateRange_DefaultsToNow(t *testing.T) {
	r, err := CalculateDateRange(ReportTypeDaily, time.Time{})
	require.NoError(t, err)

	assert.True(t, r.End.Before(startOfDay(time.Now()).Add(time.Millisecond)))
	assert.NotEqual(t, time.Now().Format(dateLayout), r.ReportDate)
}

func TestCalculateDateRange_UnknownType(t *testing.T) {
	_, err := CalculateDateRange("monthly", time.Now())
	assert.Error(t, err)
}
