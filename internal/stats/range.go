package stats

import (
	"fmt"
	"time"
)

const (
	ReportTypeDaily  = "daily"
	ReportTypeWeekly = "weekly"

	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// DateRange is a closed report window plus the report date that keys it.
type DateRange struct {
	Start      time.Time
	End        time.Time
	ReportDate string
}

// CalculateDateRange returns the window a report of reportType generated at
// target would cover. A zero target means now.
//
// daily:  the calendar day before target, [00:00, next 00:00 - 1ms].
// weekly: the Monday–Sunday week strictly before the week containing target.
//
// ReportDate is the local ISO date of Start.
func CalculateDateRange(reportType string, target time.Time) (DateRange, error) {
	if target.IsZero() {
		target = time.Now()
	}
	today := startOfDay(target)

	var start, end time.Time
	switch reportType {
	case ReportTypeDaily:
		start = today.AddDate(0, 0, -1)
		end = today.Add(-time.Millisecond)
	case ReportTypeWeekly:
		offset := (int(today.Weekday()) + 6) % 7 // days since Monday
		monday := today.AddDate(0, 0, -offset)
		start = monday.AddDate(0, 0, -7)
		end = monday.Add(-time.Millisecond)
	default:
		return DateRange{}, fmt.Errorf("unknown report type %q", reportType)
	}

	return DateRange{
		Start:      start,
		End:        end,
		ReportDate: start.Format(dateLayout),
	}, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
