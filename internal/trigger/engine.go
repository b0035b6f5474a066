package trigger

import (
	"fmt"
	"math"
	"time"

	"insight-report/internal/logger"
	"insight-report/internal/stats"
	"insight-report/internal/storage"
)

const (
	dailyInterval  = 24 * time.Hour
	weeklyInterval = 7 * 24 * time.Hour
)

// CheckResult is the decision of a trigger check. ReportType is empty when
// ShouldGenerate is false.
type CheckResult struct {
	ShouldGenerate bool   `json:"shouldGenerate"`
	ReportType     string `json:"reportType,omitempty"`
	Reason         string `json:"reason"`
	ReportDate     string `json:"reportDate,omitempty"`
}

// Thresholds are the minimum usage a period needs to earn a report.
type Thresholds struct {
	DailyMinAPICalls    int64
	DailyMinTokens      int64
	WeeklyMinActiveDays int64
}

func DefaultThresholds() Thresholds {
	return Thresholds{DailyMinAPICalls: 10, DailyMinTokens: 10000, WeeklyMinActiveDays: 3}
}

// ReportLookup is the read side of the report table the engine needs.
type ReportLookup interface {
	HasActiveReport() (bool, error)
	LatestCompletedReport() (*storage.InsightReport, error)
	FindReport(reportType, reportDate string) (*storage.InsightReport, error)
}

// UsageSource provides date ranges and the aggregates the thresholds use.
type UsageSource interface {
	DateRange(reportType string) (stats.DateRange, error)
	Usage(start, end time.Time) (*storage.UsageTotals, error)
	Activity(start, end time.Time) (*storage.ActivityCounts, error)
}

// Engine decides whether a report should be generated and which one. It
// never returns an error: failures become refusals carrying the cause.
type Engine struct {
	reports    ReportLookup
	usage      UsageSource
	thresholds Thresholds
	now        func() time.Time
}

func NewEngine(reports ReportLookup, usage UsageSource, thresholds Thresholds) *Engine {
	return &Engine{reports: reports, usage: usage, thresholds: thresholds, now: time.Now}
}

// WithClock replaces the engine's clock.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CheckShouldGenerateReport evaluates weekly before daily when both are
// overdue.
func (e *Engine) CheckShouldGenerateReport() CheckResult {
	active, err := e.reports.HasActiveReport()
	if err != nil {
		return refuse("failed to check active reports: %v", err)
	}
	if active {
		return refuse("a report is already generating")
	}

	elapsed, err := e.timeSinceLastCompleted()
	if err != nil {
		return refuse("failed to look up last report: %v", err)
	}

	if elapsed >= weeklyInterval {
		if r := e.CheckWeeklyReportConditions(); r.ShouldGenerate {
			return r
		}
	}

	if elapsed >= dailyInterval {
		r, measured := e.dailyConditions()
		if r.ShouldGenerate || !measured {
			return r
		}
		return refuse("thresholds not met: %s", r.Reason)
	}

	return refuse("less than 24h since last report (%s ago)", elapsed.Round(time.Minute))
}

// CheckDailyReportConditions checks yesterday's usage against the daily
// thresholds.
func (e *Engine) CheckDailyReportConditions() CheckResult {
	r, _ := e.dailyConditions()
	return r
}

// dailyConditions also reports whether usage was measured against the
// thresholds, so callers can tell a threshold refusal from any other.
func (e *Engine) dailyConditions() (CheckResult, bool) {
	r, existing, err := e.rangeFor(stats.ReportTypeDaily)
	if err != nil {
		return refuse("%v", err), false
	}
	if existing {
		return refuse("daily report for %s already exists", r.ReportDate), false
	}

	totals, err := e.usage.Usage(r.Start, r.End)
	if err != nil {
		return refuse("failed to aggregate daily usage: %v", err), false
	}

	if totals.APICalls >= e.thresholds.DailyMinAPICalls && totals.TotalTokens >= e.thresholds.DailyMinTokens {
		return CheckResult{
			ShouldGenerate: true,
			ReportType:     stats.ReportTypeDaily,
			ReportDate:     r.ReportDate,
			Reason: fmt.Sprintf("daily usage for %s: %d api calls, %d tokens",
				r.ReportDate, totals.APICalls, totals.TotalTokens),
		}, true
	}
	return refuse("daily usage for %s below thresholds: %d/%d api calls, %d/%d tokens",
		r.ReportDate, totals.APICalls, e.thresholds.DailyMinAPICalls, totals.TotalTokens, e.thresholds.DailyMinTokens), true
}

// CheckWeeklyReportConditions checks last week's active days against the
// weekly threshold.
func (e *Engine) CheckWeeklyReportConditions() CheckResult {
	r, existing, err := e.rangeFor(stats.ReportTypeWeekly)
	if err != nil {
		return refuse("%v", err)
	}
	if existing {
		return refuse("weekly report for %s already exists", r.ReportDate)
	}

	activity, err := e.usage.Activity(r.Start, r.End)
	if err != nil {
		return refuse("failed to aggregate weekly activity: %v", err)
	}

	if activity.ActiveDays >= e.thresholds.WeeklyMinActiveDays {
		return CheckResult{
			ShouldGenerate: true,
			ReportType:     stats.ReportTypeWeekly,
			ReportDate:     r.ReportDate,
			Reason:         fmt.Sprintf("week of %s: %d active days", r.ReportDate, activity.ActiveDays),
		}
	}
	return refuse("week of %s below threshold: %d/%d active days",
		r.ReportDate, activity.ActiveDays, e.thresholds.WeeklyMinActiveDays)
}

// rangeFor computes the canonical range and whether any report, failed ones
// included, already holds its key. Retrying a failed period is an explicit
// operator action, never a scheduled one.
func (e *Engine) rangeFor(reportType string) (stats.DateRange, bool, error) {
	r, err := e.usage.DateRange(reportType)
	if err != nil {
		return r, false, fmt.Errorf("failed to compute %s range: %w", reportType, err)
	}
	existing, err := e.reports.FindReport(reportType, r.ReportDate)
	if err != nil {
		return r, false, fmt.Errorf("failed to look up %s report: %w", reportType, err)
	}
	return r, existing != nil, nil
}

func (e *Engine) timeSinceLastCompleted() (time.Duration, error) {
	last, err := e.reports.LatestCompletedReport()
	if err != nil {
		return 0, err
	}
	if last == nil {
		return time.Duration(math.MaxInt64), nil
	}
	return e.now().Sub(last.CreatedAt), nil
}

func refuse(format string, args ...interface{}) CheckResult {
	reason := fmt.Sprintf(format, args...)
	logger.GetLogger().Debugf("Report trigger refused: %s", reason)
	return CheckResult{Reason: reason}
}
