package stats

import (
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"insight-report/internal/storage"
)

// Calculator aggregates the usage ledger into InsightStats snapshots.
type Calculator struct {
	ledger storage.UsageLedger
	now    func() time.Time
}

func NewCalculator(ledger storage.UsageLedger) *Calculator {
	return &Calculator{ledger: ledger, now: time.Now}
}

// WithClock replaces the clock used for default date ranges.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	c.now = now
	return c
}

// DateRange is CalculateDateRange relative to the calculator's clock.
func (c *Calculator) DateRange(reportType string) (DateRange, error) {
	return CalculateDateRange(reportType, c.now())
}

// Usage returns only the usage totals for a range.
func (c *Calculator) Usage(start, end time.Time) (*storage.UsageTotals, error) {
	return c.ledger.SumUsage(start, end)
}

// Activity returns only the distinct-count activity for a range.
func (c *Calculator) Activity(start, end time.Time) (*storage.ActivityCounts, error) {
	return c.ledger.CountActivity(start, end)
}

// CalculateStats runs the independent aggregates concurrently and composes
// the snapshot. It has no side effects.
func (c *Calculator) CalculateStats(start, end time.Time, reportType string) (*InsightStats, error) {
	var (
		totals   *storage.UsageTotals
		activity *storage.ActivityCounts
		peakHour int
		models   []*storage.GroupUsage
		projects []*storage.ProjectUsage
		modes    []*storage.GroupUsage
		trend    []*storage.GroupUsage
	)

	var g errgroup.Group
	g.Go(func() (err error) {
		totals, err = c.ledger.SumUsage(start, end)
		return err
	})
	g.Go(func() (err error) {
		activity, err = c.ledger.CountActivity(start, end)
		return err
	})
	g.Go(func() (err error) {
		peakHour, err = c.ledger.PeakHour(start, end)
		return err
	})
	g.Go(func() (err error) {
		models, err = c.ledger.UsageByModel(start, end)
		return err
	})
	g.Go(func() (err error) {
		projects, err = c.ledger.UsageByProject(start, end)
		return err
	})
	g.Go(func() (err error) {
		modes, err = c.ledger.UsageByMode(start, end)
		return err
	})
	g.Go(func() (err error) {
		if reportType == ReportTypeDaily {
			trend, err = c.ledger.HourlyTrend(start, end)
		} else {
			trend, err = c.ledger.DailyTrend(start, end)
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to aggregate usage: %w", err)
	}

	s := &InsightStats{
		Period: Period{
			Start: start.Format(timestampLayout),
			End:   end.Format(timestampLayout),
			Type:  reportType,
		},
		Usage: Usage{
			TotalTokens:  totals.TotalTokens,
			InputTokens:  totals.InputTokens,
			OutputTokens: totals.OutputTokens,
			TotalCostUSD: totals.TotalCostUSD,
			APICalls:     totals.APICalls,
		},
		Activity: Activity{
			ActiveDays:    activity.ActiveDays,
			PeakHour:      peakHour,
			SessionsCount: activity.SessionsCount,
			ChatsCount:    activity.ChatsCount,
		},
		ModelUsage:   make([]ModelUsage, 0, len(models)),
		ProjectUsage: make([]ProjectUsage, 0, len(projects)),
		Trend:        make([]TrendPoint, 0, len(trend)),
	}

	for _, m := range models {
		s.ModelUsage = append(s.ModelUsage, ModelUsage{
			Model:      m.Key,
			Tokens:     m.Tokens,
			Calls:      m.Calls,
			Percentage: percentage(m.Tokens, totals.TotalTokens),
		})
	}
	for _, p := range projects {
		s.ProjectUsage = append(s.ProjectUsage, ProjectUsage{
			ProjectID:   p.ProjectID,
			ProjectName: p.ProjectName,
			Tokens:      p.Tokens,
			Calls:       p.Calls,
			Percentage:  percentage(p.Tokens, totals.TotalTokens),
		})
	}
	for _, m := range modes {
		bucket := ModeBucket{Tokens: m.Tokens, Calls: m.Calls}
		switch m.Key {
		case storage.ModePlan:
			s.ModeUsage.Plan = bucket
		case storage.ModeAgent:
			s.ModeUsage.Agent = bucket
		}
	}
	for _, t := range trend {
		s.Trend = append(s.Trend, TrendPoint{Label: t.Key, Tokens: t.Tokens, Calls: t.Calls})
	}

	return s, nil
}

// CalculateForRange is CalculateStats over a DateRange.
func (c *Calculator) CalculateForRange(r DateRange, reportType string) (*InsightStats, error) {
	return c.CalculateStats(r.Start, r.End, reportType)
}

func percentage(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
