package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const rangeFilter = `timestamp >= ? AND timestamp <= ?`

func rangeArgs(start, end time.Time) []interface{} {
	return []interface{}{start.UnixMilli(), end.UnixMilli()}
}

func (s *SQLiteStorage) SumUsage(start, end time.Time) (*UsageTotals, error) {
	query := `
	SELECT COALESCE(SUM(total_tokens), 0), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
		COALESCE(SUM(cost_usd), 0), COUNT(*)
	FROM usage_events
	WHERE ` + rangeFilter

	var t UsageTotals
	err := s.db.QueryRow(query, rangeArgs(start, end)...).Scan(
		&t.TotalTokens, &t.InputTokens, &t.OutputTokens, &t.TotalCostUSD, &t.APICalls,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to sum usage: %w", err)
	}
	return &t, nil
}

// CountActivity counts distinct local dates, sessions and chats. Empty ids
// are not counted as a session or chat.
func (s *SQLiteStorage) CountActivity(start, end time.Time) (*ActivityCounts, error) {
	query := `
	SELECT COUNT(DISTINCT local_date),
		COUNT(DISTINCT NULLIF(session_id, '')),
		COUNT(DISTINCT NULLIF(chat_id, ''))
	FROM usage_events
	WHERE ` + rangeFilter

	var a ActivityCounts
	err := s.db.QueryRow(query, rangeArgs(start, end)...).Scan(&a.ActiveDays, &a.SessionsCount, &a.ChatsCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count activity: %w", err)
	}
	return &a, nil
}

// PeakHour returns the local hour with the most events, 0 when the range is
// empty. Ties resolve in whatever order SQLite yields the groups.
func (s *SQLiteStorage) PeakHour(start, end time.Time) (int, error) {
	query := `
	SELECT local_hour, COUNT(*) AS cnt
	FROM usage_events
	WHERE ` + rangeFilter + `
	GROUP BY local_hour
	ORDER BY cnt DESC
	LIMIT 1
	`
	var hour int
	var cnt int64
	err := s.db.QueryRow(query, rangeArgs(start, end)...).Scan(&hour, &cnt)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query peak hour: %w", err)
	}
	return hour, nil
}

func (s *SQLiteStorage) UsageByModel(start, end time.Time) ([]*GroupUsage, error) {
	query := `
	SELECT model, COALESCE(SUM(total_tokens), 0) AS tokens, COUNT(*)
	FROM usage_events
	WHERE ` + rangeFilter + `
	GROUP BY model
	ORDER BY tokens DESC, model ASC
	`
	return s.queryGroups(query, "model usage", rangeArgs(start, end)...)
}

func (s *SQLiteStorage) UsageByMode(start, end time.Time) ([]*GroupUsage, error) {
	query := `
	SELECT mode, COALESCE(SUM(total_tokens), 0), COUNT(*)
	FROM usage_events
	WHERE ` + rangeFilter + `
	GROUP BY mode
	`
	return s.queryGroups(query, "mode usage", rangeArgs(start, end)...)
}

// HourlyTrend buckets by local hour; only hours with activity are returned.
func (s *SQLiteStorage) HourlyTrend(start, end time.Time) ([]*GroupUsage, error) {
	query := `
	SELECT printf('%02d:00', local_hour) AS label, COALESCE(SUM(total_tokens), 0), COUNT(*)
	FROM usage_events
	WHERE ` + rangeFilter + `
	GROUP BY local_hour
	ORDER BY label ASC
	`
	return s.queryGroups(query, "hourly trend", rangeArgs(start, end)...)
}

func (s *SQLiteStorage) DailyTrend(start, end time.Time) ([]*GroupUsage, error) {
	query := `
	SELECT local_date AS label, COALESCE(SUM(total_tokens), 0), COUNT(*)
	FROM usage_events
	WHERE ` + rangeFilter + `
	GROUP BY local_date
	ORDER BY label ASC
	`
	return s.queryGroups(query, "daily trend", rangeArgs(start, end)...)
}

// UsageByProject resolves project names through a left join, falling back
// to "Unknown" for ids with no projects row.
func (s *SQLiteStorage) UsageByProject(start, end time.Time) ([]*ProjectUsage, error) {
	query := `
	SELECT e.project_id, COALESCE(p.name, 'Unknown'), COALESCE(SUM(e.total_tokens), 0) AS tokens, COUNT(*)
	FROM usage_events e
	LEFT JOIN projects p ON p.id = e.project_id
	WHERE e.timestamp >= ? AND e.timestamp <= ?
	GROUP BY e.project_id
	ORDER BY tokens DESC, e.project_id ASC
	`
	rows, err := s.db.Query(query, rangeArgs(start, end)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query project usage: %w", err)
	}
	defer rows.Close()

	usage := []*ProjectUsage{}
	for rows.Next() {
		var p ProjectUsage
		if err := rows.Scan(&p.ProjectID, &p.ProjectName, &p.Tokens, &p.Calls); err != nil {
			return nil, fmt.Errorf("failed to scan project usage: %w", err)
		}
		usage = append(usage, &p)
	}
	return usage, rows.Err()
}

func (s *SQLiteStorage) queryGroups(query, what string, args ...interface{}) ([]*GroupUsage, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", what, err)
	}
	defer rows.Close()

	groups := []*GroupUsage{}
	for rows.Next() {
		var g GroupUsage
		if err := rows.Scan(&g.Key, &g.Tokens, &g.Calls); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", what, err)
		}
		groups = append(groups, &g)
	}
	return groups, rows.Err()
}
