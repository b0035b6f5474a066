package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const reportColumns = `id, report_type, report_date, status, stats_json, summary, report_html, report_markdown,
	COALESCE(progress, ''), COALESCE(error, ''), COALESCE(data_dir, ''), created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (*InsightReport, error) {
	var r InsightReport
	var createdAt, updatedAt int64
	err := row.Scan(&r.ID, &r.ReportType, &r.ReportDate, &r.Status, &r.StatsJSON, &r.Summary, &r.ReportHTML,
		&r.ReportMarkdown, &r.Progress, &r.Error, &r.DataDir, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = time.UnixMilli(createdAt)
	r.UpdatedAt = time.UnixMilli(updatedAt)
	return &r, nil
}

// CreatePendingReport inserts a pending row. Any existing row for the
// period, failed ones included, yields ErrReportExists. The
// active-generation check runs in the same transaction.
func (s *SQLiteStorage) CreatePendingReport(report *InsightReport) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var active int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM insight_reports WHERE status IN (?, ?)`,
		StatusPending, StatusGenerating).Scan(&active); err != nil {
		return fmt.Errorf("failed to count active reports: %w", err)
	}
	if active > 0 {
		return ErrGenerationActive
	}

	var existing int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM insight_reports WHERE report_type = ? AND report_date = ?`,
		report.ReportType, report.ReportDate).Scan(&existing); err != nil {
		return fmt.Errorf("failed to look up existing report: %w", err)
	}
	if existing > 0 {
		return ErrReportExists
	}

	report.Status = StatusPending
	query := `
	INSERT INTO insight_reports (id, report_type, report_date, status, stats_json, data_dir, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.Exec(query, report.ID, report.ReportType, report.ReportDate, report.Status, report.StatsJSON,
		nullString(report.DataDir), report.CreatedAt.UnixMilli(), report.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	return tx.Commit()
}

// DeleteFailedReport removes the period's row only if it failed, freeing
// the key for an operator-requested retry. It reports whether a row was
// removed.
func (s *SQLiteStorage) DeleteFailedReport(reportType, reportDate string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM insight_reports WHERE report_type = ? AND report_date = ? AND status = ?`,
		reportType, reportDate, StatusFailed)
	if err != nil {
		return false, fmt.Errorf("failed to delete failed report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete failed report: %w", err)
	}
	return n > 0, nil
}

// GetReport returns nil, nil when the id does not exist.
func (s *SQLiteStorage) GetReport(id string) (*InsightReport, error) {
	row := s.db.QueryRow(`SELECT `+reportColumns+` FROM insight_reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return r, nil
}

// FindReport returns the row for a period, nil when absent.
func (s *SQLiteStorage) FindReport(reportType, reportDate string) (*InsightReport, error) {
	row := s.db.QueryRow(`SELECT `+reportColumns+` FROM insight_reports WHERE report_type = ? AND report_date = ?`,
		reportType, reportDate)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find report: %w", err)
	}
	return r, nil
}

func (s *SQLiteStorage) HasActiveReport() (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM insight_reports WHERE status IN (?, ?)`,
		StatusPending, StatusGenerating).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count active reports: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStorage) LatestCompletedReport() (*InsightReport, error) {
	row := s.db.QueryRow(`SELECT `+reportColumns+` FROM insight_reports WHERE status = ?
		ORDER BY created_at DESC LIMIT 1`, StatusCompleted)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest completed report: %w", err)
	}
	return r, nil
}

func (s *SQLiteStorage) ListReports(limit int) ([]*InsightReport, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryReports(`SELECT `+reportColumns+` FROM insight_reports ORDER BY created_at DESC LIMIT ?`, limit)
}

// FindStaleReports returns in-flight rows not updated since olderThan.
func (s *SQLiteStorage) FindStaleReports(olderThan time.Time) ([]*InsightReport, error) {
	return s.queryReports(`SELECT `+reportColumns+` FROM insight_reports
		WHERE status IN (?, ?) AND updated_at < ? ORDER BY created_at ASC`,
		StatusPending, StatusGenerating, olderThan.UnixMilli())
}

func (s *SQLiteStorage) queryReports(query string, args ...interface{}) ([]*InsightReport, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []*InsightReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func (s *SQLiteStorage) SetDataDir(id, dataDir string) error {
	return s.updateReport(`UPDATE insight_reports SET data_dir = ?, updated_at = ? WHERE id = ?`,
		nullString(dataDir), time.Now().UnixMilli(), id)
}

func (s *SQLiteStorage) MarkGenerating(id string) error {
	return s.updateReport(`UPDATE insight_reports SET status = ?, error = NULL, updated_at = ? WHERE id = ?`,
		StatusGenerating, time.Now().UnixMilli(), id)
}

// UpdateProgress overwrites the progress checkpoint.
func (s *SQLiteStorage) UpdateProgress(id, progress string) error {
	return s.updateReport(`UPDATE insight_reports SET progress = ?, updated_at = ? WHERE id = ?`,
		nullString(progress), time.Now().UnixMilli(), id)
}

// CompleteReport writes the result and clears progress, error and data_dir.
func (s *SQLiteStorage) CompleteReport(id string, result *ReportResult) error {
	query := `
	UPDATE insight_reports
	SET status = ?, summary = ?, report_html = ?, report_markdown = ?,
		progress = NULL, error = NULL, data_dir = NULL, updated_at = ?
	WHERE id = ?
	`
	return s.updateReport(query, StatusCompleted, result.Summary, result.ReportHTML, result.ReportMarkdown,
		time.Now().UnixMilli(), id)
}

// FailReport stores the error message and clears progress. data_dir is kept
// so the export can be inspected.
func (s *SQLiteStorage) FailReport(id, message string) error {
	query := `UPDATE insight_reports SET status = ?, error = ?, progress = NULL, updated_at = ? WHERE id = ?`
	return s.updateReport(query, StatusFailed, message, time.Now().UnixMilli(), id)
}

func (s *SQLiteStorage) updateReport(query string, args ...interface{}) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update report: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("failed to update report: no row for id %v", args[len(args)-1])
	}
	return nil
}
