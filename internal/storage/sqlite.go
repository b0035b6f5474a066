package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

type SQLiteStorage struct {
	db *sql.DB
}

// newSQLiteStorage creates a SQLite storage instance (internal function)
func newSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", buildDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStorage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return s, nil
}

// buildDSN enables WAL and a busy timeout so the parallel aggregate reads
// do not trip over the progress writes.
func buildDSN(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

func (s *SQLiteStorage) init() error {
	createUsageEventsTable := `
	CREATE TABLE IF NOT EXISTS usage_events (
		id TEXT PRIMARY KEY,
		timestamp INTEGER NOT NULL,
		local_date TEXT NOT NULL,
		local_hour INTEGER NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		total_tokens INTEGER NOT NULL DEFAULT 0,
		cost_usd REAL NOT NULL DEFAULT 0,
		session_id TEXT NOT NULL DEFAULT '',
		chat_id TEXT NOT NULL DEFAULT '',
		project_id TEXT NOT NULL DEFAULT '',
		mode TEXT NOT NULL DEFAULT 'agent'
	);
	`

	createProjectsTable := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);
	`

	createChatMessagesTable := `
	CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id TEXT NOT NULL,
		project_id TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`

	createReportsTable := `
	CREATE TABLE IF NOT EXISTS insight_reports (
		id TEXT PRIMARY KEY,
		report_type TEXT NOT NULL,
		report_date TEXT NOT NULL,
		status TEXT NOT NULL,
		stats_json TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		report_html TEXT NOT NULL DEFAULT '',
		report_markdown TEXT NOT NULL DEFAULT '',
		progress TEXT,
		error TEXT,
		data_dir TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`

	createLeasesTable := `
	CREATE TABLE IF NOT EXISTS generation_leases (
		lease_key TEXT PRIMARY KEY,
		holder TEXT NOT NULL,
		acquired_at INTEGER NOT NULL
	);
	`

	createIndexes := `
	CREATE INDEX IF NOT EXISTS idx_usage_events_timestamp ON usage_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_created ON chat_messages(created_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_insight_reports_type_date ON insight_reports(report_type, report_date);
	CREATE INDEX IF NOT EXISTS idx_insight_reports_status ON insight_reports(status);
	`

	stmts := []struct {
		name string
		sql  string
	}{
		{"usage_events", createUsageEventsTable},
		{"projects", createProjectsTable},
		{"chat_messages", createChatMessagesTable},
		{"insight_reports", createReportsTable},
		{"generation_leases", createLeasesTable},
		{"indexes", createIndexes},
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt.sql); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
	}

	return nil
}

// RecordUsageEvent appends an event to the ledger. The local calendar date
// and hour are frozen at write time.
func (s *SQLiteStorage) RecordUsageEvent(event *UsageEvent) error {
	event.Normalize()
	local := event.Timestamp.In(time.Local)

	query := `
	INSERT INTO usage_events (id, timestamp, local_date, local_hour, model, input_tokens, output_tokens,
		total_tokens, cost_usd, session_id, chat_id, project_id, mode)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		event.ID, event.Timestamp.UnixMilli(), local.Format(dateLayout), local.Hour(),
		event.Model, event.InputTokens, event.OutputTokens, event.TotalTokens, event.CostUSD,
		event.SessionID, event.ChatID, event.ProjectID, event.Mode,
	)
	if err != nil {
		return fmt.Errorf("failed to record usage event: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) SaveProject(project *Project) error {
	query := `INSERT OR REPLACE INTO projects (id, name) VALUES (?, ?)`
	if _, err := s.db.Exec(query, project.ID, project.Name); err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ListProjects() ([]*Project, error) {
	rows, err := s.db.Query(`SELECT id, name FROM projects ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

func (s *SQLiteStorage) SaveChatMessage(msg *ChatMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	query := `
	INSERT INTO chat_messages (chat_id, project_id, role, content, created_at)
	VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query, msg.ChatID, msg.ProjectID, msg.Role, msg.Content, msg.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save chat message: %w", err)
	}
	return nil
}

// QueryChatMessages returns messages in [start, end] grouped by project and chat.
func (s *SQLiteStorage) QueryChatMessages(start, end time.Time) ([]*ChatMessage, error) {
	query := `
	SELECT chat_id, project_id, role, content, created_at
	FROM chat_messages
	WHERE created_at >= ? AND created_at <= ?
	ORDER BY project_id ASC, chat_id ASC, created_at ASC, id ASC
	`
	rows, err := s.db.Query(query, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []*ChatMessage
	for rows.Next() {
		var m ChatMessage
		var createdAt int64
		if err := rows.Scan(&m.ChatID, &m.ProjectID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		m.CreatedAt = time.UnixMilli(createdAt)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// CleanupOldRecords deletes ledger rows and chat excerpts older than the
// retention window. Report rows are kept.
func (s *SQLiteStorage) CleanupOldRecords(retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).UnixMilli()

	res, err := s.db.Exec(`DELETE FROM usage_events WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old usage events: %w", err)
	}
	removed, _ := res.RowsAffected()

	res, err = s.db.Exec(`DELETE FROM chat_messages WHERE created_at < ?`, cutoff)
	if err != nil {
		return removed, fmt.Errorf("failed to cleanup old chat messages: %w", err)
	}
	n, _ := res.RowsAffected()

	return removed + n, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
