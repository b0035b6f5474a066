package storage

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrReportExists is returned when a non-failed report already occupies
	// the (report_type, report_date) key.
	ErrReportExists = errors.New("report already exists for this period")
	// ErrGenerationActive is returned when another report is pending or generating.
	ErrGenerationActive = errors.New("another report is already pending or generating")
	// ErrLeaseHeld is returned when the generation lease belongs to someone else.
	ErrLeaseHeld = errors.New("generation lease is held by another report")
)

// StorageInterface defines the storage interface used by the pipeline.
// Components depend on narrower interfaces declared next to them.
type StorageInterface interface {
	UsageLedger
	ReportRepository
	LeaseRepository

	RecordUsageEvent(event *UsageEvent) error
	SaveProject(project *Project) error
	ListProjects() ([]*Project, error)
	SaveChatMessage(msg *ChatMessage) error
	QueryChatMessages(start, end time.Time) ([]*ChatMessage, error)
	CleanupOldRecords(retentionDays int) (int64, error)
	Close() error
}

// UsageLedger is the read side of the usage ledger.
type UsageLedger interface {
	SumUsage(start, end time.Time) (*UsageTotals, error)
	CountActivity(start, end time.Time) (*ActivityCounts, error)
	PeakHour(start, end time.Time) (int, error)
	UsageByModel(start, end time.Time) ([]*GroupUsage, error)
	UsageByProject(start, end time.Time) ([]*ProjectUsage, error)
	UsageByMode(start, end time.Time) ([]*GroupUsage, error)
	HourlyTrend(start, end time.Time) ([]*GroupUsage, error)
	DailyTrend(start, end time.Time) ([]*GroupUsage, error)
}

// ReportRepository persists insight report rows.
type ReportRepository interface {
	CreatePendingReport(report *InsightReport) error
	DeleteFailedReport(reportType, reportDate string) (bool, error)
	GetReport(id string) (*InsightReport, error)
	FindReport(reportType, reportDate string) (*InsightReport, error)
	HasActiveReport() (bool, error)
	LatestCompletedReport() (*InsightReport, error)
	ListReports(limit int) ([]*InsightReport, error)
	FindStaleReports(olderThan time.Time) ([]*InsightReport, error)
	SetDataDir(id, dataDir string) error
	MarkGenerating(id string) error
	UpdateProgress(id, progress string) error
	CompleteReport(id string, result *ReportResult) error
	FailReport(id, message string) error
}

// LeaseRepository guards the single active generation.
type LeaseRepository interface {
	AcquireLease(key, holder string) error
	ReleaseLease(key, holder string) error
	BreakLease(key string) error
	GetLease(key string) (*Lease, error)
}

// Storage wraps the concrete implementation.
type Storage struct {
	StorageInterface
}

// NewStorage opens the SQLite database at dbPath.
func NewStorage(dbPath string) (*Storage, error) {
	sqliteStorage, err := NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite storage: %w", err)
	}
	return &Storage{StorageInterface: sqliteStorage}, nil
}

// NewSQLiteStorage creates a SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	return newSQLiteStorage(dbPath)
}
