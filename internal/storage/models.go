package storage

import (
	"time"

	"github.com/google/uuid"
)

const (
	ReportTypeDaily  = "daily"
	ReportTypeWeekly = "weekly"

	StatusPending    = "pending"
	StatusGenerating = "generating"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"

	ModePlan  = "plan"
	ModeAgent = "agent"

	// GenerationLeaseKey is the fixed resource key for the single active generation.
	GenerationLeaseKey = "insight_report"
)

// UsageEvent is one row of the append-only usage ledger.
type UsageEvent struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Model        string    `json:"model"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	TotalTokens  int64     `json:"total_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	SessionID    string    `json:"session_id"`
	ChatID       string    `json:"chat_id"`
	ProjectID    string    `json:"project_id"`
	Mode         string    `json:"mode"`
}

// Normalize fills derived fields before the event is written.
func (e *UsageEvent) Normalize() {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.TotalTokens == 0 {
		e.TotalTokens = e.InputTokens + e.OutputTokens
	}
	if e.Mode != ModePlan {
		e.Mode = ModeAgent
	}
}

type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ChatMessage struct {
	ChatID    string    `json:"chat_id"`
	ProjectID string    `json:"project_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// InsightReport is the persisted report row. Progress is only set while
// generating and Error only once failed.
type InsightReport struct {
	ID             string
	ReportType     string
	ReportDate     string
	Status         string
	StatsJSON      string
	Summary        string
	ReportHTML     string
	ReportMarkdown string
	Progress       string
	Error          string
	DataDir        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewInsightReport builds a pending row for the given period.
func NewInsightReport(reportType, reportDate, statsJSON string) *InsightReport {
	now := time.Now()
	return &InsightReport{
		ID:         uuid.New().String(),
		ReportType: reportType,
		ReportDate: reportDate,
		Status:     StatusPending,
		StatsJSON:  statsJSON,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsActive reports whether the row is still in flight.
func (r *InsightReport) IsActive() bool {
	return r.Status == StatusPending || r.Status == StatusGenerating
}

// ReportResult is what a successful generation writes back.
type ReportResult struct {
	Summary        string
	ReportHTML     string
	ReportMarkdown string
}

type Lease struct {
	Key        string
	Holder     string
	AcquiredAt time.Time
}

// UsageTotals is the coalesced sum over a range.
type UsageTotals struct {
	TotalTokens  int64
	InputTokens  int64
	OutputTokens int64
	TotalCostUSD float64
	APICalls     int64
}

type ActivityCounts struct {
	ActiveDays    int64
	SessionsCount int64
	ChatsCount    int64
}

// GroupUsage is a tokens/calls sum keyed by model, mode, hour or date.
type GroupUsage struct {
	Key    string
	Tokens int64
	Calls  int64
}

type ProjectUsage struct {
	ProjectID   string
	ProjectName string
	Tokens      int64
	Calls       int64
}
