package progress

import (
	"encoding/json"
	"fmt"
	"sync"

	"insight-report/internal/logger"
)

const (
	StepLoadingSDK      = "loading_sdk"
	StepStartingSession = "starting_session"
	StepAgentReady      = "agent_ready"
	StepExecuting       = "executing"
	StepGenerating      = "generating"

	// MaxRecentToolCalls bounds the recent-activity list shown while executing.
	MaxRecentToolCalls = 5
)

// Checkpoint is the structured progress record stored on a generating report.
type Checkpoint struct {
	Step      string   `json:"step"`
	Detail    string   `json:"detail,omitempty"`
	ToolCalls []string `json:"toolCalls,omitempty"`
}

// Writer persists the encoded checkpoint, replacing any previous value.
type Writer interface {
	UpdateProgress(id, progress string) error
}

// Tracker writes checkpoints for a single report. Each Emit is a synchronous
// write so pollers observe checkpoints in emission order.
type Tracker struct {
	mu       sync.Mutex
	writer   Writer
	reportID string
	recent   []string
	last     Checkpoint
}

func NewTracker(writer Writer, reportID string) *Tracker {
	return &Tracker{writer: writer, reportID: reportID}
}

// Emit stores a checkpoint with the given step and detail.
func (t *Tracker) Emit(step, detail string) error {
	return t.write(Checkpoint{Step: step, Detail: detail})
}

// ToolCall records a tool invocation in the bounded recent list and emits an
// executing checkpoint carrying it.
func (t *Tracker) ToolCall(description string) error {
	t.mu.Lock()
	t.recent = append(t.recent, description)
	if len(t.recent) > MaxRecentToolCalls {
		t.recent = t.recent[len(t.recent)-MaxRecentToolCalls:]
	}
	calls := make([]string, len(t.recent))
	copy(calls, t.recent)
	t.mu.Unlock()

	return t.write(Checkpoint{Step: StepExecuting, Detail: description, ToolCalls: calls})
}

// Generating emits the buffered output length.
func (t *Tracker) Generating(length int) error {
	return t.write(Checkpoint{Step: StepGenerating, Detail: fmt.Sprintf("%d", length)})
}

// Last returns the most recently written checkpoint.
func (t *Tracker) Last() Checkpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

func (t *Tracker) write(cp Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.writer.UpdateProgress(t.reportID, string(data)); err != nil {
		return fmt.Errorf("failed to write progress for report %s: %w", t.reportID, err)
	}
	t.last = cp
	logger.ForReport(t.reportID).Debugf("Progress: %s %s", cp.Step, cp.Detail)
	return nil
}

// Decode parses a stored progress value. An empty value yields nil.
func Decode(progress string) (*Checkpoint, error) {
	if progress == "" {
		return nil, nil
	}
	var cp Checkpoint
	if err := json.Unmarshal([]byte(progress), &cp); err != nil {
		return nil, fmt.Errorf("failed to decode progress: %w", err)
	}
	return &cp, nil
}
