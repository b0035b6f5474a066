package task

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"insight-report/internal/agent"
	"insight-report/internal/config"
	"insight-report/internal/export"
	"insight-report/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type scriptedRunner struct {
	events  []agent.Event
	workDir string
	files   []string
}

func (r *scriptedRunner) Run(ctx context.Context, req agent.Request) (<-chan agent.Event, error) {
	r.workDir = req.WorkDir
	entries, _ := os.ReadDir(req.WorkDir)
	for _, e := range entries {
		r.files = append(r.files, e.Name())
	}

	ch := make(chan agent.Event, len(r.events))
	for _, ev := range r.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

// 2025-03-12 is a Wednesday.
var now = time.Date(2025, 3, 12, 9, 0, 0, 0, time.Local)

func newTestExecutor(t *testing.T, runner agent.Runner) (*Executor, *storage.Storage, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	sqlite, err := storage.NewSQLiteStorage(filepath.Join(dir, "insight.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	st := &storage.Storage{StorageInterface: sqlite}

	cfg := &config.Config{
		Auth: config.AuthConfig{Type: "apikey", Token: "sk-x"},
		User: config.UserConfig{Language: "en"},
		Trigger: config.TriggerConfig{
			DailyMinAPICalls:    2,
			DailyMinTokens:      100,
			WeeklyMinActiveDays: 3,
		},
		Storage: config.StorageConfig{ExportPath: filepath.Join(dir, "exports"), RetentionDays: 30},
	}
	return NewExecutorWithRunner(cfg, st, runner).WithClock(func() time.Time { return now }), st, cfg
}

func seedYesterday(t *testing.T, st *storage.Storage) {
	t.Helper()
	yesterday := time.Date(2025, 3, 11, 14, 0, 0, 0, time.Local)
	for i := 0; i < 3; i++ {
		require.NoError(t, st.RecordUsageEvent(&storage.UsageEvent{
			Timestamp: yesterday.Add(time.Duration(i) * time.Minute), Model: "sonnet",
			InputTokens: 100, OutputTokens: 50, ProjectID: "p1", ChatID: "c1", SessionID: "s1",
		}))
	}
	require.NoError(t, st.SaveProject(&storage.Project{ID: "p1", Name: "Alpha"}))
	require.NoError(t, st.SaveChatMessage(&storage.ChatMessage{ChatID: "c1", ProjectID: "p1", Role: "user", Content: "hi", CreatedAt: yesterday}))
}

var goodOutput = []agent.Event{
	{Kind: agent.EventInit},
	{Kind: agent.EventText, Text: "===SUMMARY===\nSteady.\n===DETAIL===\n<p>ok</p>"},
	{Kind: agent.EventResult},
}

func TestGenerateReport_EndToEnd(t *testing.T) {
	runner := &scriptedRunner{events: goodOutput}
	e, st, cfg := newTestExecutor(t, runner)
	seedYesterday(t, st)

	r, err := e.GenerateReport(context.Background(), storage.ReportTypeDaily, time.Time{}, false)
	require.NoError(t, err)

	assert.Equal(t, storage.StatusCompleted, r.Status)
	assert.Equal(t, "2025-03-11", r.ReportDate)
	assert.Equal(t, "Steady.", r.Summary)
	assert.Contains(t, r.StatsJSON, `"totalTokens":450`)
	assert.Empty(t, r.DataDir)

	assert.Equal(t, filepath.Join(cfg.Storage.ExportPath, r.ID), runner.workDir)
	assert.ElementsMatch(t, []string{export.StatsFile, export.IndexFile, export.ChatsDir}, runner.files)
	assert.NoDirExists(t, runner.workDir)

	lease, err := st.GetLease(storage.GenerationLeaseKey)
	require.NoError(t, err)
	assert.Nil(t, lease)

	_, err = e.GenerateReport(context.Background(), storage.ReportTypeDaily, time.Time{}, false)
	assert.ErrorIs(t, err, storage.ErrReportExists)
}

func TestGenerateReport_FailureKeepsExport(t *testing.T) {
	runner := &scriptedRunner{events: []agent.Event{{Kind: agent.EventResult, IsError: true, Message: "quota exceeded"}}}
	e, st, _ := newTestExecutor(t, runner)
	seedYesterday(t, st)

	r, err := e.GenerateReport(context.Background(), storage.ReportTypeDaily, time.Time{}, false)
	require.Error(t, err)
	require.NotNil(t, r)

	assert.Equal(t, storage.StatusFailed, r.Status)
	assert.Contains(t, r.Error, "quota exceeded")
	assert.DirExists(t, r.DataDir)

	failedDir := r.DataDir

	// a failed period is neither retried by the trigger nor regenerated implicitly
	runner.events = goodOutput
	assert.Contains(t, e.CheckTrigger().Reason, "already exists")
	_, err = e.GenerateReport(context.Background(), storage.ReportTypeDaily, time.Time{}, false)
	assert.ErrorIs(t, err, storage.ErrReportExists)

	r, err = e.GenerateReport(context.Background(), storage.ReportTypeDaily, time.Time{}, true)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCompleted, r.Status)
	assert.NoDirExists(t, failedDir)
}

func TestRunTriggerCheck_DoesNotRetryFailed(t *testing.T) {
	runner := &scriptedRunner{events: []agent.Event{{Kind: agent.EventResult, IsError: true, Message: "bad credentials"}}}
	e, st, _ := newTestExecutor(t, runner)
	seedYesterday(t, st)

	require.NoError(t, e.RunTriggerCheck())
	e.Wait()
	require.NoError(t, e.RunTriggerCheck())
	e.Wait()

	reports, err := e.Reports(10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, storage.StatusFailed, reports[0].Status)
	assert.Equal(t, "bad credentials", reports[0].Error)
}

func TestGenerateReport_RefusesWhileActive(t *testing.T) {
	e, st, _ := newTestExecutor(t, &scriptedRunner{events: goodOutput})
	require.NoError(t, st.CreatePendingReport(storage.NewInsightReport(storage.ReportTypeWeekly, "2025-03-03", "{}")))

	_, err := e.GenerateReport(context.Background(), storage.ReportTypeDaily, time.Time{}, false)
	assert.ErrorIs(t, err, storage.ErrGenerationActive)
}

func TestRunTriggerCheck(t *testing.T) {
	e, st, _ := newTestExecutor(t, &scriptedRunner{events: goodOutput})
	seedYesterday(t, st)

	assert.True(t, e.CheckTrigger().ShouldGenerate)
	require.NoError(t, e.RunTriggerCheck())
	e.Wait()

	reports, err := e.Reports(10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, storage.StatusCompleted, reports[0].Status)
	assert.Equal(t, storage.ReportTypeDaily, reports[0].ReportType)

	result := e.CheckTrigger()
	assert.False(t, result.ShouldGenerate)
}

func TestRecover(t *testing.T) {
	e, st, _ := newTestExecutor(t, &scriptedRunner{})
	stuck := storage.NewInsightReport(storage.ReportTypeDaily, "2025-03-10", "{}")
	require.NoError(t, st.CreatePendingReport(stuck))
	require.NoError(t, st.MarkGenerating(stuck.ID))
	require.NoError(t, st.AcquireLease(storage.GenerationLeaseKey, stuck.ID))

	// the row was just updated, so it is not stale relative to the real clock
	e.WithClock(time.Now)
	n, err := e.Recover(time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	e.WithClock(func() time.Time { return time.Now().Add(3 * time.Hour) })
	n, err = e.Recover(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := st.GetReport(stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "generation abandoned")

	lease, err := st.GetLease(storage.GenerationLeaseKey)
	require.NoError(t, err)
	assert.Nil(t, lease)
}

func TestCleanup(t *testing.T) {
	e, st, cfg := newTestExecutor(t, &scriptedRunner{})
	require.NoError(t, st.RecordUsageEvent(&storage.UsageEvent{Timestamp: time.Now().AddDate(0, 0, -90), Model: "old"}))
	require.NoError(t, st.RecordUsageEvent(&storage.UsageEvent{Timestamp: time.Now(), Model: "new"}))

	old := filepath.Join(cfg.Storage.ExportPath, "old-report")
	require.NoError(t, os.MkdirAll(old, 0755))
	past := time.Now().AddDate(0, 0, -90)
	require.NoError(t, os.Chtimes(old, past, past))

	e.WithClock(time.Now)
	rows, dirs, err := e.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	assert.Equal(t, 1, dirs)
	assert.NoDirExists(t, old)
}
