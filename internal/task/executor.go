package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"insight-report/internal/agent"
	"insight-report/internal/config"
	"insight-report/internal/export"
	"insight-report/internal/logger"
	"insight-report/internal/report"
	"insight-report/internal/stats"
	"insight-report/internal/storage"
	"insight-report/internal/trigger"
)

// ErrGenerationInProgress is returned when this process is already
// generating a report.
var ErrGenerationInProgress = errors.New("report generation already in progress")

type Executor struct {
	config     *config.Config
	storage    *storage.Storage
	calculator *stats.Calculator
	trigger    *trigger.Engine
	exporter   *export.Writer
	generator  *report.Generator

	generationMutex sync.Mutex
	wg              sync.WaitGroup
	now             func() time.Time
}

func NewExecutor(cfg *config.Config, st *storage.Storage) (*Executor, error) {
	if err := cfg.Auth.Validate(); err != nil {
		return nil, fmt.Errorf("auth not configured: %w", err)
	}
	return NewExecutorWithRunner(cfg, st, agent.NewClaudeRunner(cfg.Agent)), nil
}

// NewExecutorWithRunner wires the executor around a specific agent runner.
func NewExecutorWithRunner(cfg *config.Config, st *storage.Storage, runner agent.Runner) *Executor {
	calculator := stats.NewCalculator(st)
	thresholds := trigger.Thresholds{
		DailyMinAPICalls:    int64(cfg.Trigger.DailyMinAPICalls),
		DailyMinTokens:      cfg.Trigger.DailyMinTokens,
		WeeklyMinActiveDays: int64(cfg.Trigger.WeeklyMinActiveDays),
	}

	return &Executor{
		config:     cfg,
		storage:    st,
		calculator: calculator,
		trigger:    trigger.NewEngine(st, calculator, thresholds),
		exporter:   export.NewWriter(cfg.Storage.ExportPath, st),
		generator:  report.NewGenerator(st, runner, report.DefaultPrompts),
		now:        time.Now,
	}
}

// WithClock replaces the clock for trigger checks and date ranges.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	e.calculator.WithClock(now)
	e.trigger.WithClock(now)
	return e
}

// CheckTrigger evaluates whether a report is due without generating one.
func (e *Executor) CheckTrigger() trigger.CheckResult {
	return e.trigger.CheckShouldGenerateReport()
}

// RunTriggerCheck is the scheduled task. A positive check starts generation
// in the background so the scheduler is never blocked; if a generation is
// already running in this process the check is skipped.
func (e *Executor) RunTriggerCheck() error {
	if !e.generationMutex.TryLock() {
		logger.GetLogger().Info("Report generation in progress, skipping trigger check")
		return nil
	}

	result := e.trigger.CheckShouldGenerateReport()
	if !result.ShouldGenerate {
		e.generationMutex.Unlock()
		logger.GetLogger().Infof("No report due: %s", result.Reason)
		return nil
	}

	logger.GetLogger().Infof("Generating %s report: %s", result.ReportType, result.Reason)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.generationMutex.Unlock()

		if _, err := e.generate(context.Background(), result.ReportType, e.now(), false); err != nil {
			logger.GetLogger().Errorf("Scheduled %s report failed: %v", result.ReportType, err)
		}
	}()
	return nil
}

// Wait blocks until any background generation has finished.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// GenerateReport synchronously generates the report of reportType whose
// window precedes target. A zero target means now. A failed report for the
// period blocks generation unless retryFailed is set, in which case it is
// discarded first.
func (e *Executor) GenerateReport(ctx context.Context, reportType string, target time.Time, retryFailed bool) (*storage.InsightReport, error) {
	if !e.generationMutex.TryLock() {
		return nil, ErrGenerationInProgress
	}
	defer e.generationMutex.Unlock()

	if target.IsZero() {
		target = e.now()
	}
	return e.generate(ctx, reportType, target, retryFailed)
}

func (e *Executor) generate(ctx context.Context, reportType string, target time.Time, retryFailed bool) (*storage.InsightReport, error) {
	r, err := stats.CalculateDateRange(reportType, target)
	if err != nil {
		return nil, err
	}
	if retryFailed {
		if err := e.discardFailed(reportType, r.ReportDate); err != nil {
			return nil, err
		}
	}

	snapshot, err := e.calculator.CalculateForRange(r, reportType)
	if err != nil {
		return nil, err
	}
	statsJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stats: %w", err)
	}

	pending := storage.NewInsightReport(reportType, r.ReportDate, string(statsJSON))
	if err := e.storage.CreatePendingReport(pending); err != nil {
		return nil, fmt.Errorf("failed to create %s report for %s: %w", reportType, r.ReportDate, err)
	}
	log := logger.ForReport(pending.ID)
	log.Infof("Created pending %s report for %s", reportType, r.ReportDate)

	if err := e.storage.AcquireLease(storage.GenerationLeaseKey, pending.ID); err != nil {
		e.abort(pending.ID, err)
		return nil, err
	}

	dir, err := e.exporter.Export(pending, r.Start, r.End)
	if err == nil {
		err = e.storage.SetDataDir(pending.ID, dir)
	}
	if err != nil {
		e.abort(pending.ID, err)
		if rerr := e.storage.ReleaseLease(storage.GenerationLeaseKey, pending.ID); rerr != nil {
			log.Warnf("Failed to release generation lease: %v", rerr)
		}
		return nil, err
	}

	genErr := e.generator.GenerateInsightReport(ctx, pending.ID, e.config.Auth, e.config.User)
	if genErr == nil {
		if err := e.exporter.Remove(pending.ID); err != nil {
			log.Warnf("Failed to remove export directory: %v", err)
		}
	}

	final, err := e.storage.GetReport(pending.ID)
	if err != nil {
		return nil, err
	}
	return final, genErr
}

// discardFailed deletes a failed row for the period and its kept export.
// Any other row is left alone and CreatePendingReport refuses it.
func (e *Executor) discardFailed(reportType, reportDate string) error {
	existing, err := e.storage.FindReport(reportType, reportDate)
	if err != nil || existing == nil || existing.Status != storage.StatusFailed {
		return err
	}
	deleted, err := e.storage.DeleteFailedReport(reportType, reportDate)
	if err != nil || !deleted {
		return err
	}
	if err := e.exporter.Remove(existing.ID); err != nil {
		logger.ForReport(existing.ID).Warnf("Failed to remove export directory: %v", err)
	}
	logger.ForReport(existing.ID).Infof("Discarded failed %s report for %s before retry", reportType, reportDate)
	return nil
}

func (e *Executor) abort(reportID string, cause error) {
	if err := e.storage.FailReport(reportID, cause.Error()); err != nil {
		logger.ForReport(reportID).Errorf("Failed to mark report as failed: %v", err)
	}
}

// Recover fails in-flight reports that have not been updated within
// staleAfter and breaks a lease no live report holds. It is the
// out-of-band answer to a hung or killed generation.
func (e *Executor) Recover(staleAfter time.Duration) (int, error) {
	stale, err := e.storage.FindStaleReports(e.now().Add(-staleAfter))
	if err != nil {
		return 0, err
	}

	for _, r := range stale {
		msg := fmt.Sprintf("generation abandoned: no progress since %s", r.UpdatedAt.Format(time.RFC3339))
		if err := e.storage.FailReport(r.ID, msg); err != nil {
			return 0, err
		}
		logger.ForReport(r.ID).Warnf("Marked stale %s report as failed", r.Status)
	}

	lease, err := e.storage.GetLease(storage.GenerationLeaseKey)
	if err != nil {
		return len(stale), err
	}
	if lease != nil {
		holder, err := e.storage.GetReport(lease.Holder)
		if err != nil {
			return len(stale), err
		}
		if holder == nil || !holder.IsActive() {
			if err := e.storage.BreakLease(storage.GenerationLeaseKey); err != nil {
				return len(stale), err
			}
			logger.GetLogger().Warnf("Broke generation lease held by %s", lease.Holder)
		}
	}
	return len(stale), nil
}

// Cleanup applies the retention window to the usage ledger, chat excerpts
// and export directories of reports that are no longer in flight.
func (e *Executor) Cleanup() (int64, int, error) {
	days := e.config.Storage.RetentionDays
	if days <= 0 {
		return 0, 0, fmt.Errorf("retention_days must be positive, got %d", days)
	}

	rows, err := e.storage.CleanupOldRecords(days)
	if err != nil {
		return rows, 0, err
	}

	recent, err := e.storage.ListReports(100)
	if err != nil {
		return rows, 0, err
	}
	keep := make(map[string]bool)
	for _, r := range recent {
		if r.IsActive() {
			keep[r.ID] = true
		}
	}

	dirs, err := e.exporter.CleanupOlderThan(e.now().AddDate(0, 0, -days), keep)
	if err != nil {
		return rows, dirs, err
	}
	logger.GetLogger().Infof("Cleanup removed %d ledger rows and %d export directories", rows, dirs)
	return rows, dirs, nil
}

// Reports lists the most recent reports.
func (e *Executor) Reports(limit int) ([]*storage.InsightReport, error) {
	return e.storage.ListReports(limit)
}
