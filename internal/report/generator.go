package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"insight-report/internal/agent"
	"insight-report/internal/config"
	"insight-report/internal/logger"
	"insight-report/internal/progress"
	"insight-report/internal/prompt"
	"insight-report/internal/stats"
	"insight-report/internal/storage"
)

// generatingStep is the output length interval between generating checkpoints.
const generatingStep = 500

// Store is the slice of storage the generator writes through.
type Store interface {
	GetReport(id string) (*storage.InsightReport, error)
	MarkGenerating(id string) error
	UpdateProgress(id, progress string) error
	CompleteReport(id string, result *storage.ReportResult) error
	FailReport(id, message string) error
	ReleaseLease(key, holder string) error
}

// Prompts renders the prompts for one generation.
type Prompts interface {
	Language() string
	SystemPrompt() string
	UserPrompt(period stats.Period) string
}

// PromptFactory builds Prompts for a user's language and persona.
type PromptFactory func(user config.UserConfig) Prompts

func DefaultPrompts(user config.UserConfig) Prompts {
	return prompt.NewBuilder(user)
}

// Generator runs the narrative agent for a pending report and finalizes the
// row. Callers guarantee a single active generation and hold the lease under
// the report id; the generator releases it on every terminal state.
type Generator struct {
	store   Store
	runner  agent.Runner
	prompts PromptFactory
}

func NewGenerator(store Store, runner agent.Runner, prompts PromptFactory) *Generator {
	if prompts == nil {
		prompts = DefaultPrompts
	}
	return &Generator{store: store, runner: runner, prompts: prompts}
}

// GenerateInsightReport generates the report and persists the outcome. Any
// failure after the row is found is stored on the row and returned.
func (g *Generator) GenerateInsightReport(ctx context.Context, reportID string, auth config.AuthConfig, user config.UserConfig) error {
	log := logger.ForReport(reportID)
	defer g.releaseLease(reportID, log)

	report, err := g.store.GetReport(reportID)
	if err != nil {
		return fmt.Errorf("failed to load report %s: %w", reportID, err)
	}
	if report == nil {
		return fmt.Errorf("%w: %s", ErrReportNotFound, reportID)
	}

	result, err := g.generate(ctx, report, auth, user, log)
	if err != nil {
		log.Errorf("Report generation failed: %v", err)
		if ferr := g.store.FailReport(reportID, err.Error()); ferr != nil {
			log.Errorf("Failed to mark report as failed: %v", ferr)
		}
		return err
	}

	if err := g.store.CompleteReport(reportID, result); err != nil {
		err = fmt.Errorf("failed to save report: %w", err)
		if ferr := g.store.FailReport(reportID, err.Error()); ferr != nil {
			log.Errorf("Failed to mark report as failed: %v", ferr)
		}
		return err
	}

	log.Infof("Report completed (%d chars)", utf8.RuneCountInString(result.ReportMarkdown))
	return nil
}

func (g *Generator) generate(ctx context.Context, report *storage.InsightReport, auth config.AuthConfig, user config.UserConfig, log *logrus.Entry) (*storage.ReportResult, error) {
	if report.DataDir == "" {
		return nil, ErrMissingExportDirectory
	}
	if err := g.store.MarkGenerating(report.ID); err != nil {
		return nil, fmt.Errorf("failed to mark report generating: %w", err)
	}

	tracker := progress.NewTracker(g.store, report.ID)
	if err := tracker.Emit(progress.StepLoadingSDK, ""); err != nil {
		return nil, err
	}

	var snapshot stats.InsightStats
	if err := json.Unmarshal([]byte(report.StatsJSON), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode stored stats: %w", err)
	}

	prompts := g.prompts(user)
	log.Debugf("Building prompts (language=%s)", prompts.Language())
	req := agent.Request{
		WorkDir:      report.DataDir,
		SystemPrompt: prompts.SystemPrompt(),
		Prompt:       prompts.UserPrompt(snapshot.Period),
	}

	if err := tracker.Emit(progress.StepStartingSession, ""); err != nil {
		return nil, err
	}
	req.Env = agent.BuildCredentialEnv(auth)

	output, err := g.stream(ctx, req, tracker, log)
	if err != nil {
		return nil, err
	}

	stripped := StripFences(output)
	if stripped == "" {
		return nil, ErrEmptyOutput
	}

	parsed := ParseWithFallback(stripped)
	if parsed.Fallback {
		log.Warn("Agent output did not follow the two-part format, using fallback")
	}
	html, err := RenderDetail(parsed.Detail, parsed.Fallback)
	if err != nil {
		return nil, fmt.Errorf("failed to render report detail: %w", err)
	}

	return &storage.ReportResult{
		Summary:        parsed.Summary,
		ReportHTML:     html,
		ReportMarkdown: output,
	}, nil
}

// stream consumes the agent's events and returns the accumulated text. A
// flagged error only fails the run when no text arrived.
func (g *Generator) stream(ctx context.Context, req agent.Request, tracker *progress.Tracker, log *logrus.Entry) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	events, err := g.runner.Run(ctx, req)
	if err != nil {
		cancel()
		return "", fmt.Errorf("failed to start agent: %w", err)
	}
	defer func() {
		cancel()
		for range events {
		}
	}()

	var (
		buf       strings.Builder
		runes     int
		agentErr  bool
		agentMsg  string
		lastStep  int
		toolCalls int
	)
	for ev := range events {
		switch ev.Kind {
		case agent.EventInit:
			if err := tracker.Emit(progress.StepAgentReady, ""); err != nil {
				return "", err
			}
		case agent.EventToolUse:
			toolCalls++
			if err := tracker.ToolCall(agent.DescribeTool(ev.ToolName, ev.ToolInput)); err != nil {
				return "", err
			}
		case agent.EventText:
			buf.WriteString(ev.Text)
			runes += utf8.RuneCountInString(ev.Text)
			if step := runes / generatingStep; step > lastStep {
				lastStep = step
				if err := tracker.Generating(runes); err != nil {
					return "", err
				}
			}
		case agent.EventResult:
			if ev.IsError {
				agentErr = true
				agentMsg = ev.Message
				log.Warnf("Agent reported an error: %s", ev.Message)
			}
		}
	}
	log.Debugf("Agent stream ended (%d tool calls, %d chars)", toolCalls, runes)

	if agentErr && buf.Len() == 0 {
		if agentMsg == "" {
			agentMsg = genericAgentError
		}
		return "", &AgentError{Message: agentMsg}
	}
	return buf.String(), nil
}

func (g *Generator) releaseLease(reportID string, log *logrus.Entry) {
	if err := g.store.ReleaseLease(storage.GenerationLeaseKey, reportID); err != nil {
		log.Warnf("Failed to release generation lease: %v", err)
	}
}

// IsAgentError reports whether err came from the agent itself.
func IsAgentError(err error) bool {
	var ae *AgentError
	return errors.As(err, &ae)
}
