package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"insight-report/internal/storage"
)

var generateConfigPath string
var generateType string
var generateDate string
var generateRetryFailed bool

func NewGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a report now, skipping the usage thresholds",
		Long: "Generate a daily or weekly report immediately. --date picks a day inside the period to report on; " +
			"without it the most recent complete period is used. Single-flight and per-period uniqueness still apply; " +
			"a period whose report failed is only regenerated with --retry-failed.",
		RunE: runGenerate,
	}

	cmd.Flags().StringVarP(&generateConfigPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVarP(&generateType, "type", "t", storage.ReportTypeDaily, "Report type (daily, weekly)")
	cmd.Flags().StringVarP(&generateDate, "date", "d", "", "A date inside the period to report on (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&generateRetryFailed, "retry-failed", false, "Discard a failed report for the period and generate it again")

	return cmd
}

// generateTarget maps a date inside the wanted period to the generation time
// whose preceding window is that period.
func generateTarget(reportType, date string) (time.Time, error) {
	days := 0
	switch reportType {
	case storage.ReportTypeDaily:
		days = 1
	case storage.ReportTypeWeekly:
		days = 7
	default:
		return time.Time{}, fmt.Errorf("invalid report type '%s', must be daily or weekly", reportType)
	}

	if date == "" {
		return time.Time{}, nil
	}
	day, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format: %w", err)
	}
	return day.AddDate(0, 0, days), nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	target, err := generateTarget(generateType, generateDate)
	if err != nil {
		return err
	}

	_, st, executor, err := openExecutor(generateConfigPath, false)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stdout, "Generating %s report...\n", generateType)
	report, err := executor.GenerateReport(ctx, generateType, target, generateRetryFailed)
	if report != nil {
		fmt.Fprintf(os.Stdout, "Report %s (%s %s): %s\n", report.ID, report.ReportType, report.ReportDate, report.Status)
	}
	if errors.Is(err, storage.ErrReportExists) && !generateRetryFailed {
		return fmt.Errorf("failed to generate report: %w (use --retry-failed if the earlier attempt failed)", err)
	}
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	fmt.Fprintf(os.Stdout, "\n%s\n", report.Summary)
	return nil
}
