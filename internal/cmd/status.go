package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"insight-report/internal/progress"
	"insight-report/internal/storage"
)

var statusConfigPath string

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show generation status, lease and recent reports",
		RunE:  runStatus,
	}
	cmd.Flags().StringVarP(&statusConfigPath, "config", "c", "", "Path to config file")
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, st, err := openStorage(statusConfigPath)
	if err != nil {
		return err
	}
	defer st.Close()

	reports, err := st.ListReports(5)
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}
	lease, err := st.GetLease(storage.GenerationLeaseKey)
	if err != nil {
		return fmt.Errorf("failed to read lease: %w", err)
	}

	fmt.Fprintf(os.Stdout, "Insight Report Status\n")
	fmt.Fprintf(os.Stdout, "=====================\n\n")

	if lease != nil {
		fmt.Fprintf(os.Stdout, "Generation lease: held by %s since %s\n", lease.Holder, lease.AcquiredAt.Format(time.RFC3339))
	} else {
		fmt.Fprintf(os.Stdout, "Generation lease: free\n")
	}

	for _, r := range reports {
		if !r.IsActive() {
			continue
		}
		fmt.Fprintf(os.Stdout, "In flight: %s %s (%s)\n", r.ReportType, r.ReportDate, r.Status)
		if cp, err := progress.Decode(r.Progress); err == nil && cp != nil {
			fmt.Fprintf(os.Stdout, "  Step: %s %s\n", cp.Step, cp.Detail)
			for _, call := range cp.ToolCalls {
				fmt.Fprintf(os.Stdout, "    - %s\n", call)
			}
		}
	}

	fmt.Fprintf(os.Stdout, "\nRecent Reports:\n")
	if len(reports) == 0 {
		fmt.Fprintf(os.Stdout, "  (none)\n")
	}
	for _, r := range reports {
		line := r.Summary
		if r.Status == storage.StatusFailed {
			line = "error: " + r.Error
		}
		fmt.Fprintf(os.Stdout, "  %-7s %s %-10s %s\n", r.ReportType, r.ReportDate, r.Status, truncate(line, 60))
	}

	return nil
}
