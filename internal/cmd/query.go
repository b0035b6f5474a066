package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var queryConfigPath string
var queryID string
var queryLimit int
var queryRaw bool

func NewQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List reports or show one report",
		Long:  "Without --id, lists the most recent reports. With --id, prints the report's summary and HTML detail, or the raw agent output with --raw.",
		RunE:  runQuery,
	}

	cmd.Flags().StringVarP(&queryConfigPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVar(&queryID, "id", "", "Report id to show")
	cmd.Flags().IntVarP(&queryLimit, "limit", "n", 20, "Number of reports to list")
	cmd.Flags().BoolVar(&queryRaw, "raw", false, "Print the raw agent output instead of the rendered detail")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	_, st, err := openStorage(queryConfigPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if queryID != "" {
		r, err := st.GetReport(queryID)
		if err != nil {
			return fmt.Errorf("failed to get report: %w", err)
		}
		if r == nil {
			return fmt.Errorf("report %s not found", queryID)
		}

		fmt.Fprintf(os.Stdout, "Report %s\n", r.ID)
		fmt.Fprintf(os.Stdout, "Type: %s  Date: %s  Status: %s\n", r.ReportType, r.ReportDate, r.Status)
		if r.Error != "" {
			fmt.Fprintf(os.Stdout, "Error: %s\n", r.Error)
		}
		fmt.Fprintf(os.Stdout, "\nSummary:\n%s\n\n", r.Summary)
		if queryRaw {
			fmt.Fprintf(os.Stdout, "%s\n", r.ReportMarkdown)
		} else {
			fmt.Fprintf(os.Stdout, "%s\n", r.ReportHTML)
		}
		return nil
	}

	reports, err := st.ListReports(queryLimit)
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}
	if len(reports) == 0 {
		fmt.Fprintf(os.Stdout, "No reports found\n")
		return nil
	}
	for _, r := range reports {
		fmt.Fprintf(os.Stdout, "%s  %-7s %s  %-10s %s\n",
			r.ID, r.ReportType, r.ReportDate, r.Status, truncate(r.Summary, 50))
	}
	return nil
}
