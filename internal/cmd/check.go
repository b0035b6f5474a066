package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var checkConfigPath string
var checkJSON bool

func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Show whether a report is due, without generating it",
		RunE:  runCheck,
	}

	cmd.Flags().StringVarP(&checkConfigPath, "config", "c", "", "Path to config file")
	cmd.Flags().BoolVar(&checkJSON, "json", false, "Print the result as JSON")

	return cmd
}

// quietEnv keeps log lines out of machine-readable output.
const quietEnv = "INSIGHT_STORAGE_LOG_QUIET"

func runCheck(cmd *cobra.Command, args []string) error {
	if checkJSON {
		os.Setenv(quietEnv, "true")
	}
	_, st, executor, err := openExecutor(checkConfigPath, true)
	if err != nil {
		return err
	}
	defer st.Close()

	result := executor.CheckTrigger()

	if checkJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if result.ShouldGenerate {
		fmt.Fprintf(os.Stdout, "Due: %s report for %s\n", result.ReportType, result.ReportDate)
	} else {
		fmt.Fprintf(os.Stdout, "Not due\n")
	}
	fmt.Fprintf(os.Stdout, "Reason: %s\n", result.Reason)
	return nil
}
