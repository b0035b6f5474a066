package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"insight-report/internal/logger"
	"insight-report/internal/storage"
)

var ingestConfigPath string

// ingestRecord is one NDJSON line. Type selects which payload fields apply.
type ingestRecord struct {
	Type string `json:"type"`
}

type ingestCounts struct {
	Usage    int
	Projects int
	Chats    int
	Skipped  int
}

// ingestSink is the write side of the ledger ingest uses.
type ingestSink interface {
	RecordUsageEvent(event *storage.UsageEvent) error
	SaveProject(project *storage.Project) error
	SaveChatMessage(msg *storage.ChatMessage) error
}

func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Append usage events, projects and chat messages from NDJSON",
		Long: "Reads newline-delimited JSON from a file or stdin (\"-\" or no argument). Each line has a \"type\" of " +
			"\"usage\", \"project\" or \"chat\" plus that record's fields. Malformed lines are skipped and counted.",
		Args: cobra.MaximumNArgs(1),
		RunE: runIngest,
	}
	cmd.Flags().StringVarP(&ingestConfigPath, "config", "c", "", "Path to config file")
	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	var in io.Reader = os.Stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	_, st, err := openStorage(ingestConfigPath)
	if err != nil {
		return err
	}
	defer st.Close()

	counts, err := ingest(in, st)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Ingested %d usage events, %d projects, %d chat messages (%d skipped)\n",
		counts.Usage, counts.Projects, counts.Chats, counts.Skipped)
	return nil
}

func ingest(r io.Reader, sink ingestSink) (ingestCounts, error) {
	var counts ingestCounts
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		var rec ingestRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			logger.GetLogger().Warnf("Skipping line %d: %v", line, err)
			counts.Skipped++
			continue
		}

		var err error
		switch rec.Type {
		case "usage", "":
			var ev storage.UsageEvent
			if err = json.Unmarshal(data, &ev); err == nil {
				if err = sink.RecordUsageEvent(&ev); err == nil {
					counts.Usage++
				}
			}
		case "project":
			var p storage.Project
			if err = json.Unmarshal(data, &p); err == nil {
				if p.ID == "" {
					err = fmt.Errorf("project id is required")
				} else if err = sink.SaveProject(&p); err == nil {
					counts.Projects++
				}
			}
		case "chat":
			var m storage.ChatMessage
			if err = json.Unmarshal(data, &m); err == nil {
				if m.ChatID == "" {
					err = fmt.Errorf("chat_id is required")
				} else if err = sink.SaveChatMessage(&m); err == nil {
					counts.Chats++
				}
			}
		default:
			err = fmt.Errorf("unknown record type %q", rec.Type)
		}

		if err != nil {
			logger.GetLogger().Warnf("Skipping line %d: %v", line, err)
			counts.Skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return counts, fmt.Errorf("failed to read input: %w", err)
	}
	return counts, nil
}
