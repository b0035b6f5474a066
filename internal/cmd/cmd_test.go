package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"insight-report/internal/storage"
)

type memorySink struct {
	events   []*storage.UsageEvent
	projects []*storage.Project
	chats    []*storage.ChatMessage
	failOn   string
}

func (m *memorySink) RecordUsageEvent(event *storage.UsageEvent) error {
	if event.Model == m.failOn {
		return errors.New("constraint failed")
	}
	m.events = append(m.events, event)
	return nil
}

func (m *memorySink) SaveProject(project *storage.Project) error {
	m.projects = append(m.projects, project)
	return nil
}

func (m *memorySink) SaveChatMessage(msg *storage.ChatMessage) error {
	m.chats = append(m.chats, msg)
	return nil
}

func TestIngest(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"usage","timestamp":"2025-03-11T10:00:00Z","model":"sonnet","input_tokens":10,"output_tokens":5,"project_id":"p1","mode":"plan"}`,
		`{"timestamp":"2025-03-11T11:00:00Z","model":"opus","input_tokens":1}`,
		``,
		`{"type":"project","id":"p1","name":"Alpha"}`,
		`{"type":"project","name":"no id"}`,
		`{"type":"chat","chat_id":"c1","project_id":"p1","role":"user","content":"hi","created_at":"2025-03-11T10:00:00Z"}`,
		`{"type":"usage","model":"broken"}`,
		`{"type":"mystery"}`,
		`not json`,
	}, "\n")

	sink := &memorySink{failOn: "broken"}
	counts, err := ingest(strings.NewReader(input), sink)
	if err != nil {
		t.Fatalf("ingest() error = %v", err)
	}

	want := ingestCounts{Usage: 2, Projects: 1, Chats: 1, Skipped: 4}
	if counts != want {
		t.Errorf("counts = %+v, want %+v", counts, want)
	}
	if got := sink.events[0]; got.Mode != storage.ModePlan || got.InputTokens != 10 || got.ProjectID != "p1" {
		t.Errorf("unexpected first event: %+v", got)
	}
	if sink.chats[0].CreatedAt.IsZero() {
		t.Error("chat created_at not decoded")
	}
}

func TestGenerateTarget(t *testing.T) {
	tests := []struct {
		name       string
		reportType string
		date       string
		want       string
		wantErr    bool
	}{
		{"daily", storage.ReportTypeDaily, "2025-03-11", "2025-03-12", false},
		{"weekly", storage.ReportTypeWeekly, "2025-03-05", "2025-03-12", false},
		{"no date", storage.ReportTypeDaily, "", "", false},
		{"bad date", storage.ReportTypeDaily, "11/03/2025", "", true},
		{"bad type", "monthly", "2025-03-11", "", true},
		{"bad type without date", "monthly", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := generateTarget(tt.reportType, tt.date)
			if (err != nil) != tt.wantErr {
				t.Fatalf("generateTarget() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.want == "" {
				if !got.IsZero() {
					t.Errorf("expected zero target, got %v", got)
				}
				return
			}
			if got.Format("2006-01-02") != tt.want || got.Location() != time.Local {
				t.Errorf("generateTarget() = %v, want %s local", got, tt.want)
			}
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := map[string]string{
		"":                 "(not set)",
		"short":            "***",
		"sk-ant-123456789": "sk-a...6789",
	}
	for in, want := range tests {
		if got := maskAPIKey(in); got != want {
			t.Errorf("maskAPIKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo world", 5); got != "héllo..." {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
}

func TestPidFile(t *testing.T) {
	p := pidFile{path: filepath.Join(t.TempDir(), "run", "test.pid")}

	if _, ok := p.running(); ok {
		t.Fatal("running() = true before any pid was written")
	}

	if err := p.write(os.Getpid()); err != nil {
		t.Fatalf("write() error = %v", err)
	}
	pid, ok := p.running()
	if !ok || pid != os.Getpid() {
		t.Errorf("running() = %d, %v; want %d, true", pid, ok, os.Getpid())
	}

	p.remove()
	if _, err := os.Stat(p.path); !os.IsNotExist(err) {
		t.Errorf("pid file still present after remove: %v", err)
	}
}
