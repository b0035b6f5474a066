package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"insight-report/internal/logger"
	"insight-report/internal/storage"
)

const (
	StatsFile = "stats.json"
	IndexFile = "index.json"
	ChatsDir  = "chats"

	maxMessageRunes = 2000
	unassigned      = "unassigned"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Source provides the data copied into an export directory.
type Source interface {
	ListProjects() ([]*storage.Project, error)
	QueryChatMessages(start, end time.Time) ([]*storage.ChatMessage, error)
}

// Index is the content of index.json.
type Index struct {
	ReportID    string         `json:"reportId"`
	ReportType  string         `json:"reportType"`
	ReportDate  string         `json:"reportDate"`
	PeriodStart string         `json:"periodStart"`
	PeriodEnd   string         `json:"periodEnd"`
	GeneratedAt string         `json:"generatedAt"`
	Projects    []ProjectEntry `json:"projects"`
}

type ProjectEntry struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ChatFile     string `json:"chatFile,omitempty"`
	ChatCount    int    `json:"chatCount"`
	MessageCount int    `json:"messageCount"`
}

// ProjectChats is the content of chats/<projectId>.json.
type ProjectChats struct {
	ProjectID   string `json:"projectId"`
	ProjectName string `json:"projectName"`
	Chats       []Chat `json:"chats"`
}

type Chat struct {
	ChatID   string    `json:"chatId"`
	Messages []Message `json:"messages"`
}

type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

// Writer lays out per-report export directories under a root path.
type Writer struct {
	root   string
	source Source
}

func NewWriter(root string, source Source) *Writer {
	return &Writer{root: root, source: source}
}

// Dir returns the export directory for a report id.
func (w *Writer) Dir(reportID string) string {
	return filepath.Join(w.root, reportID)
}

// Export writes stats.json, index.json and chats/*.json for the report and
// returns the directory. An existing directory for the same id is replaced.
func (w *Writer) Export(report *storage.InsightReport, start, end time.Time) (string, error) {
	dir := w.Dir(report.ID)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("failed to clear export directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, ChatsDir), 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, StatsFile), []byte(report.StatsJSON), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", StatsFile, err)
	}

	projects, err := w.source.ListProjects()
	if err != nil {
		return "", fmt.Errorf("failed to list projects: %w", err)
	}
	messages, err := w.source.QueryChatMessages(start, end)
	if err != nil {
		return "", fmt.Errorf("failed to query chat messages: %w", err)
	}

	grouped := groupByProject(messages)
	index := Index{
		ReportID:    report.ID,
		ReportType:  report.ReportType,
		ReportDate:  report.ReportDate,
		PeriodStart: start.Format(time.RFC3339),
		PeriodEnd:   end.Format(time.RFC3339),
		GeneratedAt: time.Now().Format(time.RFC3339),
		Projects:    make([]ProjectEntry, 0, len(projects)+1),
	}

	seen := make(map[string]bool, len(projects))
	for _, p := range projects {
		seen[p.ID] = true
		entry, err := w.writeProject(dir, p.ID, p.Name, grouped[p.ID])
		if err != nil {
			return "", err
		}
		index.Projects = append(index.Projects, entry)
	}

	// chats whose project is missing from the lookup still get exported
	var orphans []string
	for id := range grouped {
		if !seen[id] {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	for _, id := range orphans {
		entry, err := w.writeProject(dir, id, "Unknown", grouped[id])
		if err != nil {
			return "", err
		}
		index.Projects = append(index.Projects, entry)
	}

	if err := writeJSON(filepath.Join(dir, IndexFile), index); err != nil {
		return "", err
	}

	logger.ForReport(report.ID).Infof("Exported report data to %s (%d projects, %d messages)",
		dir, len(index.Projects), len(messages))
	return dir, nil
}

// Remove deletes a report's export directory.
func (w *Writer) Remove(reportID string) error {
	return os.RemoveAll(w.Dir(reportID))
}

// CleanupOlderThan removes export directories last modified before cutoff,
// skipping the ids in keep.
func (w *Writer) CleanupOlderThan(cutoff time.Time, keep map[string]bool) (int, error) {
	entries, err := os.ReadDir(w.root)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read export root: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if !e.IsDir() || keep[e.Name()] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.RemoveAll(filepath.Join(w.root, e.Name())); err != nil {
				logger.GetLogger().Warnf("Failed to remove export %s: %v", e.Name(), err)
				continue
			}
			removed++
		}
	}
	return removed, nil
}

func (w *Writer) writeProject(dir, projectID, name string, msgs []*storage.ChatMessage) (ProjectEntry, error) {
	entry := ProjectEntry{ID: projectID, Name: name}
	if len(msgs) == 0 {
		return entry, nil
	}

	chats := groupByChat(msgs)
	out := ProjectChats{ProjectID: projectID, ProjectName: name, Chats: chats}
	file := filepath.Join(ChatsDir, FileName(projectID))
	if err := writeJSON(filepath.Join(dir, file), out); err != nil {
		return entry, err
	}

	entry.ChatFile = filepath.ToSlash(file)
	entry.ChatCount = len(chats)
	entry.MessageCount = len(msgs)
	return entry, nil
}

// FileName maps a project id to a safe chats/ file name.
func FileName(projectID string) string {
	if projectID == "" {
		return unassigned + ".json"
	}
	return unsafeFileChars.ReplaceAllString(projectID, "_") + ".json"
}

func groupByProject(msgs []*storage.ChatMessage) map[string][]*storage.ChatMessage {
	out := make(map[string][]*storage.ChatMessage)
	for _, m := range msgs {
		out[m.ProjectID] = append(out[m.ProjectID], m)
	}
	return out
}

// groupByChat keeps the input order, which is chronological.
func groupByChat(msgs []*storage.ChatMessage) []Chat {
	var chats []Chat
	pos := make(map[string]int)
	for _, m := range msgs {
		i, ok := pos[m.ChatID]
		if !ok {
			i = len(chats)
			pos[m.ChatID] = i
			chats = append(chats, Chat{ChatID: m.ChatID})
		}
		chats[i].Messages = append(chats[i].Messages, Message{
			Role:      m.Role,
			Content:   truncate(m.Content, maxMessageRunes),
			CreatedAt: m.CreatedAt.Format(time.RFC3339),
		})
	}
	return chats
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
