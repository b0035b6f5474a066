package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-report/internal/storage"
)

func TestExport_WritesDirectoryContract(t *testing.T) {
	st, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "export.db"))
	require.NoError(t, err)
	defer st.Close()

	day := time.Date(2025, 3, 11, 0, 0, 0, 0, time.Local)
	require.NoError(t, st.SaveProject(&storage.Project{ID: "p1", Name: "Alpha"}))
	require.NoError(t, st.SaveProject(&storage.Project{ID: "p2", Name: "Beta"}))
	msgs := []*storage.ChatMessage{
		{ChatID: "c1", ProjectID: "p1", Role: "user", Content: "fix the bug", CreatedAt: day.Add(9 * time.Hour)},
		{ChatID: "c1", ProjectID: "p1", Role: "assistant", Content: strings.Repeat("x", 2500), CreatedAt: day.Add(9*time.Hour + time.Minute)},
		{ChatID: "c2", ProjectID: "p1", Role: "user", Content: "add tests", CreatedAt: day.Add(10 * time.Hour)},
		{ChatID: "c3", ProjectID: "ghost/../x", Role: "user", Content: "hello", CreatedAt: day.Add(11 * time.Hour)},
		{ChatID: "c4", ProjectID: "p1", Role: "user", Content: "out of range", CreatedAt: day.AddDate(0, 0, 2)},
	}
	for _, m := range msgs {
		require.NoError(t, st.SaveChatMessage(m))
	}

	report := storage.NewInsightReport(storage.ReportTypeDaily, "2025-03-11", `{"usage":{"totalTokens":5}}`)
	w := NewWriter(t.TempDir(), st)

	dir, err := w.Export(report, day, day.Add(24*time.Hour-time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, w.Dir(report.ID), dir)

	statsData, err := os.ReadFile(filepath.Join(dir, StatsFile))
	require.NoError(t, err)
	assert.Equal(t, report.StatsJSON, string(statsData))

	var index Index
	indexData, err := os.ReadFile(filepath.Join(dir, IndexFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(indexData, &index))
	assert.Equal(t, report.ID, index.ReportID)
	require.Len(t, index.Projects, 3)
	assert.Equal(t, ProjectEntry{ID: "p1", Name: "Alpha", ChatFile: "chats/p1.json", ChatCount: 2, MessageCount: 3}, index.Projects[0])
	assert.Equal(t, ProjectEntry{ID: "p2", Name: "Beta"}, index.Projects[1])
	assert.Equal(t, "Unknown", index.Projects[2].Name)
	assert.Equal(t, "chats/ghost____x.json", index.Projects[2].ChatFile)

	var chats ProjectChats
	chatData, err := os.ReadFile(filepath.Join(dir, ChatsDir, "p1.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(chatData, &chats))
	require.Len(t, chats.Chats, 2)
	assert.Equal(t, "c1", chats.Chats[0].ChatID)
	require.Len(t, chats.Chats[0].Messages, 2)
	assert.Equal(t, "fix the bug", chats.Chats[0].Messages[0].Content)
	assert.Len(t, []rune(chats.Chats[0].Messages[1].Content), maxMessageRunes+1)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "unassigned.json", FileName(""))
	assert.Equal(t, "abc-1_2.json", FileName("abc-1_2"))
	assert.Equal(t, "a_b_c.json", FileName("a/b c"))
}

func TestCleanupOlderThan(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)
	for _, id := range []string{"old", "kept", "fresh"} {
		require.NoError(t, os.MkdirAll(w.Dir(id), 0755))
	}
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(w.Dir("old"), past, past))
	require.NoError(t, os.Chtimes(w.Dir("kept"), past, past))

	removed, err := w.CleanupOlderThan(time.Now().Add(-24*time.Hour), map[string]bool{"kept": true})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoDirExists(t, w.Dir("old"))
	assert.DirExists(t, w.Dir("kept"))
	assert.DirExists(t, w.Dir("fresh"))
}

func TestCleanupOlderThan_MissingRoot(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "nope"), nil)

	removed, err := w.CleanupOlderThan(time.Now(), nil)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
