package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAgentOutput(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		wantSummary string
		wantDetail  string
	}{
		{"both markers", "===SUMMARY===\nHi\n===DETAIL===\n<div>x</div>", "Hi", "<div>x</div>"},
		{"no markers", "no markers here", "", ""},
		{"summary only", "===SUMMARY===\nJust this", "Just this", ""},
		{"detail only", "===DETAIL===\n<p>body</p>", "", "<p>body</p>"},
		{"preamble is ignored", "Sure!\n===SUMMARY===\nA good day.\n===DETAIL===\n<p>ok</p>\n", "A good day.", "<p>ok</p>"},
		{"empty summary", "===SUMMARY===\n\n===DETAIL===\n<p>ok</p>", "", "<p>ok</p>"},
		{"fenced sections", "===SUMMARY===\nHi\n===DETAIL===\n```html\n<p>x</p>\n```", "Hi", "<p>x</p>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, detail := ParseAgentOutput(tt.in)
			assert.Equal(t, tt.wantSummary, summary)
			assert.Equal(t, tt.wantDetail, detail)
		})
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"html fence", "```html\n===SUMMARY===\nHi\n```", "===SUMMARY===\nHi"},
		{"bare fence", "```\ntext\n```\n", "text"},
		{"fence after marker is kept", "===DETAIL===\n```html\n<p>x</p>\n```", "===DETAIL===\n```html\n<p>x</p>\n```"},
		{"no fence", "  plain  ", "plain"},
		{"only fences", "```\n```", ""},
		{"code block inside text", "Intro\n```go\nx := 1\n```\nOutro", "Intro\n```go\nx := 1\n```\nOutro"},
		{"separate blocks at both ends", "```go\na()\n```\ntext\n```sh\nb\n```", "```go\na()\n```\ntext\n```sh\nb\n```"},
		{"markdown wrapper with code block", "```markdown\n# Week\n```go\nx := 1\n```\n```", "# Week\n```go\nx := 1\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestParseWithFallback(t *testing.T) {
	long := strings.Repeat("é", 250)

	p := ParseWithFallback(long)

	assert.True(t, p.Fallback)
	assert.Equal(t, 200, len([]rune(p.Summary)))
	assert.Equal(t, long, p.Detail)

	p = ParseWithFallback("===SUMMARY===\nHi\n===DETAIL===\n<p>x</p>")
	assert.False(t, p.Fallback)
	assert.Equal(t, Parsed{Summary: "Hi", Detail: "<p>x</p>"}, p)
}

func TestRenderDetail(t *testing.T) {
	html, err := RenderDetail(`<section class="overview"><h2>Week</h2><p onclick="x()">Busy <script>alert(1)</script></p></section>`, false)
	assert.NoError(t, err)
	assert.Equal(t, `<section class="overview"><h2>Week</h2><p>Busy </p></section>`, html)

	html, err = RenderDetail("# Title\n\n- one\n- two", true)
	assert.NoError(t, err)
	assert.Contains(t, html, "<h1>Title</h1>")
	assert.Contains(t, html, "<li>one</li>")
}

func TestFallbackKeepsCodeBlocks(t *testing.T) {
	out := "Tried a new approach today.\n\n```go\nfunc main() {}\n```\n\nWorked well."

	p := ParseWithFallback(StripFences(out))
	require.True(t, p.Fallback)

	html, err := RenderDetail(p.Detail, p.Fallback)
	require.NoError(t, err)
	assert.Contains(t, html, "<pre><code>func main() {}")
	assert.Contains(t, html, "<p>Worked well.</p>")
}
