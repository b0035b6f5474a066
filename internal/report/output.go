package report

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"insight-report/internal/prompt"
)

const fallbackSummaryRunes = 200

var fenceLine = regexp.MustCompile("^[ \t]*```[\\w-]*[ \t]*$")

// detailPolicy allows the semantic subset the agent is asked to produce.
var detailPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("section", "article", "div", "span", "h1", "h2", "h3", "h4",
		"p", "ul", "ol", "li", "strong", "em", "b", "i", "code", "pre", "blockquote", "br", "hr")
	p.AllowAttrs("class").OnElements("section", "div", "span", "p", "li")
	return p
}()

var markdown = goldmark.New()

// StripFences removes the code fence the agent sometimes wraps its whole
// answer in and trims surrounding whitespace. Fences inside the text are
// kept.
func StripFences(s string) string {
	return unwrapFence(s)
}

// wrapperTags are the fence languages the agent uses to wrap a whole answer
// that itself contains code blocks.
var wrapperTags = map[string]bool{"markdown": true, "md": true, "html": true}

// unwrapFence drops a fence pair only when it opens the first line and
// closes the last one. If the body has fences of its own, the pair is only
// treated as a wrapper when tagged as markdown or html; otherwise the first
// and last lines belong to separate code blocks.
func unwrapFence(s string) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if !fenceLine.MatchString(lines[0]) {
		return s
	}
	if len(lines) == 1 {
		return ""
	}
	if !fenceLine.MatchString(lines[len(lines)-1]) {
		return s
	}

	body := lines[1 : len(lines)-1]
	tag := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lines[0]), "```"))
	if !wrapperTags[tag] {
		for _, l := range body {
			if fenceLine.MatchString(l) {
				return s
			}
		}
	}
	return strings.TrimSpace(strings.Join(body, "\n"))
}

// ParseAgentOutput splits the two-part protocol. A missing or empty section
// yields "" for that part; callers apply the fallback.
func ParseAgentOutput(text string) (summary, detail string) {
	if i := strings.Index(text, prompt.SummaryMarker); i >= 0 {
		rest := text[i+len(prompt.SummaryMarker):]
		if j := strings.Index(rest, prompt.DetailMarker); j >= 0 {
			rest = rest[:j]
		}
		summary = unwrapFence(rest)
	}
	if i := strings.Index(text, prompt.DetailMarker); i >= 0 {
		detail = unwrapFence(text[i+len(prompt.DetailMarker):])
	}
	return summary, detail
}

// Parsed is the agent output after fence stripping and fallback.
type Parsed struct {
	Summary  string
	Detail   string
	Fallback bool
}

// ParseWithFallback parses stripped output and guarantees both parts are
// non-empty whenever the input is.
func ParseWithFallback(stripped string) Parsed {
	summary, detail := ParseAgentOutput(stripped)
	if summary != "" && detail != "" {
		return Parsed{Summary: summary, Detail: detail}
	}
	return Parsed{
		Summary:  truncate(stripped, fallbackSummaryRunes),
		Detail:   stripped,
		Fallback: true,
	}
}

// RenderDetail produces the HTML stored on the report. Fallback text is
// treated as Markdown first. Output is always sanitized.
func RenderDetail(detail string, fallback bool) (string, error) {
	html := detail
	if fallback {
		var buf bytes.Buffer
		if err := markdown.Convert([]byte(detail), &buf); err != nil {
			return "", err
		}
		html = buf.String()
	}
	return strings.TrimSpace(detailPolicy.Sanitize(html)), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
