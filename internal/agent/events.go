package agent

import (
	"encoding/json"
	"strings"
)

const (
	EventInit    = "init"
	EventToolUse = "tool_use"
	EventText    = "text"
	EventResult  = "result"
)

// Event is one normalized item of the agent's output stream. A result event
// with IsError set marks a terminal failure; the stream may still carry
// further text after it.
type Event struct {
	Kind      string
	SessionID string
	Text      string
	ToolName  string
	ToolInput json.RawMessage
	IsError   bool
	Message   string
}

// streamEvent is a single line of the CLI's stream-json output.
type streamEvent struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	Message *streamMessage `json:"message,omitempty"`

	IsError bool   `json:"is_error,omitempty"`
	Result  string `json:"result,omitempty"`
}

type streamMessage struct {
	Role    string         `json:"role,omitempty"`
	Content []contentBlock `json:"content,omitempty"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// normalize maps a raw stream line to zero or more events. Tool results and
// user echo messages are dropped.
func normalize(ev streamEvent) []Event {
	switch ev.Type {
	case "system":
		if ev.Subtype == "init" {
			return []Event{{Kind: EventInit, SessionID: ev.SessionID}}
		}
	case "assistant":
		if ev.Message == nil {
			return nil
		}
		out := make([]Event, 0, len(ev.Message.Content))
		for _, block := range ev.Message.Content {
			switch block.Type {
			case "text":
				if block.Text != "" {
					out = append(out, Event{Kind: EventText, Text: block.Text})
				}
			case "tool_use":
				out = append(out, Event{Kind: EventToolUse, ToolName: block.Name, ToolInput: block.Input})
			}
		}
		return out
	case "result":
		isError := ev.IsError || strings.HasPrefix(ev.Subtype, "error")
		r := Event{Kind: EventResult, SessionID: ev.SessionID, IsError: isError}
		if isError {
			r.Message = ev.Result
			if r.Message == "" {
				r.Message = "agent finished with " + ev.Subtype
			}
		}
		return []Event{r}
	}
	return nil
}

const maxCommandRunes = 60

// DescribeTool renders a tool call as the tool name plus its most telling
// argument.
func DescribeTool(name string, input json.RawMessage) string {
	var args map[string]interface{}
	if len(input) > 0 {
		_ = json.Unmarshal(input, &args)
	}

	for _, key := range []string{"file_path", "path", "pattern"} {
		if v, ok := args[key].(string); ok && v != "" {
			return name + " " + v
		}
	}
	if v, ok := args["command"].(string); ok && v != "" {
		return name + " " + truncateRunes(strings.TrimSpace(v), maxCommandRunes)
	}
	return name
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
