package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"insight-report/internal/config"
	"insight-report/internal/logger"
)

const (
	maxLineSize   = 1024 * 1024
	maxStderrTail = 2048
	eventBuffer   = 64
)

// Request describes one unattended agent session.
type Request struct {
	WorkDir      string
	SystemPrompt string
	Prompt       string
	Env          map[string]string
}

// Runner starts an agent session and streams its events. The channel is
// closed when the session ends; it is finite because the agent is bounded
// by its turn cap.
type Runner interface {
	Run(ctx context.Context, req Request) (<-chan Event, error)
}

// ClaudeRunner drives the claude CLI in print mode with stream-json output.
type ClaudeRunner struct {
	cfg config.AgentConfig
}

func NewClaudeRunner(cfg config.AgentConfig) *ClaudeRunner {
	return &ClaudeRunner{cfg: cfg}
}

// Args returns the command line used for a session, without the binary.
func (r *ClaudeRunner) Args(req Request) []string {
	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
		"--permission-mode", r.cfg.PermissionMode,
		"--max-turns", strconv.Itoa(r.cfg.MaxTurns),
	}
	if r.cfg.Model != "" {
		args = append(args, "--model", r.cfg.Model)
	}
	if req.SystemPrompt != "" {
		args = append(args, "--system-prompt", req.SystemPrompt)
	}
	return append(args, r.cfg.ExtraArgs...)
}

// Run launches the CLI with the prompt on stdin and the working directory
// pinned to req.WorkDir. There is no internal timeout; cancelling ctx kills
// the process.
func (r *ClaudeRunner) Run(ctx context.Context, req Request) (<-chan Event, error) {
	args := r.Args(req)
	cmd := exec.CommandContext(ctx, r.cfg.Command, args...)
	cmd.Dir = req.WorkDir
	cmd.Env = buildEnv(os.Environ(), req.Env)
	cmd.Stdin = strings.NewReader(req.Prompt)
	cmd.WaitDelay = 5 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open agent stdout: %w", err)
	}
	stderr := &tailBuffer{limit: maxStderrTail}
	cmd.Stderr = stderr

	logger.GetLogger().Debugf("Starting agent: %s (workdir=%s, prompt_len=%d)", r.cfg.Command, req.WorkDir, len(req.Prompt))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start agent %q: %w", r.cfg.Command, err)
	}

	ch := make(chan Event, eventBuffer)
	go func() {
		defer close(ch)
		sawResult := parseStream(stdout, ch)

		waitErr := cmd.Wait()
		if waitErr != nil && !sawResult {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = waitErr.Error()
			}
			ch <- Event{Kind: EventResult, IsError: true, Message: fmt.Sprintf("agent exited: %s", msg)}
		} else if waitErr != nil {
			logger.GetLogger().Warnf("Agent exited with error after result: %v", waitErr)
		}
	}()
	return ch, nil
}

// parseStream reads NDJSON lines from r and forwards normalized events.
// It reports whether a result event was seen. Malformed lines and lines
// over maxLineSize are skipped; a read failure before any result becomes an
// error result so the cause is not lost.
func parseStream(r io.Reader, ch chan<- Event) bool {
	br := bufio.NewReaderSize(r, 64*1024)

	sawResult := false
	for {
		line, oversized, err := readLine(br, maxLineSize)
		if oversized {
			logger.GetLogger().Warnf("Skipping agent output line over %d bytes", maxLineSize)
		} else if line = bytes.TrimSpace(line); len(line) > 0 {
			var raw streamEvent
			if jerr := json.Unmarshal(line, &raw); jerr != nil {
				logger.GetLogger().Debugf("Skipping non-JSON agent output: %v", jerr)
			} else {
				for _, ev := range normalize(raw) {
					if ev.Kind == EventResult {
						sawResult = true
					}
					ch <- ev
				}
			}
		}

		if err == io.EOF {
			return sawResult
		}
		if err != nil {
			logger.GetLogger().Warnf("Agent stream read error: %v", err)
			if !sawResult {
				ch <- Event{Kind: EventResult, IsError: true, Message: fmt.Sprintf("failed to read agent output: %v", err)}
			}
			// drain so the process is never blocked on a full pipe
			_, _ = io.Copy(io.Discard, r)
			return true
		}
	}
}

// readLine returns the next line including its newline. A line longer than
// limit is consumed entirely and reported as oversized with no content.
func readLine(br *bufio.Reader, limit int) ([]byte, bool, error) {
	var line []byte
	oversized := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !oversized {
			if len(line)+len(chunk) > limit {
				oversized = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return line, oversized, err
	}
}

// buildEnv copies base without any credential variables and appends extra.
func buildEnv(base []string, extra map[string]string) []string {
	env := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if isCredentialVar(name) {
			continue
		}
		env = append(env, kv)
	}
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

func isCredentialVar(name string) bool {
	for _, v := range credentialVars {
		if v == name {
			return true
		}
	}
	return false
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.limit {
		b.buf = b.buf[len(b.buf)-b.limit:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
