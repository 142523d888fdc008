package backend

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ClaudeAdapter runs calculation prompts through the Claude Code CLI, one
// subprocess per Send. Consecutive sends share a CLI session so an agent sees
// the earlier tasks of its type.
type ClaudeAdapter struct {
	mu           sync.Mutex
	command      string
	sessionID    string
	workDir      string
	model        string
	systemPrompt string
	started      bool
	procMgr      *ProcessManager
}

// claudeResponse is the JSON printed by `claude -p --output-format json`.
// Depending on the CLI version "result" is either the reply text or an object
// with content blocks.
type claudeResponse struct {
	SessionID string          `json:"session_id"`
	IsError   bool            `json:"is_error"`
	Result    json.RawMessage `json:"result"`
}

type claudeContent struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// NewClaudeAdapter creates a Claude Code adapter. A session ID is generated
// when cfg.SessionID is empty. procMgr may be nil.
func NewClaudeAdapter(cfg Config, procMgr *ProcessManager) (*ClaudeAdapter, error) {
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	return &ClaudeAdapter{
		command:      cmp.Or(cfg.Command, "claude"),
		sessionID:    sessionID,
		workDir:      workDir,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		procMgr:      procMgr,
	}, nil
}

// Send runs one prompt. The first call opens the session with --session-id,
// later calls use --resume.
func (a *ClaudeAdapter) Send(ctx context.Context, msg Message) (Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Build the command in the adapter's working directory
	cmd := newCommand(ctx, a.command, a.buildArgs(msg, a.started)...)
	cmd.Dir = a.workDir

	// Execute (tracked by the ProcessManager when one is set)
	stdout, stderr, err := executeCommand(ctx, cmd, a.procMgr)
	if err != nil {
		return Response{Error: fmt.Sprintf("claude command failed: %v", err)}, err
	}

	// Parse the JSON response
	resp, err := parseClaudeResponse(stdout)
	if err != nil {
		return Response{
			Error: fmt.Sprintf("failed to parse claude response: %v (stderr: %s)", err, string(stderr)),
		}, err
	}
	if resp.SessionID == "" {
		resp.SessionID = a.sessionID
	}

	// Later sends resume this session
	a.started = true
	return resp, nil
}

// Close is a no-op; there is no long-lived process.
func (a *ClaudeAdapter) Close() error {
	return nil
}

// SessionID returns the CLI session identifier.
func (a *ClaudeAdapter) SessionID() string {
	return a.sessionID
}

// buildArgs constructs the claude CLI arguments for one prompt.
func (a *ClaudeAdapter) buildArgs(msg Message, isResume bool) []string {
	args := []string{"-p", msg.Content, "--output-format", "json"}

	// Session management: first call creates the session, later calls resume it
	if isResume {
		args = append(args, "--resume", a.sessionID)
	} else {
		args = append(args, "--session-id", a.sessionID)
	}

	// Optional model override
	if a.model != "" {
		args = append(args, "--model", a.model)
	}

	// Per task type system prompt
	if a.systemPrompt != "" {
		args = append(args, "--system-prompt", a.systemPrompt)
	}

	return args
}

// parseClaudeResponse extracts the reply text from the CLI's JSON envelope.
// An envelope flagged is_error is returned together with an error.
func parseClaudeResponse(data []byte) (Response, error) {
	var cr claudeResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return Response{}, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	// Result is either plain text or a list of content blocks
	var content string
	var text string
	if err := json.Unmarshal(cr.Result, &text); err == nil {
		content = text
	} else {
		var blocks claudeContent
		if err := json.Unmarshal(cr.Result, &blocks); err != nil {
			return Response{}, fmt.Errorf("unexpected result payload: %w", err)
		}
		var sb strings.Builder
		for _, item := range blocks.Content {
			if item.Type == "text" {
				sb.WriteString(item.Text)
			}
		}
		content = sb.String()
	}

	resp := Response{Content: content, SessionID: cr.SessionID}
	if cr.IsError {
		resp.Error = content
		return resp, fmt.Errorf("claude reported an error: %s", content)
	}
	return resp, nil
}
