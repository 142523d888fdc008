package backend

import "time"

// Message is a single prompt for an agent.
type Message struct {
	Role    string // "user" or "system"
	Content string
}

// Response is an agent's answer. Error carries the agent-reported failure
// text when the agent answered but flagged the answer as an error.
type Response struct {
	SessionID string
	Content   string
	Error     string
}

// Config selects and configures a backend.
type Config struct {
	Type         string
	Model        string
	SystemPrompt string
	SessionID    string
	Timeout      time.Duration

	// Subprocess backends.
	Command string // defaults to Type
	WorkDir string

	// HTTP backends.
	BaseURL    string
	APIKey     string
	MaxRetries int // client-level retries, below the resilience layer
}
