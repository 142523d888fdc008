package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProviderConfig defines a transport layer (CLI command or HTTP API).
// Providers are separate from agents -- several task types can share one provider.
type ProviderConfig struct {
	Type      string   `json:"type"`                  // Backend type matching backend.Config.Type: "claude", "deepseek", "gemini"
	Command   string   `json:"command,omitempty"`     // CLI binary for subprocess providers
	BaseURL   string   `json:"base_url,omitempty"`    // API endpoint override
	APIKeyEnv string   `json:"api_key_env,omitempty"` // Environment variable holding the API key
	Model     string   `json:"model,omitempty"`       // Default model for agents on this provider
	Timeout   Duration `json:"timeout,omitempty"`
}

// AgentConfig binds a task type (or the merger) to a provider.
type AgentConfig struct {
	Provider     string `json:"provider"`                // Key into Providers map
	Model        string `json:"model,omitempty"`         // Model override
	SystemPrompt string `json:"system_prompt,omitempty"` // Role-specific system prompt
}

// RetryConfig controls backoff around agent calls.
type RetryConfig struct {
	InitialInterval Duration `json:"initial_interval"`
	MaxInterval     Duration `json:"max_interval"`
	MaxElapsedTime  Duration `json:"max_elapsed_time"`
	Multiplier      float64  `json:"multiplier"`
	MaxRetries      uint64   `json:"max_retries"`
}

// BreakerConfig controls the per-provider circuit breakers.
type BreakerConfig struct {
	FailureThreshold uint32   `json:"failure_threshold"`
	OpenTimeout      Duration `json:"open_timeout"`
	HalfOpenRequests uint32   `json:"half_open_requests"`
}

// JournalConfig controls the SQLite run journal.
type JournalConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Config is the top-level configuration.
type Config struct {
	Providers map[string]ProviderConfig `json:"providers"`
	Agents    map[string]AgentConfig    `json:"agents"` // keyed by task type, plus MergerAgent
	Retry     RetryConfig               `json:"retry"`
	Breaker   BreakerConfig             `json:"breaker"`
	Journal   JournalConfig             `json:"journal"`
}

// Duration is a time.Duration written as a string ("1.5s") in JSON.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts duration strings and, for hand-written files, plain
// numbers of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(val * float64(time.Second))
	default:
		return fmt.Errorf("invalid duration %s", data)
	}
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
