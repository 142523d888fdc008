package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	deepseek "github.com/trustsight-io/deepseek-go"
)

const (
	defaultDeepSeekBaseURL = "https://api.deepseek.com/v1"
	defaultDeepSeekModel   = "deepseek-chat"
	defaultDeepSeekTimeout = 120 * time.Second
	deepSeekMaxTokens      = 4096
)

// DeepSeekAdapter sends calculation prompts to the DeepSeek chat API in JSON
// mode. Each Send is a single-turn exchange; the system prompt comes from the
// agent configuration.
type DeepSeekAdapter struct {
	mu           sync.Mutex
	client       *deepseek.Client
	complete     func(ctx context.Context, req *deepseek.ChatCompletionRequest) (string, error)
	sessionID    string
	model        string
	systemPrompt string
	closed       bool
}

// NewDeepSeekAdapter creates a DeepSeek adapter. cfg.APIKey is required.
func NewDeepSeekAdapter(cfg Config) (*DeepSeekAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("deepseek: API key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultDeepSeekTimeout
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultDeepSeekBaseURL
	}

	client, err := deepseek.NewClient(
		cfg.APIKey,
		deepseek.WithBaseURL(baseURL),
		deepseek.WithHTTPClient(&http.Client{Timeout: timeout}),
		deepseek.WithMaxRetries(cfg.MaxRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("deepseek: create client: %w", err)
	}

	a := newDeepSeekAdapter(cfg)
	a.client = client
	a.complete = func(ctx context.Context, req *deepseek.ChatCompletionRequest) (string, error) {
		resp, err := client.CreateChatCompletion(ctx, req)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("deepseek: response has no choices")
		}
		return resp.Choices[0].Message.Content, nil
	}
	return a, nil
}

func newDeepSeekAdapter(cfg Config) *DeepSeekAdapter {
	model := cfg.Model
	if model == "" {
		model = defaultDeepSeekModel
	}
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &DeepSeekAdapter{
		sessionID:    sessionID,
		model:        model,
		systemPrompt: cfg.SystemPrompt,
	}
}

// Send runs one chat completion and returns the first choice.
func (a *DeepSeekAdapter) Send(ctx context.Context, msg Message) (Response, error) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return Response{Error: "deepseek adapter is closed"}, errors.New("deepseek: adapter is closed")
	}

	content, err := a.complete(ctx, a.request(msg))
	if err != nil {
		return Response{Error: fmt.Sprintf("deepseek request failed: %v", err)}, fmt.Errorf("deepseek: %w", err)
	}
	return Response{Content: content, SessionID: a.sessionID}, nil
}

func (a *DeepSeekAdapter) request(msg Message) *deepseek.ChatCompletionRequest {
	var messages []deepseek.Message
	if a.systemPrompt != "" {
		messages = append(messages, deepseek.Message{Role: deepseek.RoleSystem, Content: a.systemPrompt})
	}
	role := deepseek.RoleUser
	if msg.Role == "system" {
		role = deepseek.RoleSystem
	}
	messages = append(messages, deepseek.Message{Role: role, Content: msg.Content})

	return &deepseek.ChatCompletionRequest{
		Model:     a.model,
		MaxTokens: deepSeekMaxTokens,
		Messages:  messages,
		JSONMode:  true,
	}
}

// Close releases the HTTP client. It is safe to call more than once.
func (a *DeepSeekAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// SessionID returns the identifier assigned to this adapter.
func (a *DeepSeekAdapter) SessionID() string {
	return a.sessionID
}
