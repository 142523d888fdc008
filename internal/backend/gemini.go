package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiAdapter sends calculation prompts to a Gemini model configured for
// deterministic JSON output.
type GeminiAdapter struct {
	mu        sync.Mutex
	client    *genai.Client
	generate  func(ctx context.Context, prompt string) (string, error)
	sessionID string
	closed    bool
}

// NewGeminiAdapter creates a Gemini adapter. cfg.APIKey is required.
func NewGeminiAdapter(ctx context.Context, cfg Config) (*GeminiAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	name := cfg.Model
	if name == "" {
		name = defaultGeminiModel
	}
	model := client.GenerativeModel(name)
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"
	if cfg.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(cfg.SystemPrompt)}}
	}

	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	return &GeminiAdapter{
		client:    client,
		sessionID: sessionID,
		generate: func(ctx context.Context, prompt string) (string, error) {
			resp, err := model.GenerateContent(ctx, genai.Text(prompt))
			if err != nil {
				return "", err
			}
			return responseText(resp)
		},
	}, nil
}

// Send generates one reply for msg.
func (a *GeminiAdapter) Send(ctx context.Context, msg Message) (Response, error) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return Response{Error: "gemini adapter is closed"}, errors.New("gemini: adapter is closed")
	}

	text, err := a.generate(ctx, msg.Content)
	if err != nil {
		return Response{Error: fmt.Sprintf("gemini request failed: %v", err)}, fmt.Errorf("gemini: %w", err)
	}
	return Response{Content: text, SessionID: a.sessionID}, nil
}

// Close releases the underlying client. It is safe to call more than once.
func (a *GeminiAdapter) Close() error {
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
func (a *GeminiAdapter) SessionID() string {
	return a.sessionID
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("response has no candidates")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", fmt.Errorf("candidate has no content (finish reason %v)", cand.FinishReason)
	}
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String(), nil
}
