package backend

import (
	"context"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "claude", cfg: Config{Type: "claude", WorkDir: t.TempDir()}},
		{name: "claude with custom command", cfg: Config{Type: "claude", Command: "claude-dev", WorkDir: t.TempDir()}},
		{name: "deepseek", cfg: Config{Type: "deepseek", APIKey: "sk-test", Model: "deepseek-chat"}},
		{name: "gemini", cfg: Config{Type: "gemini", APIKey: "test-key"}},
		{name: "deepseek without key", cfg: Config{Type: "deepseek"}, wantErr: "API key is required"},
		{name: "gemini without key", cfg: Config{Type: "gemini"}, wantErr: "API key is required"},
		{name: "unknown type", cfg: Config{Type: "codex"}, wantErr: `unknown backend type "codex"`},
		{name: "empty type", cfg: Config{}, wantErr: "unknown backend type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(context.Background(), tt.cfg, NewProcessManager())
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("New() error = %v, want it to contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if b.SessionID() == "" {
				t.Error("SessionID() is empty")
			}
			if err := b.Close(); err != nil {
				t.Errorf("first Close() error = %v", err)
			}
			if err := b.Close(); err != nil {
				t.Errorf("second Close() error = %v", err)
			}
		})
	}
}
