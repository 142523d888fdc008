package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	deepseek "github.com/trustsight-io/deepseek-go"
)

func TestDeepSeekAdapterSend(t *testing.T) {
	a := newDeepSeekAdapter(Config{SessionID: "ds-1", SystemPrompt: "Return JSON."})
	var got *deepseek.ChatCompletionRequest
	a.complete = func(_ context.Context, req *deepseek.ChatCompletionRequest) (string, error) {
		got = req
		return `{"areas":{"ABC":6}}`, nil
	}

	resp, err := a.Send(context.Background(), Message{Content: "area of ABC", Role: "user"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	want := Response{Content: `{"areas":{"ABC":6}}`, SessionID: "ds-1"}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("Send() mismatch (-want +got):\n%s", diff)
	}

	if got.Model != defaultDeepSeekModel || !got.JSONMode || got.MaxTokens != deepSeekMaxTokens {
		t.Errorf("request = model %q json %v max %d", got.Model, got.JSONMode, got.MaxTokens)
	}
	wantMsgs := []deepseek.Message{
		{Role: deepseek.RoleSystem, Content: "Return JSON."},
		{Role: deepseek.RoleUser, Content: "area of ABC"},
	}
	if len(got.Messages) != len(wantMsgs) {
		t.Fatalf("got %d messages, want %d", len(got.Messages), len(wantMsgs))
	}
	for i, m := range wantMsgs {
		if got.Messages[i].Role != m.Role || got.Messages[i].Content != m.Content {
			t.Errorf("message %d = %s %q, want %s %q", i, got.Messages[i].Role, got.Messages[i].Content, m.Role, m.Content)
		}
	}
}

func TestDeepSeekAdapterSendError(t *testing.T) {
	a := newDeepSeekAdapter(Config{})
	boom := errors.New("429 too many requests")
	a.complete = func(context.Context, *deepseek.ChatCompletionRequest) (string, error) {
		return "", boom
	}

	resp, err := a.Send(context.Background(), Message{Content: "x"})
	if !errors.Is(err, boom) {
		t.Errorf("Send() error = %v, want wrapped %v", err, boom)
	}
	if resp.Error == "" {
		t.Error("Response.Error is empty")
	}
}

func TestDeepSeekAdapterClosed(t *testing.T) {
	a := newDeepSeekAdapter(Config{})
	a.complete = func(context.Context, *deepseek.ChatCompletionRequest) (string, error) {
		t.Fatal("request sent after Close")
		return "", nil
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Send(context.Background(), Message{Content: "x"}); err == nil {
		t.Error("expected an error after Close")
	}
}
