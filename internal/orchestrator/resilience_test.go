package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aristath/geocalc/internal/backend"
)

// scriptedBackend replays a fixed list of replies; each entry is a
// backend.Response or an error.
type scriptedBackend struct {
	mu      sync.Mutex
	replies []any
	calls   int
}

func (b *scriptedBackend) Send(context.Context, backend.Message) (backend.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.calls >= len(b.replies) {
		return backend.Response{}, fmt.Errorf("unexpected call %d", b.calls+1)
	}
	reply := b.replies[b.calls]
	b.calls++

	switch v := reply.(type) {
	case backend.Response:
		return v, nil
	case error:
		return backend.Response{Error: v.Error()}, v
	default:
		return backend.Response{}, fmt.Errorf("invalid reply %T", v)
	}
}

func (b *scriptedBackend) Close() error      { return nil }
func (b *scriptedBackend) SessionID() string { return "scripted" }

func (b *scriptedBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func failures(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = fmt.Errorf("provider error %d", i+1)
	}
	return out
}

func fastRetry() RetryConfig {
	return RetryConfig{
		InitialInterval:     5 * time.Millisecond,
		MaxInterval:         20 * time.Millisecond,
		MaxElapsedTime:      time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

func TestResilientBackendRetriesTransientFailures(t *testing.T) {
	sb := &scriptedBackend{replies: []any{
		errors.New("502 bad gateway"),
		errors.New("connection reset"),
		backend.Response{Content: `{"lengths": {"AB": 5}}`},
	}}
	rb := NewResilientBackend(sb, NewCircuitBreakerRegistry(BreakerConfig{}), "deepseek", fastRetry())

	resp, err := rb.Send(context.Background(), backend.Message{Content: "AB?"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.Content != `{"lengths": {"AB": 5}}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if sb.Calls() != 3 {
		t.Errorf("calls = %d, want 3", sb.Calls())
	}
	if rb.SessionID() != "scripted" {
		t.Errorf("SessionID() = %q, want the wrapped backend's", rb.SessionID())
	}
}

func TestResilientBackendMaxRetries(t *testing.T) {
	sb := &scriptedBackend{replies: failures(10)}
	cfg := fastRetry()
	cfg.MaxRetries = 2
	rb := NewResilientBackend(sb, NewCircuitBreakerRegistry(BreakerConfig{FailureThreshold: 100}), "claude", cfg)

	resp, err := rb.Send(context.Background(), backend.Message{Content: "x"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if sb.Calls() != 3 {
		t.Errorf("calls = %d, want 1 attempt + 2 retries", sb.Calls())
	}
	if resp.Error == "" {
		t.Error("last failed response was not returned")
	}
}

func TestResilientBackendBreakerOpens(t *testing.T) {
	registry := NewCircuitBreakerRegistry(BreakerConfig{FailureThreshold: 3, OpenTimeout: time.Minute})
	sb := &scriptedBackend{replies: failures(20)}
	cfg := fastRetry()
	cfg.MaxRetries = 1
	rb := NewResilientBackend(sb, registry, "gemini", cfg)

	var err error
	for i := 0; i < 3; i++ {
		_, err = rb.Send(context.Background(), backend.Message{Content: "x"})
	}
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("error = %v, want ErrOpenState", err)
	}
	if state := registry.Get("gemini").State(); state != gobreaker.StateOpen {
		t.Errorf("breaker state = %v, want open", state)
	}

	// Agents on the same provider share the open breaker.
	other := &scriptedBackend{replies: []any{backend.Response{Content: "{}"}}}
	if _, err := NewResilientBackend(other, registry, "gemini", cfg).Send(context.Background(), backend.Message{}); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("sibling agent error = %v, want ErrOpenState", err)
	}
	if other.Calls() != 0 {
		t.Error("open breaker let a call through")
	}
}

func TestResilientBackendContextCancellation(t *testing.T) {
	sb := &scriptedBackend{replies: failures(1000)}
	cfg := fastRetry()
	cfg.InitialInterval = 50 * time.Millisecond
	cfg.MaxElapsedTime = 10 * time.Second
	registry := NewCircuitBreakerRegistry(BreakerConfig{FailureThreshold: 1000})
	rb := NewResilientBackend(sb, registry, "claude", cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := rb.Send(ctx, backend.Message{Content: "x"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Send() took %v after cancellation", elapsed)
	}
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	registry := NewCircuitBreakerRegistry(BreakerConfig{FailureThreshold: 2})
	cb := registry.Get("claude")

	replies := make([]any, 5)
	for i := range replies {
		replies[i] = context.Canceled
	}
	sb := &scriptedBackend{replies: replies}
	rb := NewResilientBackend(sb, registry, "claude", fastRetry())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		if _, err := rb.Send(ctx, backend.Message{}); err == nil {
			t.Fatalf("call %d: expected an error", i+1)
		}
	}
	if state := cb.State(); state != gobreaker.StateClosed {
		t.Errorf("breaker state = %v, want closed", state)
	}
}

func TestCircuitBreakerRegistryPerProvider(t *testing.T) {
	registry := NewCircuitBreakerRegistry(BreakerConfig{})
	if registry.Get("claude") != registry.Get("claude") {
		t.Error("same provider returned different breakers")
	}
	if registry.Get("claude") == registry.Get("deepseek") {
		t.Error("different providers share a breaker")
	}
	if name := registry.Get("deepseek").Name(); name != "deepseek" {
		t.Errorf("Name() = %q, want deepseek", name)
	}
}
