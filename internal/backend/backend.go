// Package backend talks to the LLM agents that perform calculation tasks.
// An agent is either a CLI subprocess (claude) or an HTTP API client
// (deepseek, gemini); all of them answer a single prompt with text.
package backend

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Backend is one conversation with an agent.
type Backend interface {
	Send(ctx context.Context, msg Message) (Response, error)
	Close() error
	// SessionID identifies the conversation for the journal.
	SessionID() string
}

type constructor func(ctx context.Context, cfg Config, pm *ProcessManager) (Backend, error)

var constructors = map[string]constructor{
	"claude": func(_ context.Context, cfg Config, pm *ProcessManager) (Backend, error) {
		return NewClaudeAdapter(cfg, pm)
	},
	"deepseek": func(_ context.Context, cfg Config, _ *ProcessManager) (Backend, error) {
		return NewDeepSeekAdapter(cfg)
	},
	"gemini": func(ctx context.Context, cfg Config, _ *ProcessManager) (Backend, error) {
		return NewGeminiAdapter(ctx, cfg)
	},
}

// Types lists the supported backend types.
func Types() []string {
	types := make([]string, 0, len(constructors))
	for t := range constructors {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// New creates the backend selected by cfg.Type. pm is only used by
// subprocess backends and may be nil.
func New(ctx context.Context, cfg Config, pm *ProcessManager) (Backend, error) {
	newFn, ok := constructors[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown backend type %q (want one of %s)", cfg.Type, strings.Join(Types(), ", "))
	}
	return newFn(ctx, cfg, pm)
}
