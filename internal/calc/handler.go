// Package calc implements the calculation handlers: one LLM agent per task
// type, reached through a backend.Backend.
package calc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/geocalc/internal/backend"
	"github.com/aristath/geocalc/internal/scheduler"
)

// ErrCalculationFailed marks a reply in which the agent reported failure.
var ErrCalculationFailed = errors.New("calculation reported failure")

// Handler runs tasks of one type through an agent backend.
type Handler struct {
	taskType scheduler.TaskType
	backend  backend.Backend
	problem  string
}

// NewHandler creates a handler for tasks of type t. problem is the full
// problem text, included in every prompt.
func NewHandler(t scheduler.TaskType, b backend.Backend, problem string) (*Handler, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", scheduler.ErrInvalidTask, t)
	}
	if b == nil {
		return nil, fmt.Errorf("no backend for %s", t.RoutingKey())
	}
	return &Handler{taskType: t, backend: b, problem: problem}, nil
}

// Calculate sends the task to the agent and decodes its JSON reply.
func (h *Handler) Calculate(ctx context.Context, task *scheduler.Task, aggregated map[string]any) (scheduler.Result, error) {
	if task.Type != h.taskType {
		return nil, fmt.Errorf("%s handler cannot run %s task %q", h.taskType, task.Type, task.ID)
	}

	prompt, err := h.prompt(task, aggregated)
	if err != nil {
		return nil, err
	}

	resp, err := h.backend.Send(ctx, backend.Message{Role: "user", Content: prompt})
	if err != nil {
		return nil, fmt.Errorf("agent request: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("agent error: %s", resp.Error)
	}

	return ParseResult(resp.Content)
}

// ParseResult decodes an agent reply into a task result. A reply with
// "success": false, or one that carries only the unparsed raw output, is a
// failure.
func ParseResult(content string) (scheduler.Result, error) {
	obj, err := DecodeObject(content)
	if err != nil {
		return nil, err
	}
	if ok, present := obj["success"].(bool); present && !ok {
		msg, _ := obj["error"].(string)
		if msg == "" {
			msg = "no reason given"
		}
		return nil, fmt.Errorf("%w: %s", ErrCalculationFailed, msg)
	}
	if _, raw := obj["raw_output"]; raw && len(obj) == 1 {
		return nil, fmt.Errorf("%w: reply was not structured", ErrCalculationFailed)
	}
	delete(obj, "success")
	return scheduler.Result(obj), nil
}

func (h *Handler) prompt(task *scheduler.Task, aggregated map[string]any) (string, error) {
	taskJSON, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode task: %w", err)
	}
	aggJSON, err := json.MarshalIndent(aggregated, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode aggregated results: %w", err)
	}

	deps := make(map[string]any)
	for _, dep := range task.DependsOn {
		if v, ok := task.Parameters[scheduler.ResultKey(dep)]; ok {
			deps[dep] = v
		}
	}
	depJSON, err := json.MarshalIndent(deps, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode dependency results: %w", err)
	}

	p := profiles[h.taskType]
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a %s.\n\n", p.role)
	if h.problem != "" {
		fmt.Fprintf(&sb, "Problem:\n%s\n\n", h.problem)
	}
	fmt.Fprintf(&sb, "Current task:\n%s\n\n", taskJSON)
	fmt.Fprintf(&sb, "Results of the tasks it depends on:\n%s\n\n", depJSON)
	fmt.Fprintf(&sb, "All results so far:\n%s\n\n", aggJSON)
	sb.WriteString("Reply with a single JSON object and nothing else. ")
	fmt.Fprintf(&sb, "Use these top-level keys where they apply: %s. ", strings.Join(p.keys, ", "))
	sb.WriteString("Put explanations in other_results.explanation. ")
	sb.WriteString(`If the task cannot be computed, reply {"success": false, "error": "<reason>"}.`)
	sb.WriteString("\n")
	return sb.String(), nil
}
