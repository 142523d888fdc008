package scheduler

import (
	"context"
	"fmt"
	"strings"
)

// Handler computes the result of one calculation task.
// aggregated is a snapshot of all results recorded so far in the session.
type Handler interface {
	Calculate(ctx context.Context, task *Task, aggregated map[string]any) (Result, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, task *Task, aggregated map[string]any) (Result, error)

// Calculate calls f.
func (f HandlerFunc) Calculate(ctx context.Context, task *Task, aggregated map[string]any) (Result, error) {
	return f(ctx, task, aggregated)
}

// DispatchTable maps every task type to its handler.
type DispatchTable struct {
	handlers map[TaskType]Handler
}

// NewDispatchTable validates that every task type has a handler.
func NewDispatchTable(handlers map[TaskType]Handler) (*DispatchTable, error) {
	var missing []string
	table := &DispatchTable{handlers: make(map[TaskType]Handler, len(handlers))}
	for _, t := range TaskTypes() {
		h, ok := handlers[t]
		if !ok || h == nil {
			missing = append(missing, t.RoutingKey())
			continue
		}
		table.handlers[t] = h
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("dispatch table incomplete, no handler for: %s", strings.Join(missing, ", "))
	}
	for t := range handlers {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: handler registered for unknown type %q", ErrInvalidTask, t)
		}
	}
	return table, nil
}

// Lookup returns the handler for t.
func (d *DispatchTable) Lookup(t TaskType) (Handler, error) {
	h, ok := d.handlers[t]
	if !ok {
		return nil, fmt.Errorf("no handler registered for %s", t.RoutingKey())
	}
	return h, nil
}
