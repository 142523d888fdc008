package calc

import (
	"fmt"

	"github.com/aristath/geocalc/internal/backend"
	"github.com/aristath/geocalc/internal/scheduler"
)

// NewDispatchTable builds a handler for every task type from its backend.
// A type without a backend makes the table incomplete and is an error.
func NewDispatchTable(backends map[scheduler.TaskType]backend.Backend, problem string) (*scheduler.DispatchTable, error) {
	handlers := make(map[scheduler.TaskType]scheduler.Handler, len(backends))
	for t, b := range backends {
		if b == nil {
			continue
		}
		h, err := NewHandler(t, b, problem)
		if err != nil {
			return nil, fmt.Errorf("handler for %s: %w", t.RoutingKey(), err)
		}
		handlers[t] = h
	}
	return scheduler.NewDispatchTable(handlers)
}
