package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrTaskInFlight is returned when a task is selected while another is running.
	ErrTaskInFlight = errors.New("another task is already in flight")
	// ErrNotCurrent is returned when completing or failing a task that is not current.
	ErrNotCurrent = errors.New("task is not the current task")
	// ErrDuplicateTask is returned when a task ID is added twice.
	ErrDuplicateTask = errors.New("duplicate task id")
	// ErrInvalidTask is returned for malformed task descriptors.
	ErrInvalidTask = errors.New("invalid task")
	// ErrInvalidOrder is returned for a supplied execution order that breaks
	// the dependency order.
	ErrInvalidOrder = errors.New("invalid execution order")
)

// UnknownTaskError reports a task ID that is not present in the queue.
type UnknownTaskError struct {
	TaskID string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("task %q not found", e.TaskID)
}

// CyclicDependencyError reports a dependency graph that cannot be ordered.
type CyclicDependencyError struct {
	Tasks []string // tasks that could not be placed in the order
	Err   error
}

func (e *CyclicDependencyError) Error() string {
	msg := "dependency graph contains cycle"
	if len(e.Tasks) > 0 {
		msg += " involving " + strings.Join(e.Tasks, ", ")
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CyclicDependencyError) Unwrap() error { return e.Err }

// DeadlockError reports pending tasks that can never become runnable.
type DeadlockError struct {
	Pending   []string            // blocked tasks, queue order
	Failed    []string            // failed tasks, queue order
	BlockedBy map[string][]string // pending task -> failed ancestors
	Missing   map[string][]string // pending task -> dependency ids not in the queue
}

func (e *DeadlockError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "deadlock: %d pending task(s) cannot run", len(e.Pending))
	for _, id := range e.Pending {
		var reasons []string
		if failed := e.BlockedBy[id]; len(failed) > 0 {
			reasons = append(reasons, "failed "+strings.Join(failed, ","))
		}
		if missing := e.Missing[id]; len(missing) > 0 {
			reasons = append(reasons, "unknown "+strings.Join(missing, ","))
		}
		if len(reasons) == 0 {
			reasons = append(reasons, "unsatisfied dependencies")
		}
		fmt.Fprintf(&b, "; %s (%s)", id, strings.Join(reasons, "; "))
	}
	return b.String()
}

// HandlerError is recorded on a task whose calculation handler failed.
type HandlerError struct {
	TaskID string
	Type   TaskType
	Err    error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s failed task %q: %v", e.Type.RoutingKey(), e.TaskID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
