package scheduler

import (
	"fmt"
	"strings"
)

// TaskType selects the calculation handler a task is dispatched to.
type TaskType string

const (
	TaskTriangle   TaskType = "triangle"
	TaskCircle     TaskType = "circle"
	TaskAngle      TaskType = "angle"
	TaskLength     TaskType = "length"
	TaskArea       TaskType = "area"
	TaskCoordinate TaskType = "coordinate"
)

// TaskTypes returns every known task type in a stable order.
func TaskTypes() []TaskType {
	return []TaskType{TaskTriangle, TaskCircle, TaskAngle, TaskLength, TaskArea, TaskCoordinate}
}

// ParseTaskType converts a planner-supplied string into a TaskType.
func ParseTaskType(s string) (TaskType, error) {
	t := TaskType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown task type %q", ErrInvalidTask, s)
	}
	return t, nil
}

// Valid reports whether t is one of the known task types.
func (t TaskType) Valid() bool {
	for _, known := range TaskTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// RoutingKey is the name of the calculation agent responsible for the type.
func (t TaskType) RoutingKey() string {
	return string(t) + "_calculation_agent"
}

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"   // Waiting to be selected
	TaskRunning   TaskStatus = "running"   // Selected by the router, handler in flight
	TaskCompleted TaskStatus = "completed" // Finished successfully (or short-circuited)
	TaskFailed    TaskStatus = "failed"    // Handler failed, dependents are blocked
)

// Result is the free-form numeric dictionary a calculation handler returns.
type Result map[string]any

// Task represents a single calculation job.
type Task struct {
	ID            string         `json:"task_id"`
	Type          TaskType       `json:"task_type"`
	OperationType string         `json:"operation_type,omitempty"`
	Description   string         `json:"description,omitempty"`
	Parameters    map[string]any `json:"parameters"`
	DependsOn     []string       `json:"dependencies"`
	Status        TaskStatus     `json:"status"`
	Result        Result         `json:"result,omitempty"`
	Error         error          `json:"-"`

	// A task that already has a GeoGebra command is completed on insertion
	// and never reaches a calculation handler.
	GeoGebraAlternatives bool   `json:"geogebra_alternatives,omitempty"`
	GeoGebraCommand      string `json:"geogebra_command,omitempty"`

	AvailableTools map[string][]string `json:"available_tools,omitempty"`
}

// ShortCircuited reports whether the task is satisfied by a direct GeoGebra command.
func (t *Task) ShortCircuited() bool {
	return t.GeoGebraAlternatives && t.GeoGebraCommand != ""
}

// ResultKey is the parameter name a dependency's result is injected under.
func ResultKey(depID string) string {
	return depID + "_result"
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.DependsOn != nil {
		cp.DependsOn = append([]string(nil), task.DependsOn...)
	}
	if task.Parameters != nil {
		cp.Parameters = make(map[string]any, len(task.Parameters))
		for k, v := range task.Parameters {
			cp.Parameters[k] = v
		}
	}
	if task.Result != nil {
		cp.Result = make(Result, len(task.Result))
		for k, v := range task.Result {
			cp.Result[k] = v
		}
	}
	if task.AvailableTools != nil {
		cp.AvailableTools = make(map[string][]string, len(task.AvailableTools))
		for k, v := range task.AvailableTools {
			cp.AvailableTools[k] = append([]string(nil), v...)
		}
	}
	return &cp
}
