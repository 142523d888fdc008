package merge

import (
	"sort"
	"sync"

	"github.com/aristath/geocalc/internal/scheduler"
)

// DirectCommand records a task satisfied by a GeoGebra command instead of a handler.
type DirectCommand struct {
	TaskID          string         `json:"task_id"`
	TaskType        string         `json:"task_type"`
	Parameters      map[string]any `json:"parameters"`
	GeoGebraCommand string         `json:"geogebra_command"`
}

// Final is the aggregated outcome of a session.
type Final struct {
	Results          map[string]any    `json:"results"`
	ConstructionPlan *ConstructionPlan `json:"construction_plan,omitempty"`
	DirectCommands   []DirectCommand   `json:"geogebra_direct_commands,omitempty"`
	TaskOrder        []string          `json:"task_order"`
}

// CategoryKeys returns the recognized categories present in the results, sorted.
func (f *Final) CategoryKeys() []string {
	var keys []string
	for k := range f.Results {
		if IsCategory(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Aggregate is the running result store of one session. It is safe for
// concurrent use so that views can snapshot it while the session records.
type Aggregate struct {
	mu       sync.RWMutex
	byTask   map[string]map[string]any
	merged   map[string]any
	plan     *ConstructionPlan
	commands []DirectCommand
}

// NewAggregate creates an empty aggregate.
func NewAggregate() *Aggregate {
	return &Aggregate{
		byTask: make(map[string]map[string]any),
		merged: make(map[string]any),
	}
}

// Record stores a completed task. Short-circuited tasks are kept as direct
// commands, once per task ID.
func (a *Aggregate) Record(task *scheduler.Task) {
	if task == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if task.ShortCircuited() {
		for _, cmd := range a.commands {
			if cmd.TaskID == task.ID {
				return
			}
		}
		params, _ := deepCopy(task.Parameters).(map[string]any)
		a.commands = append(a.commands, DirectCommand{
			TaskID:          task.ID,
			TaskType:        string(task.Type),
			Parameters:      params,
			GeoGebraCommand: task.GeoGebraCommand,
		})
		return
	}

	if task.Result == nil {
		return
	}
	res := copyMap(task.Result)
	a.byTask[task.ID] = res
	if plan := fold(a.merged, res); plan != nil {
		a.plan = plan
	}
}

// TaskResult returns a copy of the result recorded for a task.
func (a *Aggregate) TaskResult(id string) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	res, ok := a.byTask[id]
	if !ok {
		return nil, false
	}
	return copyMap(res), true
}

// Snapshot returns a deep copy of everything recorded so far: per-task results
// under their IDs, the merged categories and the direct commands.
func (a *Aggregate) Snapshot() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := copyMap(a.merged)
	for id, res := range a.byTask {
		snap[id] = copyMap(res)
	}
	if len(a.commands) > 0 {
		cmds := make([]any, 0, len(a.commands))
		for _, c := range a.commands {
			cmds = append(cmds, map[string]any{
				"task_id":          c.TaskID,
				"task_type":        c.TaskType,
				"parameters":       copyMap(c.Parameters),
				"geogebra_command": c.GeoGebraCommand,
			})
		}
		snap[KeyDirectCommands] = cmds
	}
	return snap
}

// DirectCommands returns the recorded direct commands in recording order.
func (a *Aggregate) DirectCommands() []DirectCommand {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]DirectCommand(nil), a.commands...)
}

// Final merges the results of the queue's completed tasks. Tasks are taken in
// execution order when the queue has a graph, otherwise in completion order;
// completed tasks the graph does not know about follow in completion order.
func (a *Aggregate) Final(q *scheduler.TaskQueue) *Final {
	var order []string
	if g := q.Graph(); g != nil {
		order = g.ExecutionOrder()
	}
	seen := make(map[string]bool)
	var ordered []string
	for _, id := range append(order, q.CompletedIDs()...) {
		if seen[id] {
			continue
		}
		seen[id] = true
		ordered = append(ordered, id)
	}

	var results []map[string]any
	taskOrder := []string{}
	for _, id := range ordered {
		task, ok := q.Get(id)
		if !ok || task.Status != scheduler.TaskCompleted || task.Result == nil {
			continue
		}
		results = append(results, task.Result)
		taskOrder = append(taskOrder, id)
	}

	merged, plan := Merge(results)
	return &Final{
		Results:          merged,
		ConstructionPlan: plan,
		DirectCommands:   a.DirectCommands(),
		TaskOrder:        taskOrder,
	}
}
