package scheduler

import (
	"fmt"
)

// Progress counts tasks by status.
type Progress struct {
	Total     int
	Pending   int
	Running   int
	Completed int
	Failed    int
}

// TaskQueue holds the tasks of one problem session.
// It allows at most one task in flight. It is not safe for concurrent use;
// the session drives it from a single goroutine.
type TaskQueue struct {
	tasks     []*Task
	index     map[string]*Task
	completed []string
	done      map[string]bool
	current   string
	graph     *TaskGraph
}

// NewTaskQueue creates an empty queue.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{
		index: make(map[string]*Task),
		done:  make(map[string]bool),
	}
}

// AddTask appends a task. Short-circuited tasks are completed immediately.
// The queue keeps its own copy of the task.
func (q *TaskQueue) AddTask(task *Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("%w: empty task id", ErrInvalidTask)
	}
	if !task.Type.Valid() {
		return fmt.Errorf("%w: task %q has unknown type %q", ErrInvalidTask, task.ID, task.Type)
	}
	if _, exists := q.index[task.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTask, task.ID)
	}
	for _, depID := range task.DependsOn {
		if depID == task.ID {
			return fmt.Errorf("%w: task %q depends on itself", ErrInvalidTask, task.ID)
		}
	}

	t := cloneTask(task)
	if t.Parameters == nil {
		t.Parameters = make(map[string]any)
	}
	t.Error = nil
	t.Result = nil
	if t.ShortCircuited() {
		t.Status = TaskCompleted
		q.markDone(t.ID)
	} else {
		t.Status = TaskPending
	}

	q.tasks = append(q.tasks, t)
	q.index[t.ID] = t
	return nil
}

// Select marks a pending task running and makes it current.
func (q *TaskQueue) Select(id string) error {
	if q.current != "" {
		return fmt.Errorf("select %q: %w (%q)", id, ErrTaskInFlight, q.current)
	}
	task, ok := q.index[id]
	if !ok {
		return &UnknownTaskError{TaskID: id}
	}
	if task.Status != TaskPending {
		return fmt.Errorf("task %q is not pending (status: %s)", id, task.Status)
	}
	task.Status = TaskRunning
	q.current = id
	return nil
}

// Complete records a task as completed. Completing an already completed task
// is a no-op; otherwise the task must be current. A nil result keeps whatever
// the task already holds.
func (q *TaskQueue) Complete(id string, result Result) error {
	task, ok := q.index[id]
	if !ok {
		return &UnknownTaskError{TaskID: id}
	}
	if task.Status == TaskCompleted {
		return nil
	}
	if id != q.current {
		return fmt.Errorf("complete %q: %w", id, ErrNotCurrent)
	}

	task.Status = TaskCompleted
	if result != nil {
		task.Result = result
	}
	q.markDone(id)
	q.current = ""
	return nil
}

// Fail records a handler failure on the current task. Failed tasks are never retried.
func (q *TaskQueue) Fail(id string, err error) error {
	task, ok := q.index[id]
	if !ok {
		return &UnknownTaskError{TaskID: id}
	}
	if id != q.current {
		return fmt.Errorf("fail %q: %w", id, ErrNotCurrent)
	}
	task.Status = TaskFailed
	task.Error = err
	q.current = ""
	return nil
}

func (q *TaskQueue) markDone(id string) {
	if q.done[id] {
		return
	}
	q.done[id] = true
	q.completed = append(q.completed, id)
}

// AllCompleted reports whether every task is completed. An empty queue is complete.
func (q *TaskQueue) AllCompleted() bool {
	for _, task := range q.tasks {
		if task.Status != TaskCompleted {
			return false
		}
	}
	return true
}

// Get returns a copy of a task.
func (q *TaskQueue) Get(id string) (*Task, bool) {
	task, ok := q.index[id]
	if !ok {
		return nil, false
	}
	return cloneTask(task), true
}

// Tasks returns copies of all tasks in queue order.
func (q *TaskQueue) Tasks() []*Task {
	tasks := make([]*Task, 0, len(q.tasks))
	for _, task := range q.tasks {
		tasks = append(tasks, cloneTask(task))
	}
	return tasks
}

// Len returns the number of tasks.
func (q *TaskQueue) Len() int {
	return len(q.tasks)
}

// CompletedIDs returns completed task IDs in completion order.
func (q *TaskQueue) CompletedIDs() []string {
	return append([]string(nil), q.completed...)
}

// IsCompleted reports whether id is in the completed set.
func (q *TaskQueue) IsCompleted(id string) bool {
	return q.done[id]
}

// CurrentTaskID returns the task in flight, or "".
func (q *TaskQueue) CurrentTaskID() string {
	return q.current
}

// Graph returns the dependency graph, nil if none was built.
func (q *TaskQueue) Graph() *TaskGraph {
	return q.graph
}

// SetGraph installs a graph built elsewhere. Passing nil clears it.
func (q *TaskQueue) SetGraph(g *TaskGraph) {
	q.graph = g
}

// RebuildGraph builds a graph over the current tasks. On error the previous
// graph is kept.
func (q *TaskQueue) RebuildGraph() error {
	g, err := NewTaskGraph(q.tasks)
	if err != nil {
		return err
	}
	q.graph = g
	return nil
}

// Progress counts tasks by status.
func (q *TaskQueue) Progress() Progress {
	p := Progress{Total: len(q.tasks)}
	for _, task := range q.tasks {
		switch task.Status {
		case TaskPending:
			p.Pending++
		case TaskRunning:
			p.Running++
		case TaskCompleted:
			p.Completed++
		case TaskFailed:
			p.Failed++
		}
	}
	return p
}

// reorder replaces the queue order. ids must be a permutation of the task IDs.
func (q *TaskQueue) reorder(ids []string) error {
	if len(ids) != len(q.tasks) {
		return fmt.Errorf("reorder: got %d ids for %d tasks", len(ids), len(q.tasks))
	}
	tasks := make([]*Task, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		task, ok := q.index[id]
		if !ok {
			return &UnknownTaskError{TaskID: id}
		}
		if seen[id] {
			return fmt.Errorf("reorder: %w: %q", ErrDuplicateTask, id)
		}
		seen[id] = true
		tasks = append(tasks, task)
	}
	q.tasks = tasks
	return nil
}

// checkpoint is a saved queue state for rollback.
type checkpoint struct {
	tasks     []*Task
	saved     []Task
	completed []string
	done      map[string]bool
	current   string
	graph     *TaskGraph
}

func (q *TaskQueue) checkpoint() *checkpoint {
	cp := &checkpoint{
		tasks:     append([]*Task(nil), q.tasks...),
		saved:     make([]Task, len(q.tasks)),
		completed: append([]string(nil), q.completed...),
		done:      make(map[string]bool, len(q.done)),
		current:   q.current,
		graph:     q.graph,
	}
	for i, task := range q.tasks {
		cp.saved[i] = *cloneTask(task)
	}
	for id := range q.done {
		cp.done[id] = true
	}
	return cp
}

// rollback restores the state saved by checkpoint. Saved tasks are written
// back through their original pointers so the saved graph still sees them.
func (q *TaskQueue) rollback(cp *checkpoint) {
	q.tasks = cp.tasks
	q.index = make(map[string]*Task, len(cp.tasks))
	for i, task := range cp.tasks {
		*task = cp.saved[i]
		q.index[task.ID] = task
	}
	q.completed = cp.completed
	q.done = cp.done
	q.current = cp.current
	q.graph = cp.graph
}

// task returns the live task for package-internal mutation.
func (q *TaskQueue) task(id string) (*Task, bool) {
	t, ok := q.index[id]
	return t, ok
}
