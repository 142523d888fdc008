package scheduler

import (
	"log"
)

// ResultSource exposes the aggregated results of completed tasks.
type ResultSource interface {
	TaskResult(id string) (any, bool)
}

// Router picks the next runnable task from a queue.
type Router struct {
	results ResultSource
}

// NewRouter creates a router. When results is nil, dependency results are
// read from the dependency tasks themselves.
func NewRouter(results ResultSource) *Router {
	return &Router{results: results}
}

// Next finalizes the current task, then selects and enriches the next runnable one.
// It returns (nil, nil) once every task is completed and a *DeadlockError when
// pending tasks remain that can never run.
func (r *Router) Next(q *TaskQueue) (*Task, error) {
	// Finalize whatever is still in flight
	if cur := q.CurrentTaskID(); cur != "" {
		if err := q.Complete(cur, nil); err != nil {
			return nil, err
		}
	}

	if q.AllCompleted() {
		return nil, nil
	}

	// Prefer the execution order, fall back to queue order
	next, err := r.fromGraph(q)
	if err != nil {
		return nil, err
	}
	if next == nil {
		next = r.scan(q)
		if next != nil && q.Graph() != nil {
			log.Printf("WARNING: task %q not reachable through execution order, selected by queue scan", next.ID)
		}
	}
	if next == nil {
		return nil, deadlock(q)
	}

	// Mark running, then hand it the results it depends on
	if err := q.Select(next.ID); err != nil {
		return nil, err
	}
	r.enrich(q, next)
	return cloneTask(next), nil
}

func (r *Router) fromGraph(q *TaskQueue) (*Task, error) {
	g := q.Graph()
	if g == nil {
		return nil, nil
	}
	for _, id := range g.order {
		if q.IsCompleted(id) {
			continue
		}
		task, ok := q.task(id)
		if !ok {
			return nil, &UnknownTaskError{TaskID: id}
		}
		if runnable(q, task) {
			return task, nil
		}
	}
	return nil, nil
}

func (r *Router) scan(q *TaskQueue) *Task {
	for _, task := range q.tasks {
		if runnable(q, task) {
			return task
		}
	}
	return nil
}

func runnable(q *TaskQueue, task *Task) bool {
	if task.Status != TaskPending {
		return false
	}
	for _, depID := range task.DependsOn {
		if !q.IsCompleted(depID) {
			return false
		}
	}
	return true
}

// enrich injects each dependency's aggregated result as "{dep}_result".
func (r *Router) enrich(q *TaskQueue, task *Task) {
	for _, depID := range task.DependsOn {
		if r.results != nil {
			if res, ok := r.results.TaskResult(depID); ok {
				task.Parameters[ResultKey(depID)] = res
			}
			continue
		}
		if dep, ok := q.task(depID); ok && dep.Result != nil {
			task.Parameters[ResultKey(depID)] = dep.Result
		}
	}
}

// deadlock explains why the remaining pending tasks cannot run.
func deadlock(q *TaskQueue) *DeadlockError {
	e := &DeadlockError{
		BlockedBy: make(map[string][]string),
		Missing:   make(map[string][]string),
	}
	for _, task := range q.tasks {
		switch task.Status {
		case TaskFailed:
			e.Failed = append(e.Failed, task.ID)
		case TaskPending:
			e.Pending = append(e.Pending, task.ID)
			failed := make(map[string]bool)
			missing := make(map[string]bool)
			failedAncestors(q, task, make(map[string]bool), failed, missing)
			if len(failed) > 0 {
				e.BlockedBy[task.ID] = sortedKeys(failed)
			}
			if len(missing) > 0 {
				e.Missing[task.ID] = sortedKeys(missing)
			}
		}
	}
	return e
}

func failedAncestors(q *TaskQueue, task *Task, visited, failed, missing map[string]bool) {
	for _, depID := range task.DependsOn {
		if visited[depID] {
			continue
		}
		visited[depID] = true
		dep, ok := q.task(depID)
		if !ok {
			missing[depID] = true
			continue
		}
		if dep.Status == TaskFailed {
			failed[depID] = true
			continue
		}
		failedAncestors(q, dep, visited, failed, missing)
	}
}
