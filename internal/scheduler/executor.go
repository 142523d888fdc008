package scheduler

import (
	"context"
	"fmt"
)

// ResultStore accumulates the results of completed tasks for a session.
type ResultStore interface {
	ResultSource
	Record(task *Task)
	Snapshot() map[string]any
}

// Executor runs the current task through its calculation handler.
type Executor struct {
	queue    *TaskQueue
	dispatch *DispatchTable
	store    ResultStore
}

// NewExecutor creates a new Executor.
func NewExecutor(queue *TaskQueue, dispatch *DispatchTable, store ResultStore) *Executor {
	return &Executor{
		queue:    queue,
		dispatch: dispatch,
		store:    store,
	}
}

// ExecuteTask runs a task the router has selected.
// Handler failures are recorded on the task and do not produce an error;
// the returned error covers structural problems and cancellation.
func (e *Executor) ExecuteTask(ctx context.Context, taskID string) error {
	task, exists := e.queue.Get(taskID)
	if !exists {
		return &UnknownTaskError{TaskID: taskID}
	}

	// Verify the router selected it
	if task.Status != TaskRunning || e.queue.CurrentTaskID() != taskID {
		return fmt.Errorf("task %q is not in flight (status: %s)", taskID, task.Status)
	}

	// Look up handler
	h, err := e.dispatch.Lookup(task.Type)
	if err != nil {
		_ = e.queue.Fail(taskID, &HandlerError{TaskID: taskID, Type: task.Type, Err: err})
		return err
	}

	// Check context before invoking the handler
	if err := ctx.Err(); err != nil {
		markErr := fmt.Errorf("context cancelled before execution: %w", err)
		_ = e.queue.Fail(taskID, markErr)
		return markErr
	}

	// Handlers see everything computed so far
	var aggregated map[string]any
	if e.store != nil {
		aggregated = e.store.Snapshot()
	}

	// Run the calculation
	result, err := h.Calculate(ctx, task, aggregated)
	if err != nil {
		_ = e.queue.Fail(taskID, &HandlerError{TaskID: taskID, Type: task.Type, Err: err})
		return nil // Task status is in the queue, not the return value
	}
	if result == nil {
		result = Result{}
	}

	// Mark completed and publish the result to the store
	if err := e.queue.Complete(taskID, result); err != nil {
		return err
	}
	if e.store != nil {
		done, _ := e.queue.Get(taskID)
		e.store.Record(done)
	}
	return nil
}
