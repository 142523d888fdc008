// Package orchestrator drives a calculation session: it feeds the planner's
// tasks to the scheduler, runs them one at a time through their handlers and
// aggregates the results.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/geocalc/internal/events"
	"github.com/aristath/geocalc/internal/merge"
	"github.com/aristath/geocalc/internal/scheduler"
)

// Journal is the part of the run journal a session writes to.
type Journal interface {
	CreateRun(ctx context.Context, runID, problem string) error
	SaveTask(ctx context.Context, runID string, task *scheduler.Task) error
	UpdateTaskStatus(ctx context.Context, runID, taskID string, status scheduler.TaskStatus, result scheduler.Result, taskErr error) error
	FinishRun(ctx context.Context, runID string, final *merge.Final, runErr error) error
}

// Publisher receives session events.
type Publisher interface {
	Publish(topic string, event events.Event)
}

// PlanWriter post-processes the merged result, typically through a merger agent.
type PlanWriter interface {
	Write(ctx context.Context, final *merge.Final) (*merge.Final, error)
}

// SessionConfig configures a session.
type SessionConfig struct {
	Dispatch   *scheduler.DispatchTable // required
	Events     Publisher                // optional
	Journal    Journal                  // optional; failures are logged, never fatal
	PlanWriter PlanWriter               // optional
	RunID      string                   // generated when empty
}

// Session owns the queue, router and executor of one problem.
type Session struct {
	cfg       SessionConfig
	queue     *scheduler.TaskQueue
	aggregate *merge.Aggregate
	manager   *scheduler.Manager
	router    *scheduler.Router
	executor  *scheduler.Executor
	planned   bool
	skip      bool
	announced map[string]bool
}

// NewSession creates an empty session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Dispatch == nil {
		return nil, errors.New("session requires a dispatch table")
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}

	queue := scheduler.NewTaskQueue()
	agg := merge.NewAggregate()
	return &Session{
		cfg:       cfg,
		queue:     queue,
		aggregate: agg,
		manager:   scheduler.NewManager(queue, agg),
		router:    scheduler.NewRouter(agg),
		executor:  scheduler.NewExecutor(queue, cfg.Dispatch, agg),
		announced: make(map[string]bool),
	}, nil
}

// RunID returns the identifier the session journals under.
func (s *Session) RunID() string {
	return s.cfg.RunID
}

// Progress returns the queue's status counts.
func (s *Session) Progress() scheduler.Progress {
	return s.queue.Progress()
}

// Tasks returns copies of the session's tasks in queue order.
func (s *Session) Tasks() []*scheduler.Task {
	return s.queue.Tasks()
}

// Plan loads the planner output. A plan that needs no calculation leaves the
// queue empty.
func (s *Session) Plan(ctx context.Context, plan *scheduler.Plan) error {
	if s.planned {
		return errors.New("session already planned")
	}
	s.planned = true

	if s.cfg.Journal != nil {
		if err := s.cfg.Journal.CreateRun(ctx, s.cfg.RunID, plan.Problem); err != nil {
			log.Printf("WARNING: journal: failed to create run %s: %v", s.cfg.RunID, err)
		}
	}

	if !plan.NeedsCalculation() {
		s.skip = true
		return nil
	}
	if err := s.manager.Initialize(plan.Tasks); err != nil {
		return fmt.Errorf("initialize tasks: %w", err)
	}
	s.syncTasks(ctx)
	return nil
}

// Revise applies a manager update between runs: changed parameters or
// dependencies of existing tasks, new tasks and an optional execution order.
func (s *Session) Revise(ctx context.Context, update scheduler.Update) error {
	if !s.planned {
		return errors.New("session has no plan")
	}
	if err := s.manager.ApplyUpdate(update); err != nil {
		return fmt.Errorf("apply update: %w", err)
	}
	s.skip = false
	s.syncTasks(ctx)
	return nil
}

// Run executes runnable tasks until the queue drains, then merges the
// results. Handler failures do not stop the loop; they surface as a
// *scheduler.DeadlockError once dependents can no longer run. Unknown tasks,
// cycles, deadlocks and cancellation end the run with an error.
func (s *Session) Run(ctx context.Context) (*merge.Final, error) {
	if !s.planned {
		return nil, errors.New("session has no plan")
	}
	if s.skip {
		final := &merge.Final{Results: map[string]any{}, TaskOrder: []string{}}
		s.finish(ctx, final, nil)
		return final, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, s.finish(ctx, nil, err)
		}

		task, err := s.router.Next(s.queue)
		if err != nil {
			return nil, s.finish(ctx, nil, err)
		}
		if task == nil {
			break
		}

		if err := s.execute(ctx, task); err != nil {
			return nil, s.finish(ctx, nil, err)
		}
	}

	final := s.aggregate.Final(s.queue)
	if s.cfg.PlanWriter != nil {
		written, err := s.cfg.PlanWriter.Write(ctx, final)
		if err != nil {
			log.Printf("WARNING: merger agent failed, keeping deterministic merge: %v", err)
		} else {
			final = written
		}
	}

	s.publish(events.TopicMerge, events.MergeCompletedEvent{
		Categories:     final.CategoryKeys(),
		DirectCommands: len(final.DirectCommands),
		TaskOrder:      final.TaskOrder,
		Timestamp:      time.Now(),
	})
	s.finish(ctx, final, nil)
	return final, nil
}

// execute runs one selected task and reports its outcome.
func (s *Session) execute(ctx context.Context, task *scheduler.Task) error {
	s.publish(events.TopicTask, events.TaskStartedEvent{
		ID:          task.ID,
		Type:        string(task.Type),
		RoutingKey:  task.Type.RoutingKey(),
		Description: task.Description,
		Timestamp:   time.Now(),
	})
	// Journal the enriched parameters the handler sees.
	s.journalTask(ctx, task)

	start := time.Now()
	execErr := s.executor.ExecuteTask(ctx, task.ID)
	duration := time.Since(start)

	done, _ := s.queue.Get(task.ID)
	switch done.Status {
	case scheduler.TaskCompleted:
		s.publish(events.TopicTask, events.TaskCompletedEvent{
			ID:        done.ID,
			Result:    done.Result,
			Duration:  duration,
			Timestamp: time.Now(),
		})
	case scheduler.TaskFailed:
		s.publish(events.TopicTask, events.TaskFailedEvent{
			ID:        done.ID,
			Err:       done.Error,
			Duration:  duration,
			Timestamp: time.Now(),
		})
	}
	s.journalStatus(ctx, done)
	s.publishProgress()
	return execErr
}

// syncTasks journals every task and announces newly short-circuited ones.
func (s *Session) syncTasks(ctx context.Context) {
	for _, task := range s.queue.Tasks() {
		s.journalTask(ctx, task)
		if task.ShortCircuited() && !s.announced[task.ID] {
			s.announced[task.ID] = true
			s.publish(events.TopicTask, events.TaskShortCircuitedEvent{
				ID:        task.ID,
				Command:   task.GeoGebraCommand,
				Timestamp: time.Now(),
			})
		}
	}
	s.publishProgress()
}

func (s *Session) publishProgress() {
	p := s.queue.Progress()
	s.publish(events.TopicQueue, events.QueueProgressEvent{
		Total:     p.Total,
		Pending:   p.Pending,
		Running:   p.Running,
		Completed: p.Completed,
		Failed:    p.Failed,
		Timestamp: time.Now(),
	})
}

func (s *Session) publish(topic string, ev events.Event) {
	if s.cfg.Events != nil {
		s.cfg.Events.Publish(topic, ev)
	}
}

func (s *Session) journalTask(ctx context.Context, task *scheduler.Task) {
	if s.cfg.Journal == nil {
		return
	}
	if err := s.cfg.Journal.SaveTask(ctx, s.cfg.RunID, task); err != nil {
		log.Printf("WARNING: journal: failed to save task %q: %v", task.ID, err)
	}
}

func (s *Session) journalStatus(ctx context.Context, task *scheduler.Task) {
	if s.cfg.Journal == nil {
		return
	}
	// The run context may already be cancelled; the journal still gets the
	// final status.
	ctx = context.WithoutCancel(ctx)
	if err := s.cfg.Journal.UpdateTaskStatus(ctx, s.cfg.RunID, task.ID, task.Status, task.Result, task.Error); err != nil {
		log.Printf("WARNING: journal: failed to update task %q: %v", task.ID, err)
	}
}

// finish closes the journaled run and returns runErr.
func (s *Session) finish(ctx context.Context, final *merge.Final, runErr error) error {
	if s.cfg.Journal != nil {
		if err := s.cfg.Journal.FinishRun(context.WithoutCancel(ctx), s.cfg.RunID, final, runErr); err != nil {
			log.Printf("WARNING: journal: failed to finish run %s: %v", s.cfg.RunID, err)
		}
	}
	return runErr
}
