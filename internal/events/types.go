package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask  = "task"
	TopicQueue = "queue"
	TopicMerge = "merge"
)

// Event type constants
const (
	EventTypeTaskStarted        = "task.started"
	EventTypeTaskCompleted      = "task.completed"
	EventTypeTaskFailed         = "task.failed"
	EventTypeTaskShortCircuited = "task.short_circuited"
	EventTypeQueueProgress      = "queue.progress"
	EventTypeMergeCompleted     = "merge.completed"
)

// TaskStartedEvent is published when the router hands a task to its handler.
type TaskStartedEvent struct {
	ID          string
	Type        string
	RoutingKey  string
	Description string
	Timestamp   time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a handler returns a result.
type TaskCompletedEvent struct {
	ID        string
	Result    map[string]any
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a handler fails.
type TaskFailedEvent struct {
	ID        string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskShortCircuitedEvent is published for a task satisfied by a direct
// GeoGebra command.
type TaskShortCircuitedEvent struct {
	ID        string
	Command   string
	Timestamp time.Time
}

func (e TaskShortCircuitedEvent) EventType() string { return EventTypeTaskShortCircuited }
func (e TaskShortCircuitedEvent) TaskID() string    { return e.ID }

// QueueProgressEvent carries the queue's status counts.
type QueueProgressEvent struct {
	Total     int
	Pending   int
	Running   int
	Completed int
	Failed    int
	Timestamp time.Time
}

func (e QueueProgressEvent) EventType() string { return EventTypeQueueProgress }
func (e QueueProgressEvent) TaskID() string    { return "" }

// MergeCompletedEvent is published once the final result is aggregated.
type MergeCompletedEvent struct {
	Categories     []string
	DirectCommands int
	TaskOrder      []string
	Timestamp      time.Time
}

func (e MergeCompletedEvent) EventType() string { return EventTypeMergeCompleted }
func (e MergeCompletedEvent) TaskID() string    { return "" }
