package scheduler

import (
	"fmt"
	"strings"
)

// Blueprint is one task descriptor suggested by the planner.
type Blueprint struct {
	TaskID               string         `json:"task_id,omitempty" yaml:"task_id,omitempty"`
	TaskType             string         `json:"task_type" yaml:"task_type"`
	OperationType        string         `json:"operation_type,omitempty" yaml:"operation_type,omitempty"`
	Description          string         `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters           map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Dependencies         []string       `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	GeoGebraAlternatives *bool          `json:"geogebra_alternatives,omitempty" yaml:"geogebra_alternatives,omitempty"`
	GeoGebraCommand      *string        `json:"geogebra_command,omitempty" yaml:"geogebra_command,omitempty"`
}

// Update is a revision of the task list, typically produced after a partial run.
type Update struct {
	Tasks []Blueprint `json:"tasks" yaml:"tasks"`
	// ExecutionOrder, when set, replaces the computed order. It must list
	// every task after its dependencies; tasks it leaves out run afterwards.
	ExecutionOrder []string `json:"execution_order,omitempty" yaml:"execution_order,omitempty"`
}

// Manager turns planner blueprints into queued tasks and keeps the graph current.
type Manager struct {
	queue *TaskQueue
	store ResultStore
}

// NewManager creates a manager for queue. store receives short-circuited tasks
// and may be nil.
func NewManager(queue *TaskQueue, store ResultStore) *Manager {
	return &Manager{queue: queue, store: store}
}

// Initialize creates tasks from the planner blueprint. IDs default to
// "{task_type}_{n}" with n the 1-based blueprint position. On error the queue
// is left empty.
func (m *Manager) Initialize(blueprints []Blueprint) error {
	if m.queue.Len() > 0 {
		return fmt.Errorf("queue already initialized with %d tasks", m.queue.Len())
	}

	return m.commit(func() ([]string, error) {
		var direct []string
		for i, bp := range blueprints {
			task, err := bp.toTask(i)
			if err != nil {
				return nil, err
			}
			if err := m.queue.AddTask(task); err != nil {
				return nil, fmt.Errorf("blueprint %d: %w", i+1, err)
			}
			if task.ShortCircuited() {
				direct = append(direct, task.ID)
			}
		}
		return direct, m.prioritizeAndRebuild(nil)
	})
}

// ApplyUpdate merges revised task descriptors into the queue. Existing tasks get
// their parameters merged and dependencies unioned; unknown IDs become new tasks.
// An update that leaves the graph invalid is rejected as a whole and the queue
// keeps its previous tasks and graph.
func (m *Manager) ApplyUpdate(update Update) error {
	return m.commit(func() ([]string, error) {
		var direct []string
		for _, bp := range update.Tasks {
			if bp.TaskID != "" {
				if existing, ok := m.queue.task(bp.TaskID); ok {
					if m.mergeInto(existing, bp) {
						direct = append(direct, existing.ID)
					}
					continue
				}
			}

			task, err := bp.toTask(m.queue.Len())
			if err != nil {
				return nil, err
			}
			if err := m.queue.AddTask(task); err != nil {
				return nil, fmt.Errorf("update task %q: %w", task.ID, err)
			}
			if task.ShortCircuited() {
				direct = append(direct, task.ID)
			}
		}
		return direct, m.prioritizeAndRebuild(update.ExecutionOrder)
	})
}

// commit runs change against the queue and rolls the queue back if it fails.
// Short-circuited tasks reported by change reach the store only on success.
func (m *Manager) commit(change func() ([]string, error)) error {
	cp := m.queue.checkpoint()
	direct, err := change()
	if err != nil {
		m.queue.rollback(cp)
		return err
	}
	for _, id := range direct {
		m.recordShortCircuit(id)
	}
	return nil
}

// mergeInto applies bp to an existing task and reports whether the task was
// newly short-circuited.
func (m *Manager) mergeInto(task *Task, bp Blueprint) bool {
	for k, v := range bp.Parameters {
		task.Parameters[k] = v
	}
	for _, depID := range bp.Dependencies {
		if depID == task.ID || contains(task.DependsOn, depID) {
			continue
		}
		task.DependsOn = append(task.DependsOn, depID)
	}
	if bp.OperationType != "" {
		task.OperationType = bp.OperationType
	}
	if bp.Description != "" {
		task.Description = bp.Description
	}
	if bp.GeoGebraAlternatives != nil {
		task.GeoGebraAlternatives = *bp.GeoGebraAlternatives
	}
	if bp.GeoGebraCommand != nil {
		task.GeoGebraCommand = *bp.GeoGebraCommand
	}
	task.AvailableTools = ToolsFor(task.Type)

	if task.ShortCircuited() && task.Status == TaskPending {
		task.Status = TaskCompleted
		m.queue.markDone(task.ID)
		return true
	}
	return false
}

func (m *Manager) recordShortCircuit(id string) {
	if m.store == nil {
		return
	}
	if task, ok := m.queue.Get(id); ok {
		m.store.Record(task)
	}
}

func (m *Manager) prioritizeAndRebuild(order []string) error {
	// Basic coordinate setup runs before everything else
	var first, rest []string
	for _, task := range m.queue.tasks {
		if task.Type == TaskCoordinate && isBasicGeometry(task) {
			first = append(first, task.ID)
		} else {
			rest = append(rest, task.ID)
		}
	}
	if err := m.queue.reorder(append(first, rest...)); err != nil {
		return err
	}

	// A supplied order wins over the computed one when it is valid
	if len(order) > 0 {
		g, err := NewTaskGraphWithOrder(m.queue.tasks, order)
		if err != nil {
			return err
		}
		m.queue.SetGraph(g)
		return nil
	}
	return m.queue.RebuildGraph()
}

var basicOperations = []string{"point_coordinates", "initial_setup", "polygon_coordinates"}

// isBasicGeometry reports whether a coordinate task sets up the base figure.
func isBasicGeometry(task *Task) bool {
	if contains(basicOperations, task.OperationType) {
		return true
	}
	for _, v := range task.Parameters {
		s, ok := v.(string)
		if ok && containsAny(strings.ToLower(s), "initial", "basic", "setup", "reference") {
			return true
		}
	}
	return containsAny(strings.ToLower(task.Description), "initial", "setup", "reference point", "basic")
}

func (bp Blueprint) toTask(position int) (*Task, error) {
	taskType, err := ParseTaskType(bp.TaskType)
	if err != nil {
		return nil, fmt.Errorf("blueprint %d: %w", position+1, err)
	}

	id := bp.TaskID
	if id == "" {
		id = fmt.Sprintf("%s_%d", taskType, position+1)
	}

	params := make(map[string]any, len(bp.Parameters))
	for k, v := range bp.Parameters {
		params[k] = v
	}

	task := &Task{
		ID:             id,
		Type:           taskType,
		OperationType:  bp.OperationType,
		Description:    bp.Description,
		Parameters:     params,
		DependsOn:      append([]string(nil), bp.Dependencies...),
		Status:         TaskPending,
		AvailableTools: ToolsFor(taskType),
	}
	if bp.GeoGebraAlternatives != nil {
		task.GeoGebraAlternatives = *bp.GeoGebraAlternatives
	}
	if bp.GeoGebraCommand != nil {
		task.GeoGebraCommand = *bp.GeoGebraCommand
	}
	return task, nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
