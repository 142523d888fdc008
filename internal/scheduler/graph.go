package scheduler

import (
	"fmt"

	"github.com/gammazero/toposort"
)

type graphNode struct {
	index     int      // position in the task arena
	dependsOn []string // copy taken at build time
}

// TaskGraph is the dependency graph over a queue's tasks.
// Nodes index into the task arena, so status is always read from the task itself.
type TaskGraph struct {
	tasks []*Task
	nodes map[string]graphNode
	order []string
}

// NewTaskGraph builds a graph over tasks and computes a topological execution order.
// Ties are broken by insertion order. Dependencies on IDs outside the task set
// are ignored for ordering; such tasks can never run and surface as a deadlock.
func NewTaskGraph(tasks []*Task) (*TaskGraph, error) {
	g := &TaskGraph{
		tasks: append([]*Task(nil), tasks...),
		nodes: make(map[string]graphNode, len(tasks)),
	}

	for i, task := range tasks {
		if _, exists := g.nodes[task.ID]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateTask, task.ID)
		}
		g.nodes[task.ID] = graphNode{
			index:     i,
			dependsOn: append([]string(nil), task.DependsOn...),
		}
	}

	if err := g.validate(); err != nil {
		return nil, err
	}

	order, unplaced := g.stableOrder()
	if len(unplaced) > 0 {
		return nil, &CyclicDependencyError{Tasks: unplaced}
	}
	g.order = order
	return g, nil
}

// NewTaskGraphWithOrder builds a graph that walks a planner-supplied order.
// The order may omit tasks, which the router picks up by scanning the queue,
// but every ID it names must be in tasks and must come after all of its
// dependencies.
func NewTaskGraphWithOrder(tasks []*Task, order []string) (*TaskGraph, error) {
	g, err := NewTaskGraph(tasks)
	if err != nil {
		return nil, err
	}

	pos := make(map[string]int, len(order))
	for i, id := range order {
		if !g.Contains(id) {
			return nil, &UnknownTaskError{TaskID: id}
		}
		if _, dup := pos[id]; dup {
			return nil, fmt.Errorf("%w: %q listed twice", ErrInvalidOrder, id)
		}
		pos[id] = i
	}
	for _, id := range order {
		for _, depID := range g.nodes[id].dependsOn {
			if !g.Contains(depID) {
				continue
			}
			// An unlisted dependency would run, and merge, after id.
			if p, listed := pos[depID]; !listed || p > pos[id] {
				return nil, fmt.Errorf("%w: %q is not preceded by its dependency %q", ErrInvalidOrder, id, depID)
			}
		}
	}

	g.order = append([]string(nil), order...)
	return g, nil
}

// validate runs the toposort cycle check over the known edges.
func (g *TaskGraph) validate() error {
	var edges []toposort.Edge
	for _, task := range g.tasks {
		known := 0
		for _, depID := range g.nodes[task.ID].dependsOn {
			if _, ok := g.nodes[depID]; !ok {
				continue
			}
			// Edge (depID, taskID) means depID must come before taskID
			edges = append(edges, toposort.Edge{depID, task.ID})
			known++
		}
		if known == 0 {
			edges = append(edges, toposort.Edge{nil, task.ID})
		}
	}

	if _, err := toposort.Toposort(edges); err != nil {
		_, unplaced := g.stableOrder()
		return &CyclicDependencyError{Tasks: unplaced, Err: err}
	}
	return nil
}

// stableOrder is Kahn's algorithm that always picks the earliest inserted ready task.
func (g *TaskGraph) stableOrder() (order []string, unplaced []string) {
	placed := make(map[string]bool, len(g.tasks))
	order = make([]string, 0, len(g.tasks))

	for len(order) < len(g.tasks) {
		progressed := false
		for _, task := range g.tasks {
			if placed[task.ID] || !g.knownDepsPlaced(task.ID, placed) {
				continue
			}
			placed[task.ID] = true
			order = append(order, task.ID)
			progressed = true
			break
		}
		if !progressed {
			break
		}
	}

	for _, task := range g.tasks {
		if !placed[task.ID] {
			unplaced = append(unplaced, task.ID)
		}
	}
	return order, unplaced
}

func (g *TaskGraph) knownDepsPlaced(id string, placed map[string]bool) bool {
	for _, depID := range g.nodes[id].dependsOn {
		if _, ok := g.nodes[depID]; !ok {
			continue
		}
		if !placed[depID] {
			return false
		}
	}
	return true
}

// ExecutionOrder returns a copy of the topological order.
func (g *TaskGraph) ExecutionOrder() []string {
	order := make([]string, len(g.order))
	copy(order, g.order)
	return order
}

// Dependencies returns the dependencies recorded for a task when the graph was built.
func (g *TaskGraph) Dependencies(id string) ([]string, bool) {
	node, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	return append([]string(nil), node.dependsOn...), true
}

// Status reads the current status of a task through the arena.
func (g *TaskGraph) Status(id string) (TaskStatus, bool) {
	node, ok := g.nodes[id]
	if !ok {
		return "", false
	}
	return g.tasks[node.index].Status, true
}

// Contains reports whether the graph has a node for id.
func (g *TaskGraph) Contains(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Len returns the number of nodes.
func (g *TaskGraph) Len() int {
	return len(g.nodes)
}
