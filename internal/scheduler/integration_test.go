package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestIntegration_FullPipeline validates the end-to-end flow:
// blueprint -> manager -> router -> executor -> result store
func TestIntegration_FullPipeline(t *testing.T) {
	q := NewTaskQueue()
	store := newMemStore()
	m := NewManager(q, store)

	// 1. Planner output: square side 4, diagonal, then area of a triangle on it
	err := m.Initialize([]Blueprint{
		{TaskType: "length", Description: "diagonal AC", Dependencies: []string{"coordinate_3"}},
		{TaskType: "area", Dependencies: []string{"length_1"}},
		{TaskType: "coordinate", OperationType: "point_coordinates", Parameters: map[string]any{"side": 4.0}},
		{TaskType: "angle", GeoGebraAlternatives: boolPtr(true), GeoGebraCommand: strPtr("Angle(A,B,C)")},
	})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	// 2. Handlers echo what they saw so enrichment can be checked
	var seen []string
	handlers := make(map[TaskType]Handler)
	for _, tt := range TaskTypes() {
		handlers[tt] = HandlerFunc(func(_ context.Context, task *Task, _ map[string]any) (Result, error) {
			seen = append(seen, task.ID)
			res := Result{"other_results": map[string]any{task.ID: fmt.Sprintf("%d params", len(task.Parameters))}}
			return res, nil
		})
	}
	table, err := NewDispatchTable(handlers)
	if err != nil {
		t.Fatalf("NewDispatchTable() error = %v", err)
	}

	router := NewRouter(store)
	exec := NewExecutor(q, table, store)

	// 3. Drive to completion
	for step := 0; step < 10; step++ {
		next, err := router.Next(q)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if next == nil {
			break
		}
		if err := exec.ExecuteTask(context.Background(), next.ID); err != nil {
			t.Fatalf("ExecuteTask(%s) error = %v", next.ID, err)
		}
	}

	// 4. Verify
	if !q.AllCompleted() {
		t.Fatalf("not all tasks completed: %+v", q.Progress())
	}
	if diff := cmp.Diff([]string{"coordinate_3", "length_1", "area_2"}, seen); diff != "" {
		t.Errorf("handler order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"angle_4", "coordinate_3", "length_1", "area_2"}, q.CompletedIDs()); diff != "" {
		t.Errorf("CompletedIDs() mismatch (-want +got):\n%s", diff)
	}

	area, _ := q.Get("area_2")
	if _, ok := area.Parameters["length_1_result"]; !ok {
		t.Errorf("area_2 not enriched with length_1_result: %v", area.Parameters)
	}
}

// TestIntegration_FailureBlocksDependents checks a failed handler surfaces as a deadlock.
func TestIntegration_FailureBlocksDependents(t *testing.T) {
	q := NewTaskQueue()
	m := NewManager(q, nil)
	if err := m.Initialize([]Blueprint{
		{TaskType: "triangle"},
		{TaskType: "length", Dependencies: []string{"triangle_1"}},
		{TaskType: "circle"},
	}); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	ok := HandlerFunc(func(context.Context, *Task, map[string]any) (Result, error) { return Result{}, nil })
	handlers := map[TaskType]Handler{}
	for _, tt := range TaskTypes() {
		handlers[tt] = ok
	}
	handlers[TaskTriangle] = HandlerFunc(func(context.Context, *Task, map[string]any) (Result, error) {
		return nil, errors.New("unparseable response")
	})
	table, _ := NewDispatchTable(handlers)

	router := NewRouter(nil)
	exec := NewExecutor(q, table, nil)

	var deadlock *DeadlockError
	for step := 0; step < 10; step++ {
		next, err := router.Next(q)
		if errors.As(err, &deadlock) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if next == nil {
			t.Fatal("router reported done despite failed task")
		}
		_ = exec.ExecuteTask(context.Background(), next.ID)
	}

	if deadlock == nil {
		t.Fatal("expected a deadlock")
	}
	if diff := cmp.Diff([]string{"length_2"}, deadlock.Pending); diff != "" {
		t.Errorf("Pending mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string][]string{"length_2": {"triangle_1"}}, deadlock.BlockedBy); diff != "" {
		t.Errorf("BlockedBy mismatch (-want +got):\n%s", diff)
	}
	circle, _ := q.Get("circle_3")
	if circle.Status != TaskCompleted {
		t.Errorf("independent task circle_3 = %q, want completed", circle.Status)
	}
}
