package merge

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aristath/geocalc/internal/scheduler"
)

// run drives q to completion, completing each selected task with results[id].
func run(t *testing.T, q *scheduler.TaskQueue, agg *Aggregate, results map[string]scheduler.Result) {
	t.Helper()
	router := scheduler.NewRouter(agg)
	for i := 0; i <= q.Len(); i++ {
		next, err := router.Next(q)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if next == nil {
			return
		}
		if err := q.Complete(next.ID, results[next.ID]); err != nil {
			t.Fatalf("Complete(%s) error = %v", next.ID, err)
		}
		done, _ := q.Get(next.ID)
		agg.Record(done)
	}
	t.Fatal("queue did not drain")
}

func TestFinalMergesIndependentTasks(t *testing.T) {
	q := scheduler.NewTaskQueue()
	_ = q.AddTask(&scheduler.Task{ID: "t1", Type: scheduler.TaskLength})
	_ = q.AddTask(&scheduler.Task{ID: "t2", Type: scheduler.TaskLength})
	if err := q.RebuildGraph(); err != nil {
		t.Fatal(err)
	}
	agg := NewAggregate()

	run(t, q, agg, map[string]scheduler.Result{
		"t1": {"lengths": map[string]any{"AB": 5.0}},
		"t2": {"lengths": map[string]any{"BC": 7.0}},
	})

	final := agg.Final(q)
	want := map[string]any{"lengths": map[string]any{"AB": 5.0, "BC": 7.0}}
	if diff := cmp.Diff(want, final.Results); diff != "" {
		t.Errorf("Results mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"t1", "t2"}, final.TaskOrder); diff != "" {
		t.Errorf("TaskOrder mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"lengths"}, final.CategoryKeys()); diff != "" {
		t.Errorf("CategoryKeys mismatch (-want +got):\n%s", diff)
	}
}

func TestFinalUsesExecutionOrder(t *testing.T) {
	q := scheduler.NewTaskQueue()
	// b is listed first but depends on a, so a's value is overwritten by b.
	_ = q.AddTask(&scheduler.Task{ID: "b", Type: scheduler.TaskArea, DependsOn: []string{"a"}})
	_ = q.AddTask(&scheduler.Task{ID: "a", Type: scheduler.TaskArea})
	_ = q.RebuildGraph()
	agg := NewAggregate()

	run(t, q, agg, map[string]scheduler.Result{
		"a": {"areas": map[string]any{"ABC": 1.0}},
		"b": {"areas": map[string]any{"ABC": 2.0}},
	})

	final := agg.Final(q)
	if got := final.Results["areas"].(map[string]any)["ABC"]; got != 2.0 {
		t.Errorf("areas.ABC = %v, want 2 (dependent written last)", got)
	}
	if diff := cmp.Diff([]string{"a", "b"}, final.TaskOrder); diff != "" {
		t.Errorf("TaskOrder mismatch (-want +got):\n%s", diff)
	}
}

func TestFinalWithoutGraphUsesCompletionOrder(t *testing.T) {
	q := scheduler.NewTaskQueue()
	_ = q.AddTask(&scheduler.Task{ID: "x", Type: scheduler.TaskAngle, DependsOn: []string{"y"}})
	_ = q.AddTask(&scheduler.Task{ID: "y", Type: scheduler.TaskAngle})
	agg := NewAggregate()

	run(t, q, agg, map[string]scheduler.Result{
		"x": {"angles": map[string]any{"A": 30.0}},
		"y": {"angles": map[string]any{"A": 60.0}},
	})

	final := agg.Final(q)
	if diff := cmp.Diff([]string{"y", "x"}, final.TaskOrder); diff != "" {
		t.Errorf("TaskOrder mismatch (-want +got):\n%s", diff)
	}
	if got := final.Results["angles"].(map[string]any)["A"]; got != 30.0 {
		t.Errorf("angles.A = %v, want 30", got)
	}
}

func TestAggregateDirectCommands(t *testing.T) {
	agg := NewAggregate()
	tk := &scheduler.Task{
		ID:                   "coordinate_1",
		Type:                 scheduler.TaskCoordinate,
		Parameters:           map[string]any{"point": "A"},
		GeoGebraAlternatives: true,
		GeoGebraCommand:      "A=(0,0)",
	}
	agg.Record(tk)
	agg.Record(tk)

	want := []DirectCommand{{
		TaskID:          "coordinate_1",
		TaskType:        "coordinate",
		Parameters:      map[string]any{"point": "A"},
		GeoGebraCommand: "A=(0,0)",
	}}
	if diff := cmp.Diff(want, agg.DirectCommands()); diff != "" {
		t.Errorf("DirectCommands mismatch (-want +got):\n%s", diff)
	}
	if _, ok := agg.TaskResult("coordinate_1"); ok {
		t.Error("short-circuited task should not have a task result")
	}

	snap := agg.Snapshot()
	cmds, ok := snap[KeyDirectCommands].([]any)
	if !ok || len(cmds) != 1 {
		t.Fatalf("snapshot direct commands = %v", snap[KeyDirectCommands])
	}
}

func TestAggregateSnapshotAndTaskResult(t *testing.T) {
	agg := NewAggregate()
	agg.Record(&scheduler.Task{ID: "t1", Type: scheduler.TaskLength, Status: scheduler.TaskCompleted,
		Result: scheduler.Result{"lengths": map[string]any{"AB": 5.0}, "geometric_elements": map[string]any{"points": []any{"A"}}}})
	agg.Record(&scheduler.Task{ID: "t2", Type: scheduler.TaskTriangle, Status: scheduler.TaskCompleted,
		Result: scheduler.Result{"lengths": map[string]any{"BC": 7.0}, "geometric_elements": map[string]any{"points": []any{"B"}}}})

	snap := agg.Snapshot()
	want := map[string]any{
		"lengths":            map[string]any{"AB": 5.0, "BC": 7.0},
		"geometric_elements": map[string]any{"points": []any{"A", "B"}},
		"t1":                 map[string]any{"lengths": map[string]any{"AB": 5.0}, "geometric_elements": map[string]any{"points": []any{"A"}}},
		"t2":                 map[string]any{"lengths": map[string]any{"BC": 7.0}, "geometric_elements": map[string]any{"points": []any{"B"}}},
	}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Errorf("Snapshot mismatch (-want +got):\n%s", diff)
	}

	// Snapshots are copies.
	snap["lengths"].(map[string]any)["AB"] = 0.0
	res, ok := agg.TaskResult("t1")
	if !ok {
		t.Fatal("TaskResult(t1) missing")
	}
	if res.(map[string]any)["lengths"].(map[string]any)["AB"] != 5.0 {
		t.Error("TaskResult affected by snapshot mutation")
	}
	if again := agg.Snapshot(); again["lengths"].(map[string]any)["AB"] != 5.0 {
		t.Error("Snapshot aliases internal state")
	}
}

func TestFinalSkipsFailedTasks(t *testing.T) {
	q := scheduler.NewTaskQueue()
	_ = q.AddTask(&scheduler.Task{ID: "ok", Type: scheduler.TaskArea})
	_ = q.AddTask(&scheduler.Task{ID: "bad", Type: scheduler.TaskArea})
	_ = q.RebuildGraph()
	agg := NewAggregate()

	router := scheduler.NewRouter(agg)
	next, _ := router.Next(q)
	_ = q.Complete(next.ID, scheduler.Result{"areas": map[string]any{"S": 1.0}})
	next, _ = router.Next(q)
	_ = q.Fail(next.ID, nil)

	final := agg.Final(q)
	if diff := cmp.Diff([]string{"ok"}, final.TaskOrder); diff != "" {
		t.Errorf("TaskOrder mismatch (-want +got):\n%s", diff)
	}
}

func TestFinalSurvivesMalformedConstructionPlan(t *testing.T) {
	q := scheduler.NewTaskQueue()
	_ = q.AddTask(&scheduler.Task{ID: "length_1", Type: scheduler.TaskLength})
	_ = q.AddTask(&scheduler.Task{ID: "length_2", Type: scheduler.TaskLength})
	_ = q.RebuildGraph()
	agg := NewAggregate()

	run(t, q, agg, map[string]scheduler.Result{
		"length_1": {"lengths": map[string]any{"AB": 5.0}, "construction_plan": "draw AB then BC"},
		"length_2": {"lengths": map[string]any{"BC": 7.0}},
	})

	final := agg.Final(q)
	want := map[string]any{"lengths": map[string]any{"AB": 5.0, "BC": 7.0}}
	if diff := cmp.Diff(want, final.Results); diff != "" {
		t.Errorf("Results mismatch (-want +got):\n%s", diff)
	}
	if final.ConstructionPlan != nil {
		t.Errorf("ConstructionPlan = %+v, want nil", final.ConstructionPlan)
	}
	if diff := cmp.Diff([]string{"length_1", "length_2"}, final.TaskOrder); diff != "" {
		t.Errorf("TaskOrder mismatch (-want +got):\n%s", diff)
	}
}
