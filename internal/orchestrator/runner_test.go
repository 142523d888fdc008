package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/aristath/geocalc/internal/events"
	"github.com/aristath/geocalc/internal/merge"
	"github.com/aristath/geocalc/internal/persistence"
	"github.com/aristath/geocalc/internal/scheduler"
)

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }

// table builds a dispatch table that answers every task type with fn.
func table(t *testing.T, fn scheduler.HandlerFunc) *scheduler.DispatchTable {
	t.Helper()
	handlers := make(map[scheduler.TaskType]scheduler.Handler)
	for _, tt := range scheduler.TaskTypes() {
		handlers[tt] = fn
	}
	d, err := scheduler.NewDispatchTable(handlers)
	if err != nil {
		t.Fatalf("NewDispatchTable() error = %v", err)
	}
	return d
}

func journal(t *testing.T) *persistence.SQLiteStore {
	t.Helper()
	store, err := persistence.NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// drain collects every event currently buffered on ch.
func drain(ch <-chan events.Event) []string {
	var types []string
	for {
		select {
		case ev := <-ch:
			types = append(types, ev.EventType()+":"+ev.TaskID())
		default:
			return types
		}
	}
}

func squarePlan() *scheduler.Plan {
	return &scheduler.Plan{
		Problem: "正方形ABCD边长为4，求对角线AC的长和三角形ABC的面积",
		Tasks: []scheduler.Blueprint{
			{TaskID: "area_1", TaskType: "area", Dependencies: []string{"length_1"}},
			{TaskID: "length_1", TaskType: "length", Dependencies: []string{"coordinate_1"}},
			{TaskID: "coordinate_1", TaskType: "coordinate", Parameters: map[string]any{"side": 4.0}},
		},
	}
}

func squareHandler(seen *[]string) scheduler.HandlerFunc {
	return func(_ context.Context, task *scheduler.Task, _ map[string]any) (scheduler.Result, error) {
		*seen = append(*seen, task.ID)
		switch task.Type {
		case scheduler.TaskCoordinate:
			return scheduler.Result{"coordinates": map[string]any{"A": []any{0.0, 0.0}, "C": []any{4.0, 4.0}}}, nil
		case scheduler.TaskLength:
			if _, ok := task.Parameters["coordinate_1_result"]; !ok {
				return nil, errors.New("missing coordinate_1_result")
			}
			return scheduler.Result{"lengths": map[string]any{"AC": 5.657}}, nil
		default:
			return scheduler.Result{"areas": map[string]any{"ABC": 8.0}}, nil
		}
	}
}

func TestSessionRunsDependencyChain(t *testing.T) {
	ctx := context.Background()
	var seen []string
	bus := events.NewEventBus()
	defer bus.Close()
	sub := bus.SubscribeAll(256)
	store := journal(t)

	s, err := NewSession(SessionConfig{
		Dispatch: table(t, squareHandler(&seen)),
		Events:   bus,
		Journal:  store,
		RunID:    "run-square",
	})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if err := s.Plan(ctx, squarePlan()); err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	final, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if diff := cmp.Diff([]string{"coordinate_1", "length_1", "area_1"}, seen); diff != "" {
		t.Errorf("handler order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"coordinate_1", "length_1", "area_1"}, final.TaskOrder); diff != "" {
		t.Errorf("TaskOrder mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"areas", "coordinates", "lengths"}, final.CategoryKeys()); diff != "" {
		t.Errorf("CategoryKeys mismatch (-want +got):\n%s", diff)
	}
	if p := s.Progress(); p.Completed != 3 || p.Total != 3 {
		t.Errorf("Progress() = %+v, want 3/3 completed", p)
	}

	got := drain(sub)
	want := []string{
		"queue.progress:",
		"task.started:coordinate_1", "task.completed:coordinate_1", "queue.progress:",
		"task.started:length_1", "task.completed:length_1", "queue.progress:",
		"task.started:area_1", "task.completed:area_1", "queue.progress:",
		"merge.completed:",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	run, err := store.GetRun(ctx, "run-square")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != persistence.RunCompleted {
		t.Errorf("run status = %q, want %q", run.Status, persistence.RunCompleted)
	}
	if run.Final == nil || !cmp.Equal(final.TaskOrder, run.Final.TaskOrder) {
		t.Errorf("journaled final = %+v, want task order %v", run.Final, final.TaskOrder)
	}
	tasks, err := store.ListTasks(ctx, "run-square")
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	for _, task := range tasks {
		if task.Status != scheduler.TaskCompleted {
			t.Errorf("journaled task %s status = %s, want completed", task.ID, task.Status)
		}
	}
}

func TestSessionFailureBecomesDeadlock(t *testing.T) {
	ctx := context.Background()
	store := journal(t)
	handler := scheduler.HandlerFunc(func(_ context.Context, task *scheduler.Task, _ map[string]any) (scheduler.Result, error) {
		if task.Type == scheduler.TaskLength {
			return nil, errors.New("agent returned no JSON")
		}
		return scheduler.Result{"coordinates": map[string]any{"A": []any{0.0, 0.0}}}, nil
	})

	s, _ := NewSession(SessionConfig{Dispatch: table(t, handler), Journal: store, RunID: "run-fail"})
	if err := s.Plan(ctx, squarePlan()); err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	final, err := s.Run(ctx)
	if final != nil {
		t.Errorf("Run() final = %+v, want nil", final)
	}
	var dl *scheduler.DeadlockError
	if !errors.As(err, &dl) {
		t.Fatalf("Run() error = %v, want *scheduler.DeadlockError", err)
	}
	if diff := cmp.Diff([]string{"area_1"}, dl.Pending); diff != "" {
		t.Errorf("Pending mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"length_1"}, dl.Failed); diff != "" {
		t.Errorf("Failed mismatch (-want +got):\n%s", diff)
	}

	run, err := store.GetRun(ctx, "run-fail")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != persistence.RunFailed || run.Error == "" {
		t.Errorf("run = %+v, want failed with error", run)
	}
	tasks, _ := store.ListTasks(ctx, "run-fail")
	status := make(map[string]scheduler.TaskStatus)
	for _, task := range tasks {
		status[task.ID] = task.Status
	}
	wantStatus := map[string]scheduler.TaskStatus{
		"coordinate_1": scheduler.TaskCompleted,
		"length_1":     scheduler.TaskFailed,
		"area_1":       scheduler.TaskPending,
	}
	if diff := cmp.Diff(wantStatus, status); diff != "" {
		t.Errorf("journaled statuses mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int
	handler := scheduler.HandlerFunc(func(ctx context.Context, _ *scheduler.Task, _ map[string]any) (scheduler.Result, error) {
		calls++
		cancel()
		return nil, ctx.Err()
	})

	s, _ := NewSession(SessionConfig{Dispatch: table(t, handler)})
	if err := s.Plan(ctx, squarePlan()); err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	_, err := s.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
}

func TestSessionWithoutCalculation(t *testing.T) {
	ctx := context.Background()
	store := journal(t)
	handler := scheduler.HandlerFunc(func(context.Context, *scheduler.Task, map[string]any) (scheduler.Result, error) {
		t.Error("handler should not run")
		return nil, nil
	})

	s, _ := NewSession(SessionConfig{Dispatch: table(t, handler), Journal: store, RunID: "run-skip"})
	plan := squarePlan()
	plan.RequiresCalculation = boolPtr(false)
	if err := s.Plan(ctx, plan); err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	final, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(final.Results) != 0 || len(final.TaskOrder) != 0 {
		t.Errorf("final = %+v, want empty", final)
	}
	if n := len(s.Tasks()); n != 0 {
		t.Errorf("Tasks() has %d tasks, want 0", n)
	}
	run, _ := store.GetRun(ctx, "run-skip")
	if run == nil || run.Status != persistence.RunCompleted {
		t.Errorf("run = %+v, want completed", run)
	}
}

func TestSessionShortCircuit(t *testing.T) {
	ctx := context.Background()
	bus := events.NewEventBus()
	defer bus.Close()
	sub := bus.Subscribe(events.TopicTask, 64)

	var seen []string
	s, _ := NewSession(SessionConfig{Dispatch: table(t, squareHandler(&seen)), Events: bus})
	plan := &scheduler.Plan{Tasks: []scheduler.Blueprint{
		{TaskType: "angle", GeoGebraAlternatives: boolPtr(true), GeoGebraCommand: strPtr("Angle(B,A,C)")},
		{TaskType: "area", Dependencies: []string{"angle_1"}},
	}}
	if err := s.Plan(ctx, plan); err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	final, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if diff := cmp.Diff([]string{"area_2"}, seen); diff != "" {
		t.Errorf("handler calls mismatch (-want +got):\n%s", diff)
	}
	want := []merge.DirectCommand{{TaskID: "angle_1", TaskType: "angle", GeoGebraCommand: "Angle(B,A,C)"}}
	if diff := cmp.Diff(want, final.DirectCommands, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("DirectCommands mismatch (-want +got):\n%s", diff)
	}
	got := drain(sub)
	if len(got) == 0 || got[0] != "task.short_circuited:angle_1" {
		t.Errorf("first task event = %v, want short circuit of angle_1", got)
	}
}

func TestSessionRevise(t *testing.T) {
	ctx := context.Background()
	var seen []string
	s, _ := NewSession(SessionConfig{Dispatch: table(t, squareHandler(&seen))})
	if err := s.Revise(ctx, scheduler.Update{}); err == nil {
		t.Error("Revise() before Plan should fail")
	}
	if err := s.Plan(ctx, squarePlan()); err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if _, err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	err := s.Revise(ctx, scheduler.Update{Tasks: []scheduler.Blueprint{
		{TaskID: "angle_1", TaskType: "angle", Dependencies: []string{"length_1"}},
	}})
	if err != nil {
		t.Fatalf("Revise() error = %v", err)
	}
	seen = nil
	final, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if diff := cmp.Diff([]string{"angle_1"}, seen); diff != "" {
		t.Errorf("second run handler calls mismatch (-want +got):\n%s", diff)
	}
	if len(final.TaskOrder) != 4 {
		t.Errorf("TaskOrder = %v, want 4 tasks", final.TaskOrder)
	}
}

type stubPlanWriter struct {
	err   error
	calls int
}

func (w *stubPlanWriter) Write(_ context.Context, final *merge.Final) (*merge.Final, error) {
	w.calls++
	if w.err != nil {
		return nil, w.err
	}
	out := *final
	out.ConstructionPlan = &merge.ConstructionPlan{Title: "Construction Plan", FinalResult: "AC = 4√2"}
	return &out, nil
}

func TestSessionPlanWriter(t *testing.T) {
	tests := []struct {
		name     string
		writer   *stubPlanWriter
		wantPlan bool
	}{
		{name: "plan written", writer: &stubPlanWriter{}, wantPlan: true},
		{name: "writer failure keeps merge", writer: &stubPlanWriter{err: errors.New("merger offline")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen []string
			s, _ := NewSession(SessionConfig{Dispatch: table(t, squareHandler(&seen)), PlanWriter: tt.writer})
			if err := s.Plan(context.Background(), squarePlan()); err != nil {
				t.Fatalf("Plan() error = %v", err)
			}
			final, err := s.Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if tt.writer.calls != 1 {
				t.Errorf("writer called %d times, want 1", tt.writer.calls)
			}
			if got := final.ConstructionPlan != nil; got != tt.wantPlan {
				t.Errorf("construction plan present = %v, want %v", got, tt.wantPlan)
			}
			if _, ok := final.Results["lengths"]; !ok {
				t.Errorf("results lost: %v", final.Results)
			}
		})
	}
}

func TestNewSessionRequiresDispatch(t *testing.T) {
	if _, err := NewSession(SessionConfig{}); err == nil {
		t.Error("NewSession() without dispatch table should fail")
	}
	s, err := NewSession(SessionConfig{Dispatch: table(t, squareHandler(new([]string)))})
	if err != nil {
		t.Fatal(err)
	}
	if s.RunID() == "" {
		t.Error("RunID() is empty")
	}
	if _, err := s.Run(context.Background()); err == nil {
		t.Error("Run() before Plan should fail")
	}
}

func TestSessionCompletesWithMalformedConstructionPlan(t *testing.T) {
	ctx := context.Background()
	handler := func(_ context.Context, task *scheduler.Task, _ map[string]any) (scheduler.Result, error) {
		if task.ID == "length_1" {
			return scheduler.Result{"lengths": map[string]any{"AB": 5.0}, "construction_plan": "draw AB then BC"}, nil
		}
		return scheduler.Result{"lengths": map[string]any{"BC": 7.0}}, nil
	}
	s, err := NewSession(SessionConfig{Dispatch: table(t, handler)})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	plan := &scheduler.Plan{Tasks: []scheduler.Blueprint{
		{TaskID: "length_1", TaskType: "length"},
		{TaskID: "length_2", TaskType: "length"},
	}}
	if err := s.Plan(ctx, plan); err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	final, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := map[string]any{"lengths": map[string]any{"AB": 5.0, "BC": 7.0}}
	if diff := cmp.Diff(want, final.Results); diff != "" {
		t.Errorf("Results mismatch (-want +got):\n%s", diff)
	}
}
