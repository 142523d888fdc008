package calc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aristath/geocalc/internal/backend"
	"github.com/aristath/geocalc/internal/merge"
)

// PlanWriter asks a merger agent to reconcile the merged results, state the
// final answer and write the construction plan. Its reply is folded on top of
// the deterministic merge, so it can add or correct values but never drops
// them.
type PlanWriter struct {
	backend backend.Backend
	problem string
}

// NewPlanWriter creates a PlanWriter talking to b.
func NewPlanWriter(b backend.Backend, problem string) *PlanWriter {
	return &PlanWriter{backend: b, problem: problem}
}

// Write returns a new Final with the agent's reply merged in. final is not
// modified.
func (w *PlanWriter) Write(ctx context.Context, final *merge.Final) (*merge.Final, error) {
	prompt, err := w.prompt(final)
	if err != nil {
		return nil, err
	}

	resp, err := w.backend.Send(ctx, backend.Message{Role: "user", Content: prompt})
	if err != nil {
		return nil, fmt.Errorf("merger request: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("merger error: %s", resp.Error)
	}

	reply, err := ParseResult(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("merger reply: %w", err)
	}

	results, plan := merge.Merge([]map[string]any{final.Results, reply})
	if plan == nil {
		plan = final.ConstructionPlan
	}
	return &merge.Final{
		Results:          results,
		ConstructionPlan: plan,
		DirectCommands:   append([]merge.DirectCommand(nil), final.DirectCommands...),
		TaskOrder:        append([]string(nil), final.TaskOrder...),
	}, nil
}

func (w *PlanWriter) prompt(final *merge.Final) (string, error) {
	input := struct {
		Results        map[string]any          `json:"results"`
		TaskOrder      []string                `json:"task_order"`
		DirectCommands []merge.DirectCommand   `json:"geogebra_direct_commands,omitempty"`
		Plan           *merge.ConstructionPlan `json:"construction_plan,omitempty"`
	}{final.Results, final.TaskOrder, final.DirectCommands, final.ConstructionPlan}
	data, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode merged results: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("You are a 几何计算结果整合专家 (geometry result merger).\n\n")
	if w.problem != "" {
		fmt.Fprintf(&sb, "Problem:\n%s\n\n", w.problem)
	}
	fmt.Fprintf(&sb, "Merged calculation results, in execution order:\n%s\n\n", data)
	sb.WriteString("Check the results for consistency and reply with a single JSON object and nothing else. ")
	fmt.Fprintf(&sb, "Only include values you add or correct, under these keys: %s. ", strings.Join(merge.Categories(), ", "))
	sb.WriteString("State the answer in other_results.final_answer and the reasoning in other_results.explanation. ")
	sb.WriteString("Add a construction_plan object with title, description, steps (step_id, description, task_type, geogebra_command, dependencies) and final_result.")
	sb.WriteString("\n")
	return sb.String(), nil
}
