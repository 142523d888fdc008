package scheduler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Plan is the planner's analysis of a problem as far as calculation is concerned.
type Plan struct {
	Problem             string      `json:"problem,omitempty" yaml:"problem,omitempty"`
	RequiresCalculation *bool       `json:"requires_calculation,omitempty" yaml:"requires_calculation,omitempty"`
	Reasoning           string      `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	Tasks               []Blueprint `json:"suggested_tasks" yaml:"suggested_tasks"`
}

// NeedsCalculation reports whether the plan should be scheduled at all.
// Without an explicit decision, a plan with suggested tasks needs calculation.
func (p *Plan) NeedsCalculation() bool {
	if p.RequiresCalculation != nil {
		return *p.RequiresCalculation
	}
	return len(p.Tasks) > 0
}

// LoadPlan reads a plan file. Files ending in .yaml or .yml are decoded as
// YAML, anything else as JSON.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParsePlanYAML(data)
	default:
		return ParsePlanJSON(data)
	}
}

// ParsePlanJSON decodes a JSON plan.
func ParsePlanJSON(data []byte) (*Plan, error) {
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	return &plan, nil
}

// ParsePlanYAML decodes a YAML plan.
func ParsePlanYAML(data []byte) (*Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	return &plan, nil
}

// ParseUpdate decodes a task revision, JSON or YAML.
func ParseUpdate(data []byte) (*Update, error) {
	var update Update
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &update); err != nil {
			return nil, fmt.Errorf("failed to parse update: %w", err)
		}
		return &update, nil
	}
	if err := yaml.Unmarshal(data, &update); err != nil {
		return nil, fmt.Errorf("failed to parse update: %w", err)
	}
	return &update, nil
}
