// Package merge folds calculation results into one aggregated result.
package merge

import (
	"encoding/json"
	"fmt"
	"log"
	"reflect"
)

// Top-level keys with special handling.
const (
	KeyConstructionPlan  = "construction_plan"
	KeyGeometricElements = "geometric_elements"
	KeyDirectCommands    = "geogebra_direct_commands"
)

// categories are deep-merged across tasks; a later task wins per leaf key.
var categories = []string{
	"coordinates",
	"lengths",
	"angles",
	"areas",
	"perimeters",
	"special_points",
	"circle_properties",
	"ratios",
	"other_results",
	"derived_data",
}

// Categories returns the recognized result categories.
func Categories() []string {
	return append([]string(nil), categories...)
}

// IsCategory reports whether key is a recognized result category.
func IsCategory(key string) bool {
	for _, c := range categories {
		if c == key {
			return true
		}
	}
	return false
}

// ConstructionStep is one step of a GeoGebra construction.
type ConstructionStep struct {
	StepID            string         `json:"step_id"`
	Description       string         `json:"description"`
	TaskType          string         `json:"task_type"`
	OperationType     string         `json:"operation_type,omitempty"`
	GeometricElements []string       `json:"geometric_elements,omitempty"`
	CommandType       string         `json:"command_type,omitempty"`
	Parameters        map[string]any `json:"parameters,omitempty"`
	Dependencies      []string       `json:"dependencies,omitempty"`
	GeoGebraCommand   string         `json:"geogebra_command,omitempty"`
}

// ConstructionPlan is the ordered construction a result may carry.
type ConstructionPlan struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Steps       []ConstructionStep `json:"steps"`
	FinalResult string             `json:"final_result,omitempty"`
}

// Merge folds results in order. Categories are deep-merged, geometric_elements
// lists are concatenated, construction_plan is split out and any other key is
// replaced wholesale by the last result that sets it. A construction plan that
// cannot be decoded is dropped; the rest of its result still merges.
func Merge(results []map[string]any) (map[string]any, *ConstructionPlan) {
	merged := make(map[string]any)
	var plan *ConstructionPlan
	for _, res := range results {
		if p := fold(merged, res); p != nil {
			plan = p
		}
	}
	return merged, plan
}

// fold merges src into dst and returns the construction plan src carries, if any.
func fold(dst, src map[string]any) *ConstructionPlan {
	var plan *ConstructionPlan
	for key, val := range src {
		switch {
		case key == KeyConstructionPlan:
			p, err := decodePlan(val)
			if err != nil {
				log.Printf("WARNING: construction plan ignored: %v", err)
				continue
			}
			plan = p
		case IsCategory(key):
			incoming, ok := asMap(val)
			if !ok {
				dst[key] = deepCopy(val)
				continue
			}
			existing, _ := asMap(dst[key])
			dst[key] = deepMerge(existing, incoming)
		case key == KeyGeometricElements:
			dst[key] = appendElements(dst[key], val)
		default:
			dst[key] = deepCopy(val)
		}
	}
	return plan
}

func decodePlan(val any) (*ConstructionPlan, error) {
	if val == nil {
		return nil, nil
	}
	data, err := json.Marshal(val)
	if err != nil {
		return nil, fmt.Errorf("encode construction plan: %w", err)
	}
	var plan ConstructionPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("decode construction plan: %w", err)
	}
	if plan.Title == "" {
		plan.Title = "Construction Plan"
	}
	return &plan, nil
}

// appendElements concatenates per-type element lists, e.g. {"points": [...]}.
func appendElements(existing, incoming any) any {
	in, ok := asMap(incoming)
	if !ok {
		return deepCopy(incoming)
	}
	out, _ := asMap(existing)
	out = copyMap(out)
	for elemType, items := range in {
		add, ok := asSlice(items)
		if !ok {
			out[elemType] = deepCopy(items)
			continue
		}
		have, _ := asSlice(out[elemType])
		list := make([]any, 0, len(have)+len(add))
		list = append(list, have...)
		for _, item := range add {
			list = append(list, deepCopy(item))
		}
		out[elemType] = list
	}
	return out
}

func deepMerge(dst, src map[string]any) map[string]any {
	out := copyMap(dst)
	for k, v := range src {
		incoming, inIsMap := asMap(v)
		current, curIsMap := asMap(out[k])
		if inIsMap && curIsMap {
			out[k] = deepMerge(current, incoming)
			continue
		}
		out[k] = deepCopy(v)
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

// deepCopy copies maps and slices so merged results never alias handler output.
func deepCopy(v any) any {
	if m, ok := asMap(v); ok {
		return copyMap(m)
	}
	if s, ok := asSlice(v); ok {
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = deepCopy(item)
		}
		return out
	}
	return v
}

// asMap normalizes any string-keyed map to map[string]any.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// asSlice normalizes any slice or array to []any. Byte slices are left alone.
func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case nil, []byte:
		return nil, false
	case []any:
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
