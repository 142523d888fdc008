package calc

import "github.com/aristath/geocalc/internal/scheduler"

// profile describes what a calculation agent of one task type is asked to do.
type profile struct {
	role string
	keys []string
}

var profiles = map[scheduler.TaskType]profile{
	scheduler.TaskTriangle: {
		role: "三角形计算专家 (triangle calculation): vertices, sides, angles, area, perimeter, classification and special centers",
		keys: []string{"coordinates", "lengths", "angles", "areas", "perimeters", "special_points", "circle_properties", "other_results"},
	},
	scheduler.TaskCircle: {
		role: "圆计算专家 (circle calculation): radius, center, chords, tangents, arcs and sectors",
		keys: []string{"circle_properties", "coordinates", "lengths", "areas", "angles", "other_results"},
	},
	scheduler.TaskAngle: {
		role: "角度计算专家 (angle calculation): angles between lines and vectors, bisectors and angle relations",
		keys: []string{"angles", "other_results"},
	},
	scheduler.TaskLength: {
		role: "长度计算专家 (length calculation): distances, segment lengths, perimeters and ratios",
		keys: []string{"lengths", "perimeters", "ratios", "other_results"},
	},
	scheduler.TaskArea: {
		role: "面积计算专家 (area calculation): polygon, triangle and composite areas and area ratios",
		keys: []string{"areas", "ratios", "other_results"},
	},
	scheduler.TaskCoordinate: {
		role: "坐标计算专家 (coordinate calculation): point coordinates, midpoints, intersections and transformations",
		keys: []string{"coordinates", "special_points", "lengths", "other_results"},
	},
}

// Vocabulary returns the result categories a handler of type t is expected to
// fill. Other keys in a handler's output are kept as they are.
func Vocabulary(t scheduler.TaskType) []string {
	p, ok := profiles[t]
	if !ok {
		return nil
	}
	return append([]string(nil), p.keys...)
}
