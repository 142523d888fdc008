package scheduler

// Tool categories advertised to calculation handlers.
const (
	MathTools       = "math_tools"
	ValidationTools = "validation_tools"
)

var toolCatalog = map[TaskType]map[string][]string{
	TaskCoordinate: {
		MathTools: {
			"calculate_midpoint", "calculate_slope", "calculate_line_equation", "calculate_segment_division",
			"calculate_internal_division_point", "calculate_external_division_point", "calculate_vector",
			"calculate_dot_product", "calculate_cross_product", "normalize_vector",
			"calculate_distance_point_to_line", "calculate_line_intersection", "calculate_ray_intersection",
		},
		ValidationTools: {
			"check_collinearity", "check_parallelism", "check_perpendicularity",
			"check_point_on_segment", "check_point_in_triangle",
		},
	},
	TaskAngle: {
		MathTools: {
			"calculate_angle_three_points", "calculate_angle_with_direction", "calculate_angle_two_vectors",
			"calculate_angle_two_lines", "calculate_triangle_interior_angles", "calculate_triangle_exterior_angles",
			"calculate_inscribed_angle", "calculate_angle_bisector", "calculate_angle_trisection",
			"calculate_angle_complement", "calculate_angle_supplement", "normalize_angle", "calculate_rotation",
			"calculate_regular_polygon_angle", "radians_to_degrees", "degrees_to_radians",
		},
		ValidationTools: {
			"classify_angle", "is_angle_acute", "is_angle_right", "is_angle_obtuse", "is_angle_straight",
			"is_angle_reflex", "is_triangle_acute", "is_triangle_right", "is_triangle_obtuse",
			"is_triangle_equiangular",
		},
	},
	TaskTriangle: {
		MathTools: {
			"calculate_triangle_area", "calculate_triangle_area_from_sides", "calculate_triangle_perimeter",
			"calculate_triangle_angles", "calculate_triangle_centroid", "calculate_triangle_circumcenter",
			"calculate_triangle_incenter", "calculate_triangle_orthocenter", "calculate_triangle_centers",
			"calculate_triangle_inradius", "calculate_triangle_circumradius", "calculate_triangle_median_lengths",
			"calculate_triangle_altitude_lengths",
		},
		ValidationTools: {
			"is_right_triangle", "is_isosceles_triangle", "is_equilateral_triangle",
			"triangle_classification", "is_point_inside_triangle",
		},
	},
	TaskCircle: {
		MathTools: {
			"calculate_circle_area", "calculate_circle_circumference", "calculate_circle_diameter",
			"calculate_circle_radius", "calculate_chord_length", "calculate_sector_area", "calculate_segment_area",
			"calculate_circle_from_three_points", "calculate_circle_from_center_and_point",
			"calculate_central_angle", "calculate_inscribed_angle", "calculate_power_of_point",
		},
		ValidationTools: {
			"check_point_circle_position", "calculate_tangent_points", "calculate_circle_intersection",
		},
	},
	TaskLength: {
		MathTools: {
			"calculate_distance_points", "calculate_distance_point_to_line", "calculate_distance_parallel_lines",
			"calculate_perimeter_triangle", "calculate_perimeter_quadrilateral", "calculate_perimeter_polygon",
			"calculate_circumference", "calculate_chord_length", "calculate_arc_length",
		},
	},
	TaskArea: {
		MathTools: {
			"calculate_area_triangle", "calculate_area_triangle_from_sides", "calculate_area_triangle_from_base_height",
			"calculate_area_rectangle", "calculate_area_rectangle_from_points", "calculate_area_square",
			"calculate_area_parallelogram", "calculate_area_parallelogram_from_points", "calculate_area_rhombus",
			"calculate_area_rhombus_from_points", "calculate_area_trapezoid", "calculate_area_trapezoid_from_points",
			"calculate_area_regular_polygon", "calculate_area_polygon", "calculate_area_circle",
			"calculate_area_sector", "calculate_area_segment", "calculate_area_quadrilateral",
		},
	},
}

// ToolsFor returns a copy of the tool catalog for a task type.
// Categories a type has no tools for are present and empty.
func ToolsFor(t TaskType) map[string][]string {
	tools := map[string][]string{
		MathTools:       {},
		ValidationTools: {},
	}
	for category, names := range toolCatalog[t] {
		tools[category] = append([]string(nil), names...)
	}
	return tools
}
