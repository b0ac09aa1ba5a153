package domain

import (
	"cmp"
	"slices"
)

// Combination is one supported (thickness, width, poles, shape) tuple.
type Combination struct {
	Thickness float64 `json:"thickness"`
	Width     float64 `json:"width"`
	Poles     int     `json:"poles"`
	Shape     string  `json:"shape"`
}

// Expand returns the cross product of the deduplicated lists, thickness-major.
func Expand(thicknesses, widths []float64, poles []int, shapes []string) []Combination {
	ts, ws, ps, ss := dedupe(thicknesses), dedupe(widths), dedupe(poles), dedupe(shapes)

	out := make([]Combination, 0, len(ts)*len(ws)*len(ps)*len(ss))
	for _, t := range ts {
		for _, w := range ws {
			for _, p := range ps {
				for _, s := range ss {
					out = append(out, Combination{Thickness: t, Width: w, Poles: p, Shape: s})
				}
			}
		}
	}
	return out
}

func dedupe[T comparable](in []T) []T {
	seen := make(map[T]struct{}, len(in))
	out := make([]T, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// ConfigurationSet summarizes the stored combinations of one component.
type ConfigurationSet struct {
	ComponentID string    `json:"component_id"`
	NbPhase     int       `json:"nbphase"`
	Thicknesses []float64 `json:"thicknesses"`
	Widths      []float64 `json:"widths"`
	Poles       []int     `json:"poles"`
	Shapes      []string  `json:"shapes"`
	Rows        int       `json:"rows"`
	IsComplete  bool      `json:"is_complete"`
}

// ExpectedRows is the size of the full cross product of the observed values.
func (s *ConfigurationSet) ExpectedRows() int {
	return len(s.Thicknesses) * len(s.Widths) * len(s.Poles) * len(s.Shapes)
}

// Summarize builds the distinct sorted value sets of rows. A set is complete
// when every combination of the observed values is stored exactly once.
func Summarize(componentID string, nbphase int, rows []Combination) *ConfigurationSet {
	set := &ConfigurationSet{
		ComponentID: componentID,
		NbPhase:     nbphase,
		Thicknesses: []float64{},
		Widths:      []float64{},
		Poles:       []int{},
		Shapes:      []string{},
		Rows:        len(rows),
	}

	for _, r := range rows {
		set.Thicknesses = append(set.Thicknesses, r.Thickness)
		set.Widths = append(set.Widths, r.Width)
		set.Poles = append(set.Poles, r.Poles)
		set.Shapes = append(set.Shapes, r.Shape)
	}
	set.Thicknesses = sortedDistinct(set.Thicknesses)
	set.Widths = sortedDistinct(set.Widths)
	set.Poles = sortedDistinct(set.Poles)
	set.Shapes = sortedDistinct(set.Shapes)

	set.IsComplete = set.Rows == set.ExpectedRows()
	return set
}

func sortedDistinct[T cmp.Ordered](in []T) []T {
	slices.Sort(in)
	return slices.Compact(in)
}
