package submission

import (
	"sort"

	"scoregate/domain/core"
)

// Vector is one submission's probability column in two orderings.
// A Vector is immutable once built; callers share it by reference.
type Vector struct {
	ids     []string
	byID    []float64
	byValue []float64
}

type idValue struct {
	id    string
	value float64
}

// NewVector sorts the (id, probability) pairs by id and derives the
// ascending value ordering. The inputs are copied.
func NewVector(ids []string, probabilities []float64) (*Vector, error) {
	if len(ids) != len(probabilities) {
		return nil, core.NewDataShapeError("%d ids but %d probabilities", len(ids), len(probabilities))
	}
	if len(ids) == 0 {
		return nil, core.NewEmptyError("submission vector")
	}

	pairs := make([]idValue, len(ids))
	for i := range ids {
		pairs[i] = idValue{id: ids[i], value: probabilities[i]}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })

	v := &Vector{
		ids:     make([]string, len(pairs)),
		byID:    make([]float64, len(pairs)),
		byValue: make([]float64, len(pairs)),
	}
	for i, p := range pairs {
		if i > 0 && pairs[i-1].id == p.id {
			return nil, core.NewDataShapeError("duplicate id %s", p.id)
		}
		v.ids[i] = p.id
		v.byID[i] = p.value
	}
	copy(v.byValue, v.byID)
	sort.Float64s(v.byValue)
	return v, nil
}

// Len returns the number of rows.
func (v *Vector) Len() int { return len(v.ids) }

// IDs returns the ids in ascending order. The slice must not be modified.
func (v *Vector) IDs() []string { return v.ids }

// ByID returns probabilities aligned with IDs. The slice must not be modified.
func (v *Vector) ByID() []float64 { return v.byID }

// ByValue returns probabilities in ascending order. The slice must not be modified.
func (v *Vector) ByValue() []float64 { return v.byValue }

// Lookup returns the probability for id.
func (v *Vector) Lookup(id string) (float64, bool) {
	i := sort.SearchStrings(v.ids, id)
	if i < len(v.ids) && v.ids[i] == id {
		return v.byID[i], true
	}
	return 0, false
}

// Restrict returns the probabilities, in id order, of the rows whose id is
// in sortedIDs. sortedIDs must be ascending. The result is a new slice.
func (v *Vector) Restrict(sortedIDs []string) []float64 {
	out := make([]float64, 0, min(len(sortedIDs), len(v.ids)))
	i, j := 0, 0
	for i < len(v.ids) && j < len(sortedIDs) {
		switch {
		case v.ids[i] == sortedIDs[j]:
			out = append(out, v.byID[i])
			i++
			j++
		case v.ids[i] < sortedIDs[j]:
			i++
		default:
			j++
		}
	}
	return out
}
