// Package remap relocates catalog-space candidate ids into positions of a
// sampled candidate subset.
package remap

import (
	cerrors "github.com/23skdu/contextrank/internal/errors"
)

// Absent is the position reported for ids missing from the subset.
const Absent int32 = -1

// Relocation is the result of mapping ids into a subset.
type Relocation struct {
	// Positions[i] is the position of ids[i] in the subset, or Absent.
	Positions []int32
	// Mask[i] reports whether ids[i] was found. Nil when the mapping was
	// taken on the inclusive path.
	Mask []bool
	// Missing counts ids that were not found.
	Missing int
}

// Total reports whether every input id was found.
func (r *Relocation) Total() bool {
	return r.Missing == 0
}

// Index is a reusable inverse of a subset over [0, maxIndex).
type Index struct {
	assoc  []int32
	subset []int32
}

// NewIndex builds the inverse lookup for subset. Subset ids must be distinct
// and inside [0, maxIndex).
func NewIndex(subset []int32, maxIndex int) (*Index, error) {
	assoc := make([]int32, maxIndex)
	for i := range assoc {
		assoc[i] = Absent
	}
	for pos, id := range subset {
		if id < 0 || int(id) >= maxIndex {
			return nil, cerrors.NewIndexOutOfRange("remap.NewIndex", int(id), maxIndex)
		}
		assoc[id] = int32(pos)
	}
	return &Index{assoc: assoc, subset: subset}, nil
}

// Len returns the subset size.
func (x *Index) Len() int { return len(x.subset) }

// Map relocates ids into subset positions.
//
// With inclusive set the caller guarantees every id is in the subset: no mask
// is built and positions are returned as looked up. Otherwise Mask flags the
// ids that were found and parallel per-id data must be filtered with it.
func (x *Index) Map(ids []int32, inclusive bool) (*Relocation, error) {
	maxIndex := len(x.assoc)
	out := &Relocation{Positions: make([]int32, len(ids))}

	if inclusive {
		for i, id := range ids {
			if id < 0 || int(id) >= maxIndex {
				return nil, cerrors.NewIndexOutOfRange("remap.Map", int(id), maxIndex)
			}
			out.Positions[i] = x.assoc[id]
		}
		return out, nil
	}

	out.Mask = make([]bool, len(ids))
	for i, id := range ids {
		if id < 0 || int(id) >= maxIndex {
			return nil, cerrors.NewIndexOutOfRange("remap.Map", int(id), maxIndex)
		}
		p := x.assoc[id]
		out.Positions[i] = p
		if p == Absent {
			out.Missing++
			continue
		}
		out.Mask[i] = true
	}
	return out, nil
}

// Map is a one-shot NewIndex + Map.
func Map(ids, subset []int32, maxIndex int, inclusive bool) (*Relocation, error) {
	x, err := NewIndex(subset, maxIndex)
	if err != nil {
		return nil, err
	}
	return x.Map(ids, inclusive)
}

// Compact returns the found positions in input order. On the inclusive path
// it returns Positions unchanged.
func (r *Relocation) Compact() []int32 {
	if r.Mask == nil {
		return r.Positions
	}
	return Filter(r.Positions, r.Mask)
}

// Filter keeps the elements of values whose mask entry is set. A nil mask
// keeps everything and returns values itself.
func Filter[T any](values []T, mask []bool) []T {
	if mask == nil {
		return values
	}
	out := make([]T, 0, len(values))
	for i, v := range values {
		if mask[i] {
			out = append(out, v)
		}
	}
	return out
}

// Kept returns the input indices whose mask entry is set, or 0..n-1 for a
// nil mask.
func Kept(mask []bool, n int) []int {
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if mask == nil || mask[i] {
			out = append(out, i)
		}
	}
	return out
}
