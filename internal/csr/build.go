package csr

import (
	"slices"

	cerrors "github.com/23skdu/contextrank/internal/errors"
)

// FromEdges builds a coalesced adjacency from parallel source/destination
// edge lists. Duplicate edges collapse into one.
func FromEdges(src, dst []int32, numSrc, numDst int) (*Adjacency, error) {
	const op = "csr.FromEdges"

	if len(src) != len(dst) {
		return nil, cerrors.NewMalformedAdjacency(op, "len(src) = %d but len(dst) = %d", len(src), len(dst))
	}

	// Counting sort by source, then sort and dedup each row in place.
	counts := make([]int64, numSrc+1)
	for i, s := range src {
		if s < 0 || int(s) >= numSrc {
			return nil, cerrors.NewIndexOutOfRange(op, int(s), numSrc).WithContext("edge", i)
		}
		if d := dst[i]; d < 0 || int(d) >= numDst {
			return nil, cerrors.NewIndexOutOfRange(op, int(d), numDst).WithContext("edge", i)
		}
		counts[s+1]++
	}
	for i := 0; i < numSrc; i++ {
		counts[i+1] += counts[i]
	}

	col := make([]int32, len(dst))
	cursor := slices.Clone(counts[:numSrc])
	for i, s := range src {
		col[cursor[s]] = dst[i]
		cursor[s]++
	}

	rowptr := make([]int64, numSrc+1)
	w := int64(0)
	for i := 0; i < numSrc; i++ {
		row := col[counts[i]:counts[i+1]]
		slices.Sort(row)
		row = slices.Compact(row)
		w += int64(copy(col[w:], row))
		rowptr[i+1] = w
	}

	return &Adjacency{RowPtr: rowptr, Col: col[:w:w], NumDst: numDst}, nil
}

// Union merges two adjacencies over the same source and destination spaces.
func Union(a, b *Adjacency) (*Adjacency, error) {
	if a.NumSources() != b.NumSources() || a.NumDst != b.NumDst {
		return nil, cerrors.NewMalformedAdjacency("csr.Union",
			"shape mismatch: %dx%d vs %dx%d", a.NumSources(), a.NumDst, b.NumSources(), b.NumDst)
	}

	n := a.NumSources()
	rowptr := make([]int64, n+1)
	col := make([]int32, 0, a.NumEdges()+b.NumEdges())
	for i := int32(0); int(i) < n; i++ {
		x, y := a.Neighbors(i), b.Neighbors(i)
		for len(x) > 0 && len(y) > 0 {
			switch {
			case x[0] < y[0]:
				col = append(col, x[0])
				x = x[1:]
			case x[0] > y[0]:
				col = append(col, y[0])
				y = y[1:]
			default:
				col = append(col, x[0])
				x, y = x[1:], y[1:]
			}
		}
		col = append(col, x...)
		col = append(col, y...)
		rowptr[i+1] = int64(len(col))
	}

	return &Adjacency{RowPtr: rowptr, Col: col, NumDst: a.NumDst}, nil
}
