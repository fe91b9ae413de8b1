// Package csr holds the compact forward-star adjacency between source rows and
// destination candidates, and expands selected rows into flat parallel arrays.
package csr

import (
	"github.com/RoaringBitmap/roaring/v2"

	cerrors "github.com/23skdu/contextrank/internal/errors"
)

// Adjacency is a source -> destination adjacency in CSR form.
//
// Col[RowPtr[i]:RowPtr[i+1]] holds the destinations of source i in strictly
// increasing order. An Adjacency is immutable once built.
type Adjacency struct {
	RowPtr []int64
	Col    []int32
	NumDst int
}

// New validates rowptr/col and wraps them without copying.
func New(rowptr []int64, col []int32, numDst int) (*Adjacency, error) {
	const op = "csr.New"

	if len(rowptr) == 0 {
		return nil, cerrors.NewMalformedAdjacency(op, "rowptr is empty")
	}
	if rowptr[0] != 0 {
		return nil, cerrors.NewMalformedAdjacency(op, "rowptr[0] = %d, want 0", rowptr[0])
	}
	if numDst < 0 {
		return nil, cerrors.NewMalformedAdjacency(op, "negative destination count %d", numDst)
	}
	n := len(rowptr) - 1
	if rowptr[n] != int64(len(col)) {
		return nil, cerrors.NewMalformedAdjacency(op, "rowptr[%d] = %d but len(col) = %d", n, rowptr[n], len(col))
	}

	for i := 0; i < n; i++ {
		start, end := rowptr[i], rowptr[i+1]
		if end < start {
			return nil, cerrors.NewMalformedAdjacency(op, "rowptr decreases at row %d (%d > %d)", i, start, end)
		}
		if end > int64(len(col)) {
			return nil, cerrors.NewMalformedAdjacency(op, "rowptr[%d] = %d exceeds len(col) = %d", i+1, end, len(col))
		}
		prev := int32(-1)
		for _, d := range col[start:end] {
			if d < 0 || int(d) >= numDst {
				return nil, cerrors.NewMalformedAdjacency(op, "row %d: destination %d outside [0, %d)", i, d, numDst).
					WithContext("row", i)
			}
			if d <= prev {
				return nil, cerrors.NewMalformedAdjacency(op, "row %d: destinations not coalesced at %d", i, d).
					WithContext("row", i)
			}
			prev = d
		}
	}

	return &Adjacency{RowPtr: rowptr, Col: col, NumDst: numDst}, nil
}

// NumSources returns the number of source rows.
func (a *Adjacency) NumSources() int {
	return len(a.RowPtr) - 1
}

// NumEdges returns the number of stored edges.
func (a *Adjacency) NumEdges() int {
	return len(a.Col)
}

// Degree returns the out-degree of row. The row must be in range.
func (a *Adjacency) Degree(row int32) int {
	return int(a.RowPtr[row+1] - a.RowPtr[row])
}

// Neighbors returns the stored destinations of row. The returned slice aliases
// the adjacency and must not be modified.
func (a *Adjacency) Neighbors(row int32) []int32 {
	return a.Col[a.RowPtr[row]:a.RowPtr[row+1]]
}

// Sources returns the set of rows with at least one destination.
func (a *Adjacency) Sources() *roaring.Bitmap {
	bm := roaring.New()
	for i := 0; i < a.NumSources(); i++ {
		if a.RowPtr[i+1] > a.RowPtr[i] {
			bm.Add(uint32(i))
		}
	}
	return bm
}

// Expand flattens the neighbor lists of the selected rows.
//
// batchID[k] is the position in rows of the row that owns neighborID[k]. Rows
// keep their stored neighbor order; rows without neighbors contribute nothing.
func (a *Adjacency) Expand(rows []int32) (batchID, neighborID []int32, err error) {
	n := a.NumSources()

	// offsets[i] is where row i's block starts in the output
	offsets := make([]int64, len(rows)+1)
	for i, r := range rows {
		if r < 0 || int(r) >= n {
			return nil, nil, cerrors.NewIndexOutOfRange("csr.Expand", int(r), n)
		}
		offsets[i+1] = offsets[i] + a.RowPtr[r+1] - a.RowPtr[r]
	}

	total := offsets[len(rows)]
	batchID = make([]int32, total)
	neighborID = make([]int32, total)
	for i, r := range rows {
		lo, hi := offsets[i], offsets[i+1]
		if lo == hi {
			continue
		}
		copy(neighborID[lo:hi], a.Col[a.RowPtr[r]:a.RowPtr[r+1]])
		b := batchID[lo:hi]
		for k := range b {
			b[k] = int32(i)
		}
	}
	return batchID, neighborID, nil
}
