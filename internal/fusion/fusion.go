// Package fusion combines dense bilinear candidate scores with sparse
// graph-propagated scores into one logit matrix.
package fusion

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	cerrors "github.com/23skdu/contextrank/internal/errors"
)

// Sparse holds sparse-path scores at (row, column) coordinates of the logit
// matrix. Columns are positions in the scored candidate set.
type Sparse struct {
	Rows   []int32
	Cols   []int32
	Values []float64
}

// Len returns the number of coordinates.
func (s Sparse) Len() int { return len(s.Values) }

// Dense computes projected · table[subset]ᵀ, a [batch x len(subset)] matrix.
// A nil subset scores the whole table.
func Dense(projected, table *mat.Dense, subset []int32) (*mat.Dense, error) {
	const op = "fusion.Dense"

	_, pc := projected.Dims()
	tr, tc := table.Dims()
	if pc != tc {
		return nil, cerrors.Newf(cerrors.ErrorTypeValidation, op, "projected width %d, table width %d", pc, tc)
	}

	rhs := table
	if subset != nil {
		if len(subset) == 0 {
			return nil, cerrors.NewEmptySelection(op, "empty candidate subset")
		}
		rhs = mat.NewDense(len(subset), tc, nil)
		for i, id := range subset {
			if id < 0 || int(id) >= tr {
				return nil, cerrors.NewIndexOutOfRange(op, int(id), tr)
			}
			rhs.SetRow(i, table.RawRowView(int(id)))
		}
	}

	var out mat.Dense
	out.Mul(projected, rhs.T())
	return &out, nil
}

// SparseLogits scores the kept pairs: head(pair) + <source[row], pair>.
//
// pairRows[p] is the batch row that owns pair p; keep lists the pair indices
// to score, in output order.
func SparseLogits(head Linear, source, pairs *mat.Dense, pairRows []int32, keep []int) ([]float64, error) {
	const op = "fusion.SparseLogits"

	if len(keep) == 0 {
		return []float64{}, nil
	}
	sr, sc := source.Dims()
	pr, pc := pairs.Dims()
	if sc != pc || len(head.Weight) != pc {
		return nil, cerrors.Newf(cerrors.ErrorTypeValidation, op,
			"source width %d, pair width %d, head width %d", sc, pc, len(head.Weight))
	}
	if len(pairRows) != pr {
		return nil, cerrors.Newf(cerrors.ErrorTypeValidation, op, "%d pair rows for %d pair embeddings", len(pairRows), pr)
	}

	out := make([]float64, len(keep))
	for k, p := range keep {
		row := pairRows[p]
		if row < 0 || int(row) >= sr {
			return nil, cerrors.NewIndexOutOfRange(op, int(row), sr)
		}
		emb := pairs.RawRowView(p)
		out[k] = head.At(emb) + floats.Dot(source.RawRowView(int(row)), emb)
	}
	return out, nil
}

// Fuse adds denseOffset[row] to every cell of dense, then overwrites each
// sparse coordinate with its value plus sparseOffset[row]. When a coordinate
// repeats, the last one wins. dense is not modified.
func Fuse(dense *mat.Dense, denseOffset []float64, sparse Sparse, sparseOffset []float64) (*mat.Dense, error) {
	const op = "fusion.Fuse"

	r, c := dense.Dims()
	if len(denseOffset) != r || len(sparseOffset) != r {
		return nil, cerrors.Newf(cerrors.ErrorTypeValidation, op,
			"offsets %d/%d for %d rows", len(denseOffset), len(sparseOffset), r)
	}
	if len(sparse.Rows) != len(sparse.Values) || len(sparse.Cols) != len(sparse.Values) {
		return nil, cerrors.Newf(cerrors.ErrorTypeValidation, op,
			"sparse rows/cols/values lengths %d/%d/%d", len(sparse.Rows), len(sparse.Cols), len(sparse.Values))
	}

	out := mat.DenseCopyOf(dense)
	for i := 0; i < r; i++ {
		floats.AddConst(denseOffset[i], out.RawRowView(i))
	}

	for k, v := range sparse.Values {
		row, col := sparse.Rows[k], sparse.Cols[k]
		if row < 0 || int(row) >= r {
			return nil, cerrors.NewIndexOutOfRange(op, int(row), r).WithContext("axis", "row")
		}
		if col < 0 || int(col) >= c {
			return nil, cerrors.NewIndexOutOfRange(op, int(col), c).WithContext("axis", "col")
		}
		out.Set(int(row), int(col), v+sparseOffset[row])
	}
	return out, nil
}
