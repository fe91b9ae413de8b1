package fusion

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	cerrors "github.com/23skdu/contextrank/internal/errors"
)

// Loss is the mean softmax cross-entropy of the positive cells (rows[i], cols[i])
// against their logit rows. It is 0 when there are no positives.
func Loss(logits *mat.Dense, rows, cols []int32) (float64, error) {
	const op = "fusion.Loss"

	if len(rows) != len(cols) {
		return 0, cerrors.Newf(cerrors.ErrorTypeValidation, op, "%d rows for %d cols", len(rows), len(cols))
	}
	if len(rows) == 0 {
		return 0, nil
	}

	r, c := logits.Dims()
	lse := make([]float64, r)
	for i := range lse {
		lse[i] = floats.LogSumExp(logits.RawRowView(i))
	}

	var total float64
	for k := range rows {
		row, col := rows[k], cols[k]
		if row < 0 || int(row) >= r {
			return 0, cerrors.NewIndexOutOfRange(op, int(row), r)
		}
		if col < 0 || int(col) >= c {
			return 0, cerrors.NewIndexOutOfRange(op, int(col), c)
		}
		total += lse[row] - logits.At(int(row), int(col))
	}
	return total / float64(len(rows)), nil
}

// TopK returns, per row, the k highest scoring columns translated through ids
// (a nil ids returns column positions). Rows are ordered best first.
func TopK(logits *mat.Dense, k int, ids []int32) [][]int32 {
	r, c := logits.Dims()
	k = min(k, c)

	out := make([][]int32, r)
	vals := make([]float64, c)
	idx := make([]int, c)
	for i := 0; i < r; i++ {
		copy(vals, logits.RawRowView(i))
		floats.Argsort(vals, idx)

		best := make([]int32, k)
		for j := 0; j < k; j++ {
			col := idx[c-1-j]
			if ids != nil {
				best[j] = ids[col]
			} else {
				best[j] = int32(col)
			}
		}
		out[i] = best
	}
	return out
}
