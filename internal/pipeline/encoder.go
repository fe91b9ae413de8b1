package pipeline

import (
	"context"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	cerrors "github.com/23skdu/contextrank/internal/errors"
)

// LookupEncoder is an Encoder backed by fixed embedding tables: a source row's
// embedding is its table row, a pair's embedding is the sum of its source and
// destination rows, and the projection is a fixed linear map.
type LookupEncoder struct {
	Sources      *mat.Dense // [numSources x channels]
	Destinations *mat.Dense // [numDst x channels]
	Projection   *mat.Dense // [channels x dim]
}

// NewRandomLookupEncoder draws uniform tables from seed.
func NewRandomLookupEncoder(numSources, numDst, channels, dim int, seed int64) *LookupEncoder {
	rng := rand.New(rand.NewSource(seed))
	fill := func(r, c int) *mat.Dense {
		v := make([]float64, r*c)
		for i := range v {
			v[i] = rng.Float64()*2 - 1
		}
		return mat.NewDense(r, c, v)
	}
	return &LookupEncoder{
		Sources:      fill(numSources, channels),
		Destinations: fill(numDst, channels),
		Projection:   fill(channels, dim),
	}
}

// Encode implements Encoder.
func (e *LookupEncoder) Encode(_ context.Context, rows, pairRows, pairDst []int32) (*Embeddings, error) {
	const op = "pipeline.LookupEncoder"

	ns, channels := e.Sources.Dims()
	nd, _ := e.Destinations.Dims()

	source := mat.NewDense(len(rows), channels, nil)
	for i, r := range rows {
		if r < 0 || int(r) >= ns {
			return nil, cerrors.NewIndexOutOfRange(op, int(r), ns)
		}
		source.SetRow(i, e.Sources.RawRowView(int(r)))
	}

	var projected mat.Dense
	projected.Mul(source, e.Projection)

	out := &Embeddings{Source: source, Projected: &projected}
	if len(pairDst) == 0 {
		return out, nil
	}

	pairs := mat.NewDense(len(pairDst), channels, nil)
	for k, d := range pairDst {
		if d < 0 || int(d) >= nd {
			return nil, cerrors.NewIndexOutOfRange(op, int(d), nd)
		}
		row := pairs.RawRowView(k)
		copy(row, e.Destinations.RawRowView(int(d)))
		for j, v := range source.RawRowView(int(pairRows[k])) {
			row[j] += v
		}
	}
	out.Pairs = pairs
	return out, nil
}
