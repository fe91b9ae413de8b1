package fusion

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	cerrors "github.com/23skdu/contextrank/internal/errors"
)

// Linear is a single-output affine map x -> Weight·x + Bias.
type Linear struct {
	Weight []float64
	Bias   float64
}

// Apply evaluates l on every row of x.
func (l Linear) Apply(x *mat.Dense) ([]float64, error) {
	r, c := x.Dims()
	if c != len(l.Weight) {
		return nil, cerrors.Newf(cerrors.ErrorTypeValidation, "fusion.Linear",
			"input width %d, weight width %d", c, len(l.Weight))
	}
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		out[i] = floats.Dot(x.RawRowView(i), l.Weight) + l.Bias
	}
	return out, nil
}

// At evaluates l on a single vector.
func (l Linear) At(x []float64) float64 {
	return floats.Dot(x, l.Weight) + l.Bias
}

// Params are the learned quantities the fuser reads. They are read-only while
// a batch is scored.
type Params struct {
	// Candidates is the [numCandidates x dim] candidate embedding table.
	Candidates *mat.Dense
	// DenseOffset maps a projected source embedding to its dense-path offset.
	DenseOffset Linear
	// SparseOffset maps a projected source embedding to its sparse-path offset.
	SparseOffset Linear
	// Head maps a propagated pair embedding to its standalone score.
	Head Linear
}

// Validate checks that the parameter shapes agree with each other.
func (p *Params) Validate(channels int) error {
	const op = "fusion.Params"
	if p.Candidates == nil {
		return cerrors.NewValidationError(op, "candidate table is nil")
	}
	_, dim := p.Candidates.Dims()
	if len(p.DenseOffset.Weight) != dim || len(p.SparseOffset.Weight) != dim {
		return cerrors.Newf(cerrors.ErrorTypeValidation, op,
			"offset widths %d/%d, embedding dim %d", len(p.DenseOffset.Weight), len(p.SparseOffset.Weight), dim)
	}
	if len(p.Head.Weight) != channels {
		return cerrors.Newf(cerrors.ErrorTypeValidation, op, "head width %d, channels %d", len(p.Head.Weight), channels)
	}
	return nil
}

// NumCandidates returns the catalog size covered by the table.
func (p *Params) NumCandidates() int {
	r, _ := p.Candidates.Dims()
	return r
}

// Dim returns the embedding dimension of the dense path.
func (p *Params) Dim() int {
	_, c := p.Candidates.Dims()
	return c
}

// RandomParams draws small uniform parameters for tests and replay runs.
func RandomParams(numCandidates, dim, channels int, seed int64) *Params {
	rng := rand.New(rand.NewSource(seed))
	uniform := func(n int, scale float64) []float64 {
		v := make([]float64, n)
		for i := range v {
			v[i] = (rng.Float64()*2 - 1) * scale
		}
		return v
	}
	return &Params{
		Candidates:   mat.NewDense(numCandidates, dim, uniform(numCandidates*dim, 0.1)),
		DenseOffset:  Linear{Weight: uniform(dim, 0.1)},
		SparseOffset: Linear{Weight: uniform(dim, 0.1)},
		Head:         Linear{Weight: uniform(channels, 0.1)},
	}
}
