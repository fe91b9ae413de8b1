// Package pipeline runs one batch through expansion, candidate sampling,
// index remapping and logit fusion.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/contextrank/internal/csr"
	cerrors "github.com/23skdu/contextrank/internal/errors"
	"github.com/23skdu/contextrank/internal/fusion"
	"github.com/23skdu/contextrank/internal/metrics"
	"github.com/23skdu/contextrank/internal/remap"
	"github.com/23skdu/contextrank/internal/sampler"
)

// Embeddings are the encoder outputs for one batch.
type Embeddings struct {
	// Source is [batch x channels]: propagated source-row embeddings.
	Source *mat.Dense
	// Projected is [batch x dim]: Source projected into the candidate space.
	Projected *mat.Dense
	// Pairs is [pairs x channels]: one propagated embedding per sparse pair,
	// aligned with the pairs passed to Encode. Nil when there are no pairs.
	Pairs *mat.Dense
}

// Encoder produces embeddings for a batch. pairRows/pairDst are the sparse
// pairs reachable from the batch (pairRows indexes rows).
type Encoder interface {
	Encode(ctx context.Context, rows, pairRows, pairDst []int32) (*Embeddings, error)
}

// Result is the outcome of one sampled training step.
type Result struct {
	// Candidates are the sampled candidate ids; column j of Logits scores Candidates[j].
	Candidates []int32
	Logits     *mat.Dense
	// PosRows/PosCols locate the ground-truth positives that survived sampling.
	PosRows []int32
	PosCols []int32
	// Sparse are the relocated sparse overrides written into Logits.
	Sparse           fusion.Sparse
	DroppedPositives int
	DroppedSparse    int
	Loss             float64
}

// Scores is the outcome of full-catalog scoring; column j scores candidate j.
type Scores struct {
	Logits *mat.Dense
	Sparse fusion.Sparse
}

// Pipeline holds what a batch reads but never writes.
type Pipeline struct {
	cfg      Config
	params   *fusion.Params
	encoder  Encoder
	sampler  *sampler.Sampler
	channels int
	logger   zerolog.Logger
}

// New creates a pipeline. channels is the encoder's propagated embedding width.
func New(cfg Config, params *fusion.Params, channels int, encoder Encoder, logger zerolog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrorTypeConfiguration, "pipeline.New", "invalid config")
	}
	if err := params.Validate(channels); err != nil {
		return nil, err
	}
	if params.NumCandidates() != cfg.NumCandidates {
		return nil, cerrors.Newf(cerrors.ErrorTypeConfiguration, "pipeline.New",
			"candidate table has %d rows, config has %d candidates", params.NumCandidates(), cfg.NumCandidates)
	}
	s, err := sampler.New(cfg.NumCandidates, cfg.RHSSampleSize, cfg.Seed)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:      cfg,
		params:   params,
		encoder:  encoder,
		sampler:  s,
		channels: channels,
		logger:   logger.With().Str("component", "pipeline").Logger(),
	}, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Step scores rows against a sampled candidate subset. history provides the
// sparse pairs, labels the ground-truth positives.
func (p *Pipeline) Step(ctx context.Context, rows []int32, history, labels *csr.Adjacency) (*Result, error) {
	const op = "pipeline.Step"

	if len(rows) == 0 {
		return nil, cerrors.NewEmptySelection(op, "no rows selected")
	}

	start := time.Now()
	pairRows, pairDst, err := history.Expand(rows)
	if err != nil {
		return nil, err
	}
	posRows, posDst, err := labels.Expand(rows)
	if err != nil {
		return nil, err
	}
	observe("expand", start)
	if len(posDst) == 0 {
		return nil, cerrors.NewEmptySelection(op, "selected rows have no positives").
			WithContext("rows", len(rows))
	}

	emb, err := p.encode(ctx, rows, pairRows, pairDst)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	sample, err := p.sampler.Sample(pairDst, posDst)
	if err != nil {
		return nil, err
	}
	observe("sample", start)
	if sample.RequiredOverflow > 0 {
		metrics.BudgetOverflowTotal.WithLabelValues("required").Inc()
	}
	if sample.PriorityOverflow > 0 {
		metrics.BudgetOverflowTotal.WithLabelValues("priority").Inc()
	}

	start = time.Now()
	index, err := remap.NewIndex(sample.IDs, p.cfg.NumCandidates)
	if err != nil {
		return nil, err
	}
	posRel, err := index.Map(posDst, len(posDst) <= p.cfg.RHSSampleSize)
	if err != nil {
		return nil, err
	}
	posCols := posRel.Compact()
	posRows = remap.Filter(posRows, posRel.Mask)

	// Priority ids are all kept when they fit next to the surviving positives.
	pairRel, err := index.Map(pairDst, len(posCols)+len(pairDst) <= p.cfg.RHSSampleSize)
	if err != nil {
		return nil, err
	}
	observe("remap", start)

	start = time.Now()
	logits, sparse, err := p.fuse(emb, sample.IDs, pairRows, pairRel.Compact(), remap.Kept(pairRel.Mask, len(pairDst)))
	if err != nil {
		return nil, err
	}
	observe("fuse", start)

	loss, err := fusion.Loss(logits, posRows, posCols)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Candidates:       sample.IDs,
		Logits:           logits,
		PosRows:          posRows,
		PosCols:          posCols,
		Sparse:           sparse,
		DroppedPositives: posRel.Missing,
		DroppedSparse:    pairRel.Missing,
		Loss:             loss,
	}
	p.report(res, len(rows))
	return res, nil
}

// Score scores rows against the whole catalog. Sparse pairs from history
// override their candidates directly; nothing is sampled.
func (p *Pipeline) Score(ctx context.Context, rows []int32, history *csr.Adjacency) (*Scores, error) {
	if len(rows) == 0 {
		return nil, cerrors.NewEmptySelection("pipeline.Score", "no rows selected")
	}

	start := time.Now()
	pairRows, pairDst, err := history.Expand(rows)
	if err != nil {
		return nil, err
	}
	observe("expand", start)

	emb, err := p.encode(ctx, rows, pairRows, pairDst)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	logits, sparse, err := p.fuse(emb, nil, pairRows, pairDst, remap.Kept(nil, len(pairDst)))
	if err != nil {
		return nil, err
	}
	observe("fuse", start)
	metrics.SparseCoordinates.Observe(float64(sparse.Len()))

	return &Scores{Logits: logits, Sparse: sparse}, nil
}

func (p *Pipeline) encode(ctx context.Context, rows, pairRows, pairDst []int32) (*Embeddings, error) {
	const op = "pipeline.encode"

	start := time.Now()
	emb, err := p.encoder.Encode(ctx, rows, pairRows, pairDst)
	if err != nil {
		return nil, cerrors.WrapComputationError(err, op, "encoder failed")
	}
	observe("encode", start)

	if emb.Source == nil || emb.Projected == nil {
		return nil, cerrors.NewValidationError(op, "encoder returned no source embeddings")
	}
	sr, sc := emb.Source.Dims()
	pr, pc := emb.Projected.Dims()
	if sr != len(rows) || pr != len(rows) || sc != p.channels || pc != p.params.Dim() {
		return nil, cerrors.Newf(cerrors.ErrorTypeValidation, op,
			"source %dx%d, projected %dx%d for %d rows (channels %d, dim %d)",
			sr, sc, pr, pc, len(rows), p.channels, p.params.Dim())
	}
	if len(pairDst) > 0 {
		if emb.Pairs == nil {
			return nil, cerrors.NewValidationError(op, "encoder returned no pair embeddings")
		}
		if r, c := emb.Pairs.Dims(); r != len(pairDst) || c != p.channels {
			return nil, cerrors.Newf(cerrors.ErrorTypeValidation, op,
				"pairs %dx%d for %d pairs (channels %d)", r, c, len(pairDst), p.channels)
		}
	}
	return emb, nil
}

// fuse builds the logit matrix over candidates (nil for the whole catalog).
// cols are the candidate columns of the kept pairs, in keep order.
func (p *Pipeline) fuse(emb *Embeddings, candidates, pairRows, cols []int32, keep []int) (*mat.Dense, fusion.Sparse, error) {
	dense, err := fusion.Dense(emb.Projected, p.params.Candidates, candidates)
	if err != nil {
		return nil, fusion.Sparse{}, err
	}
	denseOff, err := p.params.DenseOffset.Apply(emb.Projected)
	if err != nil {
		return nil, fusion.Sparse{}, err
	}
	sparseOff, err := p.params.SparseOffset.Apply(emb.Projected)
	if err != nil {
		return nil, fusion.Sparse{}, err
	}

	sparse := fusion.Sparse{Cols: cols}
	if len(keep) > 0 {
		sparse.Values, err = fusion.SparseLogits(p.params.Head, emb.Source, emb.Pairs, pairRows, keep)
		if err != nil {
			return nil, fusion.Sparse{}, err
		}
		sparse.Rows = make([]int32, len(keep))
		for k, i := range keep {
			sparse.Rows[k] = pairRows[i]
		}
	}

	logits, err := fusion.Fuse(dense, denseOff, sparse, sparseOff)
	if err != nil {
		return nil, fusion.Sparse{}, err
	}
	return logits, sparse, nil
}

func (p *Pipeline) report(res *Result, rows int) {
	metrics.SparseCoordinates.Observe(float64(res.Sparse.Len()))
	metrics.BatchLoss.Set(res.Loss)
	if res.DroppedPositives > 0 {
		metrics.DroppedPositivesTotal.Add(float64(res.DroppedPositives))
	}
	if res.DroppedSparse > 0 {
		metrics.DroppedSparseTotal.Add(float64(res.DroppedSparse))
	}

	if res.DroppedPositives > 0 || res.DroppedSparse > 0 {
		p.logger.Warn().
			Int("rows", rows).
			Int("dropped_positives", res.DroppedPositives).
			Int("dropped_sparse", res.DroppedSparse).
			Int("sample_size", p.cfg.RHSSampleSize).
			Msg("candidate budget exceeded")
	}
	p.logger.Debug().
		Int("rows", rows).
		Int("positives", len(res.PosCols)).
		Int("sparse", res.Sparse.Len()).
		Float64("loss", res.Loss).
		Msg("batch scored")
}

func observe(stage string, start time.Time) {
	metrics.StageDurationSeconds.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
