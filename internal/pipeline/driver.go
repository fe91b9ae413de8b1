package pipeline

import (
	"context"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/23skdu/contextrank/internal/csr"
	cerrors "github.com/23skdu/contextrank/internal/errors"
	"github.com/23skdu/contextrank/internal/fusion"
	"github.com/23skdu/contextrank/internal/metrics"
)

// StepFunc consumes a successful training step, typically applying an
// optimizer update. anneal is the schedule value for this step. It runs
// strictly between batches.
type StepFunc func(ctx context.Context, res *Result, anneal float64) error

// EpochStats summarizes one pass over the sources.
type EpochStats struct {
	Batches  int
	Skipped  int
	MeanLoss float64
}

// Predictions are the top-k candidates of every evaluated row.
type Predictions struct {
	Rows []int32
	TopK [][]int32
	// Skipped counts chunks dropped because of an error.
	Skipped int
}

// Driver runs batches of a pipeline in order. Per-batch failures are logged
// and the batch is skipped; cross-batch state is only the anneal counter and
// the shuffle source.
type Driver struct {
	pipeline *Pipeline
	anneal   *Anneal
	rng      *rand.Rand
	logger   zerolog.Logger
}

// NewDriver creates a driver with a fresh anneal schedule.
func NewDriver(p *Pipeline, logger zerolog.Logger) *Driver {
	return &Driver{
		pipeline: p,
		anneal:   NewAnneal(p.cfg),
		rng:      rand.New(rand.NewSource(p.cfg.Seed)),
		logger:   logger.With().Str("component", "driver").Logger(),
	}
}

// Anneal exposes the schedule state.
func (d *Driver) Anneal() *Anneal { return d.anneal }

// Train runs one epoch of sampled steps over all sources of history in a
// shuffled order. labels holds the positives to fit.
func (d *Driver) Train(ctx context.Context, history, labels *csr.Adjacency, apply StepFunc) (EpochStats, error) {
	n := history.NumSources()
	order := make([]int32, n)
	for i := range order {
		order[i] = int32(i)
	}
	d.rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })

	var stats EpochStats
	var lossSum float64
	size := d.pipeline.cfg.BatchSize
	for start := 0; start < n; start += size {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rows := order[start:min(start+size, n)]

		res, err := d.pipeline.Step(ctx, rows, history, labels)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			d.skip("train", start, err)
			stats.Skipped++
			continue
		}

		if apply != nil {
			if err := apply(ctx, res, d.anneal.Value()); err != nil {
				return stats, cerrors.WrapComputationError(err, "pipeline.Train", "step update failed")
			}
		}
		d.anneal.Advance()
		metrics.BatchesTotal.WithLabelValues("train", "ok").Inc()
		stats.Batches++
		lossSum += res.Loss
	}

	if stats.Batches > 0 {
		stats.MeanLoss = lossSum / float64(stats.Batches)
	}
	d.logger.Info().
		Int("batches", stats.Batches).
		Int("skipped", stats.Skipped).
		Float64("mean_loss", stats.MeanLoss).
		Int("anneal_step", d.anneal.Step).
		Msg("epoch finished")
	return stats, nil
}

// Evaluate scores, in source order, every row that has at least one edge in
// target and returns its top-k candidates. history is the input graph.
func (d *Driver) Evaluate(ctx context.Context, history, target *csr.Adjacency) (*Predictions, error) {
	eligible := target.Sources()
	n := history.NumSources()
	size := d.pipeline.cfg.BatchSize

	preds := &Predictions{}
	for start := 0; start < n; start += size {
		if err := ctx.Err(); err != nil {
			return preds, err
		}

		rows := make([]int32, 0, size)
		for r := start; r < min(start+size, n); r++ {
			if eligible.Contains(uint32(r)) {
				rows = append(rows, int32(r))
			}
		}
		if len(rows) == 0 {
			continue
		}

		scores, err := d.pipeline.Score(ctx, rows, history)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return preds, ctxErr
			}
			d.skip("eval", start, err)
			preds.Skipped++
			continue
		}
		metrics.BatchesTotal.WithLabelValues("eval", "ok").Inc()

		preds.Rows = append(preds.Rows, rows...)
		preds.TopK = append(preds.TopK, fusion.TopK(scores.Logits, d.pipeline.cfg.TopK, nil)...)
	}

	d.logger.Info().
		Int("rows", len(preds.Rows)).
		Int("skipped", preds.Skipped).
		Msg("evaluation finished")
	return preds, nil
}

func (d *Driver) skip(mode string, offset int, err error) {
	kind := string(cerrors.TypeOf(err))
	if kind == "" {
		kind = "unknown"
	}
	metrics.BatchesTotal.WithLabelValues(mode, "skipped").Inc()
	metrics.BatchErrorsTotal.WithLabelValues(kind).Inc()

	event := d.logger.Warn()
	if kind != string(cerrors.ErrorTypeEmptySelection) {
		event = d.logger.Error()
	}
	event.Err(err).
		Str("mode", mode).
		Str("kind", kind).
		Int("offset", offset).
		Msg("batch skipped")
}
