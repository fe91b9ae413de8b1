package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/contextrank/internal/csr"
	"github.com/23skdu/contextrank/internal/fusion"
	"github.com/23skdu/contextrank/internal/interactions"
	"github.com/23skdu/contextrank/internal/logging"
	"github.com/23skdu/contextrank/internal/pipeline"
)

func writeSplit(t *testing.T, dir, name string, src, dst []int32) {
	t.Helper()
	rec, err := interactions.NewRecord(memory.NewGoAllocator(), src, dst)
	require.NoError(t, err)
	defer rec.Release()

	f, err := os.Create(filepath.Join(dir, name+".parquet"))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, interactions.WriteParquet(f, rec))
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	writeSplit(t, dir, interactions.SplitTrain, []int32{0, 0, 1, 2, 3}, []int32{1, 2, 3, 4, 5})
	writeSplit(t, dir, interactions.SplitVal, []int32{0, 1}, []int32{6, 7})
	writeSplit(t, dir, interactions.SplitTest, []int32{2, 3}, []int32{0, 1})

	cfg := DefaultConfig(4, 8)
	cfg.DataDir = dir
	cfg.Dim = 4
	cfg.Channels = 3
	cfg.Epochs = 2
	cfg.BatchSize = 2
	cfg.RHSSampleSize = 5
	cfg.TopK = 3
	require.NoError(t, ValidateConfig(&cfg))

	assert.NoError(t, run(context.Background(), &cfg, logging.DiscardLogger()))
}

func TestRun_MissingData(t *testing.T) {
	cfg := DefaultConfig(4, 8)
	cfg.DataDir = t.TempDir()
	assert.Error(t, run(context.Background(), &cfg, logging.DiscardLogger()))
}

func TestRecall(t *testing.T) {
	target, err := csr.FromEdges([]int32{0, 0, 1}, []int32{2, 5, 3}, 2, 6)
	require.NoError(t, err)

	preds := &pipeline.Predictions{
		Rows: []int32{0, 1},
		TopK: [][]int32{{5, 1, 0}, {4, 0, 1}},
	}
	// row 0: 1 hit of min(3, 2); row 1: 0 hits
	assert.InDelta(t, 0.25, Recall(preds, target), 1e-12)
	assert.Zero(t, Recall(&pipeline.Predictions{}, target))
}

func TestMAP(t *testing.T) {
	target, err := csr.FromEdges([]int32{0, 0, 1, 2}, []int32{2, 5, 3, 4}, 3, 6)
	require.NoError(t, err)

	preds := &pipeline.Predictions{
		Rows: []int32{0, 1, 2},
		TopK: [][]int32{{5, 1, 2}, {4, 0, 3}, {0, 1, 2}},
	}
	// row 0: (1/1 + 2/3) / 2; row 1: (1/3) / 1; row 2: 0
	want := ((1.0+2.0/3.0)/2 + 1.0/3.0) / 3
	assert.InDelta(t, want, MAP(preds, target), 1e-12)
	assert.Zero(t, MAP(&pipeline.Predictions{}, target))

	perfect := &pipeline.Predictions{Rows: []int32{0}, TopK: [][]int32{{2, 5, 0}}}
	assert.InDelta(t, 1.0, MAP(perfect, target), 1e-12)
}

func TestShouldStop(t *testing.T) {
	cfg := DefaultConfig(4, 8)
	cfg.MinEpochs = 2
	cfg.ValMAPAtol = 0.01

	assert.False(t, shouldStop(&cfg, 2, 0.1, 0.5), "within min epochs")
	assert.True(t, shouldStop(&cfg, 3, 0.1, 0.5))
	assert.False(t, shouldStop(&cfg, 3, 0.495, 0.5), "within tolerance")
	assert.False(t, shouldStop(&cfg, 3, 0.6, 0.6))
}

func TestFit_EvaluatesEveryEpoch(t *testing.T) {
	dir := t.TempDir()
	writeSplit(t, dir, interactions.SplitTrain, []int32{0, 0, 1, 2, 3}, []int32{1, 2, 3, 4, 5})
	writeSplit(t, dir, interactions.SplitVal, []int32{0, 1}, []int32{6, 7})
	writeSplit(t, dir, interactions.SplitTest, []int32{2, 3}, []int32{0, 1})

	cfg := DefaultConfig(4, 8)
	cfg.DataDir = dir
	cfg.Dim = 4
	cfg.Channels = 3
	cfg.Epochs = 3
	cfg.MinEpochs = 0
	cfg.BatchSize = 2
	cfg.RHSSampleSize = 5
	cfg.TopK = 3

	logger := logging.DiscardLogger()
	splits, err := interactions.LoadSplits(context.Background(), dir, cfg.NumSources, cfg.NumCandidates, logger)
	require.NoError(t, err)
	params := fusion.RandomParams(cfg.NumCandidates, cfg.Dim, cfg.Channels, cfg.Seed)
	encoder := pipeline.NewRandomLookupEncoder(cfg.NumSources, cfg.NumCandidates, cfg.Channels, cfg.Dim, cfg.Seed+1)
	p, err := pipeline.New(cfg.Config, params, cfg.Channels, encoder, logger)
	require.NoError(t, err)
	driver := pipeline.NewDriver(p, logger)

	best, err := fit(context.Background(), &cfg, driver, splits, logger)
	require.NoError(t, err)

	// Scoring is deterministic, so val MAP never drops and all epochs run.
	assert.Equal(t, 3*2, driver.Anneal().Step)
	preds, err := driver.Evaluate(context.Background(), splits.Train, splits.Val)
	require.NoError(t, err)
	assert.InDelta(t, MAP(preds, splits.Val), best, 1e-12)
}
