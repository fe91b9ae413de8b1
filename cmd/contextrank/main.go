package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/23skdu/contextrank/internal/csr"
	"github.com/23skdu/contextrank/internal/fusion"
	"github.com/23skdu/contextrank/internal/interactions"
	"github.com/23skdu/contextrank/internal/logging"
	"github.com/23skdu/contextrank/internal/pipeline"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("CONTEXTRANK", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to process config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Output: os.Stdout})
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid logger config: %v\n", err)
		os.Exit(1)
	}
	if err := ValidateConfig(&cfg); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info().Str("address", cfg.MetricsAddr).Msg("Starting metrics server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := run(ctx, &cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Run failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *Config, logger zerolog.Logger) error {
	splits, err := interactions.LoadSplits(ctx, cfg.DataDir, cfg.NumSources, cfg.NumCandidates, logger)
	if err != nil {
		return err
	}

	params := fusion.RandomParams(cfg.NumCandidates, cfg.Dim, cfg.Channels, cfg.Seed)
	encoder := pipeline.NewRandomLookupEncoder(cfg.NumSources, cfg.NumCandidates, cfg.Channels, cfg.Dim, cfg.Seed+1)
	p, err := pipeline.New(cfg.Config, params, cfg.Channels, encoder, logger)
	if err != nil {
		return err
	}
	driver := pipeline.NewDriver(p, logger)

	best, err := fit(ctx, cfg, driver, splits, logger)
	if err != nil {
		return err
	}

	testHistory, err := splits.TestHistory()
	if err != nil {
		return err
	}
	preds, err := driver.Evaluate(ctx, testHistory, splits.Test)
	if err != nil {
		return err
	}
	logger.Info().
		Str("split", interactions.SplitTest).
		Int("rows", len(preds.Rows)).
		Int("skipped", preds.Skipped).
		Float64("map", MAP(preds, splits.Test)).
		Float64("recall", Recall(preds, splits.Test)).
		Float64("best_val_map", best).
		Int("top_k", cfg.TopK).
		Msg("Evaluation complete")
	return nil
}

// fit trains epoch by epoch and scores val (history = train) after each one.
// It stops early once val MAP falls more than ValMAPAtol below the best seen,
// but only after MinEpochs epochs. It returns the best val MAP.
func fit(ctx context.Context, cfg *Config, driver *pipeline.Driver, splits *interactions.Splits, logger zerolog.Logger) (float64, error) {
	best := 0.0
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		start := time.Now()
		stats, err := driver.Train(ctx, splits.Train, splits.Train, nil)
		if err != nil {
			return best, err
		}
		preds, err := driver.Evaluate(ctx, splits.Train, splits.Val)
		if err != nil {
			return best, err
		}
		valMAP := MAP(preds, splits.Val)
		if valMAP > best {
			best = valMAP
		}

		logger.Info().
			Int("epoch", epoch).
			Int("batches", stats.Batches).
			Int("skipped", stats.Skipped).
			Float64("train_loss", stats.MeanLoss).
			Float64("val_map", valMAP).
			Float64("best_val_map", best).
			Float64("anneal", driver.Anneal().Value()).
			Dur("elapsed", time.Since(start)).
			Msg("Epoch complete")

		if shouldStop(cfg, epoch, valMAP, best) {
			logger.Info().Int("epoch", epoch).Float64("best_val_map", best).Msg("Early stopping")
			break
		}
	}
	return best, nil
}

// shouldStop reports whether val MAP has dropped clearly below the best after
// the minimum number of epochs.
func shouldStop(cfg *Config, epoch int, valMAP, best float64) bool {
	return epoch > cfg.MinEpochs && valMAP < best-cfg.ValMAPAtol
}

// MAP is the mean over scored rows of average precision at k: the sum of
// precision@i over hit positions i, divided by min(k, |target|).
func MAP(preds *pipeline.Predictions, target *csr.Adjacency) float64 {
	if len(preds.Rows) == 0 {
		return 0
	}
	var sum float64
	for i, row := range preds.Rows {
		want := target.Neighbors(row)
		top := preds.TopK[i]
		if len(want) == 0 || len(top) == 0 {
			continue
		}
		var hits int
		var ap float64
		for j, id := range top {
			if _, ok := slices.BinarySearch(want, id); ok {
				hits++
				ap += float64(hits) / float64(j+1)
			}
		}
		sum += ap / float64(min(len(top), len(want)))
	}
	return sum / float64(len(preds.Rows))
}

// Recall is the mean over scored rows of |top-k ∩ target| / min(k, |target|).
func Recall(preds *pipeline.Predictions, target *csr.Adjacency) float64 {
	if len(preds.Rows) == 0 {
		return 0
	}
	var sum float64
	for i, row := range preds.Rows {
		want := target.Neighbors(row)
		top := preds.TopK[i]
		if len(want) == 0 || len(top) == 0 {
			continue
		}
		hits := 0
		for _, id := range top {
			if _, ok := slices.BinarySearch(want, id); ok {
				hits++
			}
		}
		sum += float64(hits) / float64(min(len(top), len(want)))
	}
	return sum / float64(len(preds.Rows))
}
