package interactions

import (
	"context"
	"os"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/23skdu/contextrank/internal/csr"
	cerrors "github.com/23skdu/contextrank/internal/errors"
	"github.com/23skdu/contextrank/internal/metrics"
)

// Split names, also the file stems under a data directory.
const (
	SplitTrain = "train"
	SplitVal   = "val"
	SplitTest  = "test"
)

// Splits are the per-split adjacencies of one dataset. They are immutable once
// loaded.
type Splits struct {
	Train *csr.Adjacency
	Val   *csr.Adjacency
	Test  *csr.Adjacency
}

// TestHistory is the input graph for test-time scoring: train and val combined.
func (s *Splits) TestHistory() (*csr.Adjacency, error) {
	return csr.Union(s.Train, s.Val)
}

// LoadSplits reads <dir>/{train,val,test}.parquet concurrently. Any malformed
// split fails the whole load.
func LoadSplits(ctx context.Context, dir string, numSrc, numDst int, logger zerolog.Logger) (*Splits, error) {
	names := []string{SplitTrain, SplitVal, SplitTest}
	adjs := make([]*csr.Adjacency, len(names))

	g, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			adj, err := LoadFile(filepath.Join(dir, name+".parquet"), numSrc, numDst)
			if err != nil {
				kind := cerrors.TypeOf(err)
				if kind == "" {
					kind = cerrors.ErrorTypeStorage
				}
				return cerrors.Wrap(err, kind, "interactions.LoadSplits", name).WithContext("split", name)
			}
			adjs[i] = adj
			metrics.SplitEdges.WithLabelValues(name).Set(float64(adj.NumEdges()))
			logger.Info().
				Str("split", name).
				Int("sources", adj.NumSources()).
				Int("edges", adj.NumEdges()).
				Msg("split loaded")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Splits{Train: adjs[0], Val: adjs[1], Test: adjs[2]}, nil
}

// LoadFile reads one interaction Parquet file into an adjacency.
func LoadFile(path string, numSrc, numDst int) (*csr.Adjacency, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cerrors.WrapStorageError(err, "interactions.LoadFile", "open "+path)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, cerrors.WrapStorageError(err, "interactions.LoadFile", "stat "+path)
	}

	rec, err := ReadParquet(f, stat.Size(), memory.NewGoAllocator())
	if err != nil {
		return nil, err
	}
	defer rec.Release()

	return ToAdjacency(rec, numSrc, numDst)
}
