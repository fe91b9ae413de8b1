// Package sampler draws the fixed-size candidate subset a training batch is
// scored against.
package sampler

import (
	"container/heap"
	"math/rand"

	"github.com/RoaringBitmap/roaring/v2"

	cerrors "github.com/23skdu/contextrank/internal/errors"
)

// Priority tiers. Candidates rank by (tier, draw): every tier outranks all
// lower tiers and the draw orders ids inside a tier.
const (
	tierRandom uint8 = iota
	tierPriority
	tierRequired
)

// Sampler selects rhsSampleSize candidates out of numCandidates.
// It is not safe for concurrent use; the random source advances on every call.
type Sampler struct {
	numCandidates int
	sampleSize    int
	rng           *rand.Rand

	// reused between calls
	tiers []uint8
	draws []float64
}

// Sample is the candidate subset of one batch.
type Sample struct {
	// IDs are the sampled candidate ids ordered by descending priority.
	IDs []int32
	// RequiredOverflow and PriorityOverflow count forced ids that did not fit.
	RequiredOverflow int
	PriorityOverflow int
}

// Set returns the sampled ids as a bitmap.
func (s *Sample) Set() *roaring.Bitmap {
	bm := roaring.New()
	for _, id := range s.IDs {
		bm.Add(uint32(id))
	}
	return bm
}

// New creates a sampler. sampleSize must be in (0, numCandidates].
func New(numCandidates, sampleSize int, seed int64) (*Sampler, error) {
	if numCandidates <= 0 {
		return nil, cerrors.NewConfigurationError("sampler.New", "numCandidates must be positive").
			WithContext("num_candidates", numCandidates)
	}
	if sampleSize <= 0 || sampleSize > numCandidates {
		return nil, cerrors.Newf(cerrors.ErrorTypeConfiguration, "sampler.New",
			"sample size %d outside (0, %d]", sampleSize, numCandidates)
	}
	return &Sampler{
		numCandidates: numCandidates,
		sampleSize:    sampleSize,
		rng:           rand.New(rand.NewSource(seed)),
		tiers:         make([]uint8, numCandidates),
		draws:         make([]float64, numCandidates),
	}, nil
}

// NumCandidates returns the catalog size.
func (s *Sampler) NumCandidates() int { return s.numCandidates }

// SampleSize returns the number of ids every Sample holds.
func (s *Sampler) SampleSize() int { return s.sampleSize }

// Sample draws SampleSize distinct candidates. Every required id is included
// when the distinct required ids fit the budget; priority ids fill what is
// left, then a uniform random sample of the remaining catalog. Ids may repeat
// in either input.
func (s *Sampler) Sample(priority, required []int32) (*Sample, error) {
	const op = "sampler.Sample"

	for i := range s.draws {
		s.tiers[i] = tierRandom
		s.draws[i] = s.rng.Float64()
	}
	// Assign required after priority so the higher tier wins on overlap.
	for _, id := range priority {
		if id < 0 || int(id) >= s.numCandidates {
			return nil, cerrors.NewIndexOutOfRange(op, int(id), s.numCandidates).WithContext("set", "priority")
		}
		s.tiers[id] = tierPriority
	}
	for _, id := range required {
		if id < 0 || int(id) >= s.numCandidates {
			return nil, cerrors.NewIndexOutOfRange(op, int(id), s.numCandidates).WithContext("set", "required")
		}
		s.tiers[id] = tierRequired
	}

	ids := topK(s.tiers, s.draws, s.sampleSize)

	out := &Sample{IDs: ids}
	var nRequired, nPriority int
	for _, tier := range s.tiers {
		switch tier {
		case tierRequired:
			nRequired++
		case tierPriority:
			nPriority++
		}
	}
	if nRequired > s.sampleSize {
		out.RequiredOverflow = nRequired - s.sampleSize
		out.PriorityOverflow = nPriority
	} else if nRequired+nPriority > s.sampleSize {
		out.PriorityOverflow = nRequired + nPriority - s.sampleSize
	}
	return out, nil
}

// topK returns the indices of the k highest (tier, draw) pairs, highest
// first. Equal pairs are ordered by ascending index.
func topK(tiers []uint8, draws []float64, k int) []int32 {
	h := make(minHeap, 0, k)
	for i, d := range draws {
		e := entry{id: int32(i), tier: tiers[i], draw: d}
		if len(h) < k {
			heap.Push(&h, e)
			continue
		}
		if e.less(h[0]) {
			continue
		}
		h[0] = e
		heap.Fix(&h, 0)
	}

	out := make([]int32, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(entry).id
	}
	return out
}

type entry struct {
	id   int32
	tier uint8
	draw float64
}

// less reports whether e ranks below o.
func (e entry) less(o entry) bool {
	if e.tier != o.tier {
		return e.tier < o.tier
	}
	if e.draw != o.draw {
		return e.draw < o.draw
	}
	return e.id > o.id
}

type minHeap []entry

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[i].less(h[j]) }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)        { *h = append(*h, x.(entry)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
