package pipeline

import (
	"errors"
)

// Config validation errors
var (
	ErrInvalidNumCandidates = errors.New("num_candidates must be positive")
	ErrInvalidSampleSize    = errors.New("rhs_sample_size must be in (0, num_candidates]")
	ErrInvalidBatchSize     = errors.New("batch_size must be positive")
	ErrInvalidTopK          = errors.New("top_k must be positive")
	ErrInvalidAnnealCap     = errors.New("anneal_cap must be in [0, 1]")
	ErrInvalidAnnealSteps   = errors.New("anneal_total_steps must not be negative")
)

// Config holds the per-run settings of the scoring pipeline
type Config struct {
	NumCandidates    int     `envconfig:"NUM_CANDIDATES" required:"true"`
	RHSSampleSize    int     `envconfig:"RHS_SAMPLE_SIZE" default:"1000"`
	BatchSize        int     `envconfig:"BATCH_SIZE" default:"512"`
	Seed             int64   `envconfig:"SEED" default:"42"`
	TopK             int     `envconfig:"TOP_K" default:"10"`
	AnnealTotalSteps int     `envconfig:"ANNEAL_TOTAL_STEPS" default:"200000"`
	AnnealCap        float64 `envconfig:"ANNEAL_CAP" default:"0.2"`
}

// DefaultConfig returns a Config with default values for a catalog of numCandidates
func DefaultConfig(numCandidates int) Config {
	return Config{
		NumCandidates:    numCandidates,
		RHSSampleSize:    min(1000, numCandidates),
		BatchSize:        512,
		Seed:             42,
		TopK:             10,
		AnnealTotalSteps: 200000,
		AnnealCap:        0.2,
	}
}

// Validate returns the first invalid setting, if any
func (c *Config) Validate() error {
	if c.NumCandidates <= 0 {
		return ErrInvalidNumCandidates
	}
	if c.RHSSampleSize <= 0 || c.RHSSampleSize > c.NumCandidates {
		return ErrInvalidSampleSize
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.TopK <= 0 {
		return ErrInvalidTopK
	}
	if c.AnnealCap < 0 || c.AnnealCap > 1 {
		return ErrInvalidAnnealCap
	}
	if c.AnnealTotalSteps < 0 {
		return ErrInvalidAnnealSteps
	}
	return nil
}

// Anneal is the step counter behind a linear annealing schedule. It is owned
// by a single driver run and advanced once per successful optimization step.
type Anneal struct {
	TotalSteps int
	Cap        float64
	Step       int
}

// NewAnneal starts a schedule at step 0.
func NewAnneal(cfg Config) *Anneal {
	return &Anneal{TotalSteps: cfg.AnnealTotalSteps, Cap: cfg.AnnealCap}
}

// Value returns min(Cap, Step/TotalSteps), or Cap when annealing is disabled.
func (a *Anneal) Value() float64 {
	if a.TotalSteps <= 0 {
		return a.Cap
	}
	return min(a.Cap, float64(a.Step)/float64(a.TotalSteps))
}

// Advance moves the schedule one step forward.
func (a *Anneal) Advance() {
	a.Step++
}
