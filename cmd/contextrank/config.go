package main

import (
	"errors"

	"github.com/23skdu/contextrank/internal/pipeline"
)

// Config validation errors
var (
	ErrInvalidMetricsAddr = errors.New("metrics_addr cannot be empty")
	ErrInvalidDataDir     = errors.New("data_dir cannot be empty")
	ErrInvalidNumSources  = errors.New("num_sources must be positive")
	ErrInvalidDim         = errors.New("dim must be positive")
	ErrInvalidChannels    = errors.New("channels must be positive")
	ErrInvalidEpochs      = errors.New("epochs must be positive")
	ErrInvalidMinEpochs   = errors.New("min_epochs must not be negative")
	ErrInvalidValMAPAtol  = errors.New("val_map_atol must not be negative")
	ErrInvalidLogFormat   = errors.New("log_format must be 'json' or 'console'")
	ErrInvalidLogLevel    = errors.New("log_level must be debug, info, warn, or error")
)

// Config is read from CONTEXTRANK_* environment variables. The embedded
// pipeline settings share the same prefix.
type Config struct {
	pipeline.Config

	NumSources  int     `envconfig:"NUM_SOURCES" required:"true"`
	Dim         int     `envconfig:"DIM" default:"64"`
	Channels    int     `envconfig:"CHANNELS" default:"32"`
	Epochs      int     `envconfig:"EPOCHS" default:"1"`
	MinEpochs   int     `envconfig:"MIN_EPOCHS" default:"10"`
	ValMAPAtol  float64 `envconfig:"VAL_MAP_ATOL" default:"0.001"`
	DataDir     string  `envconfig:"DATA_DIR" default:"./data"`
	MetricsAddr string  `envconfig:"METRICS_ADDR" default:"0.0.0.0:9090"`
	LogFormat   string  `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel    string  `envconfig:"LOG_LEVEL" default:"info"`
}

// ValidateConfig validates the configuration and returns an error if invalid
func ValidateConfig(cfg *Config) error {
	if err := cfg.Config.Validate(); err != nil {
		return err
	}
	if cfg.NumSources <= 0 {
		return ErrInvalidNumSources
	}
	if cfg.Dim <= 0 {
		return ErrInvalidDim
	}
	if cfg.Channels <= 0 {
		return ErrInvalidChannels
	}
	if cfg.Epochs <= 0 {
		return ErrInvalidEpochs
	}
	if cfg.MinEpochs < 0 {
		return ErrInvalidMinEpochs
	}
	if cfg.ValMAPAtol < 0 {
		return ErrInvalidValMAPAtol
	}
	if cfg.DataDir == "" {
		return ErrInvalidDataDir
	}
	if cfg.MetricsAddr == "" {
		return ErrInvalidMetricsAddr
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return ErrInvalidLogFormat
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" && cfg.LogLevel != "error" {
		return ErrInvalidLogLevel
	}
	return nil
}

// DefaultConfig returns a Config with default values
func DefaultConfig(numSources, numCandidates int) Config {
	return Config{
		Config:      pipeline.DefaultConfig(numCandidates),
		NumSources:  numSources,
		Dim:         64,
		Channels:    32,
		Epochs:      1,
		MinEpochs:   10,
		ValMAPAtol:  0.001,
		DataDir:     "./data",
		MetricsAddr: "0.0.0.0:9090",
		LogFormat:   "json",
		LogLevel:    "info",
	}
}
