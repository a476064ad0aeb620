package density

import (
	"fmt"
	"runtime"
)

const (
	defaultRadiusAlpha               = 0.4
	defaultWideNeighborhoodThreshold = 0.2
	defaultLeafSize                  = 40
)

// Config controls how a ScorerModel is built.
// Start with [DefaultConfig] and override the fields you need.
type Config struct {
	// Kernel selects neighborhood discovery, potential seeding and the
	// decrement weight. Default: PotentialKernel{RadiusAlpha: 0.4}.
	Kernel Kernel

	// MissingValues decides what happens to rows with a missing feature
	// value: Fail aborts, Ignore skips the row and reports the number of
	// skipped rows once. Default: Fail.
	MissingValues Policy

	// WideNeighborhoodThreshold is the fraction of the dataset above which a
	// neighborhood is considered too wide and an advisory is emitted.
	// Must be in (0, 1]. Default: 0.2.
	WideNeighborhoodThreshold float64

	// Metric is the distance between feature vectors. Default: EuclideanMetric.
	Metric DistanceMetric

	// Index selects the spatial index used for neighbor queries.
	// Default: "kdtree".
	Index IndexKind

	// LeafSize is the maximum number of points in a spatial tree leaf.
	// Must be >= 1. Default: 40.
	LeafSize int

	// Workers is the number of goroutines running neighbor queries during
	// the build. Registration of the results stays sequential so the model
	// does not depend on it. 0 means runtime.NumCPU(). Default: 0.
	Workers int
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		Kernel:                    PotentialKernel{RadiusAlpha: defaultRadiusAlpha},
		MissingValues:             Fail,
		WideNeighborhoodThreshold: defaultWideNeighborhoodThreshold,
		Metric:                    EuclideanMetric{},
		Index:                     IndexKDTree,
		LeafSize:                  defaultLeafSize,
	}
}

// validateConfig checks that cfg fields are valid and returns a descriptive error if not.
func validateConfig(cfg *Config) error {
	if cfg.Kernel == nil {
		return fmt.Errorf("density: Kernel must be set")
	}
	if err := cfg.Kernel.validate(); err != nil {
		return err
	}
	switch cfg.MissingValues {
	case Fail, Ignore:
	default:
		return fmt.Errorf("density: invalid MissingValues policy %q", cfg.MissingValues)
	}
	if !(cfg.WideNeighborhoodThreshold > 0 && cfg.WideNeighborhoodThreshold <= 1) {
		return fmt.Errorf("density: WideNeighborhoodThreshold must be in (0, 1], got %v", cfg.WideNeighborhoodThreshold)
	}
	switch cfg.Index {
	case IndexKDTree, IndexBallTree:
	default:
		return fmt.Errorf("density: invalid Index %q", cfg.Index)
	}
	if cfg.LeafSize < 1 {
		return fmt.Errorf("density: LeafSize must be >= 1, got %d", cfg.LeafSize)
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("density: Workers must be >= 0, got %d", cfg.Workers)
	}
	return nil
}

// applyDefaults fills in zero-valued config fields with their defaults.
func applyDefaults(cfg *Config) {
	if cfg.Kernel == nil {
		cfg.Kernel = PotentialKernel{RadiusAlpha: defaultRadiusAlpha}
	}
	if cfg.MissingValues == "" {
		cfg.MissingValues = Fail
	}
	if cfg.WideNeighborhoodThreshold == 0 {
		cfg.WideNeighborhoodThreshold = defaultWideNeighborhoodThreshold
	}
	if cfg.Metric == nil {
		cfg.Metric = EuclideanMetric{}
	}
	if cfg.Index == "" {
		cfg.Index = IndexKDTree
	}
	if cfg.LeafSize == 0 {
		cfg.LeafSize = defaultLeafSize
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
}
