// Package density implements density-based potential scoring for active
// learning sample selection.
//
// A model is built once over a table of feature vectors. Every row receives a
// potential in [0, 1] that estimates the local density around it, and the
// neighborhood of every row within a fixed radius is frozen together with the
// squared distances to its neighbors. Whenever a row is labeled ("consumed"),
// UpdateNeighbors decays the potential of the row and of its neighborhood so
// that the next selection prefers rows from regions that have not been
// explored yet.
//
// Basic usage:
//
//	cfg := density.DefaultConfig()
//	cfg.Kernel = density.PotentialKernel{RadiusAlpha: 0.5}
//	model, advisories, err := density.Initialize(ctx, tbl, cfg, nil)
//	// model.Potential(key) is the current density score of a row
//	// model.UpdateNeighbors(key) consumes a labeled row
//
// Models survive process boundaries through the versioned msgpack codec
// (WriteScorerModel / ReadScorerModel). The immutable NeighborhoodModel
// carries a unique id so that loaded models can be shared through a
// ModelCache while only the potentials vector changes between iterations.
//
// # Kernels
//
// PotentialKernel (the default) registers every row within
// radiusBeta = 1.25 * RadiusAlpha as a neighbor and seeds the potential with
// a Gaussian sum over the rows within RadiusAlpha. GraphKernel connects every
// row to its k nearest neighbors and averages the edge weights.
//
// # Concurrency
//
// The neighbor queries of a build run on Config.Workers goroutines; their
// results are registered sequentially, so the model is the same for any
// number of workers. A ScorerModel serializes its own
// mutations, so UpdateNeighbors may be called from several goroutines.
package density
