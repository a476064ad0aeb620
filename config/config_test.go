package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	density "github.com/knime/knime-activelearning-sub000"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "densitytool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
model:
  kernel: graph
  sigma: 0.5
  neighbors: 7
  missing_values: ignore
  metric: manhattan
  index: balltree
  workers: 2
batch:
  unknown_rows: ignore
store:
  path: /tmp/models
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "graph", cfg.Model.Kernel)
	assert.Equal(t, 0.4, cfg.Model.RadiusAlpha)
	assert.Equal(t, 40, cfg.Model.LeafSize)
	assert.Equal(t, "/tmp/models", cfg.Store.Path)
	assert.Equal(t, 8, cfg.Store.CacheSize)

	dcfg, err := cfg.Density()
	require.NoError(t, err)
	assert.Equal(t, density.GraphKernel{Sigma: 0.5, Neighbors: 7}, dcfg.Kernel)
	assert.Equal(t, density.Ignore, dcfg.MissingValues)
	assert.Equal(t, density.ManhattanMetric{}, dcfg.Metric)
	assert.Equal(t, density.IndexBallTree, dcfg.Index)
	assert.Equal(t, 2, dcfg.Workers)

	policy, err := cfg.UnknownRowPolicy()
	require.NoError(t, err)
	assert.Equal(t, density.Ignore, policy)
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	dcfg, err := cfg.Density()
	require.NoError(t, err)
	assert.Equal(t, density.DefaultConfig(), dcfg)
}

func TestLoad_SearchPaths(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.MkdirAll("configs", 0o755))
	require.NoError(t, os.WriteFile(filepath.Join("configs", "densitytool.yaml"), []byte("model:\n  radius_alpha: 2\n"), 0o644))
	require.NoError(t, os.WriteFile("densitytool.yaml", []byte("model:\n  radius_alpha: 3\n"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2.0, cfg.Model.RadiusAlpha)
}

func TestLoad_OutOfRangeValuesUseDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "model:\n  radius_alpha: -1\n  wide_neighborhood_threshold: 3\nstore:\n  cache_size: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.4, cfg.Model.RadiusAlpha)
	assert.Equal(t, 0.2, cfg.Model.WideNeighborhoodThreshold)
	assert.Equal(t, 8, cfg.Store.CacheSize)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "model: [not, a, map]\n"))
	assert.Error(t, err)
}

func TestDensity_Errors(t *testing.T) {
	for _, mutate := range []func(*Config){
		func(c *Config) { c.Model.Kernel = "box" },
		func(c *Config) { c.Model.Metric = "cosine" },
		func(c *Config) { c.Model.MissingValues = "skip" },
	} {
		cfg := Default()
		mutate(cfg)
		_, err := cfg.Density()
		assert.Error(t, err)
	}

	cfg := Default()
	cfg.Batch.UnknownRows = "skip"
	_, err := cfg.UnknownRowPolicy()
	assert.Error(t, err)
}
