// Package config loads densitytool settings from YAML.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	density "github.com/knime/knime-activelearning-sub000"
)

type Config struct {
	Model ModelConfig `yaml:"model"`
	Batch BatchConfig `yaml:"batch"`
	Store StoreConfig `yaml:"store"`
}

type ModelConfig struct {
	Kernel                    string  `yaml:"kernel"`       // potential or graph
	RadiusAlpha               float64 `yaml:"radius_alpha"` // potential kernel
	Sigma                     float64 `yaml:"sigma"`        // graph kernel
	Neighbors                 int     `yaml:"neighbors"`    // graph kernel
	MissingValues             string  `yaml:"missing_values"`
	WideNeighborhoodThreshold float64 `yaml:"wide_neighborhood_threshold"`
	Metric                    string  `yaml:"metric"` // euclidean, manhattan or chebyshev
	Index                     string  `yaml:"index"`  // kdtree or balltree
	LeafSize                  int     `yaml:"leaf_size"`
	Workers                   int     `yaml:"workers"` // 0 = all CPUs
}

type BatchConfig struct {
	UnknownRows string `yaml:"unknown_rows"` // fail or ignore
}

type StoreConfig struct {
	Path      string `yaml:"path"`
	CacheSize int    `yaml:"cache_size"`
}

// SearchPaths are tried in order by Load when no path is given.
var SearchPaths = []string{"configs/densitytool.yaml", "densitytool.yaml"}

// Load reads the YAML file at configPath on top of the defaults. With an
// empty path the first readable file of SearchPaths is used; if there is
// none the defaults are returned.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		for _, p := range SearchPaths {
			data, err := os.ReadFile(p)
			if err == nil {
				if err := yaml.Unmarshal(data, cfg); err != nil {
					return cfg, fmt.Errorf("config: parsing %s: %w", p, err)
				}
				applyDefaults(cfg)
				return cfg, nil
			}
		}
		return cfg, nil // no file found: use defaults
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", configPath, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Default returns the default settings.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Kernel:                    "potential",
			RadiusAlpha:               0.4,
			Sigma:                     1,
			Neighbors:                 5,
			MissingValues:             string(density.Fail),
			WideNeighborhoodThreshold: 0.2,
			Metric:                    "euclidean",
			Index:                     string(density.IndexKDTree),
			LeafSize:                  40,
		},
		Batch: BatchConfig{UnknownRows: string(density.Fail)},
		Store: StoreConfig{Path: "density_data", CacheSize: 8},
	}
}

func applyDefaults(cfg *Config) {
	d := Default()
	if cfg.Model.Kernel == "" {
		cfg.Model.Kernel = d.Model.Kernel
	}
	if cfg.Model.RadiusAlpha <= 0 {
		cfg.Model.RadiusAlpha = d.Model.RadiusAlpha
	}
	if cfg.Model.Sigma <= 0 {
		cfg.Model.Sigma = d.Model.Sigma
	}
	if cfg.Model.Neighbors <= 0 {
		cfg.Model.Neighbors = d.Model.Neighbors
	}
	if cfg.Model.WideNeighborhoodThreshold <= 0 || cfg.Model.WideNeighborhoodThreshold > 1 {
		cfg.Model.WideNeighborhoodThreshold = d.Model.WideNeighborhoodThreshold
	}
	if cfg.Model.LeafSize <= 0 {
		cfg.Model.LeafSize = d.Model.LeafSize
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = d.Store.Path
	}
	if cfg.Store.CacheSize <= 0 {
		cfg.Store.CacheSize = d.Store.CacheSize
	}
}

// Density converts the model settings into a density.Config.
func (c *Config) Density() (density.Config, error) {
	out := density.DefaultConfig()
	m := c.Model

	switch strings.ToLower(m.Kernel) {
	case "potential", "":
		out.Kernel = density.PotentialKernel{RadiusAlpha: m.RadiusAlpha}
	case "graph":
		out.Kernel = density.GraphKernel{Sigma: m.Sigma, Neighbors: m.Neighbors}
	default:
		return out, fmt.Errorf("config: unknown kernel %q", m.Kernel)
	}

	policy, err := density.ParsePolicy(m.MissingValues)
	if err != nil {
		return out, err
	}
	out.MissingValues = policy

	switch strings.ToLower(m.Metric) {
	case "euclidean", "":
		out.Metric = density.EuclideanMetric{}
	case "manhattan":
		out.Metric = density.ManhattanMetric{}
	case "chebyshev":
		out.Metric = density.ChebyshevMetric{}
	default:
		return out, fmt.Errorf("config: unknown metric %q", m.Metric)
	}

	out.WideNeighborhoodThreshold = m.WideNeighborhoodThreshold
	out.Index = density.IndexKind(strings.ToLower(m.Index))
	out.LeafSize = m.LeafSize
	out.Workers = m.Workers
	return out, nil
}

// UnknownRowPolicy returns the policy for batch operations on rows unknown
// to a model.
func (c *Config) UnknownRowPolicy() (density.Policy, error) {
	return density.ParsePolicy(c.Batch.UnknownRows)
}
