package model

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// OptimizerConfig configures the unified optimizer and its per graph type optimizers
type OptimizerConfig struct {
	General   *GraphOptimizerConfig `yaml:"general,omitempty"`
	Wikipedia *GraphOptimizerConfig `yaml:"wikipedia,omitempty"`
	IPLD      *GraphOptimizerConfig `yaml:"ipld,omitempty"`

	// GraphInfo is the default graph metadata used when a query brings none
	GraphInfo *GraphInfo `yaml:"graph_info,omitempty"`
}

// GraphOptimizerConfig holds the settings of one specialised optimizer
type GraphOptimizerConfig struct {
	VectorWeight float64 `yaml:"vector_weight,omitempty"`
	GraphWeight  float64 `yaml:"graph_weight,omitempty"`
	// CacheEnabled is a pointer so an explicit false survives defaults
	CacheEnabled *bool `yaml:"cache_enabled,omitempty"`
	// CacheTTL is a Go duration string, e.g. "5m"
	CacheTTL       string `yaml:"cache_ttl,omitempty"`
	CacheSizeLimit int    `yaml:"cache_size_limit,omitempty"`
}

// DefaultOptimizerConfig returns the built-in optimizer settings
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		General: &GraphOptimizerConfig{
			VectorWeight:   0.7,
			GraphWeight:    0.3,
			CacheTTL:       "300s",
			CacheSizeLimit: 100,
		},
		Wikipedia: &GraphOptimizerConfig{
			VectorWeight:   0.6,
			GraphWeight:    0.4,
			CacheTTL:       "600s",
			CacheSizeLimit: 200,
		},
		IPLD: &GraphOptimizerConfig{
			VectorWeight:   0.75,
			GraphWeight:    0.25,
			CacheTTL:       "300s",
			CacheSizeLimit: 100,
		},
		GraphInfo: &GraphInfo{
			GraphType:       GraphTypeGeneral,
			EdgeSelectivity: map[string]float64{},
			GraphDensity:    0.5,
		},
	}
}

// LoadOptimizerConfig reads a YAML optimizer config.
// Sections missing from the file keep their defaults.
func LoadOptimizerConfig(path string) (*OptimizerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read optimizer config: %w", err)
	}

	config := DefaultOptimizerConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse optimizer config: %w", err)
	}

	defaults := DefaultOptimizerConfig()
	if config.General == nil {
		config.General = defaults.General
	}
	if config.Wikipedia == nil {
		config.Wikipedia = defaults.Wikipedia
	}
	if config.IPLD == nil {
		config.IPLD = defaults.IPLD
	}
	if config.GraphInfo == nil {
		config.GraphInfo = defaults.GraphInfo
	}

	return &config, nil
}

// For returns the settings for a graph type, falling back to the general ones
func (c *OptimizerConfig) For(graphType GraphType) *GraphOptimizerConfig {
	switch graphType {
	case GraphTypeWikipedia:
		if c.Wikipedia != nil {
			return c.Wikipedia
		}
	case GraphTypeIPLD:
		if c.IPLD != nil {
			return c.IPLD
		}
	}
	return c.General
}

// GetVectorWeight returns the vector weight or the default value.
func (g *GraphOptimizerConfig) GetVectorWeight() float64 {
	if g == nil || g.VectorWeight <= 0 {
		return 0.7
	}
	return g.VectorWeight
}

// GetGraphWeight returns the graph weight or the default value.
func (g *GraphOptimizerConfig) GetGraphWeight() float64 {
	if g == nil || g.GraphWeight <= 0 {
		return 0.3
	}
	return g.GraphWeight
}

// GetCacheEnabled returns whether caching is enabled, true unless disabled explicitly.
func (g *GraphOptimizerConfig) GetCacheEnabled() bool {
	if g == nil || g.CacheEnabled == nil {
		return true
	}
	return *g.CacheEnabled
}

// GetCacheTTL parses the cache TTL and returns the default value if not set or invalid.
func (g *GraphOptimizerConfig) GetCacheTTL() time.Duration {
	if g == nil || g.CacheTTL == "" {
		return 300 * time.Second
	}
	d, err := time.ParseDuration(g.CacheTTL)
	if err != nil || d <= 0 {
		return 300 * time.Second
	}
	return d
}

// GetCacheSizeLimit returns the cache size limit or the default value.
func (g *GraphOptimizerConfig) GetCacheSizeLimit() int {
	if g == nil || g.CacheSizeLimit <= 0 {
		return 100
	}
	return g.CacheSizeLimit
}
