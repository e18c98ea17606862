package boxing

import (
	"bytes"
	"io"
	"os"
	"slices"

	"github.com/gomlx/boxing/types"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config of the HierarchicalBuilder.
type Config struct {
	// CollectiveOnComputeStream is set when collectives run on the compute stream. CollectiveBoxing is then
	// not used.
	CollectiveOnComputeStream bool `yaml:"collective_on_compute_stream"`

	// DisabledStrategies lists names of strategies to remove from the default chain.
	DisabledStrategies []string `yaml:"disabled_strategies"`

	// MaxParallelBuilds limits the number of boxings built concurrently by BuildAll. 0 means no limit.
	MaxParallelBuilds int `yaml:"max_parallel_builds"`
}

// ParseConfig parses a YAML Config. Unknown fields are an error.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrapf(types.ErrConfiguration, "parsing boxing configuration: %v", err)
	}
	if cfg.MaxParallelBuilds < 0 {
		return Config{}, errors.Wrapf(types.ErrConfiguration, "max_parallel_builds must be >= 0, got %d", cfg.MaxParallelBuilds)
	}
	return cfg, nil
}

// LoadConfig reads a YAML Config from the file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading boxing configuration from %q", path)
	}
	return ParseConfig(data)
}

// DefaultStrategies returns the strategies in their priority order, the most specific first:
// OneToOne, B21, CollectiveBoxing (unless cfg.CollectiveOnComputeStream), SliceBoxing, NaiveB2B and NaiveB2P.
//
// Strategies listed in cfg.DisabledStrategies are removed. Unknown names are an error.
func DefaultStrategies(cfg Config) ([]Strategy, error) {
	all := []Strategy{OneToOne{}, B21{}, CollectiveBoxing{}, SliceBoxing{}, NaiveB2B{}, NaiveB2P{}}
	known := make([]string, len(all))
	for i, s := range all {
		known[i] = s.Name()
	}
	for _, name := range cfg.DisabledStrategies {
		if !slices.Contains(known, name) {
			return nil, errors.Wrapf(types.ErrConfiguration, "unknown boxing strategy %q in disabled_strategies, known strategies are %v",
				name, known)
		}
	}
	var strategies []Strategy
	for _, s := range all {
		if slices.Contains(cfg.DisabledStrategies, s.Name()) {
			continue
		}
		if cfg.CollectiveOnComputeStream && s.Name() == (CollectiveBoxing{}).Name() {
			continue
		}
		strategies = append(strategies, s)
	}
	return strategies, nil
}
