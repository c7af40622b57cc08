package budget

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WeightsFile is the on-disk shape of the optional weighted-allocation
// weights file named by PLAYLIST_COST_WEIGHTS_FILE: one fraction per
// daypart id, not required to already sum to 1 (Allocate re-normalises).
type WeightsFile struct {
	Weights map[string]float64 `yaml:"weights"`
}

// LoadWeightsFile reads and parses a YAML weights file for the
// StrategyWeighted allocation strategy. A missing path is not an error here;
// the caller decides whether an empty map is acceptable.
func LoadWeightsFile(path string) (map[string]float64, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("budget: reading weights file %s: %w", path, err)
	}
	var parsed WeightsFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("budget: parsing weights file %s: %w", path, err)
	}
	return parsed.Weights, nil
}
