package evolution

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed seeds.yaml
var seedsYAML []byte

// Seed is a hand-written architecture the search starts from.
type Seed struct {
	Name    string `yaml:"name"`
	Thought string `yaml:"thought"`
	Code    string `yaml:"code"`
}

// Seeds returns the built-in seed archive.
func Seeds() ([]Seed, error) {
	return parseSeeds(seedsYAML)
}

func parseSeeds(data []byte) ([]Seed, error) {
	var seeds []Seed
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("parse seeds: %w", err)
	}
	for i, s := range seeds {
		if s.Name == "" || s.Code == "" {
			return nil, fmt.Errorf("seed %d: name and code are required", i)
		}
	}
	return seeds, nil
}
