package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ManifestOverride is one named entry in the manifest overrides file:
// resource sizing an operator wants applied to a specific instance name
// regardless of what a CreateInstance request asks for, the same way a
// cluster admin pins resource classes via a checked-in file rather than
// trusting whatever a client happens to request.
type ManifestOverride struct {
	CPURequest    string `yaml:"cpu_request,omitempty"`
	MemoryRequest string `yaml:"memory_request,omitempty"`
	CPULimit      string `yaml:"cpu_limit,omitempty"`
	MemoryLimit   string `yaml:"memory_limit,omitempty"`
}

// LoadManifestOverrides reads a YAML file mapping instance name to its
// ManifestOverride. A blank path is not an error — it means no overrides
// file was configured, and returns an empty map.
func LoadManifestOverrides(path string) (map[string]ManifestOverride, error) {
	if path == "" {
		return map[string]ManifestOverride{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest overrides file: %w", err)
	}

	var overrides map[string]ManifestOverride
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse manifest overrides file: %w", err)
	}
	if overrides == nil {
		overrides = map[string]ManifestOverride{}
	}
	return overrides, nil
}
