package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseConfigYAML parses and validates a daemon configuration
func ParseConfigYAML(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseSessionYAML parses and validates a session definition,
// applying defaults for omitted knobs
func ParseSessionYAML(data []byte) (*SessionDefinition, error) {
	def := &SessionDefinition{}
	if err := yaml.Unmarshal(data, def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session definition: %w", err)
	}
	ApplySessionDefaults(def)
	if err := ValidateSession(def); err != nil {
		return nil, err
	}
	return def, nil
}

// MarshalSessionYAML serializes a session definition back to yaml
func MarshalSessionYAML(def *SessionDefinition) ([]byte, error) {
	data, err := yaml.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session definition: %w", err)
	}
	return data, nil
}

// ApplySessionDefaults fills omitted session knobs with defaults
func ApplySessionDefaults(def *SessionDefinition) {
	if def.Direction == "" {
		def.Direction = DirectionMaximize
	}
	if def.Acquisition == "" {
		def.Acquisition = AcquisitionExpectedImprovement
	}
	if def.CandidatePool <= 0 {
		def.CandidatePool = 50
	}
	if def.Budget <= 0 {
		def.Budget = 10
	}
	if def.RetryLimit < 0 {
		def.RetryLimit = 0
	}
	if def.Convergence == nil {
		def.Convergence = DefaultConvergence()
	}
	if def.Weights == nil {
		def.Weights = DefaultWeights()
	}
}
