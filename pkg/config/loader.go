package config

import (
	"fmt"
	"os"
)

// LoadConfig loads and parses a daemon configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadSessionDefinition loads and parses a session definition file
func LoadSessionDefinition(path string) (*SessionDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file %s: %w", path, err)
	}
	def, err := ParseSessionYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", path, err)
	}
	return def, nil
}

// validateConfig performs validation on the daemon configuration
func validateConfig(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}

	if cfg.Sink != nil {
		switch cfg.Sink.Type {
		case "", SinkTypeNone:
		case SinkTypeXLSX:
			if cfg.Sink.Path == "" {
				return fmt.Errorf("sink type xlsx requires a path")
			}
		default:
			return fmt.Errorf("invalid sink type: %s (must be xlsx or none)", cfg.Sink.Type)
		}
	}

	if cfg.Trial != nil {
		if cfg.Trial.ExecuteTimeoutSeconds <= 0 {
			return fmt.Errorf("trial execute_timeout_seconds must be positive, got %d", cfg.Trial.ExecuteTimeoutSeconds)
		}
		if cfg.Trial.CaptureTimeoutSeconds <= 0 {
			return fmt.Errorf("trial capture_timeout_seconds must be positive, got %d", cfg.Trial.CaptureTimeoutSeconds)
		}
		if cfg.Trial.RetryLimit < 0 {
			return fmt.Errorf("trial retry_limit cannot be negative, got %d", cfg.Trial.RetryLimit)
		}
		validBackoffs := map[string]bool{
			"":            true,
			"constant":    true,
			"linear":      true,
			"exponential": true,
		}
		if !validBackoffs[cfg.Trial.Backoff] {
			return fmt.Errorf("invalid backoff type: %s (must be constant, linear, or exponential)", cfg.Trial.Backoff)
		}
	}

	return nil
}

// ValidateSession performs validation on a session definition
func ValidateSession(def *SessionDefinition) error {
	if len(def.Parameters) == 0 {
		return fmt.Errorf("at least one parameter must be defined")
	}

	names := make(map[string]bool)
	for _, p := range def.Parameters {
		if p.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if names[p.Name] {
			return fmt.Errorf("duplicate parameter name: %s", p.Name)
		}
		names[p.Name] = true

		switch p.Kind {
		case KindContinuous:
		case KindDiscrete:
			if p.Step <= 0 {
				return fmt.Errorf("parameter %s: discrete parameters require a positive step", p.Name)
			}
		default:
			return fmt.Errorf("parameter %s: invalid kind %s (must be continuous or discrete)", p.Name, p.Kind)
		}

		if p.Min >= p.Max {
			return fmt.Errorf("parameter %s: min must be less than max (got [%v, %v])", p.Name, p.Min, p.Max)
		}
	}

	if def.Direction != DirectionMaximize && def.Direction != DirectionMinimize {
		return fmt.Errorf("invalid direction: %s (must be maximize or minimize)", def.Direction)
	}

	switch def.Acquisition {
	case AcquisitionExpectedImprovement, AcquisitionExplore, AcquisitionExploit:
	default:
		return fmt.Errorf("invalid acquisition: %s", def.Acquisition)
	}

	if def.Budget <= 0 {
		return fmt.Errorf("iteration_budget must be positive, got %d", def.Budget)
	}

	if def.FocusRegion != nil {
		fr := def.FocusRegion
		if fr.X < 0 || fr.Y < 0 || fr.Width <= 0 || fr.Height <= 0 {
			return fmt.Errorf("focus_region must have non-negative origin and positive size")
		}
	}

	if def.Convergence != nil {
		if def.Convergence.NoImprovementIterations < 0 {
			return fmt.Errorf("convergence no_improvement_iterations cannot be negative")
		}
		if def.Convergence.UncertaintyThreshold < 0 {
			return fmt.Errorf("convergence uncertainty_threshold cannot be negative")
		}
	}

	if def.Weights != nil {
		w := def.Weights
		for name, v := range map[string]float64{
			"metric":               w.Metric,
			"human":                w.Human,
			"model":                w.Model,
			"contrast":             w.Contrast,
			"sharpness":            w.Sharpness,
			"histogram_spread":     w.HistogramSpread,
			"histogram_similarity": w.HistogramSimilarity,
		} {
			if v < 0 {
				return fmt.Errorf("weight %s cannot be negative, got %v", name, v)
			}
		}
		if w.Metric == 0 && w.Human == 0 && w.Model == 0 {
			return fmt.Errorf("at least one signal weight must be positive")
		}
	}

	return nil
}
