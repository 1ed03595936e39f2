package paramspace

import (
	"fmt"
	"math"

	"github.com/auto-tuner-laser/tuning-core/pkg/models"
	"github.com/auto-tuner-laser/tuning-core/pkg/utils"
)

// Kind distinguishes continuous parameters from ordered-discrete ones
type Kind string

const (
	KindContinuous Kind = "continuous"
	KindDiscrete   Kind = "discrete"
)

// Spec declares one tunable parameter: name, kind, bounds, and the step
// grid for discrete parameters. Immutable once a session starts.
type Spec struct {
	Name string
	Kind Kind
	Min  float64
	Max  float64
	Step float64
}

// Space is an ordered set of parameter specs. It owns the mapping between
// named parameter sets and the normalized [0,1] vectors the optimizer works
// in.
type Space struct {
	specs []Spec
	index map[string]int
}

// New creates a parameter space from the given specs
func New(specs ...Spec) (*Space, error) {
	s := &Space{
		specs: make([]Spec, len(specs)),
		index: make(map[string]int, len(specs)),
	}
	for i, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("parameter %d: name cannot be empty", i)
		}
		if _, dup := s.index[spec.Name]; dup {
			return nil, fmt.Errorf("duplicate parameter name: %s", spec.Name)
		}
		if spec.Min >= spec.Max {
			return nil, fmt.Errorf("parameter %s: min must be less than max (got [%v, %v])", spec.Name, spec.Min, spec.Max)
		}
		switch spec.Kind {
		case KindContinuous:
		case KindDiscrete:
			if spec.Step <= 0 {
				return nil, fmt.Errorf("parameter %s: discrete parameters require a positive step", spec.Name)
			}
		default:
			return nil, fmt.Errorf("parameter %s: invalid kind %q", spec.Name, spec.Kind)
		}
		s.specs[i] = spec
		s.index[spec.Name] = i
	}
	return s, nil
}

// Bounds returns the ordered parameter specs
func (s *Space) Bounds() []Spec {
	out := make([]Spec, len(s.specs))
	copy(out, s.specs)
	return out
}

// Dims returns the number of parameters in the space
func (s *Space) Dims() int {
	return len(s.specs)
}

// Validate checks that the parameter set names exactly the space's
// parameters and that every value lies within its spec's bounds
func (s *Space) Validate(p models.ParameterSet) error {
	for name := range p {
		if _, ok := s.index[name]; !ok {
			return &UnknownParameterError{Name: name}
		}
	}
	for _, spec := range s.specs {
		v, ok := p[spec.Name]
		if !ok {
			return &MissingParameterError{Name: spec.Name}
		}
		if v < spec.Min || v > spec.Max {
			return &OutOfBoundsError{Name: spec.Name, Value: v, Min: spec.Min, Max: spec.Max}
		}
	}
	return nil
}

// Encode normalizes a parameter set into a vector with each dimension in
// [0,1], ordered by the space's specs
func (s *Space) Encode(p models.ParameterSet) ([]float64, error) {
	if err := s.Validate(p); err != nil {
		return nil, err
	}
	v := make([]float64, len(s.specs))
	for i, spec := range s.specs {
		v[i] = (p[spec.Name] - spec.Min) / (spec.Max - spec.Min)
	}
	return v, nil
}

// Decode inverts Encode. Vector components are clamped to [0,1] first, so a
// decoded set never leaves the configured bounds; discrete dimensions are
// rounded to their step grid.
func (s *Space) Decode(v []float64) (models.ParameterSet, error) {
	if len(v) != len(s.specs) {
		return nil, fmt.Errorf("vector has %d dimensions, space has %d", len(v), len(s.specs))
	}
	p := make(models.ParameterSet, len(s.specs))
	for i, spec := range s.specs {
		x := utils.ClampFloat64(v[i], 0, 1)
		val := spec.Min + x*(spec.Max-spec.Min)
		if spec.Kind == KindDiscrete {
			val = spec.Min + math.Round((val-spec.Min)/spec.Step)*spec.Step
			if val > spec.Max {
				// Snap to the last grid point inside the range
				val = spec.Min + math.Floor((spec.Max-spec.Min)/spec.Step)*spec.Step
			}
		}
		p[spec.Name] = val
	}
	return p, nil
}

// Sample draws a uniform random parameter set from the space
func (s *Space) Sample(r *utils.RandSource) models.ParameterSet {
	p, _ := s.Decode(r.UnitVector(len(s.specs)))
	return p
}

// OutOfBoundsError indicates a parameter value outside its spec's range
type OutOfBoundsError struct {
	Name  string
	Value float64
	Min   float64
	Max   float64
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("parameter %s: value %v outside bounds [%v, %v]", e.Name, e.Value, e.Min, e.Max)
}

// UnknownParameterError indicates a name that is not part of the space
type UnknownParameterError struct {
	Name string
}

func (e *UnknownParameterError) Error() string {
	return "unknown parameter: " + e.Name
}

// MissingParameterError indicates a spec'd parameter absent from a set
type MissingParameterError struct {
	Name string
}

func (e *MissingParameterError) Error() string {
	return "missing parameter: " + e.Name
}
