// Package optim implements the optimizer contract consumed by the fit
// loop: an update operation mapping (params, gradients, learning rate)
// to a fresh parameter set.
package optim

import (
	"fmt"

	"classifier-forge/internal/model"
)

// Algorithm selects the update rule.
type Algorithm string

const (
	SGD  Algorithm = "sgd"
	Adam Algorithm = "adam"
)

// Config holds the optimizer hyperparameters. Required by the training
// config; has no defaults of its own beyond the constructors below.
type Config struct {
	Algorithm Algorithm `json:"algorithm"`
	Momentum  float64   `json:"momentum,omitempty"`
	Beta1     float64   `json:"beta1,omitempty"`
	Beta2     float64   `json:"beta2,omitempty"`
	Epsilon   float64   `json:"epsilon,omitempty"`
}

// NewSGDConfig returns a plain SGD config.
func NewSGDConfig() Config {
	return Config{Algorithm: SGD}
}

// NewAdamConfig returns an Adam config with the usual moment decays.
func NewAdamConfig() Config {
	return Config{
		Algorithm: Adam,
		Beta1:     0.9,
		Beta2:     0.999,
		Epsilon:   1e-8,
	}
}

// Validate verifies the config names a known algorithm with sane knobs.
func (c Config) Validate() error {
	switch c.Algorithm {
	case SGD:
		if c.Momentum < 0 || c.Momentum >= 1 {
			return fmt.Errorf("optim: momentum must be in [0, 1) (got %g)", c.Momentum)
		}
	case Adam:
		if c.Beta1 <= 0 || c.Beta1 >= 1 || c.Beta2 <= 0 || c.Beta2 >= 1 {
			return fmt.Errorf("optim: betas must be in (0, 1) (got %g, %g)", c.Beta1, c.Beta2)
		}
		if c.Epsilon <= 0 {
			return fmt.Errorf("optim: epsilon must be > 0 (got %g)", c.Epsilon)
		}
	case "":
		return fmt.Errorf("optim: algorithm is required")
	default:
		return fmt.Errorf("optim: unknown algorithm %q", c.Algorithm)
	}
	return nil
}

// Optimizer consumes one gradient set per call and produces updated
// parameters. It never mutates the set passed in; internal state (e.g.
// Adam moments) is keyed by parameter name.
type Optimizer interface {
	Update(params, grads *model.ParamSet, lr float64) (*model.ParamSet, error)
}

// New builds an optimizer from its config.
func New(cfg Config) (Optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Algorithm {
	case SGD:
		return &sgd{momentum: cfg.Momentum, velocity: map[string][]float64{}}, nil
	case Adam:
		return &adam{cfg: cfg, m: map[string][]float64{}, v: map[string][]float64{}}, nil
	}
	return nil, fmt.Errorf("optim: unknown algorithm %q", cfg.Algorithm)
}

// checkPair verifies grads line up with params element for element.
func checkPair(params, grads *model.ParamSet) error {
	if params.Len() != grads.Len() {
		return fmt.Errorf("optim: %d params but %d gradients", params.Len(), grads.Len())
	}
	for _, name := range params.Names() {
		g := grads.Get(name)
		if g == nil {
			return fmt.Errorf("optim: missing gradient for %q", name)
		}
		if g.Len() != params.Get(name).Len() {
			return fmt.Errorf("optim: gradient %q has %d elements, param has %d",
				name, g.Len(), params.Get(name).Len())
		}
	}
	return nil
}
