package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"classifier-forge/internal/tensor"
)

// Config holds the model hyperparameters. All fields are required.
type Config struct {
	NumClasses  int `json:"num_classes"`
	HiddenSize  int `json:"hidden_size"`
	ImageHeight int `json:"image_height"`
	ImageWidth  int `json:"image_width"`
}

// Validate verifies the config is usable. There are no defaults; the
// caller must supply every field.
func (c Config) Validate() error {
	if c.NumClasses <= 1 {
		return fmt.Errorf("model: num_classes must be > 1 (got %d)", c.NumClasses)
	}
	if c.HiddenSize <= 0 {
		return fmt.Errorf("model: hidden_size must be > 0 (got %d)", c.HiddenSize)
	}
	if c.ImageHeight <= 0 || c.ImageWidth <= 0 {
		return fmt.Errorf("model: image dims must be > 0 (got %dx%d)", c.ImageHeight, c.ImageWidth)
	}
	return nil
}

// Model is the contract the fit loop imposes on a differentiable
// classifier. Forward never mutates parameters; Backward returns a
// fresh gradient set to be consumed exactly once by the optimizer.
type Model interface {
	// Forward runs inference on a rank-3 input batch and returns logits
	// shaped [batch, num_classes].
	Forward(inputs *tensor.Dense) (*tensor.Dense, error)

	// Backward computes gradients of the loss with respect to every
	// trainable parameter, given dLoss/dLogits for the same inputs.
	Backward(inputs, gradLogits *tensor.Dense) (*ParamSet, error)

	// Params returns the current trainable parameters. The returned set
	// is a read view; callers install updates through SetParams.
	Params() *ParamSet

	// SetParams replaces the trainable parameters with a new set.
	SetParams(ps *ParamSet) error

	Config() Config
	Device() tensor.Device
}

// Param is one named trainable tensor.
type Param struct {
	Name  string
	Value *tensor.Dense
}

// ParamSet is an ordered collection of named parameters. The same
// structure carries gradients: a gradient set has the same names and
// shapes as the parameters it was derived from.
type ParamSet struct {
	params []Param
	index  map[string]int
}

// NewParamSet builds a set from params, preserving order.
func NewParamSet(params ...Param) *ParamSet {
	ps := &ParamSet{index: make(map[string]int, len(params))}
	for _, p := range params {
		ps.index[p.Name] = len(ps.params)
		ps.params = append(ps.params, p)
	}
	return ps
}

// Get returns the tensor registered under name, or nil.
func (ps *ParamSet) Get(name string) *tensor.Dense {
	i, ok := ps.index[name]
	if !ok {
		return nil
	}
	return ps.params[i].Value
}

// Names returns parameter names in registration order.
func (ps *ParamSet) Names() []string {
	names := make([]string, len(ps.params))
	for i, p := range ps.params {
		names[i] = p.Name
	}
	return names
}

// Len returns the number of parameters.
func (ps *ParamSet) Len() int { return len(ps.params) }

// Clone deep-copies every tensor in the set.
func (ps *ParamSet) Clone() *ParamSet {
	out := make([]Param, len(ps.params))
	for i, p := range ps.params {
		out[i] = Param{Name: p.Name, Value: p.Value.Clone()}
	}
	return NewParamSet(out...)
}

type paramState struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// MarshalJSON serializes the set as a name-keyed state dict.
func (ps *ParamSet) MarshalJSON() ([]byte, error) {
	state := make(map[string]paramState, len(ps.params))
	for _, p := range ps.params {
		state[p.Name] = paramState{Shape: p.Value.Shape(), Data: p.Value.Data()}
	}
	return json.Marshal(state)
}

// UnmarshalJSON loads a state dict. Tensors land on the CPU device;
// SetParams revalidates placement against the receiving model.
func (ps *ParamSet) UnmarshalJSON(b []byte) error {
	var state map[string]paramState
	if err := json.Unmarshal(b, &state); err != nil {
		return err
	}
	names := make([]string, 0, len(state))
	for name := range state {
		names = append(names, name)
	}
	sort.Strings(names)
	*ps = ParamSet{index: make(map[string]int, len(names))}
	for _, name := range names {
		s := state[name]
		t, err := tensor.FromSlice(tensor.CPU, s.Data, s.Shape...)
		if err != nil {
			return fmt.Errorf("param %q: %w", name, err)
		}
		ps.index[name] = len(ps.params)
		ps.params = append(ps.params, Param{Name: name, Value: t})
	}
	return nil
}

// matchShapes verifies that other carries exactly the names and shapes
// of ps.
func (ps *ParamSet) matchShapes(other *ParamSet) error {
	if other == nil {
		return errors.New("model: nil param set")
	}
	if len(other.params) != len(ps.params) {
		return fmt.Errorf("model: expected %d params, got %d", len(ps.params), len(other.params))
	}
	for _, p := range ps.params {
		v := other.Get(p.Name)
		if v == nil {
			return fmt.Errorf("model: missing param %q", p.Name)
		}
		if v.Len() != p.Value.Len() {
			return fmt.Errorf("%w: param %q has %d elements, want %d",
				tensor.ErrShapeMismatch, p.Name, v.Len(), p.Value.Len())
		}
	}
	return nil
}
