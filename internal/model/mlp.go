package model

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"classifier-forge/internal/tensor"
)

// MLP is a two-layer perceptron classifier: flatten, hidden linear with
// ReLU, output linear producing logits.
type MLP struct {
	cfg    Config
	device tensor.Device
	params *ParamSet
}

// Parameter names used in state dicts and gradient sets.
const (
	ParamHiddenWeight = "hidden.weight"
	ParamHiddenBias   = "hidden.bias"
	ParamOutputWeight = "output.weight"
	ParamOutputBias   = "output.bias"
)

// NewMLP constructs the model on device with seeded random weights.
func NewMLP(cfg Config, device tensor.Device, seed int64) (*MLP, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	inputSize := cfg.ImageHeight * cfg.ImageWidth
	rng := rand.New(rand.NewSource(seed))

	w1 := tensor.New(device, inputSize, cfg.HiddenSize)
	fill(rng, w1.Data())
	b1 := tensor.New(device, cfg.HiddenSize)
	w2 := tensor.New(device, cfg.HiddenSize, cfg.NumClasses)
	fill(rng, w2.Data())
	b2 := tensor.New(device, cfg.NumClasses)

	return &MLP{
		cfg:    cfg,
		device: device,
		params: NewParamSet(
			Param{Name: ParamHiddenWeight, Value: w1},
			Param{Name: ParamHiddenBias, Value: b1},
			Param{Name: ParamOutputWeight, Value: w2},
			Param{Name: ParamOutputBias, Value: b2},
		),
	}, nil
}

func fill(rng *rand.Rand, data []float64) {
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * 0.01
	}
}

// Config returns the model hyperparameters.
func (m *MLP) Config() Config { return m.cfg }

// Device reports where the parameters reside.
func (m *MLP) Device() tensor.Device { return m.device }

// Params returns the current parameter set.
func (m *MLP) Params() *ParamSet { return m.params }

// SetParams installs a new parameter set, validating names, shapes and
// device placement against the current one.
func (m *MLP) SetParams(ps *ParamSet) error {
	if err := m.params.matchShapes(ps); err != nil {
		return err
	}
	for _, name := range ps.Names() {
		if ps.Get(name).Device() != m.device {
			return fmt.Errorf("%w: param %q on %s, model on %s",
				tensor.ErrDeviceMismatch, name, ps.Get(name).Device(), m.device)
		}
	}
	m.params = ps
	return nil
}

// Forward runs the model on a rank-3 batch [n, h, w] and returns logits
// [n, num_classes]. Parameters are not mutated.
func (m *MLP) Forward(inputs *tensor.Dense) (*tensor.Dense, error) {
	x, err := m.flatten(inputs)
	if err != nil {
		return nil, err
	}
	_, h := m.hidden(x)
	logits := m.output(h)
	return tensor.FromMatrix(m.device, logits), nil
}

// Backward computes the gradient set for a batch given dLoss/dLogits.
// The hidden activations are recomputed from the inputs (one matmul)
// rather than cached across the step boundary.
func (m *MLP) Backward(inputs, gradLogits *tensor.Dense) (*ParamSet, error) {
	x, err := m.flatten(inputs)
	if err != nil {
		return nil, err
	}
	n, _ := x.Dims()
	gn := gradLogits.Dim(0)
	if gradLogits.Rank() != 2 || gn != n || gradLogits.Dim(1) != m.cfg.NumClasses {
		return nil, fmt.Errorf("%w: grad logits %v, want [%d %d]",
			tensor.ErrShapeMismatch, gradLogits.Shape(), n, m.cfg.NumClasses)
	}
	g, err := gradLogits.Matrix()
	if err != nil {
		return nil, err
	}

	z1, h := m.hidden(x)
	w2, _ := m.params.Get(ParamOutputWeight).Matrix()

	var dw2 mat.Dense
	dw2.Mul(h.T(), g)
	db2 := columnSums(g)

	var dh mat.Dense
	dh.Mul(g, w2.T())
	// Gate the hidden gradient by the ReLU derivative.
	dz1 := &dh
	dz1.Apply(func(i, j int, v float64) float64 {
		if z1.At(i, j) > 0 {
			return v
		}
		return 0
	}, dz1)

	var dw1 mat.Dense
	dw1.Mul(x.T(), dz1)
	db1 := columnSums(dz1)

	b1t, _ := tensor.FromSlice(m.device, db1, len(db1))
	b2t, _ := tensor.FromSlice(m.device, db2, len(db2))
	return NewParamSet(
		Param{Name: ParamHiddenWeight, Value: tensor.FromMatrix(m.device, &dw1)},
		Param{Name: ParamHiddenBias, Value: b1t},
		Param{Name: ParamOutputWeight, Value: tensor.FromMatrix(m.device, &dw2)},
		Param{Name: ParamOutputBias, Value: b2t},
	), nil
}

// flatten validates a rank-3 batch against the configured image dims
// and returns its [n, h*w] matrix view.
func (m *MLP) flatten(inputs *tensor.Dense) (*mat.Dense, error) {
	if inputs.Rank() != 3 {
		return nil, fmt.Errorf("%w: inputs must be rank 3, have %v", tensor.ErrShapeMismatch, inputs.Shape())
	}
	if inputs.Dim(1) != m.cfg.ImageHeight || inputs.Dim(2) != m.cfg.ImageWidth {
		return nil, fmt.Errorf("%w: sample dims %dx%d, model expects %dx%d",
			tensor.ErrShapeMismatch, inputs.Dim(1), inputs.Dim(2), m.cfg.ImageHeight, m.cfg.ImageWidth)
	}
	flat, err := inputs.Reshape(inputs.Dim(0), m.cfg.ImageHeight*m.cfg.ImageWidth)
	if err != nil {
		return nil, err
	}
	return flat.Matrix()
}

// hidden computes the pre-activation z1 and activation h = relu(z1).
func (m *MLP) hidden(x *mat.Dense) (z1, h *mat.Dense) {
	w1, _ := m.params.Get(ParamHiddenWeight).Matrix()
	b1 := m.params.Get(ParamHiddenBias).Data()

	z1 = &mat.Dense{}
	z1.Mul(x, w1)
	addRowBias(z1, b1)

	h = &mat.Dense{}
	h.Apply(func(_, _ int, v float64) float64 {
		if v > 0 {
			return v
		}
		return 0
	}, z1)
	return z1, h
}

// output computes logits = h*W2 + b2.
func (m *MLP) output(h *mat.Dense) *mat.Dense {
	w2, _ := m.params.Get(ParamOutputWeight).Matrix()
	b2 := m.params.Get(ParamOutputBias).Data()

	logits := &mat.Dense{}
	logits.Mul(h, w2)
	addRowBias(logits, b2)
	return logits
}

func addRowBias(m *mat.Dense, bias []float64) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		for j := 0; j < c; j++ {
			row[j] += bias[j]
		}
	}
}

func columnSums(m mat.Matrix) []float64 {
	r, c := m.Dims()
	sums := make([]float64, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			sums[j] += m.At(i, j)
		}
	}
	return sums
}
