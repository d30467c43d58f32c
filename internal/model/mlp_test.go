package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classifier-forge/internal/tensor"
)

func testConfig() Config {
	return Config{NumClasses: 3, HiddenSize: 4, ImageHeight: 2, ImageWidth: 2}
}

func testInputs(t *testing.T, n int) *tensor.Dense {
	t.Helper()
	data := make([]float64, n*4)
	for i := range data {
		data[i] = float64(i%7) / 7.0
	}
	inputs, err := tensor.FromSlice(tensor.CPU, data, n, 2, 2)
	require.NoError(t, err)
	return inputs
}

func TestNewMLPRequiresFullConfig(t *testing.T) {
	_, err := NewMLP(Config{}, tensor.CPU, 1)
	require.Error(t, err)
}

func TestForwardShape(t *testing.T) {
	m, err := NewMLP(testConfig(), tensor.CPU, 1)
	require.NoError(t, err)

	logits, err := m.Forward(testInputs(t, 5))
	require.NoError(t, err)
	assert.Equal(t, []int{5, 3}, logits.Shape())
}

func TestForwardRejectsWrongDims(t *testing.T) {
	m, err := NewMLP(testConfig(), tensor.CPU, 1)
	require.NoError(t, err)

	bad, err := tensor.FromSlice(tensor.CPU, make([]float64, 2*3*3), 2, 3, 3)
	require.NoError(t, err)
	_, err = m.Forward(bad)
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestInitDeterminism(t *testing.T) {
	a, err := NewMLP(testConfig(), tensor.CPU, 42)
	require.NoError(t, err)
	b, err := NewMLP(testConfig(), tensor.CPU, 42)
	require.NoError(t, err)

	for _, name := range a.Params().Names() {
		assert.Equal(t, a.Params().Get(name).Data(), b.Params().Get(name).Data(), name)
	}
}

func TestBackwardZeroUpstreamGradient(t *testing.T) {
	m, err := NewMLP(testConfig(), tensor.CPU, 1)
	require.NoError(t, err)

	inputs := testInputs(t, 2)
	zero := tensor.New(tensor.CPU, 2, 3)
	grads, err := m.Backward(inputs, zero)
	require.NoError(t, err)

	require.Equal(t, m.Params().Len(), grads.Len())
	for _, name := range grads.Names() {
		for _, v := range grads.Get(name).Data() {
			assert.Zero(t, v, name)
		}
	}
}

func TestBackwardRejectsBadGradShape(t *testing.T) {
	m, err := NewMLP(testConfig(), tensor.CPU, 1)
	require.NoError(t, err)

	bad := tensor.New(tensor.CPU, 2, 5)
	_, err = m.Backward(testInputs(t, 2), bad)
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestBackwardDoesNotMutateParams(t *testing.T) {
	m, err := NewMLP(testConfig(), tensor.CPU, 1)
	require.NoError(t, err)
	before := m.Params().Clone()

	grad := tensor.New(tensor.CPU, 2, 3)
	for i := range grad.Data() {
		grad.Data()[i] = 0.5
	}
	_, err = m.Backward(testInputs(t, 2), grad)
	require.NoError(t, err)

	for _, name := range before.Names() {
		assert.Equal(t, before.Get(name).Data(), m.Params().Get(name).Data(), name)
	}
}

func TestSetParamsValidation(t *testing.T) {
	m, err := NewMLP(testConfig(), tensor.CPU, 1)
	require.NoError(t, err)

	require.Error(t, m.SetParams(nil))
	require.Error(t, m.SetParams(NewParamSet()))

	err = m.SetParams(NewParamSet(
		Param{Name: ParamHiddenWeight, Value: tensor.New(tensor.CPU, 1)},
		Param{Name: ParamHiddenBias, Value: tensor.New(tensor.CPU, 1)},
		Param{Name: ParamOutputWeight, Value: tensor.New(tensor.CPU, 1)},
		Param{Name: ParamOutputBias, Value: tensor.New(tensor.CPU, 1)},
	))
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)

	require.NoError(t, m.SetParams(m.Params().Clone()))
}

func TestStateDictRoundTrip(t *testing.T) {
	m, err := NewMLP(testConfig(), tensor.CPU, 7)
	require.NoError(t, err)

	b, err := json.Marshal(m.Params())
	require.NoError(t, err)

	var ps ParamSet
	require.NoError(t, json.Unmarshal(b, &ps))

	restored, err := NewMLP(testConfig(), tensor.CPU, 0)
	require.NoError(t, err)
	require.NoError(t, restored.SetParams(&ps))

	inputs := testInputs(t, 3)
	want, err := m.Forward(inputs)
	require.NoError(t, err)
	got, err := restored.Forward(inputs)
	require.NoError(t, err)

	for i := range want.Data() {
		assert.InDelta(t, want.Data()[i], got.Data()[i], 1e-12)
	}
}

func TestGradientDirectionReducesLoss(t *testing.T) {
	// One gradient step against a fixed dLoss/dLogits should move the
	// logits opposite to that gradient.
	m, err := NewMLP(testConfig(), tensor.CPU, 3)
	require.NoError(t, err)
	inputs := testInputs(t, 1)

	grad := tensor.New(tensor.CPU, 1, 3)
	grad.Data()[0] = 1 // push class-0 logit down

	grads, err := m.Backward(inputs, grad)
	require.NoError(t, err)

	before, err := m.Forward(inputs)
	require.NoError(t, err)

	next := m.Params().Clone()
	for _, name := range next.Names() {
		p := next.Get(name).Data()
		g := grads.Get(name).Data()
		for i := range p {
			p[i] -= 0.1 * g[i]
		}
	}
	require.NoError(t, m.SetParams(next))

	after, err := m.Forward(inputs)
	require.NoError(t, err)
	assert.Less(t, after.Data()[0], before.Data()[0])
	assert.False(t, math.IsNaN(after.Data()[0]))
}
