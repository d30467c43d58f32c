package trainer

import (
	"classifier-forge/internal/dataset"
	"classifier-forge/internal/model"
)

// TrainStep evaluates one batch and computes gradients of the loss
// with respect to every trainable parameter. The gradient set is
// returned fresh, not accumulated anywhere, to be consumed exactly
// once by the optimizer. Model parameters are read, never written.
func TrainStep(m model.Model, batch dataset.Batch) (*model.ParamSet, ClassificationOutput, error) {
	out, err := evaluateWithGrad(m, batch)
	if err != nil {
		return nil, ClassificationOutput{}, err
	}
	grads, err := m.Backward(batch.Images, out.gradLogits)
	if err != nil {
		return nil, ClassificationOutput{}, err
	}
	return grads, out, nil
}

// ValidStep evaluates one batch in inference mode: forward pass only,
// no gradient computation, model state read-only throughout.
func ValidStep(m model.Model, batch dataset.Batch) (ClassificationOutput, error) {
	return Evaluate(m, batch)
}
