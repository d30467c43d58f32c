package trainer

import (
	"fmt"
	"math"

	"classifier-forge/internal/dataset"
	"classifier-forge/internal/model"
	"classifier-forge/internal/tensor"
)

// ClassificationOutput is the per-batch result shared by the training
// and validation steps: the mean loss, the raw logits and the targets.
// It is created fresh per step and consumed immediately.
type ClassificationOutput struct {
	Loss    float64
	Logits  *tensor.Dense
	Targets []int

	// gradLogits is dLoss/dLogits, the seed for reverse-mode
	// differentiation. Populated only on the training path and
	// consumed once by TrainStep; nil in inference mode.
	gradLogits *tensor.Dense
}

// Correct returns how many samples the argmax of the logits classified
// correctly.
func (o ClassificationOutput) Correct() int {
	logits, err := o.Logits.Matrix()
	if err != nil {
		return 0
	}
	n, classes := logits.Dims()
	correct := 0
	for i := 0; i < n; i++ {
		best := 0
		for j := 1; j < classes; j++ {
			if logits.At(i, j) > logits.At(i, best) {
				best = j
			}
		}
		if best == o.Targets[i] {
			correct++
		}
	}
	return correct
}

// Evaluate runs the model's forward pass on a batch and computes the
// softmax cross-entropy loss with a fresh loss computation per call.
// Model parameters are never mutated and no gradient state is
// allocated; this is the inference-mode path.
func Evaluate(m model.Model, batch dataset.Batch) (ClassificationOutput, error) {
	logits, err := forwardChecked(m, batch)
	if err != nil {
		return ClassificationOutput{}, err
	}
	loss := crossEntropy(logits, batch.Labels, nil)
	return ClassificationOutput{
		Loss:    loss,
		Logits:  logits,
		Targets: batch.Labels,
	}, nil
}

// evaluateWithGrad is Evaluate plus the dLoss/dLogits seed the
// backward pass needs.
func evaluateWithGrad(m model.Model, batch dataset.Batch) (ClassificationOutput, error) {
	logits, err := forwardChecked(m, batch)
	if err != nil {
		return ClassificationOutput{}, err
	}
	grad := tensor.New(logits.Device(), logits.Dim(0), logits.Dim(1))
	loss := crossEntropy(logits, batch.Labels, grad.Data())
	return ClassificationOutput{
		Loss:       loss,
		Logits:     logits,
		Targets:    batch.Labels,
		gradLogits: grad,
	}, nil
}

// forwardChecked validates the batch against the model and runs the
// forward pass.
func forwardChecked(m model.Model, batch dataset.Batch) (*tensor.Dense, error) {
	n := batch.Size()
	if n == 0 {
		return nil, tensor.ErrEmptyBatch
	}
	if len(batch.Labels) != n {
		return nil, fmt.Errorf("%w: %d inputs but %d targets",
			tensor.ErrShapeMismatch, n, len(batch.Labels))
	}
	if batch.Images.Device() != m.Device() {
		return nil, fmt.Errorf("%w: inputs on %s, model on %s",
			tensor.ErrDeviceMismatch, batch.Images.Device(), m.Device())
	}

	logits, err := m.Forward(batch.Images)
	if err != nil {
		return nil, err
	}
	if logits.Rank() != 2 || logits.Dim(0) != n {
		return nil, fmt.Errorf("%w: logits %v for batch of %d",
			tensor.ErrShapeMismatch, logits.Shape(), n)
	}
	classes := logits.Dim(1)
	for i, t := range batch.Labels {
		if t < 0 || t >= classes {
			return nil, fmt.Errorf("%w: target %d at sample %d outside [0, %d)",
				tensor.ErrShapeMismatch, t, i, classes)
		}
	}
	return logits, nil
}

// crossEntropy computes the mean softmax cross-entropy over the batch.
// When grad is non-nil it also receives dLoss/dLogits =
// (softmax - onehot) / n; a nil grad skips all gradient work.
func crossEntropy(logits *tensor.Dense, targets []int, grad []float64) float64 {
	n := logits.Dim(0)
	classes := logits.Dim(1)
	rows := logits.Data()

	total := 0.0
	for i := 0; i < n; i++ {
		row := rows[i*classes : (i+1)*classes]
		maxLogit := row[0]
		for _, v := range row {
			if v > maxLogit {
				maxLogit = v
			}
		}
		sumExp := 0.0
		for _, v := range row {
			sumExp += math.Exp(v - maxLogit)
		}
		total += math.Log(sumExp) - (row[targets[i]] - maxLogit)

		if grad == nil {
			continue
		}
		gradRow := grad[i*classes : (i+1)*classes]
		inv := 1.0 / (sumExp * float64(n))
		for j, v := range row {
			gradRow[j] = math.Exp(v-maxLogit) * inv
		}
		gradRow[targets[i]] -= 1.0 / float64(n)
	}
	return total / float64(n)
}
