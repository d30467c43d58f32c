// Package dataset turns an indexed collection of labeled images into a
// batched, optionally shuffled, worker-prefetched stream of batches.
package dataset

import (
	"fmt"

	"classifier-forge/internal/tensor"
)

// Sample is one labeled image. Pixels are normalized to [0, 1].
type Sample struct {
	Image [][]float64
	Label int
}

// Dataset is the collaborator contract: random access to samples.
type Dataset interface {
	Len() int
	At(i int) (Sample, error)
}

// Batch pairs a rank-3 input tensor [n, h, w] with one class label per
// sample. The two always agree on the batch dimension.
type Batch struct {
	Images *tensor.Dense
	Labels []int
}

// Size returns the number of samples in the batch.
func (b Batch) Size() int {
	if b.Images == nil {
		return 0
	}
	return b.Images.Dim(0)
}

// InMemory is a Dataset over a slice of samples.
type InMemory struct {
	samples []Sample
}

// NewInMemory wraps samples as a Dataset.
func NewInMemory(samples []Sample) *InMemory {
	return &InMemory{samples: samples}
}

// Len returns the number of samples.
func (d *InMemory) Len() int { return len(d.samples) }

// At returns sample i.
func (d *InMemory) At(i int) (Sample, error) {
	if i < 0 || i >= len(d.samples) {
		return Sample{}, fmt.Errorf("dataset: index %d out of range [0, %d)", i, len(d.samples))
	}
	return d.samples[i], nil
}
