package metrics

// Accumulator aggregates loss and accuracy for one split across an
// epoch. Reset at epoch boundaries; read by the summary logic at epoch
// end. Partial batches carry their true sample count, so averages are
// weighted correctly.
type Accumulator struct {
	samples int
	lossSum float64
	correct int
}

// Record adds one batch's results: the mean loss over the batch, the
// batch size and the number of correctly classified samples.
func (a *Accumulator) Record(loss float64, batchSize, correct int) {
	a.samples += batchSize
	a.lossSum += loss * float64(batchSize)
	a.correct += correct
}

// Reset clears the accumulator for the next epoch.
func (a *Accumulator) Reset() {
	*a = Accumulator{}
}

// Summary returns the aggregated metrics for the split.
func (a *Accumulator) Summary() Summary {
	s := Summary{Samples: a.samples}
	if a.samples > 0 {
		s.Loss = a.lossSum / float64(a.samples)
		s.Accuracy = float64(a.correct) / float64(a.samples)
	}
	return s
}

// Summary is one split's aggregated epoch metrics.
type Summary struct {
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
	Samples  int     `json:"samples"`
}
