package metrics

import "time"

// Throughput meters the train loop between progress logs: images
// processed, how step time split between waiting on the loader and
// computing, and the most recent loss. Flush emits the rates for one
// log line and starts the next interval; Reset discards a partial
// interval at an epoch boundary so rates never mix epochs.
type Throughput struct {
	images  int
	steps   int
	waiting time.Duration
	working time.Duration
	loss    float64
}

// Observe records one completed train step.
func (t *Throughput) Observe(batchSize int, waiting, working time.Duration, loss float64) {
	t.images += batchSize
	t.steps++
	t.waiting += waiting
	t.working += working
	t.loss = loss
}

// Flush returns the rates for the interval since the last flush and
// begins a new one.
func (t *Throughput) Flush() Rates {
	r := Rates{Steps: t.steps, LastLoss: t.loss}
	if elapsed := t.waiting + t.working; elapsed > 0 {
		r.ImagesPerSec = float64(t.images) / elapsed.Seconds()
	}
	if t.steps > 0 {
		r.DataMS = t.waiting.Seconds() * 1000 / float64(t.steps)
		r.ComputeMS = t.working.Seconds() * 1000 / float64(t.steps)
	}
	*t = Throughput{}
	return r
}

// Reset discards the current interval.
func (t *Throughput) Reset() { *t = Throughput{} }

// Rates is one interval's aggregated step timings.
type Rates struct {
	Steps        int
	ImagesPerSec float64
	DataMS       float64
	ComputeMS    float64
	LastLoss     float64
}
