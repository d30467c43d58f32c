package dataset

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"classifier-forge/internal/tensor"
)

// ErrExhausted signals a normal end of the stream: every batch has
// been consumed. It is not a failure; an epoch phase ends here.
var ErrExhausted = errors.New("dataset: exhausted")

// Options configures a batch Loader.
type Options struct {
	BatchSize  int
	Seed       int64
	Shuffle    bool
	NumWorkers int
	Device     tensor.Device
}

type batchJob struct {
	id      int
	indices []int
}

type batchResult struct {
	id    int
	batch Batch
}

// Loader streams batches assembled concurrently by prefetch workers.
// Batches are delivered in deterministic order regardless of worker
// count: assembly is parallel, emission is ordered by batch id.
type Loader struct {
	out     <-chan Batch
	loadErr *error
}

// Stream launches the loader pipeline over ds. The final batch may be
// smaller than BatchSize; nothing is dropped or padded.
func Stream(ctx context.Context, ds Dataset, opts Options) (*Loader, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, errors.New("dataset: no samples")
	}
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("dataset: batch size must be > 0 (got %d)", opts.BatchSize)
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}
	if opts.Device == "" {
		opts.Device = tensor.CPU
	}

	order := make([]int, ds.Len())
	for i := range order {
		order[i] = i
	}
	if opts.Shuffle {
		rng := rand.New(rand.NewSource(opts.Seed))
		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan batchJob)
	results := make(chan batchResult, opts.NumWorkers)
	out := make(chan Batch, opts.NumWorkers)

	go func() {
		defer close(jobs)
		id := 0
		for start := 0; start < len(order); start += opts.BatchSize {
			end := start + opts.BatchSize
			if end > len(order) {
				end = len(order)
			}
			select {
			case <-gctx.Done():
				return
			case jobs <- batchJob{id: id, indices: order[start:end]}:
				id++
			}
		}
	}()

	for w := 0; w < opts.NumWorkers; w++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					batch, err := assemble(ds, job.indices, opts.Device)
					if err != nil {
						return err
					}
					select {
					case <-gctx.Done():
						return gctx.Err()
					case results <- batchResult{id: job.id, batch: batch}:
					}
				}
			}
		})
	}

	var loadErr error
	go func() {
		loadErr = g.Wait()
		close(results)
	}()

	go func() {
		defer close(out)
		pending := make(map[int]Batch)
		next := 0
		for res := range results {
			pending[res.id] = res.batch
			for {
				batch, ok := pending[next]
				if !ok {
					break
				}
				select {
				case <-ctx.Done():
					// Drain so the workers can finish and loadErr is
					// settled before out closes.
					for range results {
					}
					return
				case out <- batch:
					delete(pending, next)
					next++
				}
			}
		}
	}()

	return &Loader{out: out, loadErr: &loadErr}, nil
}

// Next blocks for the next batch. It returns ErrExhausted once every
// batch has been delivered, or the first pipeline error.
func (l *Loader) Next(ctx context.Context) (Batch, error) {
	select {
	case <-ctx.Done():
		return Batch{}, ctx.Err()
	default:
	}
	select {
	case <-ctx.Done():
		return Batch{}, ctx.Err()
	case batch, ok := <-l.out:
		if !ok {
			if err := *l.loadErr; err != nil && !errors.Is(err, context.Canceled) {
				return Batch{}, err
			}
			return Batch{}, ErrExhausted
		}
		return batch, nil
	}
}

// assemble fetches the samples for one batch and packs them into a
// rank-3 tensor on device.
func assemble(ds Dataset, indices []int, device tensor.Device) (Batch, error) {
	if len(indices) == 0 {
		return Batch{}, tensor.ErrEmptyBatch
	}
	first, err := ds.At(indices[0])
	if err != nil {
		return Batch{}, err
	}
	h := len(first.Image)
	if h == 0 {
		return Batch{}, fmt.Errorf("%w: sample %d has no rows", tensor.ErrShapeMismatch, indices[0])
	}
	w := len(first.Image[0])

	data := make([]float64, len(indices)*h*w)
	labels := make([]int, len(indices))
	for i, idx := range indices {
		sample := first
		if i > 0 {
			sample, err = ds.At(idx)
			if err != nil {
				return Batch{}, err
			}
		}
		if len(sample.Image) != h {
			return Batch{}, fmt.Errorf("%w: sample %d has %d rows, batch has %d",
				tensor.ErrShapeMismatch, idx, len(sample.Image), h)
		}
		for r, row := range sample.Image {
			if len(row) != w {
				return Batch{}, fmt.Errorf("%w: sample %d row %d has %d cols, batch has %d",
					tensor.ErrShapeMismatch, idx, r, len(row), w)
			}
			copy(data[(i*h+r)*w:(i*h+r+1)*w], row)
		}
		labels[i] = sample.Label
	}

	images, err := tensor.FromSlice(device, data, len(indices), h, w)
	if err != nil {
		return Batch{}, err
	}
	return Batch{Images: images, Labels: labels}, nil
}
