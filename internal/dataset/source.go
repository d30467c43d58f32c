package dataset

import "context"

// Source binds a Dataset to loader options, yielding one full pass per
// Batches call. The shuffle order for epoch i is derived from the run
// seed and the epoch index, so a fixed seed fixes the whole trajectory.
type Source struct {
	ds   Dataset
	opts Options
}

// NewSource wraps ds with opts.
func NewSource(ds Dataset, opts Options) *Source {
	return &Source{ds: ds, opts: opts}
}

// Len returns the number of samples in the underlying dataset.
func (s *Source) Len() int { return s.ds.Len() }

// Batches starts a loader for one pass over the dataset.
func (s *Source) Batches(ctx context.Context, epoch int) (*Loader, error) {
	opts := s.opts
	if opts.Shuffle {
		opts.Seed = s.opts.Seed + int64(epoch)
	}
	return Stream(ctx, s.ds, opts)
}
