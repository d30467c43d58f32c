package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kitmetrics "github.com/go-kit/kit/metrics"

	"classifier-forge/internal/artifact"
	"classifier-forge/internal/config"
	"classifier-forge/internal/dataset"
	"classifier-forge/internal/metrics"
	"classifier-forge/internal/model"
	"classifier-forge/internal/optim"
)

// Phase labels the two halves of an epoch.
type Phase string

const (
	PhaseTrain Phase = "train"
	PhaseValid Phase = "valid"
)

// EpochSummary carries both splits' aggregated metrics for one epoch.
type EpochSummary struct {
	Epoch int             `json:"epoch"`
	Train metrics.Summary `json:"train"`
	Valid metrics.Summary `json:"valid"`
}

// Result is what a completed fit hands back.
type Result struct {
	Model  model.Model
	Epochs []EpochSummary
}

// Instrumentation holds optional step-level meters, labeled by phase.
type Instrumentation struct {
	Steps   kitmetrics.Counter
	Latency kitmetrics.Histogram
}

// Learner drives the epoch loop: it pulls batches, invokes the step
// contracts, feeds gradients to the optimizer, aggregates metrics and
// checkpoints after every epoch. It is the sole owner of the model
// parameters; the optimizer update here is the only place they change.
type Learner struct {
	cfg    config.Training
	model  model.Model
	optim  optim.Optimizer
	store  *artifact.Store
	logger *slog.Logger
	instr  *Instrumentation
	window metrics.Throughput
}

// NewLearner wires a learner from its collaborators.
func NewLearner(cfg config.Training, m model.Model, o optim.Optimizer, store *artifact.Store, logger *slog.Logger, instr *Instrumentation) *Learner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Learner{
		cfg:    cfg,
		model:  m,
		optim:  o,
		store:  store,
		logger: logger,
		instr:  instr,
	}
}

// Fit runs the configured number of epochs over the two data sources
// and returns the trained model with per-epoch summaries. Termination
// is unconditional after NumEpochs; there is no early stopping. The
// first step failure aborts the run.
func (l *Learner) Fit(ctx context.Context, train, valid *dataset.Source) (*Result, error) {
	res := &Result{Epochs: make([]EpochSummary, 0, l.cfg.NumEpochs)}

	for epoch := 1; epoch <= l.cfg.NumEpochs; epoch++ {
		trainSum, err := l.trainPhase(ctx, train, epoch)
		if err != nil {
			return nil, err
		}
		validSum, err := l.validPhase(ctx, valid, epoch)
		if err != nil {
			return nil, err
		}

		summary := EpochSummary{Epoch: epoch, Train: trainSum, Valid: validSum}
		res.Epochs = append(res.Epochs, summary)
		l.logger.Info("epoch complete",
			slog.Int("epoch", epoch),
			slog.Float64("train_loss", trainSum.Loss),
			slog.Float64("train_accuracy", trainSum.Accuracy),
			slog.Float64("valid_loss", validSum.Loss),
			slog.Float64("valid_accuracy", validSum.Accuracy),
		)

		// A failed intermediate checkpoint does not corrupt the
		// trajectory; log and keep training.
		if err := l.store.Checkpoint(epoch, l.model); err != nil {
			l.logger.Error("checkpoint failed",
				slog.Int("epoch", epoch),
				slog.Any("error", err),
			)
		}
	}

	res.Model = l.model
	return res, nil
}

func (l *Learner) trainPhase(ctx context.Context, src *dataset.Source, epoch int) (metrics.Summary, error) {
	// The cancel releases the loader pipeline if the phase aborts early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var acc metrics.Accumulator
	l.window.Reset()
	loader, err := src.Batches(ctx, epoch)
	if err != nil {
		return metrics.Summary{}, fmt.Errorf("epoch %d %s: %w", epoch, PhaseTrain, err)
	}

	step := 0
	for {
		startData := time.Now()
		batch, err := loader.Next(ctx)
		if errors.Is(err, dataset.ErrExhausted) {
			break
		}
		if err != nil {
			return metrics.Summary{}, fmt.Errorf("epoch %d %s: next batch: %w", epoch, PhaseTrain, err)
		}
		dataTime := time.Since(startData)

		startCompute := time.Now()
		grads, out, err := TrainStep(l.model, batch)
		if err != nil {
			return metrics.Summary{}, fmt.Errorf("epoch %d %s: %w", epoch, PhaseTrain, err)
		}

		next, err := l.optim.Update(l.model.Params(), grads, l.cfg.LearningRate)
		if err != nil {
			return metrics.Summary{}, fmt.Errorf("epoch %d %s: optimizer: %w", epoch, PhaseTrain, err)
		}
		if err := l.model.SetParams(next); err != nil {
			return metrics.Summary{}, fmt.Errorf("epoch %d %s: install params: %w", epoch, PhaseTrain, err)
		}
		computeTime := time.Since(startCompute)

		step++
		acc.Record(out.Loss, batch.Size(), out.Correct())
		l.window.Observe(batch.Size(), dataTime, computeTime, out.Loss)
		l.observe(PhaseTrain, computeTime)

		if l.cfg.LogEvery > 0 && step%l.cfg.LogEvery == 0 {
			rates := l.window.Flush()
			l.logger.Info("train progress",
				slog.Int("epoch", epoch),
				slog.Int("step", step),
				slog.Float64("images_per_sec", rates.ImagesPerSec),
				slog.Float64("data_ms", rates.DataMS),
				slog.Float64("compute_ms", rates.ComputeMS),
				slog.Float64("loss", rates.LastLoss),
			)
		}
	}
	return acc.Summary(), nil
}

func (l *Learner) validPhase(ctx context.Context, src *dataset.Source, epoch int) (metrics.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var acc metrics.Accumulator
	loader, err := src.Batches(ctx, epoch)
	if err != nil {
		return metrics.Summary{}, fmt.Errorf("epoch %d %s: %w", epoch, PhaseValid, err)
	}

	for {
		batch, err := loader.Next(ctx)
		if errors.Is(err, dataset.ErrExhausted) {
			break
		}
		if err != nil {
			return metrics.Summary{}, fmt.Errorf("epoch %d %s: next batch: %w", epoch, PhaseValid, err)
		}

		start := time.Now()
		out, err := ValidStep(l.model, batch)
		if err != nil {
			return metrics.Summary{}, fmt.Errorf("epoch %d %s: %w", epoch, PhaseValid, err)
		}
		acc.Record(out.Loss, batch.Size(), out.Correct())
		l.observe(PhaseValid, time.Since(start))
	}
	return acc.Summary(), nil
}

func (l *Learner) observe(phase Phase, d time.Duration) {
	if l.instr == nil {
		return
	}
	l.instr.Steps.With("phase", string(phase)).Add(1)
	l.instr.Latency.With("phase", string(phase)).Observe(d.Seconds())
}
