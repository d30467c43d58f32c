package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"classifier-forge/internal/artifact"
	"classifier-forge/internal/config"
	"classifier-forge/internal/dataset"
	"classifier-forge/internal/model"
	"classifier-forge/internal/optim"
	"classifier-forge/internal/tensor"
)

// Train is the top-level entry point: it prepares the artifact
// directory, snapshots the config, seeds every stochastic collaborator
// from cfg.Seed, runs the fit loop and persists the final model.
func Train(ctx context.Context, artifactDir string, cfg config.Training, device tensor.Device, trainData, validData dataset.Dataset, logger *slog.Logger, instr *Instrumentation) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.NewString()
	logger = logger.With(slog.String("run_id", runID))

	store := artifact.NewStore(artifactDir)
	if err := store.Prepare(); err != nil {
		return nil, err
	}
	if err := store.SaveConfig(cfg); err != nil {
		return nil, err
	}

	// Every stochastic collaborator derives from the one config seed:
	// parameter init here, shuffle order inside the train source.
	mdl, err := model.NewMLP(cfg.Model, device, cfg.Seed)
	if err != nil {
		return nil, err
	}
	opt, err := optim.New(cfg.Optimizer)
	if err != nil {
		return nil, err
	}

	trainSrc := dataset.NewSource(trainData, dataset.Options{
		BatchSize:  cfg.BatchSize,
		Seed:       cfg.Seed,
		Shuffle:    true,
		NumWorkers: cfg.NumWorkers,
		Device:     device,
	})
	// Validation order is irrelevant to aggregated metrics; the source
	// still targets the device the model resides on.
	validSrc := dataset.NewSource(validData, dataset.Options{
		BatchSize:  cfg.BatchSize,
		NumWorkers: cfg.NumWorkers,
		Device:     device,
	})

	logger.Info("starting training",
		slog.Int("num_epochs", cfg.NumEpochs),
		slog.Int("batch_size", cfg.BatchSize),
		slog.Int("train_samples", trainSrc.Len()),
		slog.Int("valid_samples", validSrc.Len()),
		slog.String("device", string(device)),
	)

	start := time.Now()
	learner := NewLearner(cfg, mdl, opt, store, logger, instr)
	res, err := learner.Fit(ctx, trainSrc, validSrc)
	if err != nil {
		return nil, err
	}

	if err := store.SaveFinal(res.Model); err != nil {
		return nil, fmt.Errorf("training finished but final model not persisted: %w", err)
	}

	last := res.Epochs[len(res.Epochs)-1]
	logger.Info("training complete",
		slog.Duration("elapsed", time.Since(start)),
		slog.Float64("final_train_accuracy", last.Train.Accuracy),
		slog.Float64("final_valid_accuracy", last.Valid.Accuracy),
		slog.String("model_path", store.FinalModelPath()),
	)
	return res, nil
}
