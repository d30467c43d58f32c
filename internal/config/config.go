package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"

	"classifier-forge/internal/model"
	"classifier-forge/internal/optim"
)

// Defaults applied by New for fields the caller leaves unset.
const (
	DefaultNumEpochs    = 5
	DefaultBatchSize    = 64
	DefaultNumWorkers   = 4
	DefaultSeed         = 42
	DefaultLearningRate = 1.0e-4
	DefaultLogEvery     = 50
)

// Training is the immutable record of every knob for a run. It is
// created once at run start, serialized verbatim to the artifact
// directory and never mutated afterwards.
type Training struct {
	Model        model.Config `json:"model"`
	Optimizer    optim.Config `json:"optimizer"`
	NumEpochs    int          `json:"num_epochs" env:"TRAIN_NUM_EPOCHS"`
	BatchSize    int          `json:"batch_size" env:"TRAIN_BATCH_SIZE"`
	NumWorkers   int          `json:"num_workers" env:"TRAIN_NUM_WORKERS"`
	Seed         int64        `json:"seed" env:"TRAIN_SEED"`
	LearningRate float64      `json:"learning_rate" env:"TRAIN_LEARNING_RATE"`
	LogEvery     int          `json:"log_every" env:"TRAIN_LOG_EVERY"`
}

// New builds a Training config from the required model and optimizer
// sub-configs, filling every other field with its default.
func New(mc model.Config, oc optim.Config) Training {
	return Training{
		Model:        mc,
		Optimizer:    oc,
		NumEpochs:    DefaultNumEpochs,
		BatchSize:    DefaultBatchSize,
		NumWorkers:   DefaultNumWorkers,
		Seed:         DefaultSeed,
		LearningRate: DefaultLearningRate,
		LogEvery:     DefaultLogEvery,
	}
}

// Overrides captures CLI supplied values. Zero values leave the config
// untouched.
type Overrides struct {
	NumEpochs    int
	BatchSize    int
	NumWorkers   int
	Seed         int64
	LearningRate float64
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Training) ApplyOverrides(o Overrides) {
	if o.NumEpochs > 0 {
		c.NumEpochs = o.NumEpochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.NumWorkers > 0 {
		c.NumWorkers = o.NumWorkers
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
}

// ApplyEnv overlays TRAIN_* environment variables onto the config.
func (c *Training) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate verifies the config is runnable.
func (c *Training) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := c.Model.Validate(); err != nil {
		return err
	}
	if err := c.Optimizer.Validate(); err != nil {
		return err
	}
	if c.NumEpochs <= 0 {
		return fmt.Errorf("num_epochs must be > 0 (got %d)", c.NumEpochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.NumWorkers <= 0 {
		return fmt.Errorf("num_workers must be > 0 (got %d)", c.NumWorkers)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be > 0 (got %g)", c.LearningRate)
	}
	if c.LogEvery <= 0 {
		c.LogEvery = DefaultLogEvery
	}
	return nil
}

// Save writes the config as indented JSON.
func Save(path string, c Training) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load reads and validates a config written by Save. Round-trips: the
// loaded config is semantically equal to what was saved.
func Load(path string) (Training, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Training{}, fmt.Errorf("read config: %w", err)
	}
	var c Training
	if err := json.Unmarshal(b, &c); err != nil {
		return Training{}, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Training{}, err
	}
	return c, nil
}
