package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classifier-forge/internal/model"
	"classifier-forge/internal/optim"
)

func testModelConfig() model.Config {
	return model.Config{NumClasses: 10, HiddenSize: 32, ImageHeight: 28, ImageWidth: 28}
}

func TestNewAppliesDefaults(t *testing.T) {
	cfg := New(testModelConfig(), optim.NewAdamConfig())

	assert.Equal(t, DefaultNumEpochs, cfg.NumEpochs)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, DefaultNumWorkers, cfg.NumWorkers)
	assert.Equal(t, int64(DefaultSeed), cfg.Seed)
	assert.Equal(t, DefaultLearningRate, cfg.LearningRate)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsMissingSubConfigs(t *testing.T) {
	cfg := New(model.Config{}, optim.NewAdamConfig())
	assert.Error(t, cfg.Validate())

	cfg = New(testModelConfig(), optim.Config{})
	assert.Error(t, cfg.Validate())
}

func TestValidateBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Training)
	}{
		{name: "epochs", mutate: func(c *Training) { c.NumEpochs = 0 }},
		{name: "batch size", mutate: func(c *Training) { c.BatchSize = -1 }},
		{name: "workers", mutate: func(c *Training) { c.NumWorkers = 0 }},
		{name: "learning rate", mutate: func(c *Training) { c.LearningRate = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New(testModelConfig(), optim.NewAdamConfig())
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := New(testModelConfig(), optim.NewAdamConfig())
	cfg.NumEpochs = 3
	cfg.Seed = 1234

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadRejectsInvalid(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestApplyOverridesSkipsZeroValues(t *testing.T) {
	cfg := New(testModelConfig(), optim.NewAdamConfig())
	cfg.ApplyOverrides(Overrides{NumEpochs: 9, Seed: -1})

	assert.Equal(t, 9, cfg.NumEpochs)
	assert.Equal(t, int64(-1), cfg.Seed)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("TRAIN_NUM_EPOCHS", "7")
	t.Setenv("TRAIN_LEARNING_RATE", "0.01")

	cfg := New(testModelConfig(), optim.NewAdamConfig())
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, 7, cfg.NumEpochs)
	assert.Equal(t, 0.01, cfg.LearningRate)
}
