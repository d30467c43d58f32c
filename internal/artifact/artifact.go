// Package artifact owns the on-disk output directory of a training
// run: the config snapshot, per-epoch checkpoints and the final model.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"classifier-forge/internal/config"
	"classifier-forge/internal/model"
	"classifier-forge/internal/tensor"
)

const (
	// ConfigFile is the config snapshot name inside the artifact dir.
	ConfigFile = "config.json"
	// FinalModelFile is the well-known name of the trained model.
	FinalModelFile = "model.json"

	checkpointPattern = "checkpoint-%04d.json"
)

// Store manages one run's artifact directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir. Call Prepare before use.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the artifact directory path.
func (s *Store) Dir() string { return s.dir }

// Prepare wipes and recreates the artifact directory. Removing a
// missing directory is a no-op, so the operation is idempotent.
func (s *Store) Prepare() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("reset artifact dir: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	return nil
}

// SaveConfig persists the run configuration snapshot.
func (s *Store) SaveConfig(cfg config.Training) error {
	return config.Save(filepath.Join(s.dir, ConfigFile), cfg)
}

// Checkpoint persists a point-in-time snapshot of the model state
// keyed by epoch number.
func (s *Store) Checkpoint(epoch int, m model.Model) error {
	path := filepath.Join(s.dir, fmt.Sprintf(checkpointPattern, epoch))
	if err := writeState(path, m.Params()); err != nil {
		return fmt.Errorf("checkpoint epoch %d: %w", epoch, err)
	}
	return nil
}

// CheckpointPath returns the path Checkpoint uses for epoch.
func (s *Store) CheckpointPath(epoch int) string {
	return filepath.Join(s.dir, fmt.Sprintf(checkpointPattern, epoch))
}

// SaveFinal persists the trained model under its fixed name. The
// trained model must not silently vanish, so failures here are fatal
// to the run.
func (s *Store) SaveFinal(m model.Model) error {
	if err := writeState(filepath.Join(s.dir, FinalModelFile), m.Params()); err != nil {
		return fmt.Errorf("save final model: %w", err)
	}
	return nil
}

// FinalModelPath returns the path SaveFinal writes to.
func (s *Store) FinalModelPath() string {
	return filepath.Join(s.dir, FinalModelFile)
}

func writeState(path string, ps *model.ParamSet) error {
	b, err := json.Marshal(ps)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// LoadModel reconstructs a model from a state file written by
// Checkpoint or SaveFinal, given the config it was trained with.
func LoadModel(path string, cfg model.Config, device tensor.Device) (model.Model, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model state: %w", err)
	}
	var ps model.ParamSet
	if err := json.Unmarshal(b, &ps); err != nil {
		return nil, fmt.Errorf("parse model state: %w", err)
	}
	m, err := model.NewMLP(cfg, device, 0)
	if err != nil {
		return nil, err
	}
	if err := m.SetParams(&ps); err != nil {
		return nil, fmt.Errorf("load model state: %w", err)
	}
	return m, nil
}
