package monitor

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/supermechanical/rangelink/internal/errors"
	"github.com/supermechanical/rangelink/internal/logger"
	"github.com/supermechanical/rangelink/internal/trigger"
)

// TriggerStore holds the trigger configuration and persists every change to
// a YAML file when a path is set.
type TriggerStore struct {
	mu   sync.RWMutex
	path string
	cfg  trigger.Config
}

// NewTriggerStore loads path when it exists and falls back to initial
// otherwise. An empty path keeps the configuration in memory only.
func NewTriggerStore(path string, initial trigger.Config) (*TriggerStore, error) {
	s := &TriggerStore{path: path, cfg: initial}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, errors.New(err).
			Component("monitor").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	t, err := trigger.Decode(data)
	if err != nil {
		return nil, err
	}
	s.cfg = t.Config()
	GetLogger().Info("restored trigger",
		logger.String("path", path),
		logger.Float32("temperature", s.cfg.Temperature),
		logger.String("direction", s.cfg.Direction.String()))
	return s, nil
}

// Config returns the current configuration.
func (s *TriggerStore) Config() trigger.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Set replaces the configuration and writes it through to disk.
func (s *TriggerStore) Set(c trigger.Config) error {
	if c.Direction == trigger.Unset {
		return errors.Newf("trigger direction must be set").
			Component("monitor").
			Category(errors.CategoryValidation).
			Build()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path != "" {
		if err := writeFileAtomic(s.path, c); err != nil {
			return err
		}
	}
	s.cfg = c
	return nil
}

// writeFileAtomic writes through a temporary file in the same directory so a
// crash never leaves a truncated trigger file.
func writeFileAtomic(path string, c trigger.Config) error {
	data, err := trigger.FromConfig(c).Encode()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(err).
			Component("monitor").
			Category(errors.CategoryFileIO).
			Context("path", dir).
			Build()
	}
	tmp, err := os.CreateTemp(dir, ".trigger-*.yaml")
	if err != nil {
		return errors.New(err).
			Component("monitor").
			Category(errors.CategoryFileIO).
			Context("path", dir).
			Build()
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.New(err).
			Component("monitor").
			Category(errors.CategoryFileIO).
			Context("path", tmp.Name()).
			Build()
	}
	if err := tmp.Close(); err != nil {
		return errors.New(err).
			Component("monitor").
			Category(errors.CategoryFileIO).
			Context("path", tmp.Name()).
			Build()
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.New(err).
			Component("monitor").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return nil
}
