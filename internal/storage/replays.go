// Package storage keeps downloaded replay files on local disk and optionally
// archives parsed ones to S3-compatible object storage.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/config"

	"github.com/rs/zerolog"
)

const replayExt = ".w3g"

// FileName is the replay file name of an external match.
func FileName(matchID string) string {
	return matchID + replayExt
}

type ReplayStore struct {
	dir    string
	logger zerolog.Logger
}

func NewReplayStore(cfg *config.Config, logger zerolog.Logger) (*ReplayStore, error) {
	return OpenReplayStore(cfg.ReplayDir, logger)
}

// OpenReplayStore creates dir when missing.
func OpenReplayStore(dir string, logger zerolog.Logger) (*ReplayStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create replay directory %s: %w", dir, err)
	}
	logger.Info().Str("dir", dir).Msg("replay storage ready")
	return &ReplayStore{dir: dir, logger: logger}, nil
}

func (s *ReplayStore) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

func (s *ReplayStore) Exists(name string) (bool, error) {
	info, err := os.Stat(s.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// Write stores data under name. The file appears only once fully written, so a
// crash never leaves a truncated replay behind.
func (s *ReplayStore) Write(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}

	if err := os.Rename(tmp.Name(), s.Path(name)); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	return nil
}

func (s *ReplayStore) Read(name string) ([]byte, error) {
	return os.ReadFile(s.Path(name))
}

// Remove deletes name; a missing file is not an error.
func (s *ReplayStore) Remove(name string) error {
	err := os.Remove(s.Path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
