// Package snapshot persists the tournament between daemon restarts.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/lox/tournamentd/internal/tournament"
)

// Store reads and writes one snapshot file. A zero path disables it.
type Store struct {
	path   string
	logger *log.Logger
}

// New returns a store for path.
func New(path string, logger *log.Logger) *Store {
	return &Store{path: path, logger: logger.WithPrefix("snapshot")}
}

// Path is the snapshot file location.
func (s *Store) Path() string { return s.path }

// Enabled reports whether snapshots are written at all.
func (s *Store) Enabled() bool { return s.path != "" }

// Save writes the snapshot atomically.
func (s *Store) Save(snap tournament.Snapshot) error {
	if !s.Enabled() {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := writeFileAtomic(s.path, data, 0o600); err != nil {
		return err
	}
	s.logger.Debug("Wrote snapshot", "path", s.path, "bytes", len(data))
	return nil
}

// Load reads the snapshot. The boolean is false when there is none.
func (s *Store) Load() (tournament.Snapshot, bool, error) {
	var snap tournament.Snapshot
	if !s.Enabled() {
		return snap, false, nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, false, fmt.Errorf("failed to decode snapshot %s: %w", s.path, err)
	}
	return snap, true, nil
}

// Remove deletes the snapshot after a clean shutdown.
func (s *Store) Remove() error {
	if !s.Enabled() {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}
	return nil
}

// writeFileAtomic writes to a temporary file beside filename and renames it
// into place, so a crash mid-write leaves the previous snapshot intact.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	// same directory, so the rename never crosses filesystems
	tmp, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	ok := false
	defer func() {
		if !ok {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filename); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	ok = true
	return nil
}
