// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cursor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Store loads and saves one offset in a state file.
type Store struct {
	path string
}

// NewStore returns a Store backed by the state file at path. The file
// does not need to exist; its parent directory must exist before the
// first Save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the state file path.
func (s *Store) Path() string {
	return s.path
}

// temporaryPath is where Save stages the next value before renaming it
// into place. It lives in the same directory so the rename never
// crosses a filesystem boundary.
func (s *Store) temporaryPath() string {
	return s.path + ".tmp"
}

// Load returns the persisted offset, or 0 when the state file is
// missing, empty, not a decimal integer, or negative.
func (s *Store) Load() int64 {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0
	}
	offset, err := strconv.ParseInt(text, 10, 64)
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}

// Save atomically replaces the state file with offset.
func (s *Store) Save(offset int64) error {
	if offset < 0 {
		return fmt.Errorf("cursor: negative offset %d", offset)
	}
	staged, err := s.stage(offset)
	if err != nil {
		return err
	}
	return s.commit(staged)
}

// stage writes offset to the temporary file and syncs it. The state
// file is untouched until commit.
func (s *Store) stage(offset int64) (string, error) {
	temporaryPath := s.temporaryPath()

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return "", fmt.Errorf("creating temporary cursor file: %w", err)
	}
	if _, err := file.WriteString(strconv.FormatInt(offset, 10)); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return "", fmt.Errorf("writing temporary cursor file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return "", fmt.Errorf("syncing temporary cursor file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return "", fmt.Errorf("closing temporary cursor file: %w", err)
	}
	return temporaryPath, nil
}

// commit renames the staged file over the state file and syncs the
// parent directory so the rename survives power loss.
func (s *Store) commit(temporaryPath string) error {
	if err := os.Rename(temporaryPath, s.path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming cursor file into place: %w", err)
	}

	parentDirectory, err := os.Open(filepath.Dir(s.path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}
