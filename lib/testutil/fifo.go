// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

// Fifo creates a named pipe called name in a fresh temporary directory
// and returns its path. The directory is removed when the test ends.
func Fifo(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := unix.Mkfifo(path, 0600); err != nil {
		t.Fatalf("mkfifo %s: %v", path, err)
	}
	return path
}
