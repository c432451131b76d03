// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for pibridge packages.
//
// [RequireReceive] wraps the select-with-timeout pattern so individual
// tests do not repeat it.
//
// [Fifo] creates a named pipe inside t.TempDir().
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
