// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cursor persists a single byte offset across process restarts.
//
// The state file holds the decimal ASCII text of the offset and nothing
// else. [Store.Save] writes the new value to a sibling temporary file,
// fsyncs it, and renames it over the state file, so a reader (or a
// restarted process) observes either the previous offset or the new
// one, never a truncated value. [Store.Load] never fails: a missing,
// empty, or unparseable state file reads as offset 0, which makes the
// consumer redeliver from the start of its input rather than skip data.
//
// A Store has exactly one writer. Concurrent readers must treat a
// momentarily stale value as valid.
package cursor
