// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for the pibridge
// commands. These functions centralize the raw I/O that happens before
// or after the structured logger exists:
//
//   - Fatal error reporting to stderr from main().
//   - Usage errors, which print a usage message and exit 1.
//   - Construction of the stderr logger itself.
//
// stdout belongs to the data stream in both binaries, so nothing in
// this package writes to it.
package process
