// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the pibridge
// binaries.
//
// A [Config] starts from [Default]. A file named with --config is
// layered on top with [LoadFile] (YAML, or JSON with comments when the
// file ends in .json or .jsonc), then the PI_OUTBOX, PI_INBOX_STATE and
// PI_INBOX_POLL environment variables with [Config.ApplyEnvironment],
// then command-line flags, which the binaries apply directly. There is
// no automatic file discovery.
//
// Path fields in a file are expanded after loading: ${VAR} and
// ${VAR:-default} take their value from the process environment.
//
// Key exports:
//
//   - [Config] -- Inbox, Merge and Log sections
//   - [Default] -- the built-in defaults
//   - [LoadFile] -- file loading
//   - [Config.Validate] -- reports every invalid field at once
//
// This package depends on no other pibridge packages.
package config
