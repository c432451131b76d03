// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package queue consumes the pi bridge's append-only JSONL queue.
//
// A producer appends one JSON object per line ([Append]); the
// [Tailer] polls the file, reads the bytes appended since its last
// persisted cursor, and writes one notification per valid record:
//
//	[pi:<target>] <text> (did=<did>, ts=<ts>)
//
// The cursor is saved through [cursor.Store] after every cycle that
// moved it, so a restarted tailer resumes where the previous one
// stopped. If the queue shrinks below the cursor (rotation or
// truncation) the tailer starts over from offset 0: redelivery is
// preferred to silently skipping records.
//
// Only newline-terminated lines are consumed. A record the producer is
// still writing stays in the file past the cursor and is picked up on
// a later cycle once its newline lands.
//
// Malformed lines (invalid JSON, JSON that is not an object, blank
// lines) are skipped one at a time; they never abort a cycle. Open and
// read failures are logged and retried on the next cycle. [Tailer.Run]
// returns only when its context is cancelled.
//
// [WatchQueue] optionally shortens the sleep between cycles by waking
// the tailer on fsnotify write events for the queue file.
package queue
