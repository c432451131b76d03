// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/bureau-foundation/pibridge/lib/clock"
	"github.com/bureau-foundation/pibridge/lib/cursor"
)

// Tailer incrementally consumes a JSONL queue file. Configure the
// exported fields, then call Run (or Poll for a single cycle). A
// Tailer is not safe for concurrent use.
type Tailer struct {
	// QueuePath is the append-only JSONL file to consume.
	QueuePath string

	// Cursor persists the byte offset of the first unconsumed byte.
	Cursor *cursor.Store

	// PollInterval is the sleep between cycles.
	PollInterval time.Duration

	// Output receives one notification line per valid record. If it
	// has a Flush method, Flush is called after every line.
	Output io.Writer

	// Clock drives the sleep between cycles. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives lifecycle and error logs. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// Wake, when non-nil, ends the sleep between cycles early. See
	// WatchQueue.
	Wake <-chan struct{}

	offset int64
	loaded bool
	// unsaved is set while the in-memory offset differs from the
	// persisted one, including after a failed Save.
	unsaved bool
}

// Cycle summarizes one Poll.
type Cycle struct {
	// Found is false when the queue could not be opened because its
	// directory does not exist. Nothing else happened in that cycle.
	Found bool

	// Reset is true when the queue had shrunk below the cursor and
	// the cursor restarted at 0.
	Reset bool

	// Start and End are the cursor before and after the cycle.
	Start int64
	End   int64

	// Delivered counts notifications written; Skipped counts
	// malformed lines. Blank lines count as neither.
	Delivered int
	Skipped   int
}

type flusher interface {
	Flush() error
}

func (t *Tailer) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

func (t *Tailer) clock() clock.Clock {
	if t.Clock != nil {
		return t.Clock
	}
	return clock.Real()
}

func (t *Tailer) validate() error {
	if t.QueuePath == "" {
		return fmt.Errorf("queue: QueuePath is required")
	}
	if t.Cursor == nil {
		return fmt.Errorf("queue: Cursor is required")
	}
	if t.Output == nil {
		return fmt.Errorf("queue: Output is required")
	}
	return nil
}

// Offset returns the in-memory cursor.
func (t *Tailer) Offset() int64 {
	t.load()
	return t.offset
}

// load reads the persisted cursor the first time it is needed.
func (t *Tailer) load() {
	if t.loaded || t.Cursor == nil {
		return
	}
	t.offset = t.Cursor.Load()
	t.loaded = true
}

// Run polls the queue until ctx is cancelled. Poll failures are logged
// and retried on the next cycle. Returns nil on cancellation.
func (t *Tailer) Run(ctx context.Context) error {
	if err := t.validate(); err != nil {
		return err
	}
	if t.PollInterval <= 0 {
		return fmt.Errorf("queue: PollInterval must be positive, got %v", t.PollInterval)
	}
	t.load()

	t.logger().Info("tailing queue",
		"queue", t.QueuePath,
		"state", t.Cursor.Path(),
		"cursor", t.offset,
		"poll_interval", t.PollInterval,
		"watch", t.Wake != nil,
	)

	for {
		cycle, err := t.Poll()
		if err != nil {
			t.logger().Warn("queue poll failed", "queue", t.QueuePath, "error", err)
		} else if cycle.Delivered > 0 || cycle.Skipped > 0 {
			t.logger().Debug("queue cycle",
				"delivered", cycle.Delivered,
				"skipped", cycle.Skipped,
				"cursor", cycle.End,
			)
		}

		select {
		case <-ctx.Done():
			t.logger().Info("queue tailer stopped", "cursor", t.offset)
			return nil
		case <-t.clock().After(t.PollInterval):
		case <-t.Wake:
		}
	}
}

// Poll runs a single cycle: read what was appended since the cursor,
// emit notifications, and persist the advanced cursor.
func (t *Tailer) Poll() (Cycle, error) {
	if err := t.validate(); err != nil {
		return Cycle{}, err
	}
	t.load()
	cycle := Cycle{Start: t.offset, End: t.offset}

	file, found, err := openQueue(t.QueuePath)
	if err != nil {
		return cycle, err
	}
	if !found {
		return cycle, nil
	}
	defer file.Close()
	cycle.Found = true

	info, err := file.Stat()
	if err != nil {
		return cycle, fmt.Errorf("stat queue %s: %w", t.QueuePath, err)
	}
	length := info.Size()

	if length < t.offset {
		t.logger().Warn("queue shrank below cursor, restarting from the beginning",
			"queue", t.QueuePath,
			"cursor", t.offset,
			"length", length,
		)
		t.offset = 0
		t.unsaved = true
		cycle.Reset = true
	}

	if length > t.offset {
		data := make([]byte, length-t.offset)
		bytesRead, err := file.ReadAt(data, t.offset)
		if err != nil && !errors.Is(err, io.EOF) {
			cycle.End = t.offset
			return cycle, fmt.Errorf("reading queue %s at offset %d: %w", t.QueuePath, t.offset, err)
		}
		data = data[:bytesRead]

		// Consume through the last newline only; an unterminated tail
		// is a record still being written.
		consumed := bytes.LastIndexByte(data, '\n') + 1
		cycle.Delivered, cycle.Skipped = t.deliver(data[:consumed])
		if consumed > 0 {
			t.offset += int64(consumed)
			t.unsaved = true
		}
	}
	cycle.End = t.offset

	if t.unsaved {
		if err := t.Cursor.Save(t.offset); err != nil {
			return cycle, fmt.Errorf("saving cursor: %w", err)
		}
		t.unsaved = false
	}
	return cycle, nil
}

// deliver writes a notification for every valid record in data, which
// must end with a newline (or be empty).
func (t *Tailer) deliver(data []byte) (delivered, skipped int) {
	for len(data) > 0 {
		end := bytes.IndexByte(data, '\n')
		line := data[:end]
		data = data[end+1:]

		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		record, err := ParseRecord(line)
		if err != nil {
			skipped++
			t.logger().Debug("skipping malformed queue line", "error", err)
			continue
		}
		if err := t.emit(record.Notification()); err != nil {
			t.logger().Warn("writing notification failed", "error", err)
		}
		delivered++
	}
	return delivered, skipped
}

func (t *Tailer) emit(line string) error {
	if _, err := io.WriteString(t.Output, line); err != nil {
		return err
	}
	if f, ok := t.Output.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// openQueue opens the queue for read+append, creating it if absent.
// found is false, with a nil error, when the queue's directory does not
// exist: the producer may not have set it up yet.
func openQueue(path string) (file *os.File, found bool, err error) {
	file, err = os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("opening queue %s: %w", path, err)
	}
	return file, true, nil
}
