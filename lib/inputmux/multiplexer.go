// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package inputmux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// DefaultReopenInterval is how long the loop waits before retrying a
// pipe that could not be reopened (for example because it was removed).
const DefaultReopenInterval = time.Second

// Config describes the two sources and the sink of a Multiplexer.
type Config struct {
	// Interactive is the unframed source, normally os.Stdin. The
	// Multiplexer switches it to non-blocking mode and restores
	// blocking mode on Close. The caller keeps ownership of the file.
	Interactive *os.File

	// PipePath is the named pipe to read lines from.
	PipePath string

	// Output receives merged data. If it has a Flush method, Flush is
	// called after every write.
	Output io.Writer

	// Logger receives lifecycle and error logs. Defaults to
	// slog.Default().
	Logger *slog.Logger

	// ReopenInterval overrides DefaultReopenInterval.
	ReopenInterval time.Duration
}

// Multiplexer merges Config.Interactive and Config.PipePath into
// Config.Output. Create one with New, call Run, then Close.
type Multiplexer struct {
	interactive    interactiveSource
	pipe           pipeSource
	output         io.Writer
	logger         *slog.Logger
	reopenInterval time.Duration
	isTerminal     bool

	// The wake pipe lets Run's context interrupt a poll with no
	// timeout. It is never a data source.
	wakeRead  int
	wakeWrite int
}

type flusher interface {
	Flush() error
}

// New validates config, makes the interactive source non-blocking, and
// opens the pipe. It fails if the pipe does not exist or is not a FIFO.
func New(config Config) (*Multiplexer, error) {
	if config.Interactive == nil {
		return nil, fmt.Errorf("inputmux: Interactive is required")
	}
	if config.PipePath == "" {
		return nil, fmt.Errorf("inputmux: PipePath is required")
	}
	if config.Output == nil {
		return nil, fmt.Errorf("inputmux: Output is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reopenInterval := config.ReopenInterval
	if reopenInterval <= 0 {
		reopenInterval = DefaultReopenInterval
	}

	pipeDescriptor, err := openPipe(config.PipePath)
	if err != nil {
		return nil, err
	}

	interactiveDescriptor := int(config.Interactive.Fd())
	if err := unix.SetNonblock(interactiveDescriptor, true); err != nil {
		unix.Close(pipeDescriptor)
		return nil, fmt.Errorf("setting interactive input non-blocking: %w", err)
	}

	var wake [2]int
	if err := unix.Pipe2(wake[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		unix.SetNonblock(interactiveDescriptor, false)
		unix.Close(pipeDescriptor)
		return nil, fmt.Errorf("creating wake pipe: %w", err)
	}

	return &Multiplexer{
		interactive: interactiveSource{
			fd:     interactiveDescriptor,
			buffer: make([]byte, readBufferSize),
		},
		pipe: pipeSource{
			path:   config.PipePath,
			fd:     pipeDescriptor,
			buffer: make([]byte, readBufferSize),
		},
		output:         config.Output,
		logger:         logger,
		reopenInterval: reopenInterval,
		isTerminal:     term.IsTerminal(interactiveDescriptor),
		wakeRead:       wake[0],
		wakeWrite:      wake[1],
	}, nil
}

// Run merges input until ctx is cancelled, then returns nil. Source
// errors and output errors are logged and never end the loop; only a
// failure of poll itself is returned.
func (m *Multiplexer) Run(ctx context.Context) error {
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		m.interrupt()
		close(interrupted)
	})
	// Close must not race a late write to the wake pipe.
	defer func() {
		if !stop() {
			<-interrupted
		}
	}()

	m.logger.Info("merging input",
		"pipe", m.pipe.path,
		"interactive_terminal", m.isTerminal,
	)

	for {
		if ctx.Err() != nil {
			return nil
		}

		descriptors := []unix.PollFd{
			{Fd: int32(m.wakeRead), Events: unix.POLLIN},
			{Fd: int32(m.interactive.fd), Events: unix.POLLIN},
			{Fd: int32(m.pipe.fd), Events: unix.POLLIN},
		}
		// Negative descriptors are ignored by poll. The only timed wait
		// is the retry for a pipe that failed to reopen.
		timeout := -1
		if m.pipe.fd < 0 {
			timeout = int(m.reopenInterval / time.Millisecond)
		}

		ready, err := unix.Poll(descriptors, timeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}

		if descriptors[0].Revents != 0 {
			m.drainWake()
		}
		if readable(descriptors[1].Revents) {
			m.serviceInteractive()
		}
		if readable(descriptors[2].Revents) {
			m.servicePipe()
		}
		if ready == 0 && m.pipe.fd < 0 {
			m.reopenPipe()
		}
	}
}

// Close releases the pipe and wake descriptors and restores blocking
// mode on the interactive source. Call it after Run has returned.
func (m *Multiplexer) Close() error {
	var errs []error
	if m.pipe.fd >= 0 {
		errs = append(errs, unix.Close(m.pipe.fd))
		m.pipe.fd = -1
	}
	if m.interactive.fd >= 0 {
		errs = append(errs, unix.SetNonblock(m.interactive.fd, false))
		m.interactive.fd = -1
	}
	if m.wakeRead >= 0 {
		errs = append(errs, unix.Close(m.wakeRead), unix.Close(m.wakeWrite))
		m.wakeRead, m.wakeWrite = -1, -1
	}
	return errors.Join(errs...)
}

func readable(revents int16) bool {
	return revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0
}

// interrupt wakes a blocked poll. A full wake pipe already guarantees
// a wake-up, so EAGAIN is ignored.
func (m *Multiplexer) interrupt() {
	unix.Write(m.wakeWrite, []byte{0})
}

func (m *Multiplexer) drainWake() {
	var scratch [64]byte
	for {
		count, err := unix.Read(m.wakeRead, scratch[:])
		if count <= 0 || err != nil {
			return
		}
	}
}

func (m *Multiplexer) serviceInteractive() {
	data, eof, err := readAvailable(m.interactive.fd, m.interactive.buffer, nil)
	if len(data) > 0 {
		m.write(data)
	}
	if eof || err != nil {
		if err != nil {
			m.logger.Warn("interactive input failed, no longer reading it", "error", err)
		} else {
			m.logger.Info("interactive input closed")
		}
		unix.SetNonblock(m.interactive.fd, false)
		m.interactive.fd = -1
	}
}

func (m *Multiplexer) servicePipe() {
	var eof bool
	var err error
	m.pipe.pending, eof, err = readAvailable(m.pipe.fd, m.pipe.buffer, m.pipe.pending)
	closed := eof || err != nil

	for _, line := range m.pipe.takeLines(closed) {
		m.write(line)
	}
	if !closed {
		return
	}

	if err != nil {
		m.logger.Warn("reading pipe failed, reopening", "pipe", m.pipe.path, "error", err)
	} else {
		m.logger.Debug("pipe writer closed, reopening", "pipe", m.pipe.path)
	}
	m.reopenPipe()
}

// reopenPipe replaces the pipe descriptor with a fresh one. The new
// descriptor is opened before the old one is closed so the FIFO always
// has a reader and data from a writer that connects in between is not
// discarded. On failure the pipe stays closed and Run retries after
// reopenInterval.
func (m *Multiplexer) reopenPipe() {
	fd, err := openPipe(m.pipe.path)
	if m.pipe.fd >= 0 {
		unix.Close(m.pipe.fd)
		m.pipe.fd = -1
	}
	if err != nil {
		m.logger.Warn("reopening pipe failed, will retry",
			"pipe", m.pipe.path,
			"retry_in", m.reopenInterval,
			"error", err,
		)
		return
	}
	m.pipe.fd = fd
}

func (m *Multiplexer) write(data []byte) {
	if _, err := m.output.Write(data); err != nil {
		m.logger.Warn("writing output failed", "error", err)
		return
	}
	if f, ok := m.output.(flusher); ok {
		if err := f.Flush(); err != nil {
			m.logger.Warn("flushing output failed", "error", err)
		}
	}
}
