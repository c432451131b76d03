// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package inputmux

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const readBufferSize = 64 * 1024

// readAvailable reads from a non-blocking descriptor until it would
// block, appending to data. eof is true when a read returned zero
// bytes, meaning the peer has closed.
func readAvailable(fd int, buffer, data []byte) (result []byte, eof bool, err error) {
	for {
		count, err := unix.Read(fd, buffer)
		if count > 0 {
			data = append(data, buffer[:count]...)
			continue
		}
		switch {
		case err == nil:
			return data, true, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return data, false, nil
		default:
			return data, false, err
		}
	}
}

// interactiveSource is an unframed stream such as a terminal.
type interactiveSource struct {
	fd     int
	buffer []byte
}

// pipeSource is a FIFO read line by line. fd is -1 while the pipe is
// closed and waiting to be reopened.
type pipeSource struct {
	path    string
	fd      int
	buffer  []byte
	pending []byte
}

// openPipe opens path for non-blocking reading and checks that it is a
// FIFO. A regular file would poll as readable forever.
func openPipe(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("opening pipe %s: %w", path, err)
	}
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("stat pipe %s: %w", path, err)
	}
	if stat.Mode&unix.S_IFMT != unix.S_IFIFO {
		unix.Close(fd)
		return -1, fmt.Errorf("%s is not a named pipe", path)
	}
	return fd, nil
}

// takeLines removes and returns every complete line from pending, each
// with its newline. When final is set, a remaining fragment is also
// returned with a newline appended.
func (s *pipeSource) takeLines(final bool) [][]byte {
	var lines [][]byte
	for {
		end := bytes.IndexByte(s.pending, '\n')
		if end < 0 {
			break
		}
		line := make([]byte, end+1)
		copy(line, s.pending[:end+1])
		lines = append(lines, line)
		s.pending = s.pending[end+1:]
	}
	if final && len(s.pending) > 0 {
		line := make([]byte, 0, len(s.pending)+1)
		line = append(line, s.pending...)
		lines = append(lines, append(line, '\n'))
		s.pending = nil
	}
	if len(s.pending) == 0 {
		s.pending = nil
	}
	return lines
}
