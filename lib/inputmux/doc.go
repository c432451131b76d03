// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package inputmux merges an interactive stream and a named pipe into
// a single output stream.
//
// A [Multiplexer] runs a single-threaded event loop around poll(2).
// Both sources are non-blocking, so the poll call is the only place
// the loop ever waits, and it waits with no timeout: the loop wakes
// only when a descriptor is ready.
//
// The interactive source (stdin in production) has no framing: every
// byte that is available when it becomes readable is written to the
// output verbatim, in one write. When it reaches end of file it is
// dropped from the poll set, since stdin cannot be reopened.
//
// The named pipe is line oriented. Complete lines are written one at a
// time; a trailing fragment waits in a buffer for its newline. When
// the last writer closes the pipe, a read returns zero bytes (as
// opposed to EAGAIN, which means a writer is connected but idle). The
// multiplexer then flushes any buffered fragment with a newline
// appended and reopens the pipe, so that the next writer to open it is
// heard. Without the reopen, poll reports the hung-up descriptor as
// permanently ready and no later writer is ever read.
//
// Ordering is preserved within each source. Lines from different
// sources interleave in wake-up order.
package inputmux
