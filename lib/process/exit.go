// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"
)

// Fatal writes "error: err" to stderr and exits with code 1. Use it in
// main() for errors from run() where the structured logger may not be
// initialized.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// UsageError reports invalid command-line usage. main() prints the
// message followed by the command's usage text and exits 1.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string { return e.Message }

// Usagef returns a *UsageError with a formatted message.
func Usagef(format string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// Usage writes message and the output of printUsage to stderr, then
// exits with code 1.
func Usage(message string, printUsage func(io.Writer)) {
	writeUsage(os.Stderr, message, printUsage)
	os.Exit(1)
}

func writeUsage(w io.Writer, message string, printUsage func(io.Writer)) {
	if message != "" {
		fmt.Fprintf(w, "error: %s\n\n", message)
	}
	if printUsage != nil {
		printUsage(w)
	}
}
