// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"encoding/json"
	"fmt"
	"os"
)

// Entry is the producer-side shape of a queue record.
type Entry struct {
	Timestamp int64  `json:"ts"`
	From      string `json:"from,omitempty"`
	DID       string `json:"did"`
	Target    string `json:"target"`
	Text      string `json:"text"`
}

// Append writes entry to the queue at path as a single JSON line,
// creating the file if needed. The line is written with one write(2)
// on an O_APPEND descriptor, so concurrent appenders never interleave
// within a record.
func Append(path string, entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding queue entry: %w", err)
	}
	line = append(line, '\n')

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("opening queue %s: %w", path, err)
	}
	if _, err := file.Write(line); err != nil {
		file.Close()
		return fmt.Errorf("appending to queue %s: %w", path, err)
	}
	return file.Close()
}
