// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Record is one queue line as read by the tailer. Fields hold the
// display form of whatever JSON scalar the producer wrote.
type Record struct {
	Timestamp Field `json:"ts"`
	From      Field `json:"from"`
	DID       Field `json:"did"`
	Text      Field `json:"text"`
	Target    Field `json:"target"`
}

// Field is a JSON scalar rendered for display. Strings keep their
// decoded value, numbers and booleans keep their JSON text, and null
// is empty.
type Field string

// UnmarshalJSON implements json.Unmarshaler.
func (f *Field) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
	case len(data) > 0 && data[0] == '"':
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*f = Field(text)
	default:
		// Numbers, booleans, and nested values keep their JSON text.
		*f = Field(data)
	}
	return nil
}

var errNotObject = errors.New("queue line is not a JSON object")

// ParseRecord decodes one queue line. Lines that are not a single JSON
// object are rejected.
func ParseRecord(line []byte) (Record, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return Record{}, errNotObject
	}
	var record Record
	if err := json.Unmarshal(line, &record); err != nil {
		return Record{}, fmt.Errorf("decoding queue record: %w", err)
	}
	return record, nil
}

// Notification returns the line the tailer prints for r, including the
// trailing newline.
func (r Record) Notification() string {
	return fmt.Sprintf("[pi:%s] %s (did=%s, ts=%s)\n", r.Target, r.Text, r.DID, r.Timestamp)
}
