// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/pibridge/lib/clock"
	"github.com/bureau-foundation/pibridge/lib/cursor"
	"github.com/bureau-foundation/pibridge/lib/testutil"
)

const (
	recordHi  = `{"ts":1,"did":"abc","text":"hi","target":"room1"}`
	recordBye = `{"ts":2,"did":"abc","text":"bye","target":"room1"}`
)

// queueFixture is a queue file and cursor state file in a temporary
// directory.
type queueFixture struct {
	queuePath string
	statePath string
}

func newQueueFixture(t *testing.T) queueFixture {
	t.Helper()
	directory := t.TempDir()
	return queueFixture{
		queuePath: filepath.Join(directory, "queue.jsonl"),
		statePath: filepath.Join(directory, "queue.offset"),
	}
}

func (f queueFixture) write(t *testing.T, content string) {
	t.Helper()
	if err := os.WriteFile(f.queuePath, []byte(content), 0644); err != nil {
		t.Fatalf("writing queue: %v", err)
	}
}

func (f queueFixture) append(t *testing.T, content string) {
	t.Helper()
	file, err := os.OpenFile(f.queuePath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		t.Fatalf("opening queue: %v", err)
	}
	defer file.Close()
	if _, err := file.WriteString(content); err != nil {
		t.Fatalf("appending to queue: %v", err)
	}
}

func (f queueFixture) storedCursor(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(f.statePath)
	if err != nil {
		t.Fatalf("reading cursor state: %v", err)
	}
	return string(data)
}

// tailer returns a fresh Tailer over the fixture, as a restarted
// process would construct it.
func (f queueFixture) tailer(output *bytes.Buffer) *Tailer {
	return &Tailer{
		QueuePath:    f.queuePath,
		Cursor:       cursor.NewStore(f.statePath),
		PollInterval: 500 * time.Millisecond,
		Output:       output,
	}
}

func mustPoll(t *testing.T, tailer *Tailer) Cycle {
	t.Helper()
	cycle, err := tailer.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	return cycle
}

func TestPoll_EndToEnd(t *testing.T) {
	fixture := newQueueFixture(t)
	content := recordHi + "\n" + recordBye + "\n"
	fixture.write(t, content)

	var output bytes.Buffer
	cycle := mustPoll(t, fixture.tailer(&output))

	want := "[pi:room1] hi (did=abc, ts=1)\n[pi:room1] bye (did=abc, ts=2)\n"
	if output.String() != want {
		t.Errorf("output = %q, want %q", output.String(), want)
	}
	if cycle.Delivered != 2 || cycle.Skipped != 0 {
		t.Errorf("cycle = %+v, want 2 delivered, 0 skipped", cycle)
	}
	if got, want := fixture.storedCursor(t), strconv.Itoa(len(content)); got != want {
		t.Errorf("cursor state = %q, want %q", got, want)
	}
}

func TestPoll_NothingNewDoesNotRedeliver(t *testing.T) {
	fixture := newQueueFixture(t)
	fixture.write(t, recordHi+"\n")

	var output bytes.Buffer
	tailer := fixture.tailer(&output)
	mustPoll(t, tailer)
	output.Reset()

	cycle := mustPoll(t, tailer)
	if output.Len() != 0 {
		t.Errorf("second poll emitted %q, want nothing", output.String())
	}
	if cycle.Start != cycle.End {
		t.Errorf("cursor moved from %d to %d without new data", cycle.Start, cycle.End)
	}
}

func TestPoll_ResumeAfterRestart(t *testing.T) {
	fixture := newQueueFixture(t)
	var records []string
	for i := 1; i <= 5; i++ {
		records = append(records, `{"ts":`+strconv.Itoa(i)+`,"did":"d","text":"m`+strconv.Itoa(i)+`","target":"r"}`)
	}

	fixture.write(t, strings.Join(records[:3], "\n")+"\n")
	var first bytes.Buffer
	mustPoll(t, fixture.tailer(&first))
	if got := strings.Count(first.String(), "\n"); got != 3 {
		t.Fatalf("first run delivered %d lines, want 3", got)
	}

	// The first process is gone; more records arrive before the restart.
	fixture.append(t, strings.Join(records[3:], "\n")+"\n")

	var second bytes.Buffer
	restarted := fixture.tailer(&second)
	mustPoll(t, restarted)
	want := "[pi:r] m4 (did=d, ts=4)\n[pi:r] m5 (did=d, ts=5)\n"
	if second.String() != want {
		t.Errorf("restarted output = %q, want %q", second.String(), want)
	}

	second.Reset()
	mustPoll(t, restarted)
	if second.Len() != 0 {
		t.Errorf("extra poll after restart emitted %q", second.String())
	}
}

// When the cursor save itself was lost, a restart replays the queue
// once from the start and then settles.
func TestPoll_LostCursorReplaysOnce(t *testing.T) {
	fixture := newQueueFixture(t)
	fixture.write(t, recordHi+"\n"+recordBye+"\n")

	var output bytes.Buffer
	mustPoll(t, fixture.tailer(&output))
	if err := os.Remove(fixture.statePath); err != nil {
		t.Fatalf("removing cursor state: %v", err)
	}

	output.Reset()
	restarted := fixture.tailer(&output)
	mustPoll(t, restarted)
	mustPoll(t, restarted)
	if got := strings.Count(output.String(), "\n"); got != 2 {
		t.Errorf("replay delivered %d lines, want 2: %q", got, output.String())
	}
}

func TestPoll_TruncationRestartsFromZero(t *testing.T) {
	fixture := newQueueFixture(t)
	fixture.write(t, recordHi+"\n"+recordBye+"\n")

	var output bytes.Buffer
	tailer := fixture.tailer(&output)
	mustPoll(t, tailer)
	output.Reset()

	// Rotation: the queue is replaced with a shorter file.
	rotated := `{"ts":9,"did":"z","text":"new","target":"r"}` + "\n"
	fixture.write(t, rotated)

	cycle := mustPoll(t, tailer)
	if !cycle.Reset {
		t.Error("cycle.Reset = false, want true after truncation")
	}
	if want := "[pi:r] new (did=z, ts=9)\n"; output.String() != want {
		t.Errorf("output after truncation = %q, want %q", output.String(), want)
	}
	if got, want := fixture.storedCursor(t), strconv.Itoa(len(rotated)); got != want {
		t.Errorf("cursor state = %q, want %q", got, want)
	}
}

func TestPoll_TruncatedToEmptyPersistsReset(t *testing.T) {
	fixture := newQueueFixture(t)
	fixture.write(t, recordHi+"\n")

	var output bytes.Buffer
	tailer := fixture.tailer(&output)
	mustPoll(t, tailer)

	fixture.write(t, "")
	cycle := mustPoll(t, tailer)
	if !cycle.Reset || cycle.End != 0 {
		t.Errorf("cycle = %+v, want reset to 0", cycle)
	}
	if got := fixture.storedCursor(t); got != "0" {
		t.Errorf("cursor state = %q, want %q", got, "0")
	}
}

func TestPoll_MalformedLinesSkipped(t *testing.T) {
	fixture := newQueueFixture(t)
	fixture.write(t, recordHi+"\n"+
		"{not json}\n"+
		"\n"+
		"   \n"+
		"null\n"+
		recordBye+"\n")

	var output bytes.Buffer
	cycle := mustPoll(t, fixture.tailer(&output))

	want := "[pi:room1] hi (did=abc, ts=1)\n[pi:room1] bye (did=abc, ts=2)\n"
	if output.String() != want {
		t.Errorf("output = %q, want %q", output.String(), want)
	}
	if cycle.Delivered != 2 || cycle.Skipped != 2 {
		t.Errorf("cycle = %+v, want 2 delivered and 2 skipped", cycle)
	}
}

func TestPoll_PartialLineWaitsForNewline(t *testing.T) {
	fixture := newQueueFixture(t)
	fixture.write(t, recordHi+"\n"+recordBye[:20])

	var output bytes.Buffer
	tailer := fixture.tailer(&output)
	cycle := mustPoll(t, tailer)
	if cycle.Delivered != 1 {
		t.Fatalf("delivered %d records, want 1", cycle.Delivered)
	}
	if got, want := cycle.End, int64(len(recordHi)+1); got != want {
		t.Errorf("cursor = %d, want %d (end of the first line)", got, want)
	}

	output.Reset()
	fixture.append(t, recordBye[20:]+"\n")
	mustPoll(t, tailer)
	if want := "[pi:room1] bye (did=abc, ts=2)\n"; output.String() != want {
		t.Errorf("output after completing the line = %q, want %q", output.String(), want)
	}
}

func TestPoll_CreatesMissingQueue(t *testing.T) {
	fixture := newQueueFixture(t)

	var output bytes.Buffer
	cycle := mustPoll(t, fixture.tailer(&output))
	if !cycle.Found {
		t.Error("cycle.Found = false, want true")
	}
	if _, err := os.Stat(fixture.queuePath); err != nil {
		t.Errorf("queue not created: %v", err)
	}
	if _, err := os.Stat(fixture.statePath); !os.IsNotExist(err) {
		t.Errorf("cursor state written without any progress (stat err: %v)", err)
	}
}

func TestPoll_MissingDirectorySkipsCycle(t *testing.T) {
	directory := t.TempDir()
	var output bytes.Buffer
	tailer := &Tailer{
		QueuePath: filepath.Join(directory, "not-yet", "queue.jsonl"),
		Cursor:    cursor.NewStore(filepath.Join(directory, "queue.offset")),
		Output:    &output,
	}

	cycle, err := tailer.Poll()
	if err != nil {
		t.Fatalf("Poll with missing queue directory: %v", err)
	}
	if cycle.Found {
		t.Error("cycle.Found = true, want false")
	}
	if output.Len() != 0 {
		t.Errorf("output = %q, want empty", output.String())
	}
}

func TestPoll_CursorSaveFailureRetried(t *testing.T) {
	fixture := newQueueFixture(t)
	fixture.write(t, recordHi+"\n")

	directory := t.TempDir()
	var output bytes.Buffer
	tailer := &Tailer{
		QueuePath: fixture.queuePath,
		Cursor:    cursor.NewStore(filepath.Join(directory, "state", "queue.offset")),
		Output:    &output,
	}

	if _, err := tailer.Poll(); err == nil {
		t.Fatal("Poll succeeded with an unwritable cursor directory, want error")
	}
	if err := os.Mkdir(filepath.Join(directory, "state"), 0755); err != nil {
		t.Fatalf("creating state directory: %v", err)
	}

	cycle := mustPoll(t, tailer)
	if cycle.Delivered != 0 {
		t.Errorf("retry redelivered %d records", cycle.Delivered)
	}
	if got := tailer.Cursor.Load(); got != int64(len(recordHi)+1) {
		t.Errorf("persisted cursor = %d, want %d", got, len(recordHi)+1)
	}
}

func TestPoll_FlushesBufferedOutput(t *testing.T) {
	fixture := newQueueFixture(t)
	fixture.write(t, recordHi+"\n")

	var sink bytes.Buffer
	buffered := bufio.NewWriter(&sink)
	tailer := &Tailer{
		QueuePath: fixture.queuePath,
		Cursor:    cursor.NewStore(fixture.statePath),
		Output:    buffered,
	}
	mustPoll(t, tailer)

	if want := "[pi:room1] hi (did=abc, ts=1)\n"; sink.String() != want {
		t.Errorf("flushed output = %q, want %q", sink.String(), want)
	}
}

func TestPoll_RequiresConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		tailer Tailer
	}{
		{"no queue", Tailer{Cursor: cursor.NewStore("x"), Output: &bytes.Buffer{}}},
		{"no cursor", Tailer{QueuePath: "q", Output: &bytes.Buffer{}}},
		{"no output", Tailer{QueuePath: "q", Cursor: cursor.NewStore("x")}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := test.tailer.Poll(); err == nil {
				t.Error("Poll succeeded, want configuration error")
			}
		})
	}
}

// lineWriter forwards every write to a channel so tests can observe
// output produced by Run's goroutine.
type lineWriter chan string

func (w lineWriter) Write(p []byte) (int, error) {
	w <- string(p)
	return len(p), nil
}

func TestRun_PollsOnInterval(t *testing.T) {
	fixture := newQueueFixture(t)
	fixture.write(t, recordHi+"\n")

	fakeClock := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	lines := make(chan string, 16)
	tailer := &Tailer{
		QueuePath:    fixture.queuePath,
		Cursor:       cursor.NewStore(fixture.statePath),
		PollInterval: 500 * time.Millisecond,
		Output:       lineWriter(lines),
		Clock:        fakeClock,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tailer.Run(ctx) }()

	if got := testutil.RequireReceive(t, lines, 5*time.Second, "first cycle"); got != "[pi:room1] hi (did=abc, ts=1)\n" {
		t.Errorf("first notification = %q", got)
	}

	fakeClock.WaitForTimers(1)
	fixture.append(t, recordBye+"\n")
	fakeClock.Advance(500 * time.Millisecond)

	if got := testutil.RequireReceive(t, lines, 5*time.Second, "second cycle"); got != "[pi:room1] bye (did=abc, ts=2)\n" {
		t.Errorf("second notification = %q", got)
	}

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "Run to return"); err != nil {
		t.Errorf("Run returned %v, want nil", err)
	}
}

func TestRun_WakeEndsSleepEarly(t *testing.T) {
	fixture := newQueueFixture(t)

	fakeClock := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	wake := make(chan struct{}, 1)
	lines := make(chan string, 16)
	tailer := &Tailer{
		QueuePath:    fixture.queuePath,
		Cursor:       cursor.NewStore(fixture.statePath),
		PollInterval: time.Hour,
		Output:       lineWriter(lines),
		Clock:        fakeClock,
		Wake:         wake,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tailer.Run(ctx)

	fakeClock.WaitForTimers(1)
	fixture.append(t, recordHi+"\n")
	wake <- struct{}{}

	if got := testutil.RequireReceive(t, lines, 5*time.Second, "notification after wake"); got != "[pi:room1] hi (did=abc, ts=1)\n" {
		t.Errorf("notification = %q", got)
	}
}

func TestRun_RejectsNonPositiveInterval(t *testing.T) {
	fixture := newQueueFixture(t)
	tailer := fixture.tailer(&bytes.Buffer{})
	tailer.PollInterval = 0
	if err := tailer.Run(context.Background()); err == nil {
		t.Fatal("Run with zero PollInterval succeeded, want error")
	}
}
