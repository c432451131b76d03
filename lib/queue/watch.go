// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher signals when the queue file changes on disk. Signals
// coalesce: any number of writes between two receives produce one
// wake-up.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	wake    chan struct{}
	done    chan struct{}
	logger  *slog.Logger
}

// WatchQueue starts watching the queue at path. The parent directory
// is watched rather than the file, so the watch survives the file
// being created, replaced by rename, or removed. The directory must
// exist. Call Close to release the inotify descriptor.
func WatchQueue(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	absolutePath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving queue path %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating queue watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absolutePath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(absolutePath), err)
	}

	w := &Watcher{
		watcher: watcher,
		path:    absolutePath,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		logger:  logger,
	}
	go w.loop()
	return w, nil
}

// C returns the wake-up channel, suitable for Tailer.Wake.
func (w *Watcher) C() <-chan struct{} {
	return w.wake
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				select {
				case w.wake <- struct{}{}:
				default:
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("queue watcher error", "queue", w.path, "error", err)
		}
	}
}
