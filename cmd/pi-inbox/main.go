// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// pi-inbox tails the bridge's JSONL queue file and prints one
// notification line per new entry on stdout:
//
//	[pi:<target>] <text> (did=<did>, ts=<ts>)
//
// The byte offset of the first unread entry is kept in a state file
// that is replaced atomically after every cycle, so a restart resumes
// where the previous run stopped and no entry is printed twice. If the
// queue shrinks below the saved offset (truncation or replacement),
// tailing restarts from the beginning.
//
// Settings come from defaults, then an optional --config file, then
// the PI_OUTBOX, PI_INBOX_STATE and PI_INBOX_POLL environment
// variables, then flags. Logs go to stderr; stdout carries only
// notifications.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/pibridge/lib/clock"
	"github.com/bureau-foundation/pibridge/lib/config"
	"github.com/bureau-foundation/pibridge/lib/cursor"
	"github.com/bureau-foundation/pibridge/lib/process"
	"github.com/bureau-foundation/pibridge/lib/queue"
	"github.com/bureau-foundation/pibridge/lib/version"
)

func main() {
	cmd := newCommand()
	if err := cmd.run(os.Args[1:]); err != nil {
		var usage *process.UsageError
		if errors.As(err, &usage) {
			process.Usage(usage.Message, cmd.printHelp)
		}
		process.Fatal(err)
	}
}

type command struct {
	flagSet *pflag.FlagSet

	configPath  string
	queuePath   string
	statePath   string
	pollSeconds float64
	watch       bool
	logLevel    string
	showVersion bool
	showHelp    bool
}

func newCommand() *command {
	cmd := &command{}
	flagSet := pflag.NewFlagSet("pi-inbox", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&cmd.configPath, "config", "", "YAML or JSONC configuration file")
	flagSet.StringVar(&cmd.queuePath, "queue", "", "JSONL queue file to tail (overrides "+config.EnvQueuePath+")")
	flagSet.StringVar(&cmd.statePath, "state", "", "offset state file (overrides "+config.EnvStatePath+")")
	flagSet.Float64Var(&cmd.pollSeconds, "poll", 0, "seconds between polls (overrides "+config.EnvPollInterval+")")
	flagSet.BoolVar(&cmd.watch, "watch", false, "also wake up when the queue file changes")
	flagSet.StringVar(&cmd.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.BoolVar(&cmd.showVersion, "version", false, "print version information and exit")
	flagSet.BoolVarP(&cmd.showHelp, "help", "h", false, "show help")
	cmd.flagSet = flagSet
	return cmd
}

func (c *command) run(args []string) error {
	if err := c.flagSet.Parse(args); err != nil {
		return process.Usagef("%v", err)
	}
	if c.showHelp {
		c.printHelp(os.Stderr)
		return nil
	}
	if c.showVersion {
		fmt.Printf("pi-inbox %s\n", version.Full())
		return nil
	}
	if extra := c.flagSet.Args(); len(extra) > 0 {
		return process.Usagef("unexpected argument: %s", extra[0])
	}

	cfg, err := c.loadConfig(os.LookupEnv)
	if err != nil {
		return err
	}

	logger, err := process.NewLogger(cfg.Log.Level)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The tailer flushes after every notification, so buffering only
	// coalesces the bytes of a single line into one write.
	output := bufio.NewWriter(os.Stdout)

	tailer := &queue.Tailer{
		QueuePath:    cfg.Inbox.Queue,
		Cursor:       cursor.NewStore(cfg.Inbox.State),
		PollInterval: cfg.PollDuration(),
		Output:       output,
		Clock:        clock.Real(),
		Logger:       logger,
	}

	if cfg.Inbox.Watch {
		watcher, err := queue.WatchQueue(cfg.Inbox.Queue, logger)
		if err != nil {
			return fmt.Errorf("watching queue: %w", err)
		}
		defer watcher.Close()
		tailer.Wake = watcher.C()
	}

	err = tailer.Run(ctx)
	logger.Info("stopped", "offset", tailer.Offset())
	return err
}

// loadConfig layers the config file, the environment and any flags
// that were set explicitly over the defaults, then validates.
func (c *command) loadConfig(lookup func(string) (string, bool)) (*config.Config, error) {
	cfg := config.Default()
	if c.configPath != "" {
		loaded, err := config.LoadFile(c.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnvironment(lookup); err != nil {
		return nil, err
	}

	if c.flagSet.Changed("queue") {
		cfg.Inbox.Queue = c.queuePath
	}
	if c.flagSet.Changed("state") {
		cfg.Inbox.State = c.statePath
	}
	if c.flagSet.Changed("poll") {
		cfg.Inbox.PollInterval = c.pollSeconds
	}
	if c.flagSet.Changed("watch") {
		cfg.Inbox.Watch = c.watch
	}
	if c.flagSet.Changed("log-level") {
		cfg.Log.Level = c.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *command) printHelp(w io.Writer) {
	fmt.Fprintf(w, `pi-inbox prints new entries of the bridge queue as notification lines.

Each entry is printed once, even across restarts: the offset of the
first unread byte is saved to the state file after every poll.

Usage:
  pi-inbox [flags]

Environment:
  %s      queue file (default /tmp/freeq-pi-queue.jsonl)
  %s  offset state file (default /tmp/freeq-pi-queue.offset)
  %s   seconds between polls (default 0.5)

Flags:
`, config.EnvQueuePath, config.EnvStatePath, config.EnvPollInterval)
	c.flagSet.SetOutput(w)
	c.flagSet.PrintDefaults()
	c.flagSet.SetOutput(io.Discard)
}
