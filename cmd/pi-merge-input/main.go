// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// pi-merge-input merges keyboard input and a named pipe into stdout.
//
// Bytes typed on stdin are passed through as soon as they arrive.
// Lines written to the FIFO are passed through one complete line at a
// time. When the last writer closes the FIFO it is reopened, so any
// number of producers can connect one after another:
//
//	mkfifo /tmp/pi-input.fifo
//	pi-merge-input /tmp/pi-input.fifo | pi
//	echo "status report" > /tmp/pi-input.fifo
//
// The process runs until SIGINT or SIGTERM. Logs go to stderr.
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

	"github.com/bureau-foundation/pibridge/lib/config"
	"github.com/bureau-foundation/pibridge/lib/inputmux"
	"github.com/bureau-foundation/pibridge/lib/process"
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
	logLevel    string
	showVersion bool
	showHelp    bool
}

func newCommand() *command {
	cmd := &command{}
	flagSet := pflag.NewFlagSet("pi-merge-input", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&cmd.configPath, "config", "", "YAML or JSONC configuration file")
	flagSet.StringVar(&cmd.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.BoolVar(&cmd.showVersion, "version", false, "print version information and exit")
	flagSet.BoolVarP(&cmd.showHelp, "help", "h", false, "show help")
	cmd.flagSet = flagSet
	return cmd
}

func (c *command) run(args []string) error {
	pipePath, err := c.parse(args)
	if err != nil {
		return err
	}
	if c.showHelp {
		c.printHelp(os.Stderr)
		return nil
	}
	if c.showVersion {
		fmt.Printf("pi-merge-input %s\n", version.Full())
		return nil
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}

	logger, err := process.NewLogger(cfg.Log.Level)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The multiplexer flushes after every write; the buffer only turns
	// a line into a single write on stdout.
	output := bufio.NewWriter(os.Stdout)

	multiplexer, err := inputmux.New(inputmux.Config{
		Interactive:    os.Stdin,
		PipePath:       pipePath,
		Output:         output,
		Logger:         logger,
		ReopenInterval: cfg.ReopenDuration(),
	})
	if err != nil {
		return err
	}

	runErr := multiplexer.Run(ctx)
	if err := multiplexer.Close(); err != nil {
		logger.Warn("releasing descriptors failed", "error", err)
	}
	return runErr
}

// parse parses flags and returns the single FIFO path argument. The
// argument is required unless --help or --version was given.
func (c *command) parse(args []string) (string, error) {
	if err := c.flagSet.Parse(args); err != nil {
		return "", process.Usagef("%v", err)
	}
	if c.showHelp || c.showVersion {
		return "", nil
	}
	positional := c.flagSet.Args()
	switch len(positional) {
	case 0:
		return "", process.Usagef("missing FIFO path")
	case 1:
		if positional[0] == "" {
			return "", process.Usagef("FIFO path is empty")
		}
		return positional[0], nil
	default:
		return "", process.Usagef("expected one FIFO path, got %d arguments", len(positional))
	}
}

func (c *command) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if c.configPath != "" {
		loaded, err := config.LoadFile(c.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
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
	fmt.Fprint(w, `pi-merge-input merges stdin and a named pipe into stdout.

Keyboard input is passed through immediately. Lines written to the
pipe are passed through whole, and the pipe is reopened whenever its
writer closes it.

Usage:
  pi-merge-input [flags] <fifo>

Example:
  mkfifo /tmp/pi-input.fifo
  pi-merge-input /tmp/pi-input.fifo | pi

Flags:
`)
	c.flagSet.SetOutput(w)
	c.flagSet.PrintDefaults()
	c.flagSet.SetOutput(io.Discard)
}
