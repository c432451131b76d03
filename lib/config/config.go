// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment variables read by [Config.ApplyEnvironment].
const (
	EnvQueuePath    = "PI_OUTBOX"
	EnvStatePath    = "PI_INBOX_STATE"
	EnvPollInterval = "PI_INBOX_POLL"
)

// Config is the configuration shared by pi-inbox and pi-merge-input.
type Config struct {
	// Inbox configures the queue tailer.
	Inbox InboxConfig `yaml:"inbox"`

	// Merge configures the input multiplexer.
	Merge MergeConfig `yaml:"merge"`

	// Log configures the stderr logger.
	Log LogConfig `yaml:"log"`
}

// InboxConfig configures the queue tailer.
type InboxConfig struct {
	// Queue is the JSONL queue file the bridge appends to.
	// Default: /tmp/freeq-pi-queue.jsonl
	Queue string `yaml:"queue"`

	// State is the file holding the durable byte offset.
	// Default: /tmp/freeq-pi-queue.offset
	State string `yaml:"state"`

	// PollInterval is the sleep between cycles, in seconds.
	// Default: 0.5
	PollInterval float64 `yaml:"poll_interval"`

	// Watch wakes the tailer early when the queue file changes.
	Watch bool `yaml:"watch"`
}

// MergeConfig configures the input multiplexer.
type MergeConfig struct {
	// ReopenInterval is how long to wait, in seconds, before retrying
	// a named pipe that could not be reopened.
	// Default: 1
	ReopenInterval float64 `yaml:"reopen_interval"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file, environment
// variable or flag says otherwise.
func Default() *Config {
	return &Config{
		Inbox: InboxConfig{
			Queue:        "/tmp/freeq-pi-queue.jsonl",
			State:        "/tmp/freeq-pi-queue.offset",
			PollInterval: 0.5,
		},
		Merge: MergeConfig{
			ReopenInterval: 1,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFile loads configuration from path on top of [Default].
//
// Files ending in .json or .jsonc may contain comments and trailing
// commas; everything else is parsed as YAML. Path fields are expanded
// with ${VAR} and ${VAR:-default} after loading.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML once comments and trailing commas
		// are gone.
		data = jsonc.ToJSON(data)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// ApplyEnvironment overrides inbox settings from PI_OUTBOX,
// PI_INBOX_STATE and PI_INBOX_POLL. Variables that are unset or empty
// are ignored. lookup is normally os.LookupEnv.
func (c *Config) ApplyEnvironment(lookup func(string) (string, bool)) error {
	if value, ok := lookup(EnvQueuePath); ok && value != "" {
		c.Inbox.Queue = value
	}
	if value, ok := lookup(EnvStatePath); ok && value != "" {
		c.Inbox.State = value
	}
	if value, ok := lookup(EnvPollInterval); ok && value != "" {
		seconds, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("%s: invalid poll interval %q", EnvPollInterval, value)
		}
		c.Inbox.PollInterval = seconds
	}
	return nil
}

func (c *Config) expandVariables() {
	c.Inbox.Queue = expandVars(c.Inbox.Queue)
	c.Inbox.State = expandVars(c.Inbox.State)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the process
// environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// PollDuration returns Inbox.PollInterval as a duration.
func (c *Config) PollDuration() time.Duration {
	return secondsToDuration(c.Inbox.PollInterval)
}

// ReopenDuration returns Merge.ReopenInterval as a duration.
func (c *Config) ReopenDuration() time.Duration {
	return secondsToDuration(c.Merge.ReopenInterval)
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

var logLevels = []string{"debug", "info", "warn", "error"}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Inbox.Queue == "" {
		errs = append(errs, fmt.Errorf("inbox.queue is required"))
	}
	if c.Inbox.State == "" {
		errs = append(errs, fmt.Errorf("inbox.state is required"))
	}
	if c.Inbox.Queue != "" && c.Inbox.Queue == c.Inbox.State {
		errs = append(errs, fmt.Errorf("inbox.state must differ from inbox.queue"))
	}
	if !positiveDuration(c.Inbox.PollInterval) {
		errs = append(errs, fmt.Errorf("inbox.poll_interval must be a positive number of seconds, got %v", c.Inbox.PollInterval))
	}
	if !positiveDuration(c.Merge.ReopenInterval) {
		errs = append(errs, fmt.Errorf("merge.reopen_interval must be a positive number of seconds, got %v", c.Merge.ReopenInterval))
	}
	if !contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevels))
	}

	return errors.Join(errs...)
}

// positiveDuration reports whether seconds converts to a duration of at
// least one nanosecond without overflowing.
func positiveDuration(seconds float64) bool {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return false
	}
	return seconds*float64(time.Second) >= 1 && seconds < math.MaxInt64/float64(time.Second)
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
