//go:build linux

// Package config holds the toolkit's immutable runtime configuration. The
// CLI builds one Config at startup, normalizes it, and hands it to the
// engines by reference; nothing mutates it afterwards.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/perfmon/pmon/pkg/system/sysfs"
	"github.com/perfmon/pmon/pkg/system/util"
)

var (
	// ErrNoEvents indicates no event group was configured.
	ErrNoEvents = errors.New("config: no event groups")
)

const (
	// DefaultLoops is the number of round-robin passes.
	DefaultLoops = 5
	// DefaultInterval is the per-group duty cycle in seconds.
	DefaultInterval = 1.0
	// MinInterval is the shortest honored duty cycle.
	MinInterval = 0.01
	// DefaultPLM counts in every processor mode.
	DefaultPLM = "ukh"
	// MaxGroupSize caps the events per group.
	MaxGroupSize = 32
	// MaxGroups caps the number of round-robin groups.
	MaxGroups = 64
)

// Config is the merged command-line and file configuration.
type Config struct {
	// Round-robin monitor.
	Loops    int      // round-robin passes
	Interval float64  // per-group duty cycle, seconds
	Groups   []string // comma-joined event names, one entry per group
	Input    string   // event-group file, overrides Groups
	Output   string   // snapshot destination, "" for stdout
	CPU      int      // target processor, -1 for all
	PID      int      // target process, -1 for any
	PLM      string   // privilege-level mask
	Verbose  bool

	InclChildren bool // count child tasks too
	GroupRead    bool // packed whole-group reads
	SkipErrors   bool // drop events the encoder rejects

	// Top engine.
	CPUList    string  // processors to watch, "" for all online
	Delay      float64 // refresh interval, seconds
	Iterations int     // frames to emit, <= 0 for unbounded
	Batch      bool    // plain line output instead of screen refresh
}

// Normalize applies the documented defaults and resolves contradictory
// requests. Returns the receiver for chaining.
func (c *Config) Normalize() *Config {
	if c.Interval < MinInterval {
		c.Interval = DefaultInterval
	}
	if c.Loops <= 0 {
		c.Loops = DefaultLoops
	}
	if c.PLM == "" {
		c.PLM = DefaultPLM
	}
	if c.InclChildren && c.GroupRead {
		// the kernel cannot combine inherit with the packed group read
		slog.Warn("child-task inheritance disables group read")
		c.GroupRead = false
	}
	return c
}

// LoadGroups reads an event-group file: one event name per line, '#' lines
// and blank lines ignored, a line holding only ';' ends the current group,
// EOF ends the last one. The result replaces any -e groups.
func LoadGroups(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	var groups []string
	var current []string

	flush := func() {
		if len(current) > 0 {
			groups = append(groups, strings.Join(current, ","))
			current = nil
		}
	}

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := util.Trim(sc.Text(), "")
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
		case line == ";":
			flush()
		default:
			current = append(current, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	flush()

	if len(groups) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoEvents, path)
	}
	return groups, nil
}

// ParseGroups splits a ';'-separated -e argument into group strings.
func ParseGroups(arg string) []string {
	var groups []string
	for _, g := range util.SplitLimit(arg, ";", MaxGroups) {
		if g = util.Trim(g, ""); g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}

// ParseCPUList parses the top engine's processor selection, e.g. "0,2-3".
func ParseCPUList(s string) ([]int, error) {
	cpus, err := sysfs.ParseRangeList(s)
	if err != nil {
		return nil, fmt.Errorf("config: cpu list %q: %w", s, err)
	}
	return cpus, nil
}
