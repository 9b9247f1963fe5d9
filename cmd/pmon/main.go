//go:build linux

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/perfmon/pmon/pkg/system/sysfs"
)

var version = "0.3.0"

var verbose bool

func main() {
	root := &cobra.Command{
		Use:   "pmon",
		Short: "Performance-counter monitor for Linux",
		Long: `pmon programs the kernel's perf_event interface to count
micro-architectural events (cycles, instructions, cache misses, ...) per
process or per processor, aggregates the counts over configurable time
windows, and reports them as snapshots or as a live per-processor view.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			lvl := slog.LevelWarn
			if verbose {
				lvl = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
		},
	}
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	root.AddCommand(
		monitorCmd(),
		topCmd(),
		topologyCmd(),
		pmuCmd(),
		msrCmd(),
	)

	if err := root.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

// probePerfEvent checks the well-known sysctl the perf subsystem exports;
// its absence means the kernel was built without perf_event support.
func probePerfEvent() error {
	if !sysfs.Exists("/proc/sys/kernel/perf_event_paranoid") {
		return fmt.Errorf("perf_event is not supported by this kernel")
	}
	return nil
}

// requireRoot guards the system-wide modes: counting every process on a
// processor needs CAP_SYS_ADMIN, and root is the honest way to ask for it.
func requireRoot(what string) error {
	if os.Geteuid() != 0 {
		return fmt.Errorf("%s requires root privilege", what)
	}
	return nil
}

// outputWriter opens the -o destination, defaulting to stdout.
func outputWriter(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}
