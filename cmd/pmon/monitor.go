//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/perfmon/pmon/pkg/config"
	"github.com/perfmon/pmon/pkg/monitor"
	"github.com/perfmon/pmon/pkg/pmu"
)

func monitorCmd() *cobra.Command {
	var cfg config.Config
	var events string

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Count event groups round-robin over the selected processors",
		Long: `monitor opens each configured event group on every selected processor
and time-multiplexes the groups: each one counts for the duty cycle, is
read, and hands the PMU to the next. One snapshot block per group per pass
goes to the output.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd.Context(), &cfg, events)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&cfg.Loops, "loop", "l", config.DefaultLoops, "number of round-robin passes")
	f.Float64VarP(&cfg.Interval, "time", "t", config.DefaultInterval, "per-group duty cycle in seconds, granularity 0.01")
	f.StringVarP(&events, "event", "e", "", "event groups: ',' joins events within a group, ';' separates groups")
	f.StringVarP(&cfg.Input, "input", "i", "", "event-group file, overrides --event")
	f.StringVarP(&cfg.Output, "output", "o", "", "snapshot destination, default stdout")
	f.IntVarP(&cfg.CPU, "cpu", "c", -1, "processor to monitor, -1 for all")
	f.IntVarP(&cfg.PID, "pid", "p", -1, "process to monitor, -1 for any")
	f.StringVarP(&cfg.PLM, "plm", "m", config.DefaultPLM, "privilege level mask, letters from ukh")
	f.BoolVar(&cfg.InclChildren, "incl-children", false, "count child tasks too (disables group read)")
	f.BoolVar(&cfg.GroupRead, "group-read", true, "read each group with a single syscall")
	f.BoolVar(&cfg.SkipErrors, "skip-errors", false, "drop events the encoder rejects instead of failing the group")

	return cmd
}

func runMonitor(ctx context.Context, cfg *config.Config, events string) error {
	if cfg.Input != "" {
		groups, err := config.LoadGroups(cfg.Input)
		if err != nil {
			return err
		}
		cfg.Groups = groups
	} else {
		cfg.Groups = config.ParseGroups(events)
	}
	if len(cfg.Groups) == 0 {
		return fmt.Errorf("at least one event must be specified (--event or --input)")
	}
	cfg.Verbose = verbose
	cfg.Normalize()

	if err := probePerfEvent(); err != nil {
		return err
	}
	if cfg.PID == -1 {
		if err := requireRoot("system-wide monitoring"); err != nil {
			return err
		}
	}

	out, done, err := outputWriter(cfg.Output)
	if err != nil {
		return err
	}
	defer done()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := monitor.New(cfg, pmu.NewEncoder(), out)
	if err := m.Open(); err != nil {
		return err
	}
	defer m.Close()

	if err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
