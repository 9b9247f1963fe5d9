//go:build linux

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/perfmon/pmon/pkg/config"
	"github.com/perfmon/pmon/pkg/pmu"
	"github.com/perfmon/pmon/pkg/top"
)

func topCmd() *cobra.Command {
	var cfg config.Config

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Live per-processor utilization from unhalted cycle counts",
		Long: `top opens a fixed user/kernel-cycle group on every selected processor
and refreshes a per-processor usr/sys/idle breakdown on each interval,
computed against the cycles the processor could have retired at its clock
frequency.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Verbose = verbose

			if err := probePerfEvent(); err != nil {
				return err
			}
			if err := requireRoot("processor-wide cycle counting"); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e := top.NewEngine(&cfg, pmu.NewEncoder())
			if err := e.Open(); err != nil {
				return err
			}
			defer e.Close()

			var r top.Renderer
			if cfg.Batch {
				r = top.BatchRenderer{W: os.Stdout}
			} else {
				r = top.ScreenRenderer{W: os.Stdout}
			}
			return e.Run(ctx, r)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cfg.CPUList, "cpu", "c", "", "processors to watch, e.g. 0,2-3; all online when empty")
	f.Float64VarP(&cfg.Delay, "delay", "d", 1.0, "refresh interval in seconds")
	f.IntVarP(&cfg.Iterations, "iter", "n", 0, "number of refreshes, 0 to run until interrupted")
	f.BoolVar(&cfg.Batch, "batch", false, "append one line per processor instead of repainting the screen")

	return cmd
}
