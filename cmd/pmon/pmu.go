//go:build linux

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/perfmon/pmon/pkg/pmu"
)

func pmuCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pmu",
		Short: "List the event sources the kernel exports",
		RunE: func(cmd *cobra.Command, args []string) error {
			pmus, err := pmu.List()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "PMU\tTYPE\n")
			for _, p := range pmus {
				fmt.Fprintf(tw, "%s\t%d\n", p.Name, p.Type)
			}
			return tw.Flush()
		},
	}
}
