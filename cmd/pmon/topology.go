//go:build linux

package main

import (
	"github.com/spf13/cobra"

	"github.com/perfmon/pmon/pkg/topology"
)

func topologyCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Discover and print the socket/core/thread hierarchy",
		Long: `topology reads the processor hierarchy from sysfs. Present-but-offline
processors are onlined for the probe and put back afterwards, which needs
root when any processor is offline.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			topo, err := topology.Build()
			if err != nil {
				return err
			}

			w, done, err := outputWriter(output)
			if err != nil {
				return err
			}
			defer done()

			topo.Print(w)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the table to a file instead of stdout")
	return cmd
}
