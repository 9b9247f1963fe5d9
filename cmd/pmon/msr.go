//go:build linux

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/perfmon/pmon/pkg/msr"
)

func msrCmd() *cobra.Command {
	var cpu int

	cmd := &cobra.Command{
		Use:   "msr",
		Short: "Read or write model-specific registers",
	}
	cmd.PersistentFlags().IntVarP(&cpu, "cpu", "c", 0, "processor whose register to access")

	read := &cobra.Command{
		Use:   "read <register>",
		Short: "Print a register's 64-bit value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := parseRegister(args[0])
			if err != nil {
				return err
			}

			d, err := msr.Open(cpu)
			if err != nil {
				return err
			}
			defer d.Close()

			val, err := d.Read(reg)
			if err != nil {
				return err
			}
			fmt.Printf("0x%016x\n", val)
			return nil
		},
	}

	write := &cobra.Command{
		Use:   "write <register> <value>",
		Short: "Store a 64-bit value into a register",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := parseRegister(args[0])
			if err != nil {
				return err
			}
			val, err := strconv.ParseUint(args[1], 0, 64)
			if err != nil {
				return fmt.Errorf("bad register value %q: %w", args[1], err)
			}

			d, err := msr.OpenWritable(cpu)
			if err != nil {
				return err
			}
			defer d.Close()

			return d.Write(reg, val)
		},
	}

	cmd.AddCommand(read, write)
	return cmd
}

func parseRegister(s string) (uint32, error) {
	reg, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("bad register %q: %w", s, err)
	}
	return uint32(reg), nil
}
