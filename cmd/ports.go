// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/vibmon/pkg/link"
	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long: `List the host's serial ports with USB vendor and product IDs.

Ports whose vendor ID matches the Raspberry Pi Pico are marked; the first of
them is used when neither --port nor --url is given.`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := link.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	for _, p := range ports {
		marker := "  "
		if p.IsProbe() {
			marker = "* "
		}
		fmt.Println(marker + p.String())
	}
	return nil
}
