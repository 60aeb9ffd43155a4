// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Thermoquad/vibmon/pkg/link"
	"github.com/Thermoquad/vibmon/pkg/vibproto"
	"github.com/spf13/cobra"
)

var rawLogValidate bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display the probe's frames in human-readable format",
	Long: `Continuously decode and display probe frames as they arrive.

Data frames are shown with their accelerometer, gyroscope, magnitude and
status fields; e-stop, info and unrecognized frames and parse errors are
shown on one line each. With --validate, physically implausible samples are
flagged.

This command does not run the control loop and never asserts the e-stop
output. Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogValidate, "validate", true, "Flag implausible sample values")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := resolveConnection(cfg); err != nil {
		return err
	}

	conn, connInfo, err := newDialer(cfg)()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Vibmon - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	lines := link.NewLineReader(conn)
	for {
		line, ok, err := lines.ReadLine()
		if err != nil {
			// For WebSocket connections, a read error usually means
			// the connection is permanently closed - exit gracefully
			if errors.Is(err, link.ErrConnectionClosed) {
				log.Printf("Connection closed")
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}
		if !ok {
			time.Sleep(link.DefaultPollTimeout)
			continue
		}

		ev := vibproto.ParseLine(line)
		fmt.Print(vibproto.FormatEvent(ev, time.Now()))

		if rawLogValidate && ev.Kind == vibproto.EventData {
			for _, a := range vibproto.ValidateSample(ev.Sample) {
				fmt.Printf("  [ANOMALY] %s\n", a.Error())
			}
		}
	}
}
