// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/vibmon/pkg/link"
	"github.com/Thermoquad/vibmon/pkg/vibproto"
	"github.com/spf13/cobra"
)

var frameTestTimeout int

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test connection by waiting for a valid data frame",
	Long: `Wait for a valid VIB data frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any data
frame that parses cleanly. Info lines, unrecognized lines and malformed
frames are counted and skipped.

Exit codes:
  0 - Data frame received before timeout
  1 - Timeout reached without receiving a valid data frame
  2 - Connection error

Useful for checking probe wiring before starting the control loop.`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

// frameScan is the outcome of waiting for a data frame
type frameScan struct {
	sample  vibproto.SensorSample
	skipped int
}

// waitForDataFrame reads lines until a data frame parses or reading fails,
// sleeping idle whenever no complete line is available
func waitForDataFrame(lines *link.LineReader, idle time.Duration) (frameScan, error) {
	var scan frameScan
	for {
		line, ok, err := lines.ReadLine()
		if err != nil {
			return scan, err
		}
		if !ok {
			time.Sleep(idle)
			continue
		}
		ev := vibproto.ParseLine(line)
		if ev.Kind == vibproto.EventData {
			scan.sample = ev.Sample
			return scan, nil
		}
		scan.skipped++
	}
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}
	if err := resolveConnection(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	conn, connInfo, err := newDialer(cfg)()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Vibmon - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)
	fmt.Printf("Waiting for valid data frame...\n\n")

	scanChan := make(chan frameScan, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		scan, err := waitForDataFrame(link.NewLineReader(conn), link.DefaultPollTimeout)
		if err != nil {
			errChan <- err
			return
		}
		scanChan <- scan
	}()

	select {
	case scan := <-scanChan:
		if scan.skipped > 0 {
			fmt.Printf("(skipped %d other lines before the first data frame)\n", scan.skipped)
		}
		fmt.Printf("SUCCESS: Received valid data frame\n")
		fmt.Print("  " + vibproto.FormatSample(scan.sample))
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(frameTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid data frame received within %d seconds\n", frameTestTimeout)
		os.Exit(1)
	}

	return nil
}
