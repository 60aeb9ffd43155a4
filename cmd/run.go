// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/vibmon/pkg/config"
	"github.com/spf13/cobra"
)

var (
	runNoLog  bool
	runLogDir string
	runHTTP   string
	runBus    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the control loop headless",
	Long: `Connect to the probe and run the control loop until interrupted.

Outputs (current, peak, rms, status, estop-trigger, connected) are published
to the configured control bus. With --bus mqtt the operator inputs are read
from retained MQTT topics; with the local bus they keep their configured
values. Every sample is queued to the CSV log and any configured database
sinks. --http serves /metrics, /healthz, /api/state and a live /ws feed.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addPipelineFlags(runCmd)
	runCmd.Flags().StringVar(&runBus, "bus", "", "Control bus: local or mqtt")
}

// addPipelineFlags registers the logging and HTTP flags shared with watch
func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&runNoLog, "no-log", false, "Disable the CSV sample log")
	cmd.Flags().StringVar(&runLogDir, "log-dir", "", "Directory for CSV sample logs")
	cmd.Flags().StringVar(&runHTTP, "http", "", "Telemetry listen address (e.g. :9100)")
}

// applyPipelineFlags layers explicitly set pipeline flags over cfg
func applyPipelineFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("no-log") {
		cfg.Log.Enabled = !runNoLog
	}
	if flags.Changed("log-dir") {
		cfg.Log.Dir = runLogDir
	}
	if flags.Changed("http") {
		cfg.HTTP.Addr = runHTTP
	}
	if flags.Lookup("bus") != nil && flags.Changed("bus") {
		cfg.Bus.Kind = runBus
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyPipelineFlags(cmd, cfg); err != nil {
		return err
	}
	if err := resolveConnection(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}

	fmt.Printf("Vibmon - Control Loop\n")
	fmt.Printf("Connection: %s\n", describeProbe(cfg))
	fmt.Printf("Bus: %s\n", cfg.Bus.Kind)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	runErr := p.Run(ctx)
	if err := p.Close(); err != nil {
		log.Printf("[vibmon] Error closing sample log: %v", err)
	}
	return runErr
}
