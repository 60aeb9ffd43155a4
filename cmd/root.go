// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/vibmon/pkg/config"
	"github.com/spf13/cobra"
)

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "vibmon",
	Short: "Vibration probe link and safety monitor",
	Long: `Vibmon - Reads a vibration probe's text frames, tracks current, peak and RMS
magnitude, classifies the probe's safety status and raises a latched
emergency-stop trigger for the host control system.

Connection modes:
  Serial:    --port /dev/ttyACM0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

With neither flag set, the first Pico-based USB serial port is used.

Settings are read from --config (YAML), then .env and VIBMON_* environment
variables, then command-line flags. For WebSocket authentication the password
is read from VIBMON_PASSWORD, or prompted interactively if not set. The
--password flag is intentionally not provided to avoid leaking credentials in
shell history.`,
	Version:      "1.0.0",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// loadConfig layers the configuration file, the environment and any
// explicitly set connection flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Probe.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Probe.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.Probe.URL = wsURL
	}
	if flags.Changed("username") {
		cfg.Probe.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.Probe.NoSSLVerify = wsNoSSLVerify
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
