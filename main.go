// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Vibmon - Vibration probe link and safety monitor
//
// Reads a vibration probe's serial text frames, derives current, peak and RMS
// magnitude, and publishes a latched emergency-stop trigger to a control bus.

package main

import (
	"os"

	"github.com/Thermoquad/vibmon/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
