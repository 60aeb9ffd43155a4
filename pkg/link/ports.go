// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// Raspberry Pi USB vendor ID used by the Pico probe
const PicoVendorID = "2E8A"

// DefaultSerialPort is where a Pico CDC device appears on Linux
const DefaultSerialPort = "/dev/ttyACM0"

// PortInfo describes a serial port found on the host
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// IsProbe reports whether the port looks like a Pico-based probe
func (p PortInfo) IsProbe() bool {
	return p.IsUSB && strings.EqualFold(p.VID, PicoVendorID)
}

// String formats the port for listing
func (p PortInfo) String() string {
	if !p.IsUSB {
		return p.Name
	}
	result := fmt.Sprintf("%s  USB %s:%s", p.Name, p.VID, p.PID)
	if p.Product != "" {
		result += "  " + p.Product
	}
	if p.SerialNumber != "" {
		result += "  serial=" + p.SerialNumber
	}
	return result
}

// ListPorts enumerates serial ports with USB details where available
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return ports, nil
}

// FindProbe returns the first port that looks like a probe
func FindProbe(ports []PortInfo) (PortInfo, bool) {
	for _, p := range ports {
		if p.IsProbe() {
			return p, true
		}
	}
	return PortInfo{}, false
}
