// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"

	"github.com/Thermoquad/vibmon/pkg/config"
	"github.com/Thermoquad/vibmon/pkg/link"
	"golang.org/x/term"
)

// readPassword prompts for a password without echo
func readPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// resolveConnection fills in the password and, when no transport is configured,
// the first Pico-based serial port. With no Pico attached it falls back to
// link.DefaultSerialPort and leaves the loop to keep redialing until the
// device shows up. It runs once before the first dial so a prompt never
// interrupts the control loop.
func resolveConnection(cfg *config.Config) error {
	p := &cfg.Probe

	if p.URL != "" {
		if p.Username != "" && p.Password == "" {
			password, err := readPassword()
			if err != nil {
				return err
			}
			p.Password = password
		}
		return nil
	}

	if p.Port != "" {
		return nil
	}

	ports, err := link.ListPorts()
	if err != nil {
		log.Printf("[vibmon] Warning: %v", err)
	}
	if probe, ok := link.FindProbe(ports); ok {
		p.Port = probe.Name
		return nil
	}

	log.Printf("[vibmon] Warning: no Pico serial port found, waiting on %s (set --port or --url to override)", link.DefaultSerialPort)
	p.Port = link.DefaultSerialPort
	return nil
}

// newDialer returns a link dialer for the configured transport
func newDialer(cfg *config.Config) link.Dialer {
	p := cfg.Probe

	if p.URL != "" {
		opts := link.WebSocketOptions{
			URL:           p.URL,
			Username:      p.Username,
			Password:      p.Password,
			SkipSSLVerify: p.NoSSLVerify,
		}
		return func() (link.Connection, string, error) {
			conn, err := link.OpenWebSocket(opts)
			if err != nil {
				return nil, "", err
			}
			return conn, fmt.Sprintf("WebSocket: %s", p.URL), nil
		}
	}

	return func() (link.Connection, string, error) {
		conn, err := link.OpenSerial(p.Port, p.Baud, p.PollTimeout)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", p.Port, p.Baud), nil
	}
}

// describeProbe is the connection string shown before the first connect
func describeProbe(cfg *config.Config) string {
	if cfg.Probe.URL != "" {
		return fmt.Sprintf("WebSocket: %s", cfg.Probe.URL)
	}
	return fmt.Sprintf("Serial: %s @ %d baud", cfg.Probe.Port, cfg.Probe.Baud)
}
