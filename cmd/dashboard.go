// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/vibmon/pkg/monitor"
	"github.com/Thermoquad/vibmon/pkg/vibproto"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// dashboardFeed collects loop output for the dashboard.
// The loop goroutine writes; the UI goroutine takes snapshots.
type dashboardFeed struct {
	monitor.NopInstruments

	mu            sync.Mutex
	now           func() time.Time
	events        []eventLogEntry
	maxLogEntries int
	summary       *monitor.Summary
	frames        map[vibproto.EventKind]uint64
	partial       string
}

func newDashboardFeed(maxLogEntries int) *dashboardFeed {
	return &dashboardFeed{
		now:           time.Now,
		maxLogEntries: maxLogEntries,
		frames:        make(map[vibproto.EventKind]uint64),
	}
}

// Write receives log output; each complete line becomes an event
func (f *dashboardFeed) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	text := f.partial + string(p)
	lines := strings.Split(text, "\n")
	f.partial = lines[len(lines)-1]
	for _, line := range lines[:len(lines)-1] {
		line = strings.TrimPrefix(strings.TrimSpace(line), "[vibmon] ")
		if line == "" {
			continue
		}
		f.add(line, isErrorLine(line))
	}
	return len(p), nil
}

func isErrorLine(line string) bool {
	if strings.HasPrefix(line, "Stats:") {
		return false
	}
	lower := strings.ToLower(line)
	return strings.Contains(lower, "error") ||
		strings.Contains(lower, "failed") ||
		strings.Contains(lower, "e-stop") ||
		strings.Contains(lower, "emergency") ||
		strings.Contains(lower, "disconnected") ||
		strings.Contains(lower, "link lost")
}

func (f *dashboardFeed) add(message string, isError bool) {
	f.events = append(f.events, eventLogEntry{
		timestamp: f.now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(f.events) > f.maxLogEntries {
		f.events = f.events[len(f.events)-f.maxLogEntries:]
	}
}

// FrameDecoded counts frames by kind
func (f *dashboardFeed) FrameDecoded(kind vibproto.EventKind) {
	f.mu.Lock()
	f.frames[kind]++
	f.mu.Unlock()
}

// Reported keeps the latest diagnostics summary
func (f *dashboardFeed) Reported(s monitor.Summary) {
	f.mu.Lock()
	f.summary = &s
	f.mu.Unlock()
}

// feedSnapshot is a consistent copy of the feed
type feedSnapshot struct {
	events  []eventLogEntry
	summary *monitor.Summary
	frames  map[vibproto.EventKind]uint64
}

func (f *dashboardFeed) snapshot() feedSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := feedSnapshot{
		events: append([]eventLogEntry(nil), f.events...),
		frames: make(map[vibproto.EventKind]uint64, len(f.frames)),
	}
	if f.summary != nil {
		s := *f.summary
		snap.summary = &s
	}
	for k, v := range f.frames {
		snap.frames[k] = v
	}
	return snap
}

// formatUptime formats a duration as a human-friendly string
func formatUptime(d time.Duration) string {
	if d < time.Second {
		return "0 seconds"
	}

	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func plural(n int64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
