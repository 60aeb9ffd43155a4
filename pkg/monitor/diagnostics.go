// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import (
	"fmt"
	"time"

	"github.com/Thermoquad/vibmon/pkg/vibproto"
)

// DefaultReportInterval is the diagnostics reporting window
const DefaultReportInterval = 10 * time.Second

// ParseErrorLogEvery controls how often parse errors are logged within a window
const ParseErrorLogEvery = 100

// Diagnostics tracks frame counters for the current reporting window and
// for the lifetime of the process. Window counters never feed control decisions.
type Diagnostics struct {
	WindowStart time.Time

	// Window counters
	Samples      uint64
	ParseErrors  uint64
	InfoMessages uint64
	Unrecognized uint64
	EstopFrames  uint64
	Anomalies    uint64
	Reconnects   uint64

	// Lifetime counters
	TotalSamples     uint64
	TotalParseErrors uint64
	TotalAnomalies   uint64
	TotalReconnects  uint64
}

// NewDiagnostics starts a window at now
func NewDiagnostics(now time.Time) *Diagnostics {
	return &Diagnostics{WindowStart: now}
}

// Update counts one decoded event.
// It returns true when this parse error should be logged.
func (d *Diagnostics) Update(kind vibproto.EventKind) (logParseError bool) {
	switch kind {
	case vibproto.EventData:
		d.Samples++
		d.TotalSamples++
	case vibproto.EventParseFailure:
		d.ParseErrors++
		d.TotalParseErrors++
		return d.ParseErrors%ParseErrorLogEvery == 0
	case vibproto.EventInfo:
		d.InfoMessages++
	case vibproto.EventEstop:
		d.EstopFrames++
	default:
		d.Unrecognized++
	}
	return false
}

// AddAnomalies counts implausible sample values
func (d *Diagnostics) AddAnomalies(n int) {
	d.Anomalies += uint64(n)
	d.TotalAnomalies += uint64(n)
}

// LinkUp counts a successful (re)connect
func (d *Diagnostics) LinkUp() {
	d.Reconnects++
	d.TotalReconnects++
}

// Due reports whether the window has run for longer than interval
func (d *Diagnostics) Due(now time.Time, interval time.Duration) bool {
	return now.Sub(d.WindowStart) > interval
}

// Summary is one diagnostics report
type Summary struct {
	Elapsed      time.Duration
	SampleRate   float64 // data frames per second
	Samples      uint64
	ParseErrors  uint64
	InfoMessages uint64
	Unrecognized uint64
	Anomalies    uint64
	Reconnects   uint64
	DroppedRows  uint64
	Overflows    uint64 // lines cut at the length limit
	Peak         float64
	Current      float64
}

// Summarize builds the report for the window ending at now
func (d *Diagnostics) Summarize(now time.Time, peak, current float64, droppedRows uint64) Summary {
	elapsed := now.Sub(d.WindowStart)
	var rate float64
	if elapsed > 0 {
		rate = float64(d.Samples) / elapsed.Seconds()
	}
	return Summary{
		Elapsed:      elapsed,
		SampleRate:   rate,
		Samples:      d.Samples,
		ParseErrors:  d.ParseErrors,
		InfoMessages: d.InfoMessages,
		Unrecognized: d.Unrecognized,
		Anomalies:    d.Anomalies,
		Reconnects:   d.Reconnects,
		DroppedRows:  droppedRows,
		Peak:         peak,
		Current:      current,
	}
}

// Reset starts a new window at now; lifetime counters are kept
func (d *Diagnostics) Reset(now time.Time) {
	d.WindowStart = now
	d.Samples = 0
	d.ParseErrors = 0
	d.InfoMessages = 0
	d.Unrecognized = 0
	d.EstopFrames = 0
	d.Anomalies = 0
	d.Reconnects = 0
}

// String returns the one-line stats report, with extra counters only when non-zero
func (s Summary) String() string {
	result := fmt.Sprintf("Stats: %.1f Hz, %d errors, Peak: %.2fG, Current: %.2fG",
		s.SampleRate, s.ParseErrors, s.Peak, s.Current)
	if s.Unrecognized > 0 {
		result += fmt.Sprintf(", %d unrecognized", s.Unrecognized)
	}
	if s.Anomalies > 0 {
		result += fmt.Sprintf(", %d anomalies", s.Anomalies)
	}
	if s.Reconnects > 0 {
		result += fmt.Sprintf(", %d reconnects", s.Reconnects)
	}
	if s.DroppedRows > 0 {
		result += fmt.Sprintf(", %d dropped log rows", s.DroppedRows)
	}
	if s.Overflows > 0 {
		result += fmt.Sprintf(", %d overlong lines", s.Overflows)
	}
	return result
}
