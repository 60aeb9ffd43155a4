// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

// Stats tracks current magnitude, peak-hold and rolling RMS
type Stats struct {
	window  *RollingWindow
	current float64
	peak    float64
	rms     float64
	samples uint64
}

// NewStats creates a statistics engine with the given window size
func NewStats(windowSize int) *Stats {
	return &Stats{window: NewRollingWindow(windowSize)}
}

// Observe feeds one magnitude into the engine
func (s *Stats) Observe(magnitude float64) {
	s.current = magnitude
	s.samples++
	if magnitude > s.peak {
		s.peak = magnitude
	}
	s.window.Push(magnitude)
	if rms, ok := s.window.RMS(); ok {
		s.rms = rms
	}
}

// ResetPeak clears the peak-hold value
func (s *Stats) ResetPeak() {
	s.peak = 0
}

// Current returns the last observed magnitude
func (s *Stats) Current() float64 {
	return s.current
}

// Peak returns the largest magnitude since the last reset
func (s *Stats) Peak() float64 {
	return s.peak
}

// RMS returns the rolling RMS, 0 until the first sample
func (s *Stats) RMS() float64 {
	return s.rms
}

// Samples returns the lifetime number of observed magnitudes
func (s *Stats) Samples() uint64 {
	return s.samples
}

// EdgeDetector reports false-to-true transitions of a level input
type EdgeDetector struct {
	last bool
}

// Rising returns true only when level is true and was false on the previous call
func (e *EdgeDetector) Rising(level bool) bool {
	rising := level && !e.last
	e.last = level
	return rising
}
