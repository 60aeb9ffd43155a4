// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import "math"

// DefaultWindowSize holds about one second of samples at the probe's 100 Hz rate
const DefaultWindowSize = 100

// RollingWindow is a bounded FIFO of the most recent magnitudes
type RollingWindow struct {
	values []float64
	start  int
	size   int
}

// NewRollingWindow creates an empty window holding at most capacity values.
// A non-positive capacity selects DefaultWindowSize.
func NewRollingWindow(capacity int) *RollingWindow {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &RollingWindow{values: make([]float64, capacity)}
}

// Push appends v, evicting the oldest value once the window is full.
// evicted reports whether a value was dropped to make room.
func (w *RollingWindow) Push(v float64) (oldest float64, evicted bool) {
	capacity := len(w.values)
	if w.size < capacity {
		w.values[(w.start+w.size)%capacity] = v
		w.size++
		return 0, false
	}

	oldest = w.values[w.start]
	w.values[w.start] = v
	w.start = (w.start + 1) % capacity
	return oldest, true
}

// Len returns the number of values held
func (w *RollingWindow) Len() int {
	return w.size
}

// Cap returns the window capacity
func (w *RollingWindow) Cap() int {
	return len(w.values)
}

// Values returns a copy of the contents, oldest first
func (w *RollingWindow) Values() []float64 {
	out := make([]float64, w.size)
	for i := range out {
		out[i] = w.values[(w.start+i)%len(w.values)]
	}
	return out
}

// RMS recomputes the root mean square over the whole window.
// An empty window has no RMS; ok is false.
func (w *RollingWindow) RMS() (rms float64, ok bool) {
	if w.size == 0 {
		return 0, false
	}
	var sum float64
	for i := 0; i < w.size; i++ {
		v := w.values[(w.start+i)%len(w.values)]
		sum += v * v
	}
	return math.Sqrt(sum / float64(w.size)), true
}
