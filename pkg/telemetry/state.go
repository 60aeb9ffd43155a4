// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"sync"
	"time"

	"github.com/Thermoquad/vibmon/pkg/bus"
)

// Snapshot is the JSON view of the latest outputs
type Snapshot struct {
	Current    float64   `json:"current"`
	Peak       float64   `json:"peak"`
	RMS        float64   `json:"rms"`
	Status     string    `json:"status"`
	StatusCode int       `json:"status_code"`
	Estop      bool      `json:"estop_trigger"`
	Connected  bool      `json:"connected"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// State keeps the latest published outputs for HTTP readers
type State struct {
	mu   sync.RWMutex
	snap Snapshot
	seq  uint64
	now  func() time.Time
}

// NewState creates an empty state holder
func NewState() *State {
	return &State{now: time.Now}
}

// Observe stores out as the latest snapshot
func (s *State) Observe(out bus.Outputs) {
	snap := Snapshot{
		Current:    out.Current,
		Peak:       out.Peak,
		RMS:        out.RMS,
		Status:     out.Status.String(),
		StatusCode: int(out.Status),
		Estop:      out.EstopTrigger,
		Connected:  out.Connected,
		UpdatedAt:  s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.seq++
}

// Snapshot returns the latest snapshot and its sequence number.
// seq is 0 until the first publish.
func (s *State) Snapshot() (snap Snapshot, seq uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.seq
}

var _ bus.Observer = (*State)(nil)
