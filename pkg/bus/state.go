// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/vibmon/pkg/vibproto"
)

// State snapshot map keys
const (
	StateKeyCurrent   = 0
	StateKeyPeak      = 1
	StateKeyRMS       = 2
	StateKeyStatus    = 3
	StateKeyEstop     = 4
	StateKeyConnected = 5
	StateKeyTime      = 6
)

// stateSnapshot is the compact CBOR form of Outputs, keyed by small integers
type stateSnapshot struct {
	Current   float64 `cbor:"0,keyasint"`
	Peak      float64 `cbor:"1,keyasint"`
	RMS       float64 `cbor:"2,keyasint"`
	Status    int     `cbor:"3,keyasint"`
	Estop     bool    `cbor:"4,keyasint"`
	Connected bool    `cbor:"5,keyasint"`
	Time      int64   `cbor:"6,keyasint"` // unix milliseconds
}

// EncodeState encodes outputs as a CBOR map with integer keys
func EncodeState(out Outputs, at time.Time) ([]byte, error) {
	data, err := cbor.Marshal(stateSnapshot{
		Current:   out.Current,
		Peak:      out.Peak,
		RMS:       out.RMS,
		Status:    int(out.Status),
		Estop:     out.EstopTrigger,
		Connected: out.Connected,
		Time:      at.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return data, nil
}

// DecodeState decodes a snapshot produced by EncodeState
func DecodeState(data []byte) (Outputs, time.Time, error) {
	var s stateSnapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return Outputs{}, time.Time{}, fmt.Errorf("failed to decode state: %w", err)
	}
	if s.Status < int(vibproto.StatusOk) || s.Status > int(vibproto.StatusEstop) {
		return Outputs{}, time.Time{}, fmt.Errorf("invalid status value %d", s.Status)
	}
	out := Outputs{
		Current:      s.Current,
		Peak:         s.Peak,
		RMS:          s.RMS,
		Status:       vibproto.SafetyStatus(s.Status),
		EstopTrigger: s.Estop,
		Connected:    s.Connected,
	}
	return out, time.UnixMilli(s.Time), nil
}
