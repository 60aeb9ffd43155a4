// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bus is the boundary between the monitor core and the host control
// system: operator inputs are read from it and vibration outputs published to it.
package bus

import (
	"sync"

	"github.com/Thermoquad/vibmon/pkg/vibproto"
)

// Default advisory thresholds in g
const (
	DefaultThresholdWarn = 2.0
	DefaultThresholdCrit = 4.0
)

// Inputs are the operator signals read every tick
type Inputs struct {
	Enable        bool
	ThresholdWarn float64 // advisory only
	ThresholdCrit float64 // advisory only
	ResetPeak     bool    // edge-triggered by the consumer
}

// DefaultInputs returns enabled inputs with the probe's default thresholds
func DefaultInputs() Inputs {
	return Inputs{
		Enable:        true,
		ThresholdWarn: DefaultThresholdWarn,
		ThresholdCrit: DefaultThresholdCrit,
	}
}

// Outputs are the values published every tick
type Outputs struct {
	Current      float64
	Peak         float64
	RMS          float64
	Status       vibproto.SafetyStatus
	EstopTrigger bool
	Connected    bool
}

// Bus is the host control-system boundary
type Bus interface {
	Inputs() Inputs
	Publish(Outputs)
}

// Observer receives a copy of every published output set.
// Observe is called on the control loop's goroutine and must not block.
type Observer interface {
	Observe(Outputs)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Outputs)

// Observe calls f(out)
func (f ObserverFunc) Observe(out Outputs) {
	f(out)
}

// Tee forwards publishes to a primary bus and a set of observers
type Tee struct {
	Bus
	observers []Observer
}

// NewTee wraps primary so every publish is also seen by observers
func NewTee(primary Bus, observers ...Observer) *Tee {
	return &Tee{Bus: primary, observers: observers}
}

// Publish forwards out to the primary bus then every observer
func (t *Tee) Publish(out Outputs) {
	t.Bus.Publish(out)
	for _, o := range t.observers {
		o.Observe(out)
	}
}

// Local is an in-process bus guarded by a mutex, used by the CLI dashboard and tests
type Local struct {
	mu        sync.RWMutex
	inputs    Inputs
	outputs   Outputs
	publishes uint64
}

// NewLocal creates a local bus with the given initial inputs
func NewLocal(initial Inputs) *Local {
	return &Local{inputs: initial}
}

// Inputs returns the current input values
func (l *Local) Inputs() Inputs {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inputs
}

// Publish stores the latest outputs
func (l *Local) Publish(out Outputs) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outputs = out
	l.publishes++
}

// Outputs returns the most recently published outputs
func (l *Local) Outputs() Outputs {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.outputs
}

// Publishes returns the number of Publish calls seen
func (l *Local) Publishes() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.publishes
}

// SetEnable sets the enable input
func (l *Local) SetEnable(enable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inputs.Enable = enable
}

// SetResetPeak sets the level of the reset-peak input
func (l *Local) SetResetPeak(reset bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inputs.ResetPeak = reset
}

// SetThresholds sets the advisory thresholds
func (l *Local) SetThresholds(warn, crit float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inputs.ThresholdWarn = warn
	l.inputs.ThresholdCrit = crit
}
