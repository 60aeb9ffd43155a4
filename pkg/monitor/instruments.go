// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import "github.com/Thermoquad/vibmon/pkg/vibproto"

// Instruments receives loop events for metrics and dashboards.
// Methods are called on the loop goroutine and must not block.
type Instruments interface {
	FrameDecoded(kind vibproto.EventKind)
	LinkChanged(connected bool)
	EstopTriggered(source string)
	Reported(Summary)
}

// NopInstruments discards every event
type NopInstruments struct{}

func (NopInstruments) FrameDecoded(vibproto.EventKind) {}

func (NopInstruments) LinkChanged(bool) {}

func (NopInstruments) EstopTriggered(string) {}

func (NopInstruments) Reported(Summary) {}

// MultiInstruments fans events out to several instruments
type MultiInstruments []Instruments

func (m MultiInstruments) FrameDecoded(kind vibproto.EventKind) {
	for _, i := range m {
		i.FrameDecoded(kind)
	}
}

func (m MultiInstruments) LinkChanged(connected bool) {
	for _, i := range m {
		i.LinkChanged(connected)
	}
}

func (m MultiInstruments) EstopTriggered(source string) {
	for _, i := range m {
		i.EstopTriggered(source)
	}
}

func (m MultiInstruments) Reported(s Summary) {
	for _, i := range m {
		i.Reported(s)
	}
}
