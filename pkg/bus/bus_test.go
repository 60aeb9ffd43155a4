// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"testing"

	"github.com/Thermoquad/vibmon/pkg/vibproto"
)

func TestLocal_InputsAndOutputs(t *testing.T) {
	l := NewLocal(DefaultInputs())

	in := l.Inputs()
	if !in.Enable || in.ThresholdWarn != 2.0 || in.ThresholdCrit != 4.0 || in.ResetPeak {
		t.Errorf("Unexpected defaults: %+v", in)
	}

	l.SetEnable(false)
	l.SetResetPeak(true)
	l.SetThresholds(1.5, 3.5)
	in = l.Inputs()
	if in.Enable || !in.ResetPeak || in.ThresholdWarn != 1.5 || in.ThresholdCrit != 3.5 {
		t.Errorf("Inputs not updated: %+v", in)
	}

	out := Outputs{Current: 1, Peak: 2, RMS: 0.5, Status: vibproto.StatusWarning, Connected: true}
	l.Publish(out)
	if l.Outputs() != out {
		t.Errorf("Outputs = %+v, want %+v", l.Outputs(), out)
	}
	if l.Publishes() != 1 {
		t.Errorf("Publishes = %d, want 1", l.Publishes())
	}
}

func TestTee_ForwardsToObservers(t *testing.T) {
	l := NewLocal(DefaultInputs())
	var seen []Outputs
	tee := NewTee(l, ObserverFunc(func(o Outputs) { seen = append(seen, o) }))

	out := Outputs{EstopTrigger: true, Status: vibproto.StatusEstop}
	tee.Publish(out)

	if l.Outputs() != out {
		t.Error("Primary bus did not receive publish")
	}
	if len(seen) != 1 || seen[0] != out {
		t.Errorf("Observer saw %v", seen)
	}
	if !tee.Inputs().Enable {
		t.Error("Tee should read inputs from the primary bus")
	}
}
