// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import (
	"math"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Thermoquad/vibmon/pkg/vibproto"
)

const tolerance = 1e-9

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// newFuzzRng creates a seeded generator, honouring FUZZ_SEED
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// ============================================================
// Rolling Window Tests
// ============================================================

func TestRollingWindow_EvictsOldest(t *testing.T) {
	w := NewRollingWindow(DefaultWindowSize)
	for i := 1; i <= DefaultWindowSize; i++ {
		if _, evicted := w.Push(float64(i)); evicted {
			t.Fatalf("Push %d evicted before window was full", i)
		}
	}
	if w.Len() != 100 {
		t.Fatalf("Len = %d, want 100", w.Len())
	}

	oldest, evicted := w.Push(101)
	if !evicted || oldest != 1 {
		t.Errorf("101st push evicted (%v, %v), want (1, true)", oldest, evicted)
	}
	if w.Len() != 100 {
		t.Errorf("Len = %d after overflow, want 100", w.Len())
	}

	values := w.Values()
	if values[0] != 2 || values[len(values)-1] != 101 {
		t.Errorf("Window spans %v..%v, want 2..101", values[0], values[len(values)-1])
	}
}

func TestRollingWindow_DefaultCapacity(t *testing.T) {
	if NewRollingWindow(0).Cap() != DefaultWindowSize {
		t.Error("Non-positive capacity should select the default")
	}
}

func TestRollingWindow_EmptyRMS(t *testing.T) {
	if _, ok := NewRollingWindow(4).RMS(); ok {
		t.Error("Empty window should report no RMS")
	}
}

func TestFuzzRollingWindow_NeverExceedsCapacity(t *testing.T) {
	rng := newFuzzRng(t)
	w := NewRollingWindow(DefaultWindowSize)
	for i := 0; i < getFuzzRounds(); i++ {
		w.Push(rng.Float64() * 8)
		if w.Len() > DefaultWindowSize {
			t.Fatalf("Len = %d after %d pushes", w.Len(), i+1)
		}
	}
}

// ============================================================
// Statistics Engine Tests
// ============================================================

func TestStats_RMSZeroBeforeFirstSample(t *testing.T) {
	s := NewStats(DefaultWindowSize)
	if s.RMS() != 0 || s.Peak() != 0 || s.Current() != 0 {
		t.Errorf("Fresh stats not zero: rms=%v peak=%v current=%v", s.RMS(), s.Peak(), s.Current())
	}
}

func TestStats_ConstantRMS(t *testing.T) {
	for _, k := range []int{1, 7, 50, 100} {
		s := NewStats(DefaultWindowSize)
		for i := 0; i < k; i++ {
			s.Observe(1.75)
		}
		if math.Abs(s.RMS()-1.75) > tolerance {
			t.Errorf("k=%d: RMS = %v, want 1.75", k, s.RMS())
		}
	}
}

func TestStats_RMSOverWindowOnly(t *testing.T) {
	s := NewStats(4)
	for _, v := range []float64{100, 100, 3, 3, 4, 4} {
		s.Observe(v)
	}
	// Window holds 3,3,4,4
	want := math.Sqrt((9 + 9 + 16 + 16) / 4.0)
	if math.Abs(s.RMS()-want) > tolerance {
		t.Errorf("RMS = %v, want %v", s.RMS(), want)
	}
	if s.Peak() != 100 {
		t.Errorf("Peak = %v, want 100", s.Peak())
	}
}

func TestFuzzStats_PeakNonDecreasing(t *testing.T) {
	rng := newFuzzRng(t)
	s := NewStats(DefaultWindowSize)
	prev := 0.0
	for i := 0; i < getFuzzRounds(); i++ {
		s.Observe(rng.Float64() * 10)
		if s.Peak() < prev {
			t.Fatalf("Peak decreased from %v to %v", prev, s.Peak())
		}
		prev = s.Peak()
	}

	s.ResetPeak()
	if s.Peak() != 0 {
		t.Errorf("Peak after reset = %v, want 0", s.Peak())
	}
	if s.Current() == 0 {
		t.Error("ResetPeak must not clear current")
	}
}

func TestEdgeDetector_Rising(t *testing.T) {
	var e EdgeDetector
	levels := []bool{false, true, true, true, false, true, false}
	want := []bool{false, true, false, false, false, true, false}
	for i, level := range levels {
		if got := e.Rising(level); got != want[i] {
			t.Errorf("step %d: Rising(%v) = %v, want %v", i, level, got, want[i])
		}
	}
}

// ============================================================
// Classifier Tests
// ============================================================

func TestClassifier_Mapping(t *testing.T) {
	tests := []struct {
		label string
		want  vibproto.SafetyStatus
	}{
		{"OK", vibproto.StatusOk},
		{"WARNING", vibproto.StatusWarning},
		{"CRITICAL", vibproto.StatusCritical},
		{"BOGUS", vibproto.StatusOk},
		{"", vibproto.StatusOk},
	}
	c := NewClassifier(vibproto.FailOpen)
	for _, tt := range tests {
		if got, latched := c.Classify(tt.label); got != tt.want || latched {
			t.Errorf("Classify(%q) = (%v, %v), want (%v, false)", tt.label, got, latched, tt.want)
		}
	}
	if c.Estop() {
		t.Error("Estop asserted without an ESTOP label")
	}
}

func TestClassifier_EstopSticky(t *testing.T) {
	c := NewClassifier(vibproto.FailOpen)

	status, latched := c.Classify("ESTOP")
	if status != vibproto.StatusEstop || !latched {
		t.Fatalf("Classify(ESTOP) = (%v, %v)", status, latched)
	}
	if c.EstopSource() != EstopSourceStatus {
		t.Errorf("EstopSource = %q", c.EstopSource())
	}

	for _, label := range []string{"OK", "WARNING", "OK"} {
		c.Classify(label)
		if !c.Estop() {
			t.Fatalf("Estop cleared by %s sample", label)
		}
	}

	if c.TriggerEstop(EstopSourceProbe) {
		t.Error("Second trigger should not report a new assertion")
	}
	if c.EstopSource() != EstopSourceStatus {
		t.Error("First source should be kept")
	}
}

func TestClassifier_FailClosedPolicy(t *testing.T) {
	c := NewClassifier(vibproto.StatusPolicy{Unknown: vibproto.StatusEstop})
	status, latched := c.Classify("GARBLED")
	if status != vibproto.StatusEstop || !latched || !c.Estop() {
		t.Errorf("Unknown label under estop policy = (%v, %v)", status, latched)
	}
}

// ============================================================
// Diagnostics Tests
// ============================================================

func TestDiagnostics_ParseErrorLogging(t *testing.T) {
	d := NewDiagnostics(time.Unix(0, 0))
	logged := 0
	for i := 0; i < 250; i++ {
		if d.Update(vibproto.EventParseFailure) {
			logged++
		}
	}
	if logged != 2 {
		t.Errorf("Logged %d times for 250 errors, want 2", logged)
	}
}

func TestDiagnostics_SummaryAndReset(t *testing.T) {
	start := time.Unix(1000, 0)
	d := NewDiagnostics(start)
	for i := 0; i < 500; i++ {
		d.Update(vibproto.EventData)
	}
	d.Update(vibproto.EventParseFailure)
	d.Update(vibproto.EventUnrecognized)
	d.Update(vibproto.EventInfo)

	now := start.Add(10 * time.Second)
	if d.Due(now, 10*time.Second) {
		t.Error("Window of exactly the interval should not be due yet")
	}
	now = now.Add(time.Millisecond)
	if !d.Due(now, 10*time.Second) {
		t.Error("Window should be due")
	}

	s := d.Summarize(start.Add(10*time.Second), 3.5, 1.25, 0)
	if math.Abs(s.SampleRate-50) > tolerance {
		t.Errorf("SampleRate = %v, want 50", s.SampleRate)
	}
	want := "Stats: 50.0 Hz, 1 errors, Peak: 3.50G, Current: 1.25G, 1 unrecognized"
	if s.String() != want {
		t.Errorf("String = %q\nwant     %q", s.String(), want)
	}

	d.Reset(now)
	if d.Samples != 0 || d.ParseErrors != 0 || d.InfoMessages != 0 {
		t.Error("Window counters not reset")
	}
	if d.TotalSamples != 500 || d.TotalParseErrors != 1 {
		t.Error("Lifetime counters must survive reset")
	}
}
