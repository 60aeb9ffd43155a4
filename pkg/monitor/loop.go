// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package monitor is the link-and-safety engine: it reads probe frames
// through the link manager, keeps vibration statistics, classifies machine
// health and latches the safety-stop output.
package monitor

import (
	"context"
	"errors"
	"log"
	"runtime/debug"
	"time"

	"github.com/Thermoquad/vibmon/pkg/bus"
	"github.com/Thermoquad/vibmon/pkg/link"
	"github.com/Thermoquad/vibmon/pkg/vibproto"
)

// Recorder receives every decoded sample with its wall-clock capture time.
// Record must not block; failures stay inside the recorder.
type Recorder interface {
	Record(sample vibproto.SensorSample, captured time.Time)
}

// dropCounter is implemented by recorders that shed rows under load
type dropCounter interface {
	Dropped() uint64
}

// Config holds control loop tuning
type Config struct {
	WindowSize       int
	Policy           vibproto.StatusPolicy
	TickIdle         time.Duration
	DisabledIdle     time.Duration
	DisconnectedIdle time.Duration
	ReportInterval   time.Duration
}

// DefaultConfig returns the standard loop timings
func DefaultConfig() Config {
	return Config{
		WindowSize:       DefaultWindowSize,
		Policy:           vibproto.FailOpen,
		TickIdle:         500 * time.Microsecond,
		DisabledIdle:     100 * time.Millisecond,
		DisconnectedIdle: 100 * time.Millisecond,
		ReportInterval:   DefaultReportInterval,
	}
}

// Mode is the loop's state-machine position for one tick
type Mode int

const (
	ModeDisabled Mode = iota
	ModeDisconnected
	ModeConnected
)

func (m Mode) String() string {
	switch m {
	case ModeDisabled:
		return "disabled"
	case ModeDisconnected:
		return "disconnected"
	case ModeConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Loop is the single-threaded control loop. It owns the statistics engine,
// the classifier and the link manager; nothing else may touch them while
// Run is active.
type Loop struct {
	cfg         Config
	link        *link.Manager
	bus         bus.Bus
	recorder    Recorder
	instruments Instruments

	stats      *Stats
	classifier *Classifier
	resetPeak  EdgeDetector
	diag       *Diagnostics

	inputs       bus.Inputs
	connected    bool
	lastDropped  uint64
	lastOverlong uint64
	faults       uint64
	started      bool
}

// NewLoop creates a loop driving mgr and publishing to b
func NewLoop(cfg Config, mgr *link.Manager, b bus.Bus) *Loop {
	def := DefaultConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.TickIdle <= 0 {
		cfg.TickIdle = def.TickIdle
	}
	if cfg.DisabledIdle <= 0 {
		cfg.DisabledIdle = def.DisabledIdle
	}
	if cfg.DisconnectedIdle <= 0 {
		cfg.DisconnectedIdle = def.DisconnectedIdle
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = def.ReportInterval
	}

	l := &Loop{
		cfg:         cfg,
		link:        mgr,
		bus:         b,
		instruments: NopInstruments{},
		stats:       NewStats(cfg.WindowSize),
		classifier:  NewClassifier(cfg.Policy),
		inputs:      b.Inputs(),
	}
	mgr.OnChange = l.linkChanged
	return l
}

// SetRecorder attaches the sample logging collaborator
func (l *Loop) SetRecorder(r Recorder) {
	l.recorder = r
}

// SetInstruments attaches metrics or dashboard hooks
func (l *Loop) SetInstruments(i Instruments) {
	if i == nil {
		i = NopInstruments{}
	}
	l.instruments = i
}

// Stats returns the statistics engine
func (l *Loop) Stats() *Stats {
	return l.stats
}

// Classifier returns the safety classifier
func (l *Loop) Classifier() *Classifier {
	return l.classifier
}

// Diagnostics returns the current diagnostics counters
func (l *Loop) Diagnostics() *Diagnostics {
	return l.diag
}

// Faults returns the number of recovered panics
func (l *Loop) Faults() uint64 {
	return l.faults
}

// Mode returns the state-machine position given the last read inputs
func (l *Loop) Mode() Mode {
	switch {
	case !l.inputs.Enable:
		return ModeDisabled
	case l.link.State() != link.Connected:
		return ModeDisconnected
	default:
		return ModeConnected
	}
}

// Outputs returns the current output values
func (l *Loop) Outputs() bus.Outputs {
	return bus.Outputs{
		Current:      l.stats.Current(),
		Peak:         l.stats.Peak(),
		RMS:          l.stats.RMS(),
		Status:       l.classifier.Status(),
		EstopTrigger: l.classifier.Estop(),
		Connected:    l.connected,
	}
}

// Tick runs one iteration at now and returns how long to idle before the next.
// A panic inside the tick is logged and the loop carries on.
func (l *Loop) Tick(now time.Time) (idle time.Duration) {
	if !l.started {
		l.started = true
		l.diag = NewDiagnostics(now)
	}

	defer func() {
		if r := recover(); r != nil {
			l.faults++
			log.Printf("[vibmon] Unexpected fault in %s tick: %v\n%s", l.Mode(), r, debug.Stack())
			idle = l.cfg.TickIdle
			l.publishAfterFault()
		}
	}()

	l.inputs = l.bus.Inputs()

	switch l.Mode() {
	case ModeDisabled:
		idle = l.tickDisabled()
	case ModeDisconnected:
		idle = l.tickDisconnected(now)
	case ModeConnected:
		idle = l.tickConnected(now)
	}

	l.publish()
	return idle
}

func (l *Loop) tickDisabled() time.Duration {
	return l.cfg.DisabledIdle
}

func (l *Loop) tickDisconnected(now time.Time) time.Duration {
	err := l.link.Connect(now)
	switch {
	case err == nil:
		log.Printf("[vibmon] Connected to %s", l.link.Info())
	case errors.Is(err, link.ErrRetryPending):
	default:
		log.Printf("[vibmon] %v (next attempt in %s)", err, l.link.NextAttempt().Sub(now).Round(time.Millisecond))
	}
	return l.cfg.DisconnectedIdle
}

func (l *Loop) tickConnected(now time.Time) time.Duration {
	line, ok, err := l.link.ReadLine(now)
	if err != nil {
		log.Printf("[vibmon] %v", err)
	} else if ok {
		l.handleLine(line, now)
	}

	if l.resetPeak.Rising(l.inputs.ResetPeak) {
		log.Println("[vibmon] Resetting peak value")
		l.stats.ResetPeak()
	}

	if l.diag.Due(now, l.cfg.ReportInterval) {
		l.report(now)
	}
	return l.cfg.TickIdle
}

func (l *Loop) handleLine(line string, now time.Time) {
	ev := vibproto.ParseLine(line)
	if l.diag.Update(ev.Kind) {
		log.Printf("[vibmon] Parse errors: %d (last: %v)", l.diag.ParseErrors, ev.Err)
	}
	l.instruments.FrameDecoded(ev.Kind)

	switch ev.Kind {
	case vibproto.EventData:
		l.handleSample(ev.Sample, now)
	case vibproto.EventEstop:
		log.Printf("[vibmon] EMERGENCY STOP from probe: %s", ev.Text)
		l.triggerEstop(EstopSourceProbe)
	case vibproto.EventInfo:
		log.Printf("[vibmon] %s", ev.Text)
	}
}

func (l *Loop) handleSample(s vibproto.SensorSample, now time.Time) {
	l.stats.Observe(s.Magnitude)
	if _, latched := l.classifier.Classify(s.Status); latched {
		l.estopLatched(EstopSourceStatus)
	}

	if anomalies := vibproto.ValidateSample(s); len(anomalies) > 0 {
		l.diag.AddAnomalies(len(anomalies))
	}

	if l.recorder != nil {
		l.recorder.Record(s, now)
	}
}

func (l *Loop) triggerEstop(source string) {
	if l.classifier.TriggerEstop(source) {
		l.estopLatched(source)
	}
}

// estopLatched announces a newly asserted safety-stop without waiting for the tick to end
func (l *Loop) estopLatched(source string) {
	log.Printf("[vibmon] *** TRIGGERING E-STOP (%s) ***", source)
	l.instruments.EstopTriggered(source)
	l.publish()
}

func (l *Loop) linkChanged(s link.State) {
	l.connected = s == link.Connected
	if l.connected && l.diag != nil {
		l.diag.LinkUp()
	}
	if !l.connected {
		log.Println("[vibmon] Link lost")
	}
	l.instruments.LinkChanged(l.connected)
	l.publish()
}

func (l *Loop) report(now time.Time) {
	var dropped uint64
	if dc, ok := l.recorder.(dropCounter); ok {
		total := dc.Dropped()
		dropped = total - l.lastDropped
		l.lastDropped = total
	}

	overlong := l.link.Overflows()
	summary := l.diag.Summarize(now, l.stats.Peak(), l.stats.Current(), dropped)
	summary.Overflows = overlong - l.lastOverlong
	l.lastOverlong = overlong
	log.Printf("[vibmon] %s", summary)
	l.instruments.Reported(summary)
	l.diag.Reset(now)
}

func (l *Loop) publish() {
	l.bus.Publish(l.Outputs())
}

// publishAfterFault pushes whatever state the faulted tick reached.
// A second panic from the bus is logged and dropped.
func (l *Loop) publishAfterFault() {
	defer func() {
		if r := recover(); r != nil {
			l.faults++
			log.Printf("[vibmon] Unexpected fault publishing outputs: %v", r)
		}
	}()
	l.publish()
}

// Run ticks until ctx is cancelled, then closes the link.
// The tick in progress when ctx is cancelled always completes.
func (l *Loop) Run(ctx context.Context) error {
	log.Println("[vibmon] Starting control loop...")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[vibmon] Shutting down...")
			if err := l.link.Close(); err != nil {
				log.Printf("[vibmon] Error closing link: %v", err)
			}
			return nil
		case <-timer.C:
		}

		idle := l.Tick(time.Now())
		timer.Reset(idle)
	}
}
