// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry exposes monitor outputs over HTTP: Prometheus metrics,
// a JSON state endpoint and a live WebSocket feed.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Thermoquad/vibmon/pkg/bus"
	"github.com/Thermoquad/vibmon/pkg/monitor"
	"github.com/Thermoquad/vibmon/pkg/vibproto"
)

// Metrics mirrors loop outputs and events into Prometheus collectors
type Metrics struct {
	current   prometheus.Gauge
	peak      prometheus.Gauge
	rms       prometheus.Gauge
	status    prometheus.Gauge
	estop     prometheus.Gauge
	connected prometheus.Gauge
	rate      prometheus.Gauge

	frames      *prometheus.CounterVec
	links       *prometheus.CounterVec
	estops      *prometheus.CounterVec
	droppedRows prometheus.Counter
	overflows   prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		current: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vibmon_current_g",
			Help: "Latest vibration magnitude reported by the probe.",
		}),
		peak: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vibmon_peak_g",
			Help: "Peak vibration magnitude since the last reset.",
		}),
		rms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vibmon_rms_g",
			Help: "Rolling RMS over the last 100 samples.",
		}),
		status: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vibmon_status",
			Help: "Safety status: 0 ok, 1 warning, 2 critical, 3 estop.",
		}),
		estop: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vibmon_estop_trigger",
			Help: "1 once the safety-stop output has been asserted.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vibmon_connected",
			Help: "1 while the probe link is up.",
		}),
		rate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vibmon_sample_rate_hz",
			Help: "Data frame rate over the last diagnostics window.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vibmon_frames_total",
			Help: "Decoded probe lines by kind.",
		}, []string{"kind"}),
		links: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vibmon_link_transitions_total",
			Help: "Link state transitions by new state.",
		}, []string{"state"}),
		estops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vibmon_estop_triggers_total",
			Help: "Safety-stop assertions by source.",
		}, []string{"source"}),
		droppedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vibmon_log_rows_dropped_total",
			Help: "Sample rows lost to a full log queue.",
		}),
		overflows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vibmon_line_overflows_total",
			Help: "Probe lines cut at the length limit.",
		}),
	}

	reg.MustRegister(
		m.current, m.peak, m.rms, m.status, m.estop, m.connected, m.rate,
		m.frames, m.links, m.estops, m.droppedRows, m.overflows,
	)
	return m
}

// Observe updates the output gauges
func (m *Metrics) Observe(out bus.Outputs) {
	m.current.Set(out.Current)
	m.peak.Set(out.Peak)
	m.rms.Set(out.RMS)
	m.status.Set(float64(out.Status))
	m.estop.Set(boolGauge(out.EstopTrigger))
	m.connected.Set(boolGauge(out.Connected))
}

// FrameDecoded counts one decoded line
func (m *Metrics) FrameDecoded(kind vibproto.EventKind) {
	m.frames.WithLabelValues(kind.String()).Inc()
}

// LinkChanged counts a link transition
func (m *Metrics) LinkChanged(connected bool) {
	state := "disconnected"
	if connected {
		state = "connected"
	}
	m.links.WithLabelValues(state).Inc()
}

// EstopTriggered counts a safety-stop assertion
func (m *Metrics) EstopTriggered(source string) {
	m.estops.WithLabelValues(source).Inc()
}

// Reported records the window sample rate, dropped rows and overlong lines
func (m *Metrics) Reported(s monitor.Summary) {
	m.rate.Set(s.SampleRate)
	m.droppedRows.Add(float64(s.DroppedRows))
	m.overflows.Add(float64(s.Overflows))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var (
	_ bus.Observer        = (*Metrics)(nil)
	_ monitor.Instruments = (*Metrics)(nil)
)
