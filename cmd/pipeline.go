// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/Thermoquad/vibmon/pkg/bus"
	"github.com/Thermoquad/vibmon/pkg/config"
	"github.com/Thermoquad/vibmon/pkg/link"
	"github.com/Thermoquad/vibmon/pkg/monitor"
	"github.com/Thermoquad/vibmon/pkg/samplelog"
	"github.com/Thermoquad/vibmon/pkg/telemetry"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// pipeline owns everything wired around one control loop
type pipeline struct {
	cfg      *config.Config
	session  string
	manager  *link.Manager
	loop     *monitor.Loop
	local    *bus.Local // nil with the MQTT bus
	mqtt     *bus.MQTT
	state    *telemetry.State
	metrics  *telemetry.Metrics
	recorder *samplelog.Recorder
	server   *telemetry.Server
}

// newPipeline connects the bus, sinks and telemetry around a new loop.
// Sink failures are logged and skip that sink; a bus failure is fatal.
func newPipeline(ctx context.Context, cfg *config.Config, extra ...monitor.Instruments) (*pipeline, error) {
	p := &pipeline{
		cfg:     cfg,
		session: uuid.NewString(),
		state:   telemetry.NewState(),
	}

	var primary bus.Bus
	switch cfg.Bus.Kind {
	case config.BusMQTT:
		m, err := bus.NewMQTT(cfg.MQTT(), cfg.Inputs())
		if err != nil {
			return nil, err
		}
		p.mqtt = m
		primary = m
	default:
		p.local = bus.NewLocal(cfg.Inputs())
		primary = p.local
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	p.metrics = telemetry.NewMetrics(reg)

	p.manager = link.NewManager(newDialer(cfg), cfg.Link.RetryMin, cfg.Link.RetryMax)
	p.loop = monitor.NewLoop(cfg.MonitorConfig(), p.manager, bus.NewTee(primary, p.state, p.metrics))
	p.loop.SetInstruments(append(monitor.MultiInstruments{p.metrics}, extra...))

	if sinks := openSinks(ctx, cfg, p.session); len(sinks) > 0 {
		p.recorder = samplelog.NewRecorder(cfg.RecorderOptions(), sinks...)
		p.loop.SetRecorder(p.recorder)
	}

	if cfg.HTTP.Addr != "" {
		hub := telemetry.NewHub(p.state, cfg.HTTP.BroadcastInterval)
		p.server = telemetry.NewServer(cfg.HTTP.Addr, p.state, hub, reg)
	}

	return p, nil
}

// openSinks opens every configured logging sink
func openSinks(ctx context.Context, cfg *config.Config, session string) []samplelog.Sink {
	var sinks []samplelog.Sink

	if cfg.Log.Enabled {
		s, err := samplelog.NewCSVSink(cfg.Log.Dir, time.Now())
		if err != nil {
			log.Printf("[vibmon] Error creating log file: %v", err)
		} else {
			sinks = append(sinks, s)
		}
	}

	if ch := cfg.Log.ClickHouse; ch.Addr != "" {
		s, err := samplelog.NewClickHouseSink(ctx, samplelog.ClickHouseConfig{
			Addr:     ch.Addr,
			Database: ch.Database,
			Username: ch.Username,
			Password: ch.Password,
			Table:    ch.Table,
		}, session)
		if err != nil {
			log.Printf("[vibmon] ClickHouse logging disabled: %v", err)
		} else {
			sinks = append(sinks, s)
		}
	}

	if ts := cfg.Log.Timescale; ts.ConnString != "" {
		s, err := samplelog.OpenTimescale(ctx, ts.ConnString, ts.Table, session)
		if err != nil {
			log.Printf("[vibmon] TimescaleDB logging disabled: %v", err)
		} else {
			sinks = append(sinks, s)
		}
	}

	return sinks
}

// Run serves telemetry (when configured) and runs the loop until ctx ends
func (p *pipeline) Run(ctx context.Context) error {
	log.Printf("[vibmon] Session %s, %s", p.session, describeProbe(p.cfg))

	serverErr := make(chan error, 1)
	if p.server != nil {
		go func() {
			err := p.server.ListenAndServe(ctx)
			if err != nil {
				log.Printf("[vibmon] HTTP server stopped: %v", err)
			}
			serverErr <- err
		}()
	} else {
		serverErr <- nil
	}

	loopErr := p.loop.Run(ctx)
	return errors.Join(loopErr, <-serverErr)
}

// Close flushes the sample log and disconnects the bus
func (p *pipeline) Close() error {
	var err error
	if p.recorder != nil {
		err = p.recorder.Close()
		log.Printf("[vibmon] Logged %d samples (%d dropped)", p.recorder.Written(), p.recorder.Dropped())
	}
	if p.mqtt != nil {
		p.mqtt.Close()
	}
	return err
}
