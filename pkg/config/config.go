// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads vibmon settings from YAML, .env and VIBMON_*
// environment variables. Command-line flags are applied on top by cmd/.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/vibmon/pkg/bus"
	"github.com/Thermoquad/vibmon/pkg/link"
	"github.com/Thermoquad/vibmon/pkg/monitor"
	"github.com/Thermoquad/vibmon/pkg/samplelog"
	"github.com/Thermoquad/vibmon/pkg/telemetry"
	"github.com/Thermoquad/vibmon/pkg/vibproto"
)

// Config is the complete vibmon configuration
type Config struct {
	Probe  ProbeConfig  `yaml:"probe"`
	Link   LinkConfig   `yaml:"link"`
	Loop   LoopConfig   `yaml:"loop"`
	Safety SafetyConfig `yaml:"safety"`
	Bus    BusConfig    `yaml:"bus"`
	Log    LogConfig    `yaml:"log"`
	HTTP   HTTPConfig   `yaml:"http"`
}

// ProbeConfig selects the probe transport: a serial port or a WebSocket bridge
type ProbeConfig struct {
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	URL         string        `yaml:"url"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"-"` // environment or prompt only
	NoSSLVerify bool          `yaml:"no_ssl_verify"`
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

// LinkConfig sets the reconnect backoff
type LinkConfig struct {
	RetryMin time.Duration `yaml:"retry_min"`
	RetryMax time.Duration `yaml:"retry_max"`
}

// LoopConfig tunes the control loop
type LoopConfig struct {
	WindowSize       int           `yaml:"window_size"`
	TickIdle         time.Duration `yaml:"tick_idle"`
	DisabledIdle     time.Duration `yaml:"disabled_idle"`
	DisconnectedIdle time.Duration `yaml:"disconnected_idle"`
	ReportInterval   time.Duration `yaml:"report_interval"`
}

// SafetyConfig holds the status policy and initial operator inputs
type SafetyConfig struct {
	UnknownStatus string  `yaml:"unknown_status"`
	Enable        bool    `yaml:"enable"`
	ThresholdWarn float64 `yaml:"threshold_warn"`
	ThresholdCrit float64 `yaml:"threshold_crit"`
}

// BusConfig selects the control bus
type BusConfig struct {
	Kind string     `yaml:"kind"` // local or mqtt
	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig holds MQTT bus settings
type MQTTConfig struct {
	Broker          string        `yaml:"broker"`
	ClientID        string        `yaml:"client_id"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Prefix          string        `yaml:"prefix"`
	QoS             int           `yaml:"qos"`
	PublishInterval time.Duration `yaml:"publish_interval"`
}

// LogConfig configures sample logging
type LogConfig struct {
	Enabled       bool             `yaml:"enabled"`
	Dir           string           `yaml:"dir"`
	QueueSize     int              `yaml:"queue_size"`
	BatchSize     int              `yaml:"batch_size"`
	FlushInterval time.Duration    `yaml:"flush_interval"`
	ClickHouse    ClickHouseConfig `yaml:"clickhouse"`
	Timescale     TimescaleConfig  `yaml:"timescale"`
}

// ClickHouseConfig enables the ClickHouse sink when Addr is set
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

// TimescaleConfig enables the TimescaleDB sink when ConnString is set
type TimescaleConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

// HTTPConfig enables the telemetry server when Addr is set
type HTTPConfig struct {
	Addr              string        `yaml:"addr"`
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
}

// Bus kinds
const (
	BusLocal = "local"
	BusMQTT  = "mqtt"
)

// Default returns the built-in configuration
func Default() *Config {
	cfg := &Config{
		Safety: SafetyConfig{Enable: true},
		Log:    LogConfig{Enabled: true},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads path (if non-empty), then applies .env and environment overrides.
// A missing path is an error; an empty path yields defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Safety: SafetyConfig{Enable: true},
		Log:    LogConfig{Enabled: true},
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Probe.Baud == 0 {
		c.Probe.Baud = vibproto.DefaultBaudRate
	}
	if c.Probe.PollTimeout == 0 {
		c.Probe.PollTimeout = link.DefaultPollTimeout
	}

	if c.Link.RetryMin == 0 {
		c.Link.RetryMin = link.MinRetryInterval
	}
	if c.Link.RetryMax == 0 {
		c.Link.RetryMax = 5 * time.Second
	}

	def := monitor.DefaultConfig()
	if c.Loop.WindowSize == 0 {
		c.Loop.WindowSize = def.WindowSize
	}
	if c.Loop.TickIdle == 0 {
		c.Loop.TickIdle = def.TickIdle
	}
	if c.Loop.DisabledIdle == 0 {
		c.Loop.DisabledIdle = def.DisabledIdle
	}
	if c.Loop.DisconnectedIdle == 0 {
		c.Loop.DisconnectedIdle = def.DisconnectedIdle
	}
	if c.Loop.ReportInterval == 0 {
		c.Loop.ReportInterval = def.ReportInterval
	}

	if c.Safety.UnknownStatus == "" {
		c.Safety.UnknownStatus = "ok"
	}
	if c.Safety.ThresholdWarn == 0 {
		c.Safety.ThresholdWarn = bus.DefaultThresholdWarn
	}
	if c.Safety.ThresholdCrit == 0 {
		c.Safety.ThresholdCrit = bus.DefaultThresholdCrit
	}

	if c.Bus.Kind == "" {
		c.Bus.Kind = BusLocal
	}
	if c.Bus.MQTT.ClientID == "" {
		c.Bus.MQTT.ClientID = "vibmon"
	}
	if c.Bus.MQTT.Prefix == "" {
		c.Bus.MQTT.Prefix = "vibration"
	}
	if c.Bus.MQTT.PublishInterval == 0 {
		c.Bus.MQTT.PublishInterval = 100 * time.Millisecond
	}

	if c.Log.Dir == "" {
		c.Log.Dir = "."
	}
	if c.Log.QueueSize == 0 {
		c.Log.QueueSize = samplelog.DefaultQueueSize
	}
	if c.Log.BatchSize == 0 {
		c.Log.BatchSize = samplelog.DefaultBatchSize
	}
	if c.Log.FlushInterval == 0 {
		c.Log.FlushInterval = samplelog.DefaultFlushInterval
	}
	if c.Log.ClickHouse.Database == "" {
		c.Log.ClickHouse.Database = "default"
	}
	if c.Log.ClickHouse.Username == "" {
		c.Log.ClickHouse.Username = "default"
	}

	if c.HTTP.BroadcastInterval == 0 {
		c.HTTP.BroadcastInterval = telemetry.DefaultBroadcastInterval
	}
}

// Validate checks the configuration for contradictions
func (c *Config) Validate() error {
	var errs []error

	if c.Probe.Baud < 0 {
		errs = append(errs, fmt.Errorf("probe.baud must be positive"))
	}
	if c.Link.RetryMin < link.MinRetryInterval {
		errs = append(errs, fmt.Errorf("link.retry_min must be at least %s", link.MinRetryInterval))
	}
	if c.Link.RetryMax < c.Link.RetryMin {
		errs = append(errs, fmt.Errorf("link.retry_max must not be below link.retry_min"))
	}
	if c.Loop.WindowSize < 1 {
		errs = append(errs, fmt.Errorf("loop.window_size must be positive"))
	}
	if _, err := vibproto.ParseStatusPolicy(c.Safety.UnknownStatus); err != nil {
		errs = append(errs, fmt.Errorf("safety.unknown_status: %w", err))
	}
	switch c.Bus.Kind {
	case BusLocal:
	case BusMQTT:
		if c.Bus.MQTT.Broker == "" {
			errs = append(errs, fmt.Errorf("bus.mqtt.broker is required for the mqtt bus"))
		}
		if c.Bus.MQTT.QoS < 0 || c.Bus.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("bus.mqtt.qos must be 0, 1 or 2"))
		}
	default:
		errs = append(errs, fmt.Errorf("bus.kind must be %q or %q, got %q", BusLocal, BusMQTT, c.Bus.Kind))
	}
	if c.Log.QueueSize < 0 || c.Log.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("log.queue_size and log.batch_size must not be negative"))
	}

	return errors.Join(errs...)
}

// StatusPolicy returns the configured unknown-label policy
func (c *Config) StatusPolicy() vibproto.StatusPolicy {
	p, err := vibproto.ParseStatusPolicy(c.Safety.UnknownStatus)
	if err != nil {
		return vibproto.FailOpen
	}
	return p
}

// MonitorConfig converts loop settings for monitor.NewLoop
func (c *Config) MonitorConfig() monitor.Config {
	return monitor.Config{
		WindowSize:       c.Loop.WindowSize,
		Policy:           c.StatusPolicy(),
		TickIdle:         c.Loop.TickIdle,
		DisabledIdle:     c.Loop.DisabledIdle,
		DisconnectedIdle: c.Loop.DisconnectedIdle,
		ReportInterval:   c.Loop.ReportInterval,
	}
}

// Inputs returns the initial operator inputs
func (c *Config) Inputs() bus.Inputs {
	return bus.Inputs{
		Enable:        c.Safety.Enable,
		ThresholdWarn: c.Safety.ThresholdWarn,
		ThresholdCrit: c.Safety.ThresholdCrit,
	}
}

// MQTT converts the MQTT settings for bus.NewMQTT
func (c *Config) MQTT() bus.MQTTConfig {
	m := c.Bus.MQTT
	return bus.MQTTConfig{
		Broker:          m.Broker,
		ClientID:        m.ClientID,
		Username:        m.Username,
		Password:        m.Password,
		Prefix:          m.Prefix,
		QoS:             byte(m.QoS),
		PublishInterval: m.PublishInterval,
	}
}

// RecorderOptions converts the queue settings for samplelog.NewRecorder
func (c *Config) RecorderOptions() samplelog.Options {
	return samplelog.Options{
		QueueSize:     c.Log.QueueSize,
		BatchSize:     c.Log.BatchSize,
		FlushInterval: c.Log.FlushInterval,
	}
}
