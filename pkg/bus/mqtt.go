// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Topic suffixes below the configured prefix
const (
	TopicEnable        = "enable"
	TopicThresholdWarn = "threshold-warn"
	TopicThresholdCrit = "threshold-crit"
	TopicResetPeak     = "reset-peak"

	TopicCurrent      = "current"
	TopicPeak         = "peak"
	TopicRMS          = "rms"
	TopicStatus       = "status"
	TopicEstopTrigger = "estop-trigger"
	TopicConnected    = "connected"
	TopicState        = "state"
)

// MQTTConfig holds MQTT bus configuration
type MQTTConfig struct {
	Broker          string
	ClientID        string
	Username        string
	Password        string
	Prefix          string
	QoS             byte
	PublishInterval time.Duration
}

// publisher is the subset of mqtt.Client used to publish
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// brokerWriteTimeout bounds a single write to the broker socket
const brokerWriteTimeout = 500 * time.Millisecond

// outbound is one output set waiting for the sender goroutine
type outbound struct {
	out Outputs
	at  time.Time
}

// MQTT exposes the control bus over an MQTT broker.
//
// Inputs arrive on retained topics and are cached; outputs are published
// retained. Routine value changes are throttled to PublishInterval while
// status, estop-trigger and connected changes go out immediately.
//
// Broker writes happen on a sender goroutine fed through a one-slot
// mailbox, so a stalled broker never blocks the control loop. When the
// sender falls behind only the newest output set is kept.
type MQTT struct {
	client mqtt.Client
	pub    publisher
	cfg    MQTTConfig
	now    func() time.Time

	mu     sync.RWMutex
	inputs Inputs

	// Only touched from Publish on the control loop goroutine
	last      Outputs
	lastAt    time.Time
	published bool
	queued    uint64

	mailbox  chan outbound
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// newMQTT builds the bus around pub and starts the sender goroutine
func newMQTT(pub publisher, cfg MQTTConfig, initial Inputs) *MQTT {
	if cfg.Prefix == "" {
		cfg.Prefix = "vibration"
	}
	cfg.Prefix = strings.TrimSuffix(cfg.Prefix, "/")
	m := &MQTT{
		pub:     pub,
		cfg:     cfg,
		now:     time.Now,
		inputs:  initial,
		mailbox: make(chan outbound, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go m.sender()
	return m
}

// NewMQTT connects to the broker and subscribes to the input topics
func NewMQTT(cfg MQTTConfig, initial Inputs) (*MQTT, error) {
	m := newMQTT(nil, cfg, initial)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetWriteTimeout(brokerWriteTimeout)
	// The broker clears the health signal if this process vanishes
	opts.SetWill(m.topic(TopicConnected), "0", cfg.QoS, true)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Printf("[vibmon] MQTT: connected to %s", cfg.Broker)
		if err := m.subscribe(c); err != nil {
			log.Printf("[vibmon] MQTT: %v", err)
		}
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		log.Printf("[vibmon] MQTT: connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		m.Close()
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	// Nothing has been queued yet, so the sender has not read pub
	m.pub = client
	m.client = client
	return m, nil
}

func (m *MQTT) topic(suffix string) string {
	return m.cfg.Prefix + "/" + suffix
}

func (m *MQTT) subscribe(c mqtt.Client) error {
	filters := map[string]byte{
		m.topic(TopicEnable):        m.cfg.QoS,
		m.topic(TopicThresholdWarn): m.cfg.QoS,
		m.topic(TopicThresholdCrit): m.cfg.QoS,
		m.topic(TopicResetPeak):     m.cfg.QoS,
	}
	token := c.SubscribeMultiple(filters, func(_ mqtt.Client, msg mqtt.Message) {
		m.handleInput(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("timed out subscribing to input topics")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to input topics: %w", err)
	}
	return nil
}

// handleInput updates the cached inputs from one message
func (m *MQTT) handleInput(topic string, payload []byte) {
	value := strings.TrimSpace(string(payload))
	suffix := strings.TrimPrefix(topic, m.cfg.Prefix+"/")

	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	switch suffix {
	case TopicEnable:
		m.inputs.Enable, err = parseBool(value, m.inputs.Enable)
	case TopicResetPeak:
		m.inputs.ResetPeak, err = parseBool(value, m.inputs.ResetPeak)
	case TopicThresholdWarn:
		m.inputs.ThresholdWarn, err = parseFloat(value, m.inputs.ThresholdWarn)
	case TopicThresholdCrit:
		m.inputs.ThresholdCrit, err = parseFloat(value, m.inputs.ThresholdCrit)
	default:
		return
	}
	if err != nil {
		log.Printf("[vibmon] MQTT: ignoring %s=%q: %v", topic, value, err)
	}
}

func parseBool(value string, current bool) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return current, err
	}
	return b, nil
}

func parseFloat(value string, current float64) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return current, err
	}
	return f, nil
}

// Inputs returns the latest input values received from the broker
func (m *MQTT) Inputs() Inputs {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inputs
}

// Publish queues outputs for the broker and returns without waiting on I/O
func (m *MQTT) Publish(out Outputs) {
	now := m.now()
	urgent := !m.published ||
		out.Status != m.last.Status ||
		out.EstopTrigger != m.last.EstopTrigger ||
		out.Connected != m.last.Connected
	if !urgent && (out == m.last || now.Sub(m.lastAt) < m.cfg.PublishInterval) {
		return
	}

	m.enqueue(outbound{out: out, at: now})
	m.queued++

	m.last = out
	m.lastAt = now
	m.published = true
}

// enqueue replaces any unsent output set with o. Publish is the only
// producer, so the second send always finds the slot free.
func (m *MQTT) enqueue(o outbound) {
	select {
	case m.mailbox <- o:
		return
	default:
	}
	select {
	case <-m.mailbox:
	default:
	}
	select {
	case m.mailbox <- o:
	default:
	}
}

// sender drains the mailbox until Close
func (m *MQTT) sender() {
	defer close(m.stopped)
	for {
		select {
		case o := <-m.mailbox:
			m.flush(o)
		case <-m.done:
			return
		}
	}
}

// flush writes one output set to every output topic
func (m *MQTT) flush(o outbound) {
	out := o.out
	m.send(TopicCurrent, formatFloat(out.Current))
	m.send(TopicPeak, formatFloat(out.Peak))
	m.send(TopicRMS, formatFloat(out.RMS))
	m.send(TopicStatus, strconv.Itoa(int(out.Status)))
	m.send(TopicEstopTrigger, formatBool(out.EstopTrigger))
	m.send(TopicConnected, formatBool(out.Connected))

	if state, err := EncodeState(out, o.at); err == nil {
		m.send(TopicState, state)
	} else {
		log.Printf("[vibmon] MQTT: %v", err)
	}
}

func (m *MQTT) send(suffix string, payload interface{}) {
	m.pub.Publish(m.topic(suffix), m.cfg.QoS, true, payload)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Close stops the sender, publishes connected=0 and disconnects from the broker
func (m *MQTT) Close() {
	m.stopOnce.Do(func() { close(m.done) })
	<-m.stopped
	if m.client == nil {
		return
	}
	m.client.Publish(m.topic(TopicConnected), m.cfg.QoS, true, "0").WaitTimeout(time.Second)
	m.client.Disconnect(250)
	log.Println("[vibmon] MQTT: disconnected")
}
