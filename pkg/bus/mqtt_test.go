// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Thermoquad/vibmon/pkg/vibproto"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

// recordingPublisher keeps the last payload per topic. When gate is set
// every Publish waits for it to be closed.
type recordingPublisher struct {
	gate chan struct{}

	mu       sync.Mutex
	messages map[string]interface{}
	count    int
}

func (r *recordingPublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.messages == nil {
		r.messages = map[string]interface{}{}
	}
	r.messages[topic] = payload
	r.count++
	return doneToken{}
}

func (r *recordingPublisher) message(topic string) interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages[topic]
}

func (r *recordingPublisher) sent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// waitSent waits for the sender goroutine to reach n messages
func (r *recordingPublisher) waitSent(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.sent() < n {
		if time.Now().After(deadline) {
			t.Fatalf("Sent %d messages, want %d", r.sent(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

// outputTopics is the number of messages per published output set
const outputTopics = 7

func newTestMQTT(t *testing.T, pub *recordingPublisher, interval time.Duration) (*MQTT, *time.Time) {
	t.Helper()
	m := newMQTT(pub, MQTTConfig{Prefix: "cnc/vibration/", PublishInterval: interval}, DefaultInputs())
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	t.Cleanup(m.Close)
	return m, &now
}

func TestMQTT_HandleInput(t *testing.T) {
	m, _ := newTestMQTT(t, &recordingPublisher{}, 0)

	m.handleInput("cnc/vibration/enable", []byte("0"))
	m.handleInput("cnc/vibration/reset-peak", []byte("true"))
	m.handleInput("cnc/vibration/threshold-warn", []byte(" 2.5 "))
	m.handleInput("cnc/vibration/threshold-crit", []byte("5"))

	in := m.Inputs()
	if in.Enable || !in.ResetPeak || in.ThresholdWarn != 2.5 || in.ThresholdCrit != 5 {
		t.Errorf("Unexpected inputs: %+v", in)
	}

	// Garbage keeps the previous value
	m.handleInput("cnc/vibration/threshold-crit", []byte("lots"))
	m.handleInput("cnc/vibration/enable", []byte("maybe"))
	m.handleInput("cnc/vibration/unrelated", []byte("1"))
	if got := m.Inputs(); got != in {
		t.Errorf("Invalid payloads changed inputs: %+v", got)
	}
}

func TestMQTT_PublishTopics(t *testing.T) {
	pub := &recordingPublisher{}
	m, _ := newTestMQTT(t, pub, 100*time.Millisecond)

	m.Publish(Outputs{Current: 1.25, Peak: 3, RMS: 0.5, Status: vibproto.StatusCritical, Connected: true})
	pub.waitSent(t, outputTopics)

	want := map[string]string{
		"cnc/vibration/current":       "1.2500",
		"cnc/vibration/peak":          "3.0000",
		"cnc/vibration/rms":           "0.5000",
		"cnc/vibration/status":        "2",
		"cnc/vibration/estop-trigger": "0",
		"cnc/vibration/connected":     "1",
	}
	for topic, payload := range want {
		if got := pub.message(topic); got != payload {
			t.Errorf("%s = %v, want %s", topic, got, payload)
		}
	}

	state, ok := pub.message("cnc/vibration/state").([]byte)
	if !ok {
		t.Fatal("Expected CBOR state payload")
	}
	out, _, err := DecodeState(state)
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if out.Status != vibproto.StatusCritical || out.Current != 1.25 {
		t.Errorf("Decoded state = %+v", out)
	}
}

func TestMQTT_PublishThrottle(t *testing.T) {
	m, now := newTestMQTT(t, &recordingPublisher{}, 100*time.Millisecond)

	m.Publish(Outputs{Current: 1})
	if m.queued != 1 {
		t.Fatalf("queued = %d after first publish, want 1", m.queued)
	}

	// Value change inside the interval is held back
	*now = now.Add(10 * time.Millisecond)
	m.Publish(Outputs{Current: 2})
	if m.queued != 1 {
		t.Error("Routine change inside interval should be throttled")
	}

	// Safety-relevant change bypasses the throttle
	m.Publish(Outputs{Current: 2, EstopTrigger: true})
	if m.queued != 2 {
		t.Fatal("Estop change must publish immediately")
	}

	// Unchanged outputs are never republished
	*now = now.Add(time.Second)
	m.Publish(Outputs{Current: 2, EstopTrigger: true})
	if m.queued != 2 {
		t.Error("Identical outputs should not be republished")
	}

	m.Publish(Outputs{Current: 3, EstopTrigger: true})
	if m.queued != 3 {
		t.Error("Change after interval should publish")
	}
}

func TestMQTT_StalledBrokerDoesNotBlockPublish(t *testing.T) {
	pub := &recordingPublisher{gate: make(chan struct{})}
	m, _ := newTestMQTT(t, pub, 0)

	// Each call changes status or estop so none are throttled
	start := time.Now()
	m.Publish(Outputs{Current: 1, Status: vibproto.StatusOk, Connected: true})
	m.Publish(Outputs{Current: 2, Status: vibproto.StatusWarning, Connected: true})
	m.Publish(Outputs{Current: 3, Status: vibproto.StatusCritical, Connected: true})
	m.Publish(Outputs{Current: 4, Status: vibproto.StatusCritical, EstopTrigger: true, Connected: true})
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("Publish blocked for %v on a stalled broker", elapsed)
	}

	close(pub.gate)

	// The in-flight set and the newest set reach the broker; the middle
	// ones are replaced in the mailbox
	deadline := time.Now().Add(2 * time.Second)
	for pub.message("cnc/vibration/estop-trigger") != "1" || pub.message("cnc/vibration/current") != "4.0000" {
		if time.Now().After(deadline) {
			t.Fatalf("Newest outputs never sent: current=%v estop=%v",
				pub.message("cnc/vibration/current"), pub.message("cnc/vibration/estop-trigger"))
		}
		time.Sleep(time.Millisecond)
	}
	if n := pub.sent(); n > 3*outputTopics {
		t.Errorf("Sent %d messages, stale sets should have been replaced", n)
	}
}

func TestMQTT_CloseStopsSender(t *testing.T) {
	pub := &recordingPublisher{}
	m := newMQTT(pub, MQTTConfig{}, DefaultInputs())

	m.Publish(Outputs{Connected: true})
	pub.waitSent(t, outputTopics)

	m.Close()
	m.Close()
	select {
	case <-m.stopped:
	default:
		t.Error("Sender still running after Close")
	}
}
