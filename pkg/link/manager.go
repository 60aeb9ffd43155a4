// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"errors"
	"fmt"
	"time"
)

// State is the link lifecycle state
type State int

const (
	Disconnected State = iota
	Connected
)

// String returns the state name
func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Dialer opens a fresh connection and describes it for logs
type Dialer func() (Connection, string, error)

// Link errors
var (
	ErrNotConnected = errors.New("link not connected")
	ErrRetryPending = errors.New("reconnect backoff pending")
)

// Error reports a failed open or read on the probe transport
type Error struct {
	Op  string // "open" or "read"
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("link %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Backoff produces reconnect delays doubling from Min up to Max
type Backoff struct {
	Min     time.Duration
	Max     time.Duration
	current time.Duration
}

// Next returns the next delay
func (b *Backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.Min
	} else {
		b.current *= 2
	}
	if b.Max > 0 && b.current > b.Max {
		b.current = b.Max
	}
	return b.current
}

// Reset restarts the sequence at Min
func (b *Backoff) Reset() {
	b.current = 0
}

// Manager owns the probe connection and its Disconnected/Connected state.
// It is not safe for concurrent use; the control loop is its only caller.
type Manager struct {
	dial        Dialer
	conn        Connection
	lines       *LineReader
	state       State
	info        string
	backoff     Backoff
	nextAttempt time.Time
	overflows   uint64

	// OnChange is invoked synchronously inside every state transition
	OnChange func(State)
}

// MinRetryInterval is the shortest allowed delay between open attempts
const MinRetryInterval = time.Second

// NewManager creates a disconnected manager.
// retryMin is raised to MinRetryInterval if lower.
func NewManager(dial Dialer, retryMin, retryMax time.Duration) *Manager {
	if retryMin < MinRetryInterval {
		retryMin = MinRetryInterval
	}
	if retryMax < retryMin {
		retryMax = retryMin
	}
	return &Manager{
		dial:    dial,
		state:   Disconnected,
		backoff: Backoff{Min: retryMin, Max: retryMax},
	}
}

// State returns the current link state
func (m *Manager) State() State {
	return m.state
}

// Info describes the active connection, or the last one
func (m *Manager) Info() string {
	return m.info
}

// NextAttempt returns the earliest time the next open may be tried
func (m *Manager) NextAttempt() time.Time {
	return m.nextAttempt
}

// Overflows returns the number of discarded unterminated runs across connections
func (m *Manager) Overflows() uint64 {
	if m.lines != nil {
		return m.overflows + m.lines.Overflows()
	}
	return m.overflows
}

// Connect tries to open the link if disconnected and the backoff has elapsed.
// It returns ErrRetryPending when called too early and an *Error when the
// open fails. Connecting while already connected is a no-op.
func (m *Manager) Connect(now time.Time) error {
	if m.state == Connected {
		return nil
	}
	if now.Before(m.nextAttempt) {
		return ErrRetryPending
	}

	conn, info, err := m.dial()
	if err != nil {
		m.nextAttempt = now.Add(m.backoff.Next())
		return &Error{Op: "open", Err: err}
	}

	m.backoff.Reset()
	m.conn = conn
	m.lines = NewLineReader(conn)
	m.info = info
	m.setState(Connected)
	return nil
}

// ReadLine returns the next complete line if one is available.
// A read failure closes the connection and moves the link to Disconnected
// before returning.
func (m *Manager) ReadLine(now time.Time) (string, bool, error) {
	if m.state != Connected {
		return "", false, ErrNotConnected
	}

	line, ok, err := m.lines.ReadLine()
	if err != nil {
		m.drop(now)
		return "", false, &Error{Op: "read", Err: err}
	}
	return line, ok, nil
}

// Close releases the connection without scheduling a retry
func (m *Manager) Close() error {
	if m.state != Connected {
		return nil
	}
	err := m.conn.Close()
	m.release()
	m.setState(Disconnected)
	return err
}

func (m *Manager) drop(now time.Time) {
	m.conn.Close()
	m.release()
	m.nextAttempt = now.Add(m.backoff.Next())
	m.setState(Disconnected)
}

func (m *Manager) release() {
	m.overflows += m.lines.Overflows()
	m.conn = nil
	m.lines = nil
}

func (m *Manager) setState(s State) {
	m.state = s
	if m.OnChange != nil {
		m.OnChange(s)
	}
}
