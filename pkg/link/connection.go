// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link owns the byte transport to the vibration probe: opening the
// serial port (or a WebSocket bridge), assembling protocol lines and
// reconnecting with backoff when the transport fails.
package link

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
)

// Connection provides a common interface for reading/writing bytes from serial or WebSocket.
//
// Read must not block for longer than the transport's poll timeout: when no
// data is available it returns 0, nil.
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// DefaultPollTimeout bounds how long a Read may wait for data
const DefaultPollTimeout = time.Millisecond

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = fmt.Errorf("websocket connection closed")

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// OpenSerial opens a serial port in 8N1 mode with a bounded read timeout
func OpenSerial(portName string, baudRate int, pollTimeout time.Duration) (*SerialConnection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	if err := port.SetReadTimeout(pollTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
	}

	// Drop whatever the probe sent while nobody was listening
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to reset input buffer on %s: %w", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

type wsChunk struct {
	data []byte
	err  error
}

// WebSocketConnection wraps a WebSocket bridge that forwards the probe's
// serial byte stream. A pump goroutine receives messages so Read never blocks.
type WebSocketConnection struct {
	conn   *websocket.Conn
	chunks chan wsChunk
	done   chan struct{}
	once   sync.Once
	buf    []byte
	err    error
}

func newWebSocketConnection(conn *websocket.Conn) *WebSocketConnection {
	w := &WebSocketConnection{
		conn:   conn,
		chunks: make(chan wsChunk, 64),
		done:   make(chan struct{}),
	}
	go w.pump()
	return w
}

func (w *WebSocketConnection) pump() {
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			select {
			case w.chunks <- wsChunk{err: err}:
			case <-w.done:
			}
			return
		}

		// Bridges may send the stream as text or binary frames
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		select {
		case w.chunks <- wsChunk{data: data}:
		case <-w.done:
			return
		}
	}
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if len(w.buf) > 0 {
		n := copy(p, w.buf)
		w.buf = w.buf[n:]
		return n, nil
	}
	if w.err != nil {
		return 0, w.err
	}

	select {
	case chunk := <-w.chunks:
		if chunk.err != nil {
			w.err = fmt.Errorf("%w: %v", ErrConnectionClosed, chunk.err)
			return 0, w.err
		}
		n := copy(p, chunk.data)
		w.buf = chunk.data[n:]
		return n, nil
	default:
		return 0, nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	err := w.conn.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	w.once.Do(func() { close(w.done) })
	return w.conn.Close()
}

// WebSocketOptions configures a WebSocket bridge connection
type WebSocketOptions struct {
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
}

// OpenWebSocket opens a WebSocket connection with optional HTTP Basic auth
func OpenWebSocket(opts WebSocketOptions) (*WebSocketConnection, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: opts.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if opts.Username != "" && opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, opts.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return newWebSocketConnection(conn), nil
}
