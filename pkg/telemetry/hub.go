// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	clientBuffer   = 16
)

// DefaultBroadcastInterval limits the live feed to 10 updates per second
const DefaultBroadcastInterval = 100 * time.Millisecond

// LiveMessage is pushed to WebSocket clients, shaped like the probe's own web UI feed
type LiveMessage struct {
	Type       string  `json:"type"`
	Magnitude  float64 `json:"magnitude"`
	Peak       float64 `json:"peak"`
	RMS        float64 `json:"rms"`
	Status     string  `json:"status"`
	StatusCode int     `json:"status_code"`
	Estop      bool    `json:"estop_trigger"`
	Connected  bool    `json:"connected"`
	Timestamp  int64   `json:"timestamp"` // unix milliseconds
}

func newLiveMessage(s Snapshot) LiveMessage {
	return LiveMessage{
		Type:       "data",
		Magnitude:  s.Current,
		Peak:       s.Peak,
		RMS:        s.RMS,
		Status:     s.Status,
		StatusCode: s.StatusCode,
		Estop:      s.Estop,
		Connected:  s.Connected,
		Timestamp:  s.UpdatedAt.UnixMilli(),
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts state changes to WebSocket clients at a bounded rate
type Hub struct {
	state    *State
	interval time.Duration
	upgrader websocket.Upgrader

	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	done       chan struct{}
}

// NewHub creates a hub reading from state
func NewHub(state *State, interval time.Duration) *Hub {
	if interval <= 0 {
		interval = DefaultBroadcastInterval
	}
	return &Hub{
		state:    state,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.remove(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			log.Printf("[vibmon] WebSocket client connected: %s", c.conn.RemoteAddr())
			// New clients get the current state without waiting for a change
			if snap, seq := h.state.Snapshot(); seq > 0 {
				h.sendTo(c, snap)
			}

		case c := <-h.unregister:
			h.remove(c)

		case <-ticker.C:
			snap, seq := h.state.Snapshot()
			if seq == lastSeq {
				continue
			}
			lastSeq = seq
			for c := range h.clients {
				h.sendTo(c, snap)
			}
		}
	}
}

func (h *Hub) sendTo(c *client, snap Snapshot) {
	data, err := json.Marshal(newLiveMessage(snap))
	if err != nil {
		log.Printf("[vibmon] Error marshalling live message: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("[vibmon] WebSocket client %s too slow, removing", c.conn.RemoteAddr())
		h.remove(c)
	}
}

func (h *Hub) remove(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// ServeHTTP upgrades the request and attaches the client to the hub
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[vibmon] WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards client messages and detects disconnects
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[vibmon] WebSocket read error: %v", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
