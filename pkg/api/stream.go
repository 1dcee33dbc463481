/*
 * Copyright 2025 the whatstrax authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sifary/whatstrax/pkg/logger"
	"github.com/sifary/whatstrax/pkg/models"
)

const (
	clientBuffer = 32
	writeTimeout = 10 * time.Second
)

// StreamMessage is one frame on the live viewer stream.
type StreamMessage struct {
	Type      string                 `json:"type"` // "sample" or "error"
	Sample    *models.PresenceSample `json:"sample,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Hub fans presence samples out to connected websocket viewers. A viewer
// that cannot keep up has frames dropped rather than stalling the engine.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	logger  logger.Logger
}

type client struct {
	conn *websocket.Conn
	send chan StreamMessage
}

// NewHub creates an empty viewer hub.
func NewHub(log logger.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  log,
	}
}

// ConsumeSample implements tracker.SampleConsumer.
func (h *Hub) ConsumeSample(sample *models.PresenceSample) {
	msg := StreamMessage{
		Type:      "sample",
		Sample:    sample,
		Timestamp: time.Now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug().Msg("Dropping frame for slow stream viewer")
		}
	}
}

func (h *Hub) handleStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("Failed to upgrade to WebSocket")

		return
	}

	c := &client{
		conn: conn,
		send: make(chan StreamMessage, clientBuffer),
	}

	h.mu.Lock()

	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()

		return
	}

	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Info().
		Str("remote_addr", r.RemoteAddr).
		Msg("Stream viewer connected")

	go h.writePump(c)
	go h.readPump(c, r.RemoteAddr)
}

func (h *Hub) writePump(c *client) {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))

		if err := c.conn.WriteJSON(msg); err != nil {
			h.drop(c)
			return
		}
	}

	_ = c.conn.Close()
}

// readPump discards inbound frames and detects viewer disconnect.
func (h *Hub) readPump(c *client, remoteAddr string) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.logger.Debug().
				Str("remote_addr", remoteAddr).
				Msg("Stream viewer disconnected")

			h.drop(c)

			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		_ = c.conn.Close()
	}
}

// Close disconnects all viewers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true

	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		_ = c.conn.Close()
	}
}
