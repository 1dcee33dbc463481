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

package reqresp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sifary/whatstrax/pkg/logger"
)

const (
	writeWait       = 5 * time.Second
	reconnectDelay  = 2 * time.Second
	maxMessageBytes = 1 << 16
)

var (
	errSocketClosed   = errors.New("socket connection closed")
	errConnDropped    = errors.New("connection dropped before response")
	errDuplicateReqID = errors.New("duplicate request id on socket")
	errSocketNotReady = errors.New("socket not connected")
)

// SocketConfig configures the persistent websocket connection to the
// platform gateway.
type SocketConfig struct {
	URL      string `json:"url"`
	Platform string `json:"platform"`
}

// Socket is a Conn over a persistent gorilla/websocket connection. Requests
// are JSON frames; the read pump matches response frames to pending requests
// by id, since the gateway interleaves unrelated frames on the same socket.
type Socket struct {
	cfg     SocketConfig
	handler ConnectionHandler

	mu        sync.Mutex
	ws        *websocket.Conn
	pending   map[string]chan *Response
	connected bool

	done   chan struct{}
	wg     sync.WaitGroup
	logger logger.Logger
}

// ConnectionHandler mirrors the push-ack transport's connection callbacks.
type ConnectionHandler interface {
	OnConnected(platform string)
	OnDisconnected(platform string)
}

// Dial opens the socket and starts the read pump. The pump reconnects with a
// fixed delay until Close is called; while disconnected, Connected reports
// false and sessions skip their cycles.
func Dial(cfg SocketConfig, handler ConnectionHandler, log logger.Logger) (*Socket, error) {
	s := &Socket{
		cfg:     cfg,
		handler: handler,
		pending: make(map[string]chan *Response),
		done:    make(chan struct{}),
		logger:  log,
	}

	if err := s.connect(); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.readPump()

	return s, nil
}

func (s *Socket) connect() error {
	ws, _, err := websocket.DefaultDialer.Dial(s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", s.cfg.URL, err)
	}

	ws.SetReadLimit(maxMessageBytes)

	s.mu.Lock()
	s.ws = ws
	s.connected = true
	s.mu.Unlock()

	if s.handler != nil {
		s.handler.OnConnected(s.cfg.Platform)
	}

	return nil
}

// Connected implements Conn.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.connected
}

// RoundTrip implements Conn. It writes the request frame and blocks until
// the read pump delivers the matching response, ctx is done, or the socket
// drops.
func (s *Socket) RoundTrip(ctx context.Context, req *Request) (*Response, error) {
	ch := make(chan *Response, 1)

	s.mu.Lock()

	if !s.connected || s.ws == nil {
		s.mu.Unlock()
		return nil, errSocketNotReady
	}

	if _, exists := s.pending[req.ID]; exists {
		s.mu.Unlock()
		return nil, errDuplicateReqID
	}

	s.pending[req.ID] = ch
	ws := s.ws
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, req.ID)
		s.mu.Unlock()
	}()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))

	if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return nil, fmt.Errorf("failed to write request frame: %w", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, errConnDropped
		}

		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, errSocketClosed
	}
}

func (s *Socket) readPump() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		ws := s.ws
		s.mu.Unlock()

		if ws != nil {
			s.readFrames(ws)
		}

		s.markDisconnected()

		select {
		case <-s.done:
			return
		case <-time.After(reconnectDelay):
		}

		if err := s.connect(); err != nil {
			s.logger.Warn().Err(err).Msg("Socket reconnect failed")
		}
	}
}

func (s *Socket) readFrames(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			s.logger.Warn().Err(err).Msg("Socket read failed")
			return
		}

		var resp Response

		if err := json.Unmarshal(data, &resp); err != nil {
			s.logger.Debug().Err(err).Msg("Dropping malformed socket frame")
			continue
		}

		s.mu.Lock()
		ch, ok := s.pending[resp.ID]
		s.mu.Unlock()

		if !ok {
			// Unrelated interleaved traffic.
			s.logger.Debug().Str("id", resp.ID).Msg("Dropping unmatched socket frame")
			continue
		}

		select {
		case ch <- &resp:
		default:
		}
	}
}

func (s *Socket) markDisconnected() {
	s.mu.Lock()

	wasConnected := s.connected
	s.connected = false

	if s.ws != nil {
		_ = s.ws.Close()
		s.ws = nil
	}

	// Responses for requests written on the dropped connection can never
	// arrive on the next one; fail the round trips now.
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}

	s.mu.Unlock()

	if wasConnected && s.handler != nil {
		s.handler.OnDisconnected(s.cfg.Platform)
	}
}

// Close tears the socket down and unblocks all pending round trips.
func (s *Socket) Close() error {
	close(s.done)

	s.mu.Lock()

	if s.ws != nil {
		_ = s.ws.Close()
	}

	s.mu.Unlock()
	s.wg.Wait()

	return nil
}
