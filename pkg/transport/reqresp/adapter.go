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

// Package reqresp implements the probe adapter for request/response
// transports over a persistent connection. The transport can interleave
// unrelated traffic, so the adapter enforces strict serialization: a send
// while a request is outstanding fails with ErrAdapterBusy instead of
// queuing. Interleaved probes would measure queuing delay, not the target.
package reqresp

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/sifary/whatstrax/pkg/logger"
	"github.com/sifary/whatstrax/pkg/models"
	"github.com/sifary/whatstrax/pkg/tracker"
)

const feedBuffer = 4

// Request is a typed probe request on the persistent connection.
type Request struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Target string `json:"target"`
}

// Response is the typed reply correlated to a Request by id.
type Response struct {
	ID  string `json:"id"`
	OK  bool   `json:"ok"`
	Err string `json:"err,omitempty"`
}

// RequestKindReceipt asks the platform to touch the target and report back.
const RequestKindReceipt = "receipt_query"

// Conn is the persistent platform connection. RoundTrip blocks until the
// response for this request arrives or ctx is done.
type Conn interface {
	RoundTrip(ctx context.Context, req *Request) (*Response, error)
	Connected() bool
}

// Adapter implements tracker.ProbeAdapter over a serialized request
// transport.
type Adapter struct {
	conn     Conn
	clock    tracker.Clock
	inflight atomic.Bool

	mu    sync.Mutex
	feeds map[string]chan models.AckEvent

	logger logger.Logger
}

var _ tracker.ProbeAdapter = (*Adapter)(nil)

// New creates a serialized-request adapter.
func New(conn Conn, clock tracker.Clock, log logger.Logger) *Adapter {
	return &Adapter{
		conn:   conn,
		clock:  clock,
		feeds:  make(map[string]chan models.AckEvent),
		logger: log,
	}
}

// SendProbe submits one typed request. It refuses to interleave: if a
// request is already outstanding it returns ErrAdapterBusy without queuing.
// The response is delivered on the target's ack feed; a transport error
// produces no ack and lets the correlator time the cycle out.
func (a *Adapter) SendProbe(ctx context.Context, target string) (*models.ProbeRequest, error) {
	if !a.conn.Connected() {
		return nil, tracker.ErrTransportUnavailable
	}

	if !a.inflight.CompareAndSwap(false, true) {
		return nil, tracker.ErrAdapterBusy
	}

	req := &models.ProbeRequest{
		ID:     uuid.New().String(),
		Target: target,
		SentAt: a.clock.Now(),
	}

	go a.roundTrip(ctx, req)

	return req, nil
}

func (a *Adapter) roundTrip(ctx context.Context, probe *models.ProbeRequest) {
	defer a.inflight.Store(false)

	resp, err := a.conn.RoundTrip(ctx, &Request{
		ID:     probe.ID,
		Kind:   RequestKindReceipt,
		Target: probe.Target,
	})
	if err != nil {
		a.logger.Debug().
			Err(err).
			Str("target", probe.Target).
			Msg("Probe round trip failed, cycle will time out")

		return
	}

	if !resp.OK {
		a.logger.Debug().
			Str("target", probe.Target).
			Str("err", resp.Err).
			Msg("Platform rejected probe, cycle will time out")

		return
	}

	a.deliver(probe.Target, models.AckEvent{
		ProbeID:    probe.ID,
		ObservedAt: a.clock.Now(),
		Kind:       models.AckKindAck,
	})
}

// Subscribe returns the per-target ack feed.
func (a *Adapter) Subscribe(target string) (<-chan models.AckEvent, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch := make(chan models.AckEvent, feedBuffer)
	a.feeds[target] = ch

	cancel := func() {
		a.mu.Lock()
		defer a.mu.Unlock()

		delete(a.feeds, target)
	}

	return ch, cancel
}

func (a *Adapter) deliver(target string, ev models.AckEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch, ok := a.feeds[target]
	if !ok {
		a.logger.Debug().
			Str("target", target).
			Msg("Dropping response for removed target")

		return
	}

	select {
	case ch <- ev:
	default:
		a.logger.Debug().
			Str("target", target).
			Msg("Dropping response for slow session feed")
	}
}
