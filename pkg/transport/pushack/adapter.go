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

// Package pushack implements the probe adapter for event-stream transports:
// a one-shot ephemeral action is sent to the target, and the acknowledgment
// arrives later on a broadcast stream shared by all sessions. Correlation is
// by action identity, never by arrival order.
package pushack

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sifary/whatstrax/pkg/logger"
	"github.com/sifary/whatstrax/pkg/models"
	"github.com/sifary/whatstrax/pkg/tracker"
)

const feedBuffer = 16

// Sender issues the invisible probe action toward a target over the platform
// connection. The action carries the probe id so the resulting stream event
// can be matched back.
type Sender interface {
	SendEphemeral(ctx context.Context, target, probeID string) error
}

// RawEvent is one raw platform event from the shared stream.
type RawEvent struct {
	Type       string    `json:"type"`
	ActionID   string    `json:"action_id"`
	Target     string    `json:"target,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Event types that acknowledge a probe action. Everything else on the
// stream is unrelated traffic and is not translated.
const (
	EventServerAck = "server_ack"
	EventEdit      = "edit_update"
	EventReceipt   = "receipt"
)

// Adapter implements tracker.ProbeAdapter over a push-event transport.
type Adapter struct {
	sender    Sender
	clock     tracker.Clock
	connected atomic.Bool

	mu   sync.Mutex
	subs map[*subscriber]struct{}

	logger logger.Logger
}

type subscriber struct {
	target string
	ch     chan models.AckEvent
}

var _ tracker.ProbeAdapter = (*Adapter)(nil)

// New creates a push-ack adapter. Send timestamps come from the same clock
// the engine measures with.
func New(sender Sender, clock tracker.Clock, log logger.Logger) *Adapter {
	a := &Adapter{
		sender: sender,
		clock:  clock,
		subs:   make(map[*subscriber]struct{}),
		logger: log,
	}

	a.connected.Store(true)

	return a
}

// SendProbe sends the ephemeral action and records the send time.
func (a *Adapter) SendProbe(ctx context.Context, target string) (*models.ProbeRequest, error) {
	if !a.connected.Load() {
		return nil, tracker.ErrTransportUnavailable
	}

	req := &models.ProbeRequest{
		ID:     uuid.New().String(),
		Target: target,
		SentAt: a.clock.Now(),
	}

	if err := a.sender.SendEphemeral(ctx, target, req.ID); err != nil {
		return nil, err
	}

	return req, nil
}

// Subscribe attaches a session to the broadcast stream. Every subscriber
// observes the full stream; no session gets exclusive read access.
func (a *Adapter) Subscribe(target string) (<-chan models.AckEvent, func()) {
	sub := &subscriber{
		target: target,
		ch:     make(chan models.AckEvent, feedBuffer),
	}

	a.mu.Lock()
	a.subs[sub] = struct{}{}
	a.mu.Unlock()

	cancel := func() {
		a.mu.Lock()
		delete(a.subs, sub)
		a.mu.Unlock()
	}

	return sub.ch, cancel
}

// HandleTransportEvent translates one raw platform event and fans it out to
// every subscriber. Non-acknowledging event types are ignored.
func (a *Adapter) HandleTransportEvent(raw *RawEvent) {
	switch raw.Type {
	case EventServerAck, EventEdit, EventReceipt:
	default:
		return
	}

	observedAt := raw.ReceivedAt
	if observedAt.IsZero() {
		observedAt = a.clock.Now()
	}

	ev := models.AckEvent{
		ProbeID:    raw.ActionID,
		ObservedAt: observedAt,
		Kind:       models.AckKindAck,
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for sub := range a.subs {
		select {
		case sub.ch <- ev:
		default:
			a.logger.Debug().
				Str("target", sub.target).
				Str("action_id", raw.ActionID).
				Msg("Dropping stream event for slow subscriber")
		}
	}
}

// OnConnected marks the transport ready for probes.
func (a *Adapter) OnConnected() {
	a.connected.Store(true)
}

// OnDisconnected makes SendProbe fail with ErrTransportUnavailable until the
// transport reconnects.
func (a *Adapter) OnDisconnected() {
	a.connected.Store(false)
}
