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

// Package tracker implements the presence-inference engine: per-target probe
// sessions, RTT correlation, and moving-average presence classification.
package tracker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sifary/whatstrax/pkg/logger"
	"github.com/sifary/whatstrax/pkg/models"
)

// TargetStatus is the registry's externally visible view of one session.
type TargetStatus struct {
	Target            string               `json:"target"`
	Platform          string               `json:"platform"`
	State             models.PresenceState `json:"state"`
	SmoothedRTTMillis int64                `json:"smoothed_rtt_ms"`
	Suspended         bool                 `json:"suspended"`
}

// Tracker is the registry owning all target sessions. It fans classified
// samples and lifecycle notices out to the registered consumers and gates
// sessions on per-platform transport connectivity.
type Tracker struct {
	config Config
	clock  Clock
	logger logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	adapters map[string]ProbeAdapter
	gates    map[string]*atomic.Bool
	stopped  bool

	consumerMu sync.RWMutex
	samples    []SampleConsumer
	events     []EventConsumer

	runCtx    context.Context
	runCancel context.CancelFunc
}

// New creates a tracker. A nil clock defaults to the real clock.
func New(config *Config, clock Clock, log logger.Logger) *Tracker {
	if clock == nil {
		clock = realClock{}
	}

	return &Tracker{
		config:   *config,
		clock:    clock,
		logger:   log,
		sessions: make(map[string]*Session),
		adapters: make(map[string]ProbeAdapter),
		gates:    make(map[string]*atomic.Bool),
	}
}

// RegisterAdapter binds a platform name to its probe adapter. The platform's
// connection gate starts open; transports report state via OnConnected and
// OnDisconnected.
func (t *Tracker) RegisterAdapter(platform string, adapter ProbeAdapter) {
	t.mu.Lock()
	defer t.mu.Unlock()

	gate := &atomic.Bool{}
	gate.Store(true)

	t.adapters[platform] = adapter
	t.gates[platform] = gate
}

// AddSampleConsumer registers a consumer of classified presence samples.
func (t *Tracker) AddSampleConsumer(c SampleConsumer) {
	t.consumerMu.Lock()
	defer t.consumerMu.Unlock()

	t.samples = append(t.samples, c)
}

// AddEventConsumer registers a consumer of session lifecycle notices.
func (t *Tracker) AddEventConsumer(c EventConsumer) {
	t.consumerMu.Lock()
	defer t.consumerMu.Unlock()

	t.events = append(t.events, c)
}

// Start implements the lifecycle.Service interface. It launches sessions for
// any targets declared in config.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	t.runCtx, t.runCancel = context.WithCancel(context.WithoutCancel(ctx))
	t.mu.Unlock()

	t.logger.Info().
		Dur("interval", time.Duration(t.config.ProbeInterval)).
		Dur("timeout", time.Duration(t.config.ProbeTimeout)).
		Msg("Starting presence tracker")

	for _, tc := range t.config.Targets {
		if err := t.AddTarget(ctx, tc.Target, tc.Platform); err != nil {
			t.logger.Error().
				Err(err).
				Str("target", tc.Target).
				Str("platform", tc.Platform).
				Msg("Failed to start configured target")
		}
	}

	return nil
}

// Stop implements the lifecycle.Service interface. It stops every session
// and rejects further target operations.
func (t *Tracker) Stop(_ context.Context) error {
	t.mu.Lock()

	if t.stopped {
		t.mu.Unlock()
		return nil
	}

	t.stopped = true
	sessions := make([]*Session, 0, len(t.sessions))

	for _, s := range t.sessions {
		sessions = append(sessions, s)
	}

	t.sessions = make(map[string]*Session)

	if t.runCancel != nil {
		t.runCancel()
	}

	t.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}

	t.logger.Info().Msg("Presence tracker stopped")

	return nil
}

// AddTarget creates and starts a session for a new target. The identity is
// immutable for the session's lifetime; re-adding a removed target creates a
// fresh session with reset smoothing state.
func (t *Tracker) AddTarget(_ context.Context, target, platform string) error {
	t.mu.Lock()

	if t.stopped {
		t.mu.Unlock()
		return errTrackerStopped
	}

	if _, ok := t.sessions[target]; ok {
		t.mu.Unlock()
		return ErrDuplicateTarget
	}

	adapter, ok := t.adapters[platform]
	if !ok {
		t.mu.Unlock()
		return ErrUnknownPlatform
	}

	log := t.logger
	session := newSession(target, platform, adapter, &t.config, t.clock, t.gates[platform], log)
	session.emitSample = t.fanOutSample
	session.emitEvent = t.fanOutEvent
	t.sessions[target] = session

	runCtx := t.runCtx
	if runCtx == nil {
		runCtx = context.Background()
	}

	t.mu.Unlock()

	if err := session.Start(runCtx); err != nil {
		return err
	}

	t.logger.Info().
		Str("target", target).
		Str("platform", platform).
		Msg("Target session started")

	return nil
}

// RemoveTarget stops and destroys a target's session. After it returns, no
// further samples are emitted for the target.
func (t *Tracker) RemoveTarget(_ context.Context, target string) error {
	t.mu.Lock()

	session, ok := t.sessions[target]
	if !ok {
		t.mu.Unlock()
		return ErrTargetNotFound
	}

	delete(t.sessions, target)
	t.mu.Unlock()

	session.Stop()

	t.logger.Info().
		Str("target", target).
		Msg("Target session stopped")

	return nil
}

// Targets returns the current status of every tracked target.
func (t *Tracker) Targets() []TargetStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	statuses := make([]TargetStatus, 0, len(t.sessions))

	for _, s := range t.sessions {
		suspended := false
		if gate, ok := t.gates[s.platform]; ok {
			suspended = !gate.Load()
		}

		statuses = append(statuses, TargetStatus{
			Target:            s.target,
			Platform:          s.platform,
			State:             s.State(),
			SmoothedRTTMillis: s.SmoothedMillis(),
			Suspended:         suspended,
		})
	}

	return statuses
}

// OnConnected reopens a platform's connection gate. Suspended sessions resume
// probing on their next tick with classifier state intact.
func (t *Tracker) OnConnected(platform string) {
	if gate := t.gate(platform); gate != nil {
		gate.Store(true)
		t.logger.Info().Str("platform", platform).Msg("Transport connected, sessions resumed")
	}
}

// OnDisconnected closes a platform's connection gate. Dependent sessions are
// suspended, not destroyed: they keep classifier state and skip cycles until
// the transport reports reconnection.
func (t *Tracker) OnDisconnected(platform string) {
	if gate := t.gate(platform); gate != nil {
		gate.Store(false)
		t.logger.Warn().Str("platform", platform).Msg("Transport disconnected, sessions suspended")
	}
}

func (t *Tracker) gate(platform string) *atomic.Bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.gates[platform]
}

func (t *Tracker) fanOutSample(sample *models.PresenceSample) {
	t.consumerMu.RLock()
	defer t.consumerMu.RUnlock()

	for _, c := range t.samples {
		c.ConsumeSample(sample)
	}
}

func (t *Tracker) fanOutEvent(event *models.SessionEvent) {
	t.consumerMu.RLock()
	defer t.consumerMu.RUnlock()

	for _, c := range t.events {
		c.ConsumeEvent(event)
	}
}
