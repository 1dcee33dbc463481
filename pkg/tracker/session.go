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

package tracker

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sifary/whatstrax/pkg/logger"
	"github.com/sifary/whatstrax/pkg/models"
)

// Session owns one target's full probe cycle lifecycle: the jittered probe
// clock, the correlator slot, and the classifier state. Cycles are strictly
// serialized within a session: the next tick is scheduled only after the
// previous cycle resolved via ack or timeout.
type Session struct {
	target   string
	platform string

	adapter    ProbeAdapter
	correlator *Correlator
	classifier *Classifier
	clock      Clock

	interval time.Duration
	timeout  time.Duration
	jitter   float64

	connected *atomic.Bool // shared per-platform connection gate

	emitSample func(sample *models.PresenceSample)
	emitEvent  func(event *models.SessionEvent)

	mu      sync.Mutex
	started bool
	done    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup

	logger logger.Logger
}

func newSession(target, platform string, adapter ProbeAdapter, cfg *Config,
	clock Clock, connected *atomic.Bool, log logger.Logger) *Session {
	return &Session{
		target:     target,
		platform:   platform,
		adapter:    adapter,
		correlator: NewCorrelator(log),
		classifier: NewClassifier(cfg),
		clock:      clock,
		interval:   time.Duration(cfg.ProbeInterval),
		timeout:    time.Duration(cfg.ProbeTimeout),
		jitter:     cfg.JitterFraction,
		connected:  connected,
		done:       make(chan struct{}),
		logger:     log,
	}
}

// Start launches the probe loop. Starting an already started session is a
// no-op reporting a duplicate condition.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errSessionStarted
	}

	s.started = true

	s.wg.Add(1)
	go s.run(ctx)

	return nil
}

// Stop cancels the probe clock, discards any outstanding probe, and waits
// for the loop to exit. No sample is emitted after Stop returns. Stop is
// idempotent.
func (s *Session) Stop() {
	s.stopped.Do(func() {
		close(s.done)
	})

	s.wg.Wait()
}

// State returns the session's current presence state.
func (s *Session) State() models.PresenceState {
	return s.classifier.State()
}

// SmoothedMillis returns the session's smoothed RTT in milliseconds.
func (s *Session) SmoothedMillis() int64 {
	return s.classifier.SmoothedMillis()
}

func (s *Session) run(ctx context.Context) {
	defer s.wg.Done()

	acks, cancel := s.adapter.Subscribe(s.target)
	defer cancel()

	s.event(models.SessionStarted, "")
	defer s.event(models.SessionStopped, "")

	for {
		timer := s.clock.Timer(s.nextInterval())

		waiting := true
		for waiting {
			select {
			case <-s.done:
				timer.Stop()
				return
			case <-ctx.Done():
				timer.Stop()
				return
			case ev := <-acks:
				// Stale events between cycles cannot match an empty slot.
				s.correlator.Observe(ev)
			case <-timer.Chan():
				waiting = false
			}
		}

		s.cycle(ctx, acks)
	}
}

// cycle runs one probe: send, then block until the correlator resolves it.
func (s *Session) cycle(ctx context.Context, acks <-chan models.AckEvent) {
	if s.connected != nil && !s.connected.Load() {
		s.logger.Debug().
			Str("target", s.target).
			Msg("Transport suspended, skipping probe cycle")

		return
	}

	// probeCtx bounds the transport round trip to this cycle. Cancelling on
	// exit releases a round trip the gateway never answers.
	probeCtx, cancelProbe := context.WithTimeout(ctx, s.timeout)
	defer cancelProbe()

	req, err := s.adapter.SendProbe(probeCtx, s.target)
	if err != nil {
		s.sendFailed(err)
		return
	}

	if err := s.correlator.Begin(req); err != nil {
		s.logger.Error().
			Err(err).
			Str("target", s.target).
			Msg("Probe slot occupied at cycle start, invariant violation")

		return
	}

	timer := s.clock.Timer(s.timeout)
	defer timer.Stop()

	for {
		select {
		case <-s.done:
			s.correlator.Discard()
			return
		case <-ctx.Done():
			s.correlator.Discard()
			return
		case ev := <-acks:
			sample, matched := s.correlator.Observe(ev)
			if !matched {
				continue
			}

			state := s.classifier.ObserveSample(sample)
			s.sample(sample, state, false)

			return
		case <-timer.Chan():
			if s.correlator.Expire() {
				state := s.classifier.ObserveTimeout(s.clock.Now())
				s.sample(nil, state, true)
			}

			return
		}
	}
}

func (s *Session) sendFailed(err error) {
	if errors.Is(err, ErrTransportUnavailable) {
		s.logger.Debug().
			Str("target", s.target).
			Msg("Transport unavailable, skipping probe cycle")

		return
	}

	if errors.Is(err, ErrAdapterBusy) {
		s.logger.Error().
			Str("target", s.target).
			Msg("Adapter refused probe while gated, invariant violation")

		return
	}

	s.logger.Warn().
		Err(err).
		Str("target", s.target).
		Msg("Failed to send probe")

	s.event(models.ProbeFailed, err.Error())
}

func (s *Session) sample(rtt *models.RttSample, state models.PresenceState, timedOut bool) {
	out := &models.PresenceSample{
		Target:            s.target,
		Platform:          s.platform,
		State:             state,
		SmoothedRTTMillis: s.classifier.SmoothedMillis(),
		Timeout:           timedOut,
		Timestamp:         s.clock.Now(),
	}

	if rtt != nil {
		out.RTTMillis = rtt.RTTMillis
		out.Timestamp = rtt.MeasuredAt
	}

	if s.emitSample != nil {
		s.emitSample(out)
	}
}

func (s *Session) event(kind models.SessionEventType, reason string) {
	if s.emitEvent == nil {
		return
	}

	s.emitEvent(&models.SessionEvent{
		Type:      kind,
		Target:    s.target,
		Platform:  s.platform,
		Reason:    reason,
		Timestamp: s.clock.Now(),
	})
}

// nextInterval returns the base probe interval with uniform jitter applied.
func (s *Session) nextInterval() time.Duration {
	if s.jitter == 0 {
		return s.interval
	}

	offset := time.Duration(float64(s.interval) * s.jitter * (rand.Float64()*2 - 1))

	return s.interval + offset
}
