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

package pushack

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/sifary/whatstrax/pkg/logger"
	"github.com/sifary/whatstrax/pkg/tracker"
)

// Config wires the push-ack transport to its NATS subjects. The messaging
// bridge publishes raw platform events on <prefix>.events and accepts probe
// actions on <prefix>.probe.<target>.
type Config struct {
	URL           string `json:"url"`
	SubjectPrefix string `json:"subject_prefix"`
	Platform      string `json:"platform"`
}

// ConnectionHandler is notified when the shared transport connection drops
// or recovers. The tracker implements this to suspend and resume sessions.
type ConnectionHandler interface {
	OnConnected(platform string)
	OnDisconnected(platform string)
}

// Bridge owns the NATS side of the push-ack transport: it forwards probe
// actions to the messaging bridge and feeds the shared event stream into the
// adapter.
type Bridge struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	adapter *Adapter
	prefix  string
	logger  logger.Logger
}

// natsSender publishes probe actions to the messaging bridge.
type natsSender struct {
	nc     *nats.Conn
	prefix string
}

func (s *natsSender) SendEphemeral(_ context.Context, target, probeID string) error {
	payload, err := json.Marshal(map[string]string{"action_id": probeID, "target": target})
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("%s.probe.%s", s.prefix, target)

	if err := s.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish probe action: %w", err)
	}

	return nil
}

// NewBridge connects to NATS, creates the adapter over it, and subscribes to
// the shared event stream. Connection state changes are propagated to the
// handler so dependent sessions suspend instead of failing.
func NewBridge(cfg *Config, clock tracker.Clock, handler ConnectionHandler, log logger.Logger) (*Bridge, error) {
	platform := cfg.Platform

	// The adapter exists before the connection so the handlers below can
	// fire at any point without observing a half-built transport.
	sender := &natsSender{prefix: cfg.SubjectPrefix}
	adapter := New(sender, clock, log)

	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("Messaging stream disconnected")

			adapter.OnDisconnected()

			if handler != nil {
				handler.OnDisconnected(platform)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("Messaging stream reconnected")

			adapter.OnConnected()

			if handler != nil {
				handler.OnConnected(platform)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	// Probe sends only start after NewBridge returns and the adapter is
	// registered, by which point the sender has its connection.
	sender.nc = nc

	b := &Bridge{
		nc:      nc,
		adapter: adapter,
		prefix:  cfg.SubjectPrefix,
		logger:  log,
	}

	sub, err := nc.Subscribe(cfg.SubjectPrefix+".events", b.handleMessage)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to subscribe to event stream: %w", err)
	}

	b.sub = sub

	return b, nil
}

// Adapter returns the probe adapter backed by this bridge.
func (b *Bridge) Adapter() *Adapter {
	return b.adapter
}

// Conn exposes the underlying NATS connection so the host can share it with
// other NATS-backed components.
func (b *Bridge) Conn() *nats.Conn {
	return b.nc
}

func (b *Bridge) handleMessage(msg *nats.Msg) {
	var raw RawEvent

	if err := json.Unmarshal(msg.Data, &raw); err != nil {
		b.logger.Debug().Err(err).Msg("Dropping malformed stream event")
		return
	}

	b.adapter.HandleTransportEvent(&raw)
}

// Close drains the subscription and closes the connection.
func (b *Bridge) Close() error {
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			b.logger.Warn().Err(err).Msg("Failed to unsubscribe from event stream")
		}
	}

	b.nc.Close()

	return nil
}
