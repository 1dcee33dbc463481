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

// Package notify publishes session lifecycle notices to NATS JetStream.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/sifary/whatstrax/pkg/logger"
	"github.com/sifary/whatstrax/pkg/models"
)

const eventSource = "whatstrax/tracker"

// Config wires the event publisher to a JetStream stream.
type Config struct {
	URL        string `json:"url"`
	StreamName string `json:"stream_name"`
	Subject    string `json:"subject_prefix"`
}

// Publisher emits session lifecycle notices as CloudEvents on JetStream.
// Publishing is asynchronous so a slow broker never holds up a probe cycle.
type Publisher struct {
	js      jetstream.JetStream
	subject string
	logger  logger.Logger
}

// NewPublisher creates a Publisher on an existing NATS connection, creating
// the stream when it does not exist yet.
func NewPublisher(ctx context.Context, nc *nats.Conn, cfg *Config, log logger.Logger) (*Publisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.Stream(ctx, cfg.StreamName); err != nil {
		streamConfig := jetstream.StreamConfig{
			Name:     cfg.StreamName,
			Subjects: []string{cfg.Subject + ".>"},
		}

		if _, err := js.CreateOrUpdateStream(ctx, streamConfig); err != nil {
			return nil, fmt.Errorf("failed to create or get stream %s: %w", cfg.StreamName, err)
		}
	}

	return &Publisher{
		js:      js,
		subject: cfg.Subject,
		logger:  log,
	}, nil
}

// ConsumeEvent implements tracker.EventConsumer.
func (p *Publisher) ConsumeEvent(event *models.SessionEvent) {
	ts := event.Timestamp

	envelope := models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          eventSource,
		Type:            fmt.Sprintf("com.sifary.whatstrax.%s", event.Type),
		DataContentType: "application/json",
		Subject:         fmt.Sprintf("%s.session.%s", p.subject, event.Type),
		Time:            &ts,
		Data:            event,
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to marshal session event")
		return
	}

	if _, err := p.js.PublishAsync(envelope.Subject, payload); err != nil {
		p.logger.Warn().
			Err(err).
			Str("target", event.Target).
			Msg("Failed to publish session event")
	}
}
