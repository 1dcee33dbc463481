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

package models

import "time"

// SessionEventType enumerates target session lifecycle notices.
type SessionEventType string

const (
	SessionStarted SessionEventType = "session_started"
	SessionStopped SessionEventType = "session_stopped"
	ProbeFailed    SessionEventType = "probe_failed"
)

// SessionEvent is a lifecycle notice emitted alongside the sample stream.
type SessionEvent struct {
	Type      SessionEventType `json:"type"`
	Target    string           `json:"target"`
	Platform  string           `json:"platform"`
	Reason    string           `json:"reason,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// CloudEvent is the envelope used when publishing engine events to the
// event stream.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}
