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

// Package models defines the shared data types of the presence engine.
package models

import "time"

// PresenceState is the inferred device state of a tracked account.
type PresenceState string

const (
	// StateOnline means the target device is actively handling traffic.
	StateOnline PresenceState = "online"
	// StateStandby means the device is reachable but backgrounded.
	StateStandby PresenceState = "standby"
	// StateOffline means the device is unreachable or not acknowledging probes.
	StateOffline PresenceState = "offline"
)

// RttSample is one completed probe round trip. Never produced for a timed-out
// cycle; a timeout forces classification directly instead.
type RttSample struct {
	Target     string    `json:"target"`
	RTTMillis  int64     `json:"rtt_ms"`
	MeasuredAt time.Time `json:"measured_at"`
}

// PresenceSample is the externally visible unit of work, emitted once per
// probe cycle (or immediately when a timeout forces Offline).
type PresenceSample struct {
	Target            string        `json:"target"`
	Platform          string        `json:"platform"`
	State             PresenceState `json:"state"`
	RTTMillis         int64         `json:"rtt_ms"`
	SmoothedRTTMillis int64         `json:"smoothed_rtt_ms"`
	Timeout           bool          `json:"timeout,omitempty"`
	Timestamp         time.Time     `json:"timestamp"`
}
