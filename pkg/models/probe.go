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

// ProbeRequest is one in-flight probe. At most one exists per target session
// at any instant.
type ProbeRequest struct {
	ID     string    `json:"id"`
	Target string    `json:"target"`
	SentAt time.Time `json:"sent_at"`
}

// AckKind distinguishes a real acknowledgment from a correlator timeout.
type AckKind string

const (
	AckKindAck     AckKind = "ack"
	AckKindTimeout AckKind = "timeout"
)

// AckEvent is a transport event translated into the engine's vocabulary.
// ProbeID may be empty on transports that cannot correlate by identity;
// such events are matched against the single outstanding probe by recency.
type AckEvent struct {
	ProbeID    string    `json:"probe_id,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
	Kind       AckKind   `json:"kind"`
}
