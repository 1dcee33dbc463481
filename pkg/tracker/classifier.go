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
	"sync"
	"time"

	"github.com/sifary/whatstrax/pkg/models"
)

// Classifier turns a sequence of RTT samples and timeouts into a stable
// presence state. Classification compares the exponentially smoothed RTT,
// never the raw sample, against the ordered online/standby thresholds; the
// smoothing is the anti-flap mechanism. A timeout forces Offline immediately
// without touching the smoothed value, so a single missed probe is a hard
// down signal while recovery keeps continuity.
type Classifier struct {
	mu               sync.Mutex
	alpha            float64
	onlineThreshold  float64 // milliseconds
	standbyThreshold float64 // milliseconds
	smoothed         float64
	seeded           bool
	state            models.PresenceState
	lastTransition   time.Time
}

// NewClassifier creates a classifier from engine config. The config is
// assumed validated (online < standby, 0 < alpha <= 1).
func NewClassifier(cfg *Config) *Classifier {
	return &Classifier{
		alpha:            cfg.SmoothingFactor,
		onlineThreshold:  float64(time.Duration(cfg.OnlineThreshold).Milliseconds()),
		standbyThreshold: float64(time.Duration(cfg.StandbyThreshold).Milliseconds()),
		state:            models.StateOffline,
	}
}

// ObserveSample folds one RTT sample into the smoothed signal and returns
// the resulting state.
func (c *Classifier) ObserveSample(sample *models.RttSample) models.PresenceState {
	c.mu.Lock()
	defer c.mu.Unlock()

	rtt := float64(sample.RTTMillis)

	if !c.seeded {
		c.smoothed = rtt
		c.seeded = true
	} else {
		c.smoothed = c.alpha*rtt + (1-c.alpha)*c.smoothed
	}

	c.transition(c.classify(), sample.MeasuredAt)

	return c.state
}

// ObserveTimeout forces Offline. Unreachability is a hard signal, not a
// smoothed one; the smoothed RTT is left intact for continuity once the
// target acks again.
func (c *Classifier) ObserveTimeout(at time.Time) models.PresenceState {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transition(models.StateOffline, at)

	return c.state
}

func (c *Classifier) classify() models.PresenceState {
	switch {
	case c.smoothed <= c.onlineThreshold:
		return models.StateOnline
	case c.smoothed <= c.standbyThreshold:
		return models.StateStandby
	default:
		return models.StateOffline
	}
}

func (c *Classifier) transition(next models.PresenceState, at time.Time) {
	if next != c.state {
		c.state = next
		c.lastTransition = at
	}
}

// State returns the current presence state.
func (c *Classifier) State() models.PresenceState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// SmoothedMillis returns the smoothed RTT rounded to whole milliseconds.
func (c *Classifier) SmoothedMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return int64(c.smoothed + 0.5)
}

// LastTransition returns when the state last changed.
func (c *Classifier) LastTransition() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastTransition
}
