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

	"github.com/sifary/whatstrax/pkg/logger"
	"github.com/sifary/whatstrax/pkg/models"
)

// Correlator pairs exactly one outstanding ProbeRequest with its resolution
// and computes the RTT sample. It maintains a single slot per target session:
// the slot is occupied on Begin, cleared on a matching Observe or on Expire.
// Events that cannot be matched to the occupied slot are dropped.
type Correlator struct {
	mu          sync.Mutex
	outstanding *models.ProbeRequest
	logger      logger.Logger
}

// NewCorrelator creates a Correlator for one target session.
func NewCorrelator(log logger.Logger) *Correlator {
	return &Correlator{logger: log}
}

// Begin occupies the slot with a freshly sent probe. It fails with
// errProbeInFlight if the previous cycle has not resolved yet; given the
// probe clock's gating that indicates a scheduling bug.
func (c *Correlator) Begin(req *models.ProbeRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.outstanding != nil {
		return errProbeInFlight
	}

	c.outstanding = req

	return nil
}

// Observe matches an ack event against the outstanding slot. On a match it
// clears the slot and returns the computed RTT sample. Events with a foreign
// probe id, or arriving while the slot is empty (late ack after a timeout,
// duplicate ack), are discarded with a debug note.
func (c *Correlator) Observe(ev models.AckEvent) (*models.RttSample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.outstanding == nil {
		c.logger.Debug().
			Str("probe_id", ev.ProbeID).
			Msg("Dropping ack event with no probe outstanding")

		return nil, false
	}

	// Transports that cannot correlate by identity leave ProbeID empty and
	// are matched against the single outstanding probe by recency.
	if ev.ProbeID != "" && ev.ProbeID != c.outstanding.ID {
		c.logger.Debug().
			Str("probe_id", ev.ProbeID).
			Str("outstanding_id", c.outstanding.ID).
			Msg("Dropping ack event for foreign probe")

		return nil, false
	}

	rtt := ev.ObservedAt.Sub(c.outstanding.SentAt).Milliseconds()
	if rtt < 0 {
		rtt = 0
	}

	sample := &models.RttSample{
		Target:     c.outstanding.Target,
		RTTMillis:  rtt,
		MeasuredAt: ev.ObservedAt,
	}

	c.outstanding = nil

	return sample, true
}

// Expire clears the slot after the timeout deadline. It reports whether a
// probe was actually outstanding; once it returns true, any later ack for
// that probe is discarded by Observe.
func (c *Correlator) Expire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.outstanding == nil {
		return false
	}

	c.logger.Debug().
		Str("probe_id", c.outstanding.ID).
		Str("target", c.outstanding.Target).
		Msg("Probe timed out")

	c.outstanding = nil

	return true
}

// Discard drops any outstanding probe without a resolution. Used when a
// session stops mid-cycle.
func (c *Correlator) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.outstanding = nil
}

// Outstanding reports whether a probe is currently in flight.
func (c *Correlator) Outstanding() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.outstanding != nil
}
