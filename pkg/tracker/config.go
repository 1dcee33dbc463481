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
	"fmt"
	"time"

	"github.com/sifary/whatstrax/pkg/logger"
	"github.com/sifary/whatstrax/pkg/models"
)

const (
	defaultProbeInterval    = 2500 * time.Millisecond
	defaultProbeTimeout     = 10 * time.Second
	defaultOnlineThreshold  = 300 * time.Millisecond
	defaultStandbyThreshold = 800 * time.Millisecond
	defaultSmoothingFactor  = 0.3
	defaultJitterFraction   = 0.2
)

// TargetConfig declares a target to track at startup.
type TargetConfig struct {
	Target   string `json:"target"`
	Platform string `json:"platform"`
}

// Config holds the tunable constants of the presence engine. The classifier
// thresholds are illustrative defaults, not derived physics; deployments are
// expected to tune them.
type Config struct {
	ProbeInterval    models.Duration `json:"probe_interval"`
	ProbeTimeout     models.Duration `json:"probe_timeout"`
	OnlineThreshold  models.Duration `json:"online_threshold"`
	StandbyThreshold models.Duration `json:"standby_threshold"`
	SmoothingFactor  float64         `json:"smoothing_factor"`
	JitterFraction   float64         `json:"jitter_fraction"`
	Targets          []TargetConfig  `json:"targets,omitempty"`
	Logging          *logger.Config  `json:"logging,omitempty"`
}

// Validate applies defaults and enforces threshold ordering.
func (c *Config) Validate() error {
	if c.ProbeInterval == 0 {
		c.ProbeInterval = models.Duration(defaultProbeInterval)
	}

	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = models.Duration(defaultProbeTimeout)
	}

	if c.OnlineThreshold == 0 {
		c.OnlineThreshold = models.Duration(defaultOnlineThreshold)
	}

	if c.StandbyThreshold == 0 {
		c.StandbyThreshold = models.Duration(defaultStandbyThreshold)
	}

	if c.SmoothingFactor == 0 {
		c.SmoothingFactor = defaultSmoothingFactor
	}

	if c.ProbeInterval < 0 || c.ProbeTimeout < 0 {
		return fmt.Errorf("%w: probe_interval and probe_timeout must be positive", errInvalidConfig)
	}

	if c.OnlineThreshold >= c.StandbyThreshold {
		return fmt.Errorf("%w: online_threshold (%s) must be below standby_threshold (%s)",
			errInvalidConfig, time.Duration(c.OnlineThreshold), time.Duration(c.StandbyThreshold))
	}

	if c.SmoothingFactor <= 0 || c.SmoothingFactor > 1 {
		return fmt.Errorf("%w: smoothing_factor must be in (0, 1]", errInvalidConfig)
	}

	if c.JitterFraction < 0 || c.JitterFraction >= 1 {
		return fmt.Errorf("%w: jitter_fraction must be in [0, 1)", errInvalidConfig)
	}

	return nil
}
