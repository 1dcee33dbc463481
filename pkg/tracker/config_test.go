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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sifary/whatstrax/pkg/models"
)

func TestConfig_ValidateAppliesDefaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2500*time.Millisecond, time.Duration(cfg.ProbeInterval))
	assert.Equal(t, 10*time.Second, time.Duration(cfg.ProbeTimeout))
	assert.Equal(t, 300*time.Millisecond, time.Duration(cfg.OnlineThreshold))
	assert.Equal(t, 800*time.Millisecond, time.Duration(cfg.StandbyThreshold))
	assert.InDelta(t, 0.3, cfg.SmoothingFactor, 0.0001)
	assert.InDelta(t, 0.2, cfg.JitterFraction, 0.0001)
}

func TestConfig_ValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{
			"thresholds out of order",
			func(cfg *Config) {
				cfg.OnlineThreshold = models.Duration(time.Second)
				cfg.StandbyThreshold = models.Duration(500 * time.Millisecond)
			},
		},
		{
			"equal thresholds",
			func(cfg *Config) {
				cfg.OnlineThreshold = models.Duration(500 * time.Millisecond)
				cfg.StandbyThreshold = models.Duration(500 * time.Millisecond)
			},
		},
		{
			"smoothing factor above one",
			func(cfg *Config) { cfg.SmoothingFactor = 1.5 },
		},
		{
			"negative smoothing factor",
			func(cfg *Config) { cfg.SmoothingFactor = -0.2 },
		},
		{
			"jitter fraction of one",
			func(cfg *Config) { cfg.JitterFraction = 1.0 },
		},
		{
			"negative probe interval",
			func(cfg *Config) { cfg.ProbeInterval = models.Duration(-time.Second) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			tt.mutate(cfg)

			assert.ErrorIs(t, cfg.Validate(), errInvalidConfig)
		})
	}
}
