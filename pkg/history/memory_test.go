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

package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sifary/whatstrax/pkg/models"
)

func sampleAt(target string, rtt int64, ts time.Time) *models.PresenceSample {
	return &models.PresenceSample{
		Target:            target,
		Platform:          "whatsapp",
		State:             models.StateOnline,
		RTTMillis:         rtt,
		SmoothedRTTMillis: rtt,
		Timestamp:         ts,
	}
}

func TestMemoryStore_AppendAndPoints(t *testing.T) {
	store := NewMemoryStore(&Config{MaxPerTarget: 10, MaxTargets: 10})
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, "alice", sampleAt("alice", int64(100+i), base.Add(time.Duration(i)*time.Second))))
	}

	points, err := store.Points(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, points, 3)

	// Oldest first.
	assert.Equal(t, int64(100), points[0].RTTMillis)
	assert.Equal(t, int64(102), points[2].RTTMillis)
}

func TestMemoryStore_RingDropsOldestBeyondCap(t *testing.T) {
	store := NewMemoryStore(&Config{MaxPerTarget: 3, MaxTargets: 10})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, "alice", sampleAt("alice", int64(i), time.Now())))
	}

	points, err := store.Points(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, points, 3)

	assert.Equal(t, int64(2), points[0].RTTMillis)
	assert.Equal(t, int64(4), points[2].RTTMillis)
}

func TestMemoryStore_PointsLimitReturnsNewest(t *testing.T) {
	store := NewMemoryStore(&Config{MaxPerTarget: 10, MaxTargets: 10})
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		require.NoError(t, store.Append(ctx, "alice", sampleAt("alice", int64(i), time.Now())))
	}

	points, err := store.Points(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, int64(4), points[0].RTTMillis)
	assert.Equal(t, int64(5), points[1].RTTMillis)
}

func TestMemoryStore_UnknownTarget(t *testing.T) {
	store := NewMemoryStore(&Config{MaxPerTarget: 10, MaxTargets: 10})

	points, err := store.Points(context.Background(), "nobody", 0)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestMemoryStore_EvictsLeastRecentlyWrittenTarget(t *testing.T) {
	store := NewMemoryStore(&Config{MaxPerTarget: 10, MaxTargets: 2})
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "alice", sampleAt("alice", 1, time.Now())))
	require.NoError(t, store.Append(ctx, "bob", sampleAt("bob", 2, time.Now())))

	// Touch alice so bob becomes the eviction candidate.
	require.NoError(t, store.Append(ctx, "alice", sampleAt("alice", 3, time.Now())))
	require.NoError(t, store.Append(ctx, "carol", sampleAt("carol", 4, time.Now())))

	points, err := store.Points(ctx, "bob", 0)
	require.NoError(t, err)
	assert.Empty(t, points, "bob should have been evicted")

	points, err = store.Points(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Len(t, points, 2)
}

func TestNew_SelectsBackend(t *testing.T) {
	cfg := &Config{Backend: "memory"}
	require.NoError(t, cfg.Validate())

	sink, err := New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, sink)

	_, err = New(&Config{Backend: "cassandra"})
	assert.Error(t, err)
}

func TestConfig_ValidateDefaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "memory", cfg.Backend)
	assert.Equal(t, defaultMaxPerTarget, cfg.MaxPerTarget)
	assert.Equal(t, defaultMaxTargets, cfg.MaxTargets)
	assert.Equal(t, defaultQueueSize, cfg.QueueSize)
}

func TestMemoryStore_ManyTargetsStayIsolated(t *testing.T) {
	store := NewMemoryStore(&Config{MaxPerTarget: 4, MaxTargets: 100})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		target := fmt.Sprintf("user-%d", i)
		require.NoError(t, store.Append(ctx, target, sampleAt(target, int64(i), time.Now())))
	}

	for i := 0; i < 10; i++ {
		points, err := store.Points(ctx, fmt.Sprintf("user-%d", i), 0)
		require.NoError(t, err)
		require.Len(t, points, 1)
		assert.Equal(t, int64(i), points[0].RTTMillis)
	}
}
