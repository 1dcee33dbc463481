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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sifary/whatstrax/pkg/models"
)

func newTestSqliteStore(t *testing.T, maxPerTarget int) *SqliteStore {
	t.Helper()

	store, err := NewSqliteStore(&Config{
		Path:         filepath.Join(t.TempDir(), "history.db"),
		MaxPerTarget: maxPerTarget,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestSqliteStore_RoundTrip(t *testing.T) {
	store := newTestSqliteStore(t, 100)
	ctx := context.Background()

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	in := &models.PresenceSample{
		Target:            "alice",
		Platform:          "whatsapp",
		State:             models.StateStandby,
		RTTMillis:         512,
		SmoothedRTTMillis: 480,
		Timeout:           false,
		Timestamp:         ts,
	}
	require.NoError(t, store.Append(ctx, "alice", in))

	points, err := store.Points(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, points, 1)

	got := points[0]
	assert.Equal(t, "alice", got.Target)
	assert.Equal(t, "whatsapp", got.Platform)
	assert.Equal(t, models.StateStandby, got.State)
	assert.Equal(t, int64(512), got.RTTMillis)
	assert.Equal(t, int64(480), got.SmoothedRTTMillis)
	assert.False(t, got.Timeout)
	assert.True(t, got.Timestamp.Equal(ts))
}

func TestSqliteStore_TimeoutFlagSurvives(t *testing.T) {
	store := newTestSqliteStore(t, 100)
	ctx := context.Background()

	sample := sampleAt("alice", 0, time.Now())
	sample.State = models.StateOffline
	sample.Timeout = true
	require.NoError(t, store.Append(ctx, "alice", sample))

	points, err := store.Points(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.True(t, points[0].Timeout)
	assert.Equal(t, models.StateOffline, points[0].State)
}

func TestSqliteStore_PrunesBeyondCap(t *testing.T) {
	store := newTestSqliteStore(t, 3)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		require.NoError(t, store.Append(ctx, "alice", sampleAt("alice", int64(i), time.Now())))
	}

	points, err := store.Points(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, points, 3)

	assert.Equal(t, int64(3), points[0].RTTMillis)
	assert.Equal(t, int64(5), points[2].RTTMillis)
}

func TestSqliteStore_TargetsAreIndependent(t *testing.T) {
	store := newTestSqliteStore(t, 2)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, store.Append(ctx, "alice", sampleAt("alice", int64(i), time.Now())))
	}

	require.NoError(t, store.Append(ctx, "bob", sampleAt("bob", 99, time.Now())))

	points, err := store.Points(ctx, "bob", 0)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, int64(99), points[0].RTTMillis)
}

func TestSqliteStore_LimitReturnsNewestOldestFirst(t *testing.T) {
	store := newTestSqliteStore(t, 100)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, "alice", sampleAt("alice", int64(i), time.Now())))
	}

	points, err := store.Points(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, int64(3), points[0].RTTMillis)
	assert.Equal(t, int64(4), points[1].RTTMillis)
}
