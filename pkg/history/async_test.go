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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sifary/whatstrax/pkg/logger"
	"github.com/sifary/whatstrax/pkg/models"
)

// blockingSink stalls Append until released, to exercise the bounded queue.
type blockingSink struct {
	mu       sync.Mutex
	appended []models.PresenceSample
	release  chan struct{}
}

func (s *blockingSink) Append(_ context.Context, _ string, sample *models.PresenceSample) error {
	if s.release != nil {
		<-s.release
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.appended = append(s.appended, *sample)

	return nil
}

func (s *blockingSink) Points(context.Context, string, int) ([]models.PresenceSample, error) {
	return nil, nil
}

func (*blockingSink) Close() error { return nil }

func (s *blockingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.appended)
}

func TestAsync_WritesThroughToSink(t *testing.T) {
	sink := &blockingSink{}
	async := NewAsync(sink, 16, logger.NewTestLogger())

	async.ConsumeSample(sampleAt("alice", 100, time.Now()))
	async.ConsumeSample(sampleAt("alice", 110, time.Now()))

	require.NoError(t, async.Close())
	assert.Equal(t, 2, sink.count())
}

func TestAsync_ConsumeSampleNeverBlocks(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	async := NewAsync(sink, 2, logger.NewTestLogger())

	done := make(chan struct{})

	go func() {
		defer close(done)

		// Far more samples than queue capacity while the sink is stalled.
		for i := 0; i < 50; i++ {
			async.ConsumeSample(sampleAt("alice", int64(i), time.Now()))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ConsumeSample blocked on a full queue")
	}

	close(sink.release)
	require.NoError(t, async.Close())

	// Overflow was dropped, not queued.
	assert.LessOrEqual(t, sink.count(), 4)
}

func TestAsync_CloseDrainsQueue(t *testing.T) {
	sink := &blockingSink{}
	async := NewAsync(sink, 64, logger.NewTestLogger())

	for i := 0; i < 20; i++ {
		async.ConsumeSample(sampleAt("alice", int64(i), time.Now()))
	}

	require.NoError(t, async.Close())
	assert.Equal(t, 20, sink.count())
}

func TestAsync_CloseIsIdempotent(t *testing.T) {
	async := NewAsync(&blockingSink{}, 4, logger.NewTestLogger())

	require.NoError(t, async.Close())
	require.NoError(t, async.Close())
}

func TestAsync_PointsDelegates(t *testing.T) {
	store := NewMemoryStore(&Config{MaxPerTarget: 10, MaxTargets: 10})
	async := NewAsync(store, 16, logger.NewTestLogger())

	async.ConsumeSample(sampleAt("alice", 42, time.Now()))

	// Wait for the worker to flush before reading.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		points, err := async.Points(context.Background(), "alice", 0)
		require.NoError(t, err)

		if len(points) == 1 {
			assert.Equal(t, int64(42), points[0].RTTMillis)
			require.NoError(t, async.Close())

			return
		}

		time.Sleep(2 * time.Millisecond)
	}

	t.Fatal("sample never reached the sink")
}
