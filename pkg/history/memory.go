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

// Package history stores bounded per-target presence sample history.
package history

import (
	"container/list"
	"context"
	"sync"

	"github.com/sifary/whatstrax/pkg/models"
)

// MemoryStore keeps a fixed-size ring of samples per target with LRU
// eviction across targets once the target cap is reached.
type MemoryStore struct {
	mu           sync.RWMutex
	targets      map[string]*ring
	evictList    *list.List
	evictMap     map[string]*list.Element
	maxTargets   int
	maxPerTarget int
}

type ring struct {
	points []models.PresenceSample
	head   int
	filled bool
}

func newRing(capacity int) *ring {
	return &ring{points: make([]models.PresenceSample, capacity)}
}

func (r *ring) add(sample models.PresenceSample) {
	r.points[r.head] = sample
	r.head = (r.head + 1) % len(r.points)

	if r.head == 0 {
		r.filled = true
	}
}

// snapshot returns points oldest first.
func (r *ring) snapshot() []models.PresenceSample {
	if !r.filled {
		out := make([]models.PresenceSample, r.head)
		copy(out, r.points[:r.head])

		return out
	}

	out := make([]models.PresenceSample, 0, len(r.points))
	out = append(out, r.points[r.head:]...)
	out = append(out, r.points[:r.head]...)

	return out
}

var _ Sink = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory history sink.
func NewMemoryStore(cfg *Config) *MemoryStore {
	return &MemoryStore{
		targets:      make(map[string]*ring),
		evictList:    list.New(),
		evictMap:     make(map[string]*list.Element),
		maxTargets:   cfg.MaxTargets,
		maxPerTarget: cfg.MaxPerTarget,
	}
}

// Append implements Sink.
func (m *MemoryStore) Append(_ context.Context, target string, sample *models.PresenceSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if element, ok := m.evictMap[target]; ok {
		m.evictList.MoveToFront(element)
	} else {
		if len(m.targets) >= m.maxTargets {
			m.evictOldest()
		}

		m.evictMap[target] = m.evictList.PushFront(target)
		m.targets[target] = newRing(m.maxPerTarget)
	}

	m.targets[target].add(*sample)

	return nil
}

// evictOldest removes the least recently written target. Caller holds mu.
func (m *MemoryStore) evictOldest() {
	element := m.evictList.Back()
	if element == nil {
		return
	}

	target := element.Value.(string)
	m.evictList.Remove(element)
	delete(m.evictMap, target)
	delete(m.targets, target)
}

// Points implements Sink, returning up to limit newest samples, oldest
// first. A non-positive limit returns everything retained.
func (m *MemoryStore) Points(_ context.Context, target string, limit int) ([]models.PresenceSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.targets[target]
	if !ok {
		return nil, nil
	}

	points := r.snapshot()

	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}

	return points, nil
}

// Close implements Sink.
func (*MemoryStore) Close() error { return nil }
