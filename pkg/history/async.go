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

	"github.com/sifary/whatstrax/pkg/logger"
	"github.com/sifary/whatstrax/pkg/models"
)

// Async decouples persistence from the probe path: samples are enqueued on a
// bounded channel and written by a background worker. When the queue is full
// the sample is dropped and logged; slow storage degrades durability, never
// probing latency.
type Async struct {
	sink   Sink
	queue  chan *models.PresenceSample
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger logger.Logger
}

// NewAsync wraps a sink with a bounded write queue and starts the worker.
func NewAsync(sink Sink, queueSize int, log logger.Logger) *Async {
	a := &Async{
		sink:   sink,
		queue:  make(chan *models.PresenceSample, queueSize),
		done:   make(chan struct{}),
		logger: log,
	}

	a.wg.Add(1)
	go a.worker()

	return a
}

// ConsumeSample implements tracker.SampleConsumer. It never blocks.
func (a *Async) ConsumeSample(sample *models.PresenceSample) {
	select {
	case a.queue <- sample:
	default:
		a.logger.Warn().
			Str("target", sample.Target).
			Msg("History queue full, dropping sample")
	}
}

func (a *Async) worker() {
	defer a.wg.Done()

	for {
		select {
		case sample := <-a.queue:
			a.write(sample)
		case <-a.done:
			// Drain what is already queued, then exit.
			for {
				select {
				case sample := <-a.queue:
					a.write(sample)
				default:
					return
				}
			}
		}
	}
}

func (a *Async) write(sample *models.PresenceSample) {
	if err := a.sink.Append(context.Background(), sample.Target, sample); err != nil {
		a.logger.Error().
			Err(err).
			Str("target", sample.Target).
			Msg("Failed to append history sample")
	}
}

// Points delegates to the underlying sink.
func (a *Async) Points(ctx context.Context, target string, limit int) ([]models.PresenceSample, error) {
	return a.sink.Points(ctx, target, limit)
}

// Close stops the worker after draining the queue and closes the sink.
func (a *Async) Close() error {
	a.once.Do(func() {
		close(a.done)
	})

	a.wg.Wait()

	return a.sink.Close()
}
