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

// Package lifecycle runs a set of services until shutdown is requested.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sifary/whatstrax/pkg/logger"
)

const stopTimeout = 10 * time.Second

// Service is a startable/stoppable component of the host process.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Run starts the services in order and blocks until ctx is done or a
// SIGINT/SIGTERM arrives, then stops them in reverse order.
func Run(ctx context.Context, log logger.Logger, services ...Service) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := make([]Service, 0, len(services))

	for _, svc := range services {
		if err := svc.Start(ctx); err != nil {
			stopAll(log, started)
			return fmt.Errorf("failed to start service: %w", err)
		}

		started = append(started, svc)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case <-ctx.Done():
	}

	stopAll(log, started)

	return nil
}

func stopAll(log logger.Logger, started []Service) {
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	for i := len(started) - 1; i >= 0; i-- {
		if err := started[i].Stop(stopCtx); err != nil {
			log.Error().Err(err).Msg("Error stopping service")
		}
	}
}
