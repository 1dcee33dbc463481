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

package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/sifary/whatstrax/pkg/api"
	"github.com/sifary/whatstrax/pkg/config"
	"github.com/sifary/whatstrax/pkg/history"
	"github.com/sifary/whatstrax/pkg/lifecycle"
	"github.com/sifary/whatstrax/pkg/logger"
	"github.com/sifary/whatstrax/pkg/notify"
	"github.com/sifary/whatstrax/pkg/tracker"
	"github.com/sifary/whatstrax/pkg/transport/pushack"
	"github.com/sifary/whatstrax/pkg/transport/reqresp"
	"github.com/sifary/whatstrax/pkg/version"
)

var errFailedToLoadConfig = fmt.Errorf("failed to load config")

// appConfig is the trackerd process configuration: the engine knobs plus the
// host surfaces around it.
type appConfig struct {
	tracker.Config

	ListenAddr string                `json:"listen_addr"`
	History    *history.Config       `json:"history,omitempty"`
	Stream     *pushack.Config       `json:"stream,omitempty"`
	Socket     *reqresp.SocketConfig `json:"socket,omitempty"`
	Events     *notify.Config        `json:"events,omitempty"`
}

func (c *appConfig) Validate() error {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8090"
	}

	if c.History != nil {
		if err := c.History.Validate(); err != nil {
			return err
		}
	}

	return c.Config.Validate()
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/whatstrax/trackerd.json", "Path to trackerd config file")
	flag.Parse()

	ctx := context.Background()

	cfgLoader := config.NewConfig(nil)

	var cfg appConfig

	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = &logger.Config{Level: "info", Output: "stdout"}
	}

	trackerLogger, err := logger.NewWithComponent(logConfig, "trackerd")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	trackerLogger.Info().
		Str("version", version.GetFullVersion()).
		Msg("Starting trackerd")

	engine := tracker.New(&cfg.Config, nil, trackerLogger)

	var sink *history.Async

	if cfg.History != nil {
		backend, err := history.New(cfg.History)
		if err != nil {
			return err
		}

		sink = history.NewAsync(backend, cfg.History.QueueSize, trackerLogger)
		defer func() {
			if err := sink.Close(); err != nil {
				trackerLogger.Error().Err(err).Msg("Error closing history sink")
			}
		}()

		engine.AddSampleConsumer(sink)
	}

	if cfg.Stream != nil {
		bridge, err := pushack.NewBridge(cfg.Stream, tracker.RealClock(), engine, trackerLogger)
		if err != nil {
			return fmt.Errorf("failed to connect push-ack transport: %w", err)
		}
		defer func() { _ = bridge.Close() }()

		engine.RegisterAdapter(cfg.Stream.Platform, bridge.Adapter())

		if cfg.Events != nil {
			publisher, err := notify.NewPublisher(ctx, bridge.Conn(), cfg.Events, trackerLogger)
			if err != nil {
				return fmt.Errorf("failed to create event publisher: %w", err)
			}

			engine.AddEventConsumer(publisher)
		}
	}

	if cfg.Socket != nil {
		socket, err := reqresp.Dial(*cfg.Socket, engine, trackerLogger)
		if err != nil {
			return fmt.Errorf("failed to connect request transport: %w", err)
		}
		defer func() { _ = socket.Close() }()

		engine.RegisterAdapter(cfg.Socket.Platform, reqresp.New(socket, tracker.RealClock(), trackerLogger))
	}

	var reader api.HistoryReader
	if sink != nil {
		reader = sink
	}

	server := api.NewServer(cfg.ListenAddr, engine, reader, trackerLogger)
	engine.AddSampleConsumer(server.Hub())

	return lifecycle.Run(ctx, trackerLogger, engine, server)
}
