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

// Package config loads and validates JSON configuration files.
package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/sifary/whatstrax/pkg/logger"
)

var (
	errLoadConfigFailed = errors.New("failed to load configuration")
	errInvalidConfig    = errors.New("invalid configuration")
)

// Validator is implemented by config structs that can check themselves.
type Validator interface {
	Validate() error
}

// Loader resolves a configuration destination from a source path.
type Loader interface {
	Load(ctx context.Context, path string, dst interface{}) error
}

// Config holds the configuration loading dependencies.
type Config struct {
	loader Loader
	logger logger.Logger
}

// NewConfig initializes a Config with a default file loader. A nil logger is
// replaced with a no-op logger.
func NewConfig(log logger.Logger) *Config {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Config{
		loader: &FileLoader{},
		logger: log,
	}
}

// LoadAndValidate loads configuration from path into dst, applies
// environment overrides, and runs dst's Validate hook when present.
func (c *Config) LoadAndValidate(ctx context.Context, path string, dst interface{}) error {
	if err := c.loader.Load(ctx, path, dst); err != nil {
		return fmt.Errorf("%w: %w", errLoadConfigFailed, err)
	}

	applyEnvOverrides(dst, c.logger)

	if v, ok := dst.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: %w", errInvalidConfig, err)
		}
	}

	return nil
}
