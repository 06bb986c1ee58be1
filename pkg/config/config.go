/*
 * Copyright 2025 Carver Automation Corporation.
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

// Package config loads service configuration from a JSON file with
// environment-variable overrides.
package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/logger"
)

var errInvalidConfigPtr = errors.New("config must be a non-nil pointer")

// ConfigLoader defines how raw configuration bytes reach a destination
// struct.
type ConfigLoader interface {
	Load(ctx context.Context, path string, dst interface{}) error
}

// Validator is implemented by config structs that can check themselves
// after loading.
type Validator interface {
	Validate() error
}

// Defaulter is implemented by config structs that fill zero-valued
// fields after loading.
type Defaulter interface {
	SetDefaults()
}

// Config holds the configuration loading dependencies.
type Config struct {
	loader ConfigLoader
	logger logger.Logger
}

// NewConfig initializes a Config with a file loader followed by an
// environment overlay.
func NewConfig(log logger.Logger) *Config {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Config{
		loader: &FileConfigLoader{},
		logger: log,
	}
}

// LoadAndValidate reads the file at path into dst, applies environment
// overrides, fills defaults, and validates.
func (c *Config) LoadAndValidate(ctx context.Context, path string, dst interface{}) error {
	if dst == nil {
		return errInvalidConfigPtr
	}

	if err := c.loader.Load(ctx, path, dst); err != nil {
		return err
	}

	env := &EnvConfigLoader{prefix: "CASESCOPE_"}
	if err := env.Load(ctx, "", dst); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if d, ok := dst.(Defaulter); ok {
		d.SetDefaults()
	}

	if v, ok := dst.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("invalid configuration in %s: %w", path, err)
		}
	}

	c.logger.Debug().Str("path", path).Msg("Configuration loaded")

	return nil
}
