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

package worker

import (
	"time"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/logger"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
)

// Config is the evidence worker daemon configuration.
type Config struct {
	Database  models.DatabaseConfig  `json:"database"`
	Search    models.SearchConfig    `json:"search"`
	Queue     models.QueueConfig     `json:"queue"`
	Pipeline  models.PipelineConfig  `json:"pipeline"`
	Detection models.DetectionConfig `json:"detection"`
	Hunting   models.HuntingConfig   `json:"hunting"`
	Worker    models.WorkerConfig    `json:"worker"`
	Metrics   models.MetricsConfig   `json:"metrics"`
	Logging   *logger.Config         `json:"logging,omitempty"`
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return models.ErrDatabaseHostRequired
	}

	if len(c.Search.Addresses) == 0 {
		return models.ErrSearchAddrRequired
	}

	if c.Queue.URL == "" {
		return models.ErrQueueURLRequired
	}

	return nil
}

// SetDefaults implements config.Defaulter.
func (c *Config) SetDefaults() {
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 4
	}

	if c.Worker.SweepInterval <= 0 {
		c.Worker.SweepInterval = 5 * time.Minute
	}

	if c.Worker.LeaseHorizon <= 0 {
		// Longer than any plausible conversion of a large event log.
		c.Worker.LeaseHorizon = 2 * time.Hour
	}

	if c.Pipeline.SpoolDir == "" {
		c.Pipeline.SpoolDir = "/var/lib/casescope/spool"
	}

	if c.Detection.CorpusRoot == "" {
		c.Detection.CorpusRoot = "/var/lib/casescope/rules"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9155"
	}
}
