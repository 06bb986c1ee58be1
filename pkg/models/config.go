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

package models

import (
	"errors"
	"time"
)

var (
	ErrDatabaseHostRequired = errors.New("database host is required")
	ErrSearchAddrRequired   = errors.New("at least one search address is required")
	ErrQueueURLRequired     = errors.New("queue url is required")
)

// DatabaseConfig configures the Postgres metadata store connection.
type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Database        string        `json:"database"`
	Username        string        `json:"username"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxConnections  int32         `json:"max_connections"`
	MinConnections  int32         `json:"min_connections"`
	MaxConnLifetime time.Duration `json:"max_conn_lifetime"`
	ApplicationName string        `json:"application_name"`
}

// SearchConfig configures the Elasticsearch client.
type SearchConfig struct {
	Addresses []string `json:"addresses"`
	Username  string   `json:"username"`
	Password  string   `json:"password"`
	// IndexShards/IndexReplicas apply at per-case index creation.
	IndexShards   int `json:"index_shards"`
	IndexReplicas int `json:"index_replicas"`
	// ScrollKeepAlive bounds how long a scroll context may sit idle
	// between pages.
	ScrollKeepAlive time.Duration `json:"scroll_keep_alive"`
}

// QueueConfig configures the NATS JetStream task queue.
type QueueConfig struct {
	URL          string        `json:"url"`
	StreamName   string        `json:"stream_name"`
	ConsumerName string        `json:"consumer_name"`
	AckWait      time.Duration `json:"ack_wait"`
	MaxDeliver   int           `json:"max_deliver"`
}

// PipelineConfig configures conversion and indexing.
type PipelineConfig struct {
	// ConverterCommand is the external binary that turns a binary event
	// log into line-delimited JSON on stdout, e.g. "evtx_dump".
	ConverterCommand string        `json:"converter_command"`
	ConverterArgs    []string      `json:"converter_args"`
	SpoolDir         string        `json:"spool_dir"`
	BatchSize        int           `json:"batch_size"`
	ConvertTimeout   time.Duration `json:"convert_timeout"`
}

// DetectionConfig configures the external rule-matching engine.
type DetectionConfig struct {
	EngineCommand string        `json:"engine_command"`
	EngineArgs    []string      `json:"engine_args"`
	CorpusRoot    string        `json:"corpus_root"`
	// RuleSources are the upstream rule collection directories merged
	// into the active corpus at startup.
	RuleSources []string      `json:"rule_sources"`
	Timeout     time.Duration `json:"timeout"`
	// HaltHuntOnDetectFailure skips the hunt stage when detection failed
	// for the file. Off by default: hunting reads only indexed records,
	// so matches remain valid regardless of the detection outcome.
	HaltHuntOnDetectFailure bool `json:"halt_hunt_on_detect_failure"`
}

// HuntingConfig configures indicator hunting.
type HuntingConfig struct {
	ScrollBatchSize int `json:"scroll_batch_size"`
	// NarrowFieldTypes lists indicator types hunted with an explicit
	// multi-field query instead of unrestricted containment search.
	// Opt-in only; unrestricted search is the default for every type.
	NarrowFieldTypes []IndicatorType `json:"narrow_field_types"`
}

// WorkerConfig configures the worker pool and reconciliation sweep.
type WorkerConfig struct {
	Concurrency   int           `json:"concurrency"`
	SweepInterval time.Duration `json:"sweep_interval"`
	LeaseHorizon  time.Duration `json:"lease_horizon"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `json:"enabled"`
	ListenAddr string `json:"listen_addr"`
}
