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

// Package queue carries pipeline jobs over NATS JetStream. Delivery is
// at-least-once with explicit acknowledgement: a worker crash mid-job
// redelivers the job rather than losing it.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/logger"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
)

const (
	defaultStreamName   = "EVIDENCE_JOBS"
	defaultConsumerName = "evidence-worker"
	defaultAckWait      = 5 * time.Minute
	defaultMaxDeliver   = 3
	maxAckPending       = 256
	subjectPrefix       = "evidence.jobs"
)

// Queue owns the NATS connection, stream, and publish side. Consumers
// are created per worker pool from the same Queue.
type Queue struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	cfg    *models.QueueConfig
	logger logger.Logger
}

// New connects to NATS and ensures the job stream exists.
func New(ctx context.Context, cfg *models.QueueConfig, log logger.Logger) (*Queue, error) {
	if cfg.URL == "" {
		return nil, models.ErrQueueURLRequired
	}

	applyDefaults(cfg)

	nc, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to queue: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open jetstream: %w", err)
	}

	q := &Queue{nc: nc, js: js, cfg: cfg, logger: log}

	if err := q.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}

	log.Info().Str("url", cfg.URL).Str("stream", cfg.StreamName).Msg("Connected to job queue")

	return q, nil
}

func applyDefaults(cfg *models.QueueConfig) {
	if cfg.StreamName == "" {
		cfg.StreamName = defaultStreamName
	}

	if cfg.ConsumerName == "" {
		cfg.ConsumerName = defaultConsumerName
	}

	if cfg.AckWait <= 0 {
		cfg.AckWait = defaultAckWait
	}

	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = defaultMaxDeliver
	}
}

func (q *Queue) ensureStream(ctx context.Context) error {
	_, err := q.js.Stream(ctx, q.cfg.StreamName)
	if err == nil {
		return nil
	}

	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", q.cfg.StreamName, err)
	}

	_, err = q.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      q.cfg.StreamName,
		Subjects:  []string{subjectPrefix + ".>"},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", q.cfg.StreamName, err)
	}

	return nil
}

// Subject returns the publish subject for an operation.
func Subject(op models.Operation) string {
	return fmt.Sprintf("%s.%s", subjectPrefix, op)
}

// Enqueue publishes one job.
func (q *Queue) Enqueue(ctx context.Context, job *models.Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	// The job id doubles as the message id so a staging retry cannot
	// enqueue the same job twice.
	_, err = q.js.Publish(ctx, Subject(job.Operation), data, jetstream.WithMsgID(job.ID.String()))
	if err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}

	q.logger.Debug().
		Str("job_id", job.ID.String()).
		Str("operation", string(job.Operation)).
		Int64("case_id", job.CaseID).
		Msg("Job enqueued")

	return nil
}

// Close drains the connection.
func (q *Queue) Close() {
	if q.nc != nil {
		q.nc.Close()
	}
}
