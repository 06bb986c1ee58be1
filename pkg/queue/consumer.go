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

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/logger"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
)

const (
	fetchBatchSize = 16
	fetchMaxWait   = 10 * time.Second
	// retryLaterDelay spaces out redeliveries for jobs that yielded to a
	// case lock instead of failing.
	retryLaterDelay = 15 * time.Second
)

// ErrRetryLater signals a job that cannot run right now but is not
// broken: it is redelivered after a delay without burning a delivery
// attempt's worth of backoff.
var ErrRetryLater = errors.New("job must be retried later")

// Handler processes one decoded job. Returning nil acknowledges the
// message; ErrRetryLater delays redelivery; any other error triggers
// normal redelivery up to the consumer's MaxDeliver.
type Handler interface {
	Handle(ctx context.Context, job *models.Job) error
}

// Consumer is a durable JetStream pull consumer over the job stream.
type Consumer struct {
	consumer jetstream.Consumer
	cfg      *models.QueueConfig
	handler  Handler
	logger   logger.Logger
}

// NewConsumer creates or retrieves the durable pull consumer.
func (q *Queue) NewConsumer(ctx context.Context, handler Handler) (*Consumer, error) {
	consumer, err := q.js.Consumer(ctx, q.cfg.StreamName, q.cfg.ConsumerName)
	if err != nil {
		consumer, err = q.js.CreateConsumer(ctx, q.cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       q.cfg.ConsumerName,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       q.cfg.AckWait,
			MaxDeliver:    q.cfg.MaxDeliver,
			MaxAckPending: maxAckPending,
			FilterSubject: subjectPrefix + ".>",
		})
		if err != nil {
			return nil, err
		}
	}

	return &Consumer{
		consumer: consumer,
		cfg:      q.cfg,
		handler:  handler,
		logger:   q.logger.WithComponent("queue"),
	}, nil
}

// Run fetches and processes messages until the context is canceled.
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := c.consumer.Fetch(fetchBatchSize, jetstream.FetchMaxWait(fetchMaxWait))
		if err != nil {
			c.logger.Error().Err(err).Msg("Failed to fetch jobs")
			time.Sleep(time.Second)

			continue
		}

		for msg := range msgs.Messages() {
			c.handleMessage(ctx, msg)
		}

		if err := msgs.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			c.logger.Debug().Err(err).Msg("Fetch ended with error")
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg jetstream.Msg) {
	var job models.Job

	if err := json.Unmarshal(msg.Data(), &job); err != nil {
		// Redelivering a malformed payload can never succeed.
		c.logger.Error().Err(err).Str("subject", msg.Subject()).Msg("Dropping undecodable job")

		_ = msg.Term()

		return
	}

	done := make(chan struct{})
	defer close(done)

	// Long conversions and case-wide hunts outlast AckWait; the
	// heartbeat keeps the delivery alive while the handler works.
	go c.heartbeat(msg, done)

	err := c.handler.Handle(ctx, &job)

	switch {
	case err == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			c.logger.Error().Err(ackErr).Str("job_id", job.ID.String()).Msg("Failed to ack job")
		}
	case errors.Is(err, ErrRetryLater):
		c.logger.Info().
			Str("job_id", job.ID.String()).
			Str("operation", string(job.Operation)).
			Msg("Job yielded, redelivering later")

		_ = msg.NakWithDelay(retryLaterDelay)
	default:
		meta, metaErr := msg.Metadata()
		if metaErr == nil && meta.NumDelivered >= uint64(c.cfg.MaxDeliver) {
			c.logger.Error().Err(err).
				Str("job_id", job.ID.String()).
				Uint64("deliveries", meta.NumDelivered).
				Msg("Job exhausted deliveries")
		} else {
			c.logger.Warn().Err(err).
				Str("job_id", job.ID.String()).
				Msg("Job failed, redelivering")
		}

		_ = msg.Nak()
	}
}

func (c *Consumer) heartbeat(msg jetstream.Msg, done <-chan struct{}) {
	interval := c.cfg.AckWait / 2
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := msg.InProgress(); err != nil {
				return
			}
		}
	}
}
