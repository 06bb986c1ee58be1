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

// Package worker executes pipeline jobs: it drives each evidence file
// through conversion, indexing, detection, and hunting, owns the
// terminal status transitions, and serializes case-scoped bulk
// operations behind the case lock.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/db"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/detect"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/hunt"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/index"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/logger"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/pipeline"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/queue"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/rules"
)

// failureReasonLimit truncates stored failure reasons; the full error is
// in the logs.
const failureReasonLimit = 1024

// fileProcessor converts and indexes one file.
type fileProcessor interface {
	Run(ctx context.Context, file *models.EvidenceFile) (parsed, acknowledged int64, err error)
}

// detector runs rule matching over one file's record stream.
type detector interface {
	Run(ctx context.Context, file *models.EvidenceFile, spoolPath, corpusDir string) (int64, error)
}

// hunter runs indicator hunts.
type hunter interface {
	HuntFile(ctx context.Context, file *models.EvidenceFile) (int64, error)
	RehuntCase(ctx context.Context, caseID int64, includeHidden bool) (int64, error)
}

// enqueuer publishes jobs back onto the queue.
type enqueuer interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

// Service handles queue jobs.
type Service struct {
	store     db.Service
	search    index.Service
	processor fileProcessor
	detector  detector
	hunter    hunter
	queue     enqueuer
	cfg       *Config
	corpusDir string
	metrics   *Metrics
	logger    logger.Logger
}

// New wires the pipeline stages and builds the active rule corpus.
func New(ctx context.Context, store db.Service, search index.Service, q enqueuer, cfg *Config, metrics *Metrics, log logger.Logger) (*Service, error) {
	builder := rules.NewBuilder(cfg.Detection.CorpusRoot, log)

	manifest, err := builder.Build(ctx, cfg.Detection.RuleSources)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule corpus: %w", err)
	}

	adapter, err := detect.NewAdapter(store, search, &cfg.Detection, log)
	if err != nil {
		return nil, err
	}

	return &Service{
		store:     store,
		search:    search,
		processor: pipeline.NewProcessor(store, search, &cfg.Pipeline, log),
		detector:  adapter,
		hunter:    hunt.NewHunter(store, search, &cfg.Hunting, log),
		queue:     q,
		cfg:       cfg,
		corpusDir: builder.CorpusDir(manifest.Version),
		metrics:   metrics,
		logger:    log.WithComponent("worker"),
	}, nil
}

// Handle processes one job. Implements the queue handler contract.
func (s *Service) Handle(ctx context.Context, job *models.Job) error {
	var err error

	if job.Operation.CaseScoped() {
		err = s.handleCaseJob(ctx, job)
	} else {
		err = s.handleFileJob(ctx, job)
	}

	outcome := outcomeOK

	switch {
	case errors.Is(err, queue.ErrRetryLater):
		outcome = outcomeYielded
	case err != nil:
		outcome = outcomeFailed
	}

	s.metrics.JobsTotal.WithLabelValues(string(job.Operation), outcome).Inc()

	return err
}

func (s *Service) handleFileJob(ctx context.Context, job *models.Job) error {
	file, err := s.store.GetFile(ctx, job.FileID)
	if errors.Is(err, db.ErrNotFound) {
		// The file was deleted after enqueue; nothing to redeliver for.
		s.logger.Warn().Str("file_id", job.FileID.String()).Msg("Job references missing file")
		return nil
	}

	if err != nil {
		return err
	}

	switch job.Operation {
	case models.OperationFull:
		return s.runFull(ctx, file)
	case models.OperationDetectOnly:
		return s.runDetectOnly(ctx, file)
	case models.OperationHuntOnly:
		return s.runHuntOnly(ctx, file)
	default:
		return fmt.Errorf("unknown file operation %q", job.Operation)
	}
}

func (s *Service) runFull(ctx context.Context, file *models.EvidenceFile) error {
	start := time.Now()

	parsed, acknowledged, err := s.processor.Run(ctx, file)

	s.metrics.StageDuration.WithLabelValues("index").Observe(time.Since(start).Seconds())

	if err != nil {
		return s.fail(ctx, file, err)
	}

	s.metrics.RecordsIndexed.Add(float64(acknowledged))

	if parsed == 0 {
		// Nothing indexed, nothing to detect or hunt.
		return s.complete(ctx, file)
	}

	detectErr := s.detectStage(ctx, file)
	if detectErr != nil && s.cfg.Detection.HaltHuntOnDetectFailure {
		return s.fail(ctx, file, detectErr)
	}

	if err := s.huntStage(ctx, file); err != nil {
		return s.fail(ctx, file, err)
	}

	if detectErr != nil {
		// Hunt results were written and stay valid; the file still
		// fails so the detection gap is visible and retryable.
		return s.fail(ctx, file, detectErr)
	}

	return s.complete(ctx, file)
}

func (s *Service) runDetectOnly(ctx context.Context, file *models.EvidenceFile) error {
	if err := s.detectStage(ctx, file); err != nil {
		return s.fail(ctx, file, err)
	}

	return s.complete(ctx, file)
}

func (s *Service) runHuntOnly(ctx context.Context, file *models.EvidenceFile) error {
	if err := s.huntStage(ctx, file); err != nil {
		return s.fail(ctx, file, err)
	}

	return s.complete(ctx, file)
}

func (s *Service) detectStage(ctx context.Context, file *models.EvidenceFile) error {
	if err := s.store.UpdateFileStatus(ctx, file.ID, models.FileStatusDetecting, ""); err != nil {
		return err
	}

	start := time.Now()
	spoolPath := pipeline.SpoolPath(s.cfg.Pipeline.SpoolDir, file.ID)

	violations, err := s.detector.Run(ctx, file, spoolPath, s.corpusDir)

	s.metrics.StageDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}

	s.metrics.ViolationsRecorded.Add(float64(violations))

	return nil
}

func (s *Service) huntStage(ctx context.Context, file *models.EvidenceFile) error {
	if err := s.store.UpdateFileStatus(ctx, file.ID, models.FileStatusHunting, ""); err != nil {
		return err
	}

	start := time.Now()

	matches, err := s.hunter.HuntFile(ctx, file)

	s.metrics.StageDuration.WithLabelValues("hunt").Observe(time.Since(start).Seconds())

	if err != nil {
		return fmt.Errorf("hunting failed: %w", err)
	}

	s.metrics.IOCMatches.Add(float64(matches))

	return nil
}

func (s *Service) complete(ctx context.Context, file *models.EvidenceFile) error {
	if err := s.store.UpdateFileStatus(ctx, file.ID, models.FileStatusCompleted, ""); err != nil {
		return err
	}

	if err := s.store.RefreshCaseAggregates(ctx, file.CaseID); err != nil {
		return err
	}

	s.logger.Info().
		Str("file_id", file.ID.String()).
		Str("filename", file.Filename).
		Msg("File completed")

	return nil
}

// fail records the terminal failure and returns the original error so
// the queue's redelivery policy still applies.
func (s *Service) fail(ctx context.Context, file *models.EvidenceFile, cause error) error {
	reason := cause.Error()
	if len(reason) > failureReasonLimit {
		reason = reason[:failureReasonLimit]
	}

	if err := s.store.UpdateFileStatus(ctx, file.ID, models.FileStatusFailed, reason); err != nil {
		s.logger.Error().Err(err).Str("file_id", file.ID.String()).Msg("Failed to record failure status")
	}

	if err := s.store.RefreshCaseAggregates(ctx, file.CaseID); err != nil {
		s.logger.Error().Err(err).Int64("case_id", file.CaseID).Msg("Failed to refresh case aggregates")
	}

	s.logger.Error().Err(cause).
		Str("file_id", file.ID.String()).
		Str("filename", file.Filename).
		Msg("File failed")

	return cause
}
