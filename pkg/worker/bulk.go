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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/db"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/index"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/queue"
)

// handleCaseJob runs a case-scoped bulk operation: clear the derived
// state the operation invalidates, then fan per-file jobs back onto the
// queue. The whole job runs under the case's advisory lock, and a
// second bulk operation yields until the first one's per-file jobs have
// all reached a terminal status.
func (s *Service) handleCaseJob(ctx context.Context, job *models.Job) error {
	unlock, err := s.store.AcquireCaseLock(ctx, job.CaseID)
	if errors.Is(err, db.ErrCaseLocked) {
		return fmt.Errorf("case %d: %w", job.CaseID, queue.ErrRetryLater)
	}

	if err != nil {
		return err
	}

	defer func() {
		if err := unlock(ctx); err != nil {
			s.logger.Error().Err(err).Int64("case_id", job.CaseID).Msg("Failed to release case lock")
		}
	}()

	pending, err := s.store.CountNonTerminalFiles(ctx, job.CaseID)
	if err != nil {
		return err
	}

	if pending > 0 {
		return fmt.Errorf("case %d has %d files in flight: %w", job.CaseID, pending, queue.ErrRetryLater)
	}

	files, err := s.store.ListCaseFiles(ctx, job.CaseID, true)
	if err != nil {
		return err
	}

	eligible := s.eligibleFiles(job, files)

	switch job.Operation {
	case models.OperationReindexCase:
		err = s.reindexCase(ctx, job, eligible)
	case models.OperationDetectCase:
		err = s.redetectCase(ctx, job, eligible)
	case models.OperationHuntCase:
		err = s.rehuntCase(ctx, job, eligible)
	default:
		err = fmt.Errorf("unknown case operation %q", job.Operation)
	}

	if err != nil {
		return err
	}

	if err := s.store.RefreshCaseAggregates(ctx, job.CaseID); err != nil {
		return err
	}

	s.logger.Info().
		Int64("case_id", job.CaseID).
		Str("operation", string(job.Operation)).
		Int("files", len(eligible)).
		Msg("Case operation applied")

	return nil
}

// eligibleFiles filters a case's files for a bulk operation. Hidden
// files are skipped unless requested. A full reindex additionally picks
// up failed files regardless of visibility: re-running the pipeline is
// the recovery path for them.
func (s *Service) eligibleFiles(job *models.Job, files []*models.EvidenceFile) []*models.EvidenceFile {
	eligible := make([]*models.EvidenceFile, 0, len(files))

	for _, file := range files {
		visible := !file.Hidden || job.IncludeHidden

		switch job.Operation {
		case models.OperationReindexCase:
			if visible || file.Status == models.FileStatusFailed {
				eligible = append(eligible, file)
			}
		default:
			// Derived-state refreshes only make sense over files whose
			// index contents are current.
			if visible && file.Status == models.FileStatusCompleted {
				eligible = append(eligible, file)
			}
		}
	}

	return eligible
}

func (s *Service) reindexCase(ctx context.Context, job *models.Job, files []*models.EvidenceFile) error {
	indexName := index.IndexName(job.CaseID)

	for _, file := range files {
		// Document ids are regenerated on reindex, so every reference
		// to the old ids goes with them.
		if err := s.search.DeleteFileDocs(ctx, indexName, file.ID.String()); err != nil {
			return fmt.Errorf("file %s: %w", file.ID, err)
		}

		if _, err := s.store.DeleteTagsForFile(ctx, file.ID); err != nil {
			return err
		}

		if _, err := s.store.DeleteViolationsForFile(ctx, file.ID); err != nil {
			return err
		}

		if _, err := s.store.DeleteMatchesForFile(ctx, file.ID); err != nil {
			return err
		}

		if err := s.store.ResetFileForReprocess(ctx, file.ID); err != nil {
			return err
		}

		if err := s.enqueueFileJob(ctx, job, file, models.OperationFull); err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) redetectCase(ctx context.Context, job *models.Job, files []*models.EvidenceFile) error {
	// Clearing is left to the per-file detect stage, which rewrites
	// violation rows and index flags together for exactly the files being
	// re-detected. Files excluded from the fan-out keep their previous,
	// still-consistent results.
	for _, file := range files {
		if err := s.store.UpdateFileStatus(ctx, file.ID, models.FileStatusQueued, ""); err != nil {
			return err
		}

		if err := s.enqueueFileJob(ctx, job, file, models.OperationDetectOnly); err != nil {
			return err
		}
	}

	return nil
}

// rehuntCase runs synchronously under the case lock. The hunter owns the
// clear-then-rewrite sequence, so match rows and index flags are mutated
// from one enumeration rather than re-implemented here.
func (s *Service) rehuntCase(ctx context.Context, job *models.Job, _ []*models.EvidenceFile) error {
	start := time.Now()

	matches, err := s.hunter.RehuntCase(ctx, job.CaseID, job.IncludeHidden)

	s.metrics.StageDuration.WithLabelValues("hunt").Observe(time.Since(start).Seconds())

	if err != nil {
		return err
	}

	s.metrics.IOCMatches.Add(float64(matches))

	return nil
}

func (s *Service) enqueueFileJob(ctx context.Context, parent *models.Job, file *models.EvidenceFile, op models.Operation) error {
	return s.queue.Enqueue(ctx, &models.Job{
		ID:            uuid.New(),
		CaseID:        parent.CaseID,
		FileID:        file.ID,
		Operation:     op,
		IncludeHidden: parent.IncludeHidden,
	})
}

// Sweep re-queues files stuck in a non-terminal status past the lease
// horizon. A worker crash between status write and ack leaves the file
// mid-flight forever otherwise; the queue redelivers the job, but only
// within MaxDeliver, so the sweep is the backstop.
func (s *Service) Sweep(ctx context.Context) error {
	stale, err := s.store.ListStaleFiles(ctx, s.cfg.Worker.LeaseHorizon)
	if err != nil {
		return err
	}

	for _, file := range stale {
		s.logger.Warn().
			Str("file_id", file.ID.String()).
			Str("status", string(file.Status)).
			Msg("Resetting stale file")

		if err := s.store.ResetFileForReprocess(ctx, file.ID); err != nil {
			return err
		}

		if err := s.queue.Enqueue(ctx, &models.Job{
			ID:        uuid.New(),
			CaseID:    file.CaseID,
			FileID:    file.ID,
			Operation: models.OperationFull,
		}); err != nil {
			return err
		}

		s.metrics.StaleFilesReset.Inc()
	}

	return nil
}

// RunSweeper runs Sweep on the configured interval until the context is
// canceled.
func (s *Service) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Worker.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Reconciliation sweep failed")
			}
		}
	}
}
