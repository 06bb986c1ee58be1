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

// Package staging unpacks evidence bundles, deduplicates candidates by
// content, filters non-log artifacts, and queues files for conversion.
package staging

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/db"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/logger"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/sniff"
)

// maxArtifactBytes caps how much of a generic JSON file the artifact
// heuristic will parse.
const maxArtifactBytes = 4 << 20

// Enqueuer publishes jobs to the task queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

// Result summarizes one staging run.
type Result struct {
	Queued     []uuid.UUID
	Duplicates int
	Artifacts  int
	Invalid    int
}

// Stager turns an uploaded bundle into queued evidence files.
type Stager struct {
	store    db.Service
	queue    Enqueuer
	sniffers []sniff.Sniffer
	logger   logger.Logger
}

// New builds a Stager.
func New(store db.Service, queue Enqueuer, log logger.Logger) *Stager {
	return &Stager{
		store:    store,
		queue:    queue,
		sniffers: sniff.Default(),
		logger:   log,
	}
}

// Stage unpacks the bundle at path (already inside the case's staging
// directory), fingerprints and dedupes every candidate, and enqueues
// the survivors as full pipeline jobs.
func (s *Stager) Stage(ctx context.Context, caseID int64, path string) (*Result, error) {
	log := s.logger.WithComponent("staging")

	candidates, err := s.expand(caseID, path)
	if err != nil {
		return nil, err
	}

	result := &Result{}

	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if err := s.stageOne(ctx, caseID, candidate, result); err != nil {
			return result, err
		}
	}

	log.Info().
		Int64("case_id", caseID).
		Int("queued", len(result.Queued)).
		Int("duplicates", result.Duplicates).
		Int("artifacts", result.Artifacts).
		Int("invalid", result.Invalid).
		Msg("Bundle staged")

	return result, nil
}

// expand recursively unpacks archives; nested archives extracted in one
// pass are themselves expanded until only plain files remain. Corrupt
// archives are audited and skipped: one bad member never sinks the
// bundle.
func (s *Stager) expand(caseID int64, path string) ([]string, error) {
	if !isArchive(path) {
		return []string{path}, nil
	}

	pending := []string{path}

	var files []string

	for len(pending) > 0 {
		archive := pending[0]
		pending = pending[1:]

		extracted, err := extract(archive, filepath.Dir(archive))

		// Remove the archive regardless: partially extracted members are
		// still usable evidence and the archive itself is never indexed.
		os.Remove(archive)

		if err != nil {
			s.logger.Warn().Err(err).Str("archive", archive).Msg("Skipping corrupt archive")
			s.auditError(caseID, filepath.Base(archive), err)

			if !errors.Is(err, errCorruptArchive) {
				return nil, err
			}
		}

		for _, member := range extracted {
			if isArchive(member) {
				pending = append(pending, member)
			} else {
				files = append(files, member)
			}
		}
	}

	return files, nil
}

func (s *Stager) stageOne(ctx context.Context, caseID int64, path string, result *Result) error {
	filename := filepath.Base(path)

	hash, size, err := fingerprint(path)
	if err != nil {
		return fmt.Errorf("failed to fingerprint %s: %w", filename, err)
	}

	exists, err := s.store.FileExists(ctx, caseID, hash, filename)
	if err != nil {
		return err
	}

	if exists {
		// Duplicates are audit events, not errors.
		result.Duplicates++
		os.Remove(path)

		return s.store.InsertUploadAudit(ctx, &models.UploadAudit{
			CaseID:      caseID,
			Filename:    filename,
			ContentHash: hash,
			Outcome:     models.UploadOutcomeDuplicate,
			Detail:      "identical content and name already staged",
		})
	}

	format, err := sniff.Detect(s.sniffers, path)
	if err != nil {
		return fmt.Errorf("failed to sniff %s: %w", filename, err)
	}

	file := &models.EvidenceFile{
		ID:          uuid.New(),
		CaseID:      caseID,
		Filename:    filename,
		ContentHash: hash,
		SizeBytes:   size,
		Format:      format,
		Status:      models.FileStatusQueued,
		StoragePath: path,
	}

	outcome := models.UploadOutcomeAccepted
	enqueue := true

	switch {
	case format == models.FormatUnknown:
		// Unparseable files are recorded, never silently dropped: they
		// complete with zero events and stay out of default listings.
		file.Status = models.FileStatusCompleted
		file.Hidden = true
		outcome = models.UploadOutcomeInvalid
		enqueue = false
		result.Invalid++
	case format == models.FormatJSON && countJSONRecords(path) <= 1:
		// Single-record generic JSON is a collection artifact (a lone
		// registry key, a tool manifest): indexed for audit but hidden
		// from default listings and default search scope.
		file.Hidden = true
		outcome = models.UploadOutcomeArtifact
		result.Artifacts++
	}

	if err := s.store.CreateFile(ctx, file); err != nil {
		return err
	}

	if err := s.store.InsertUploadAudit(ctx, &models.UploadAudit{
		CaseID:      caseID,
		Filename:    filename,
		ContentHash: hash,
		Outcome:     outcome,
	}); err != nil {
		return err
	}

	if !enqueue {
		return nil
	}

	job := &models.Job{
		ID:         uuid.New(),
		CaseID:     caseID,
		FileID:     file.ID,
		Operation:  models.OperationFull,
		EnqueuedAt: time.Now().UTC(),
	}

	if err := s.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue file %s: %w", file.ID, err)
	}

	result.Queued = append(result.Queued, file.ID)

	return nil
}

func (s *Stager) auditError(caseID int64, filename string, err error) {
	auditCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if auditErr := s.store.InsertUploadAudit(auditCtx, &models.UploadAudit{
		CaseID:   caseID,
		Filename: filename,
		Outcome:  models.UploadOutcomeInvalid,
		Detail:   err.Error(),
	}); auditErr != nil {
		s.logger.Error().Err(auditErr).Msg("Failed to write upload audit")
	}
}

// fingerprint computes the sha256 content hash and size of a file.
func fingerprint(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()

	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}

	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// countJSONRecords counts top-level records in a generic JSON document:
// an array counts its elements, an object counts one.
func countJSONRecords(path string) int {
	info, err := os.Stat(path)
	if err != nil || info.Size() > maxArtifactBytes {
		// Large generic JSON is not artifact-shaped; let it index.
		return 2
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 2
	}

	parsed := gjson.ParseBytes(data)
	if parsed.IsArray() {
		return len(parsed.Array())
	}

	if parsed.IsObject() {
		return 1
	}

	return 0
}
