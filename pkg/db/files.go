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

package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
)

const fileColumns = `id, case_id, filename, content_hash, size_bytes, format, status,
	failure_reason, parsed_count, acknowledged_count, violation_count,
	ioc_match_count, hidden, storage_path, created_at, updated_at`

func scanFile(row pgx.Row) (*models.EvidenceFile, error) {
	var f models.EvidenceFile

	err := row.Scan(&f.ID, &f.CaseID, &f.Filename, &f.ContentHash, &f.SizeBytes,
		&f.Format, &f.Status, &f.FailureReason, &f.ParsedCount, &f.AcknowledgedCount,
		&f.ViolationCount, &f.IOCMatchCount, &f.Hidden, &f.StoragePath,
		&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to scan evidence file: %w", err)
	}

	return &f, nil
}

// CreateFile inserts a new evidence file record.
func (s *Store) CreateFile(ctx context.Context, file *models.EvidenceFile) error {
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO evidence_files
			(id, case_id, filename, content_hash, size_bytes, format, status,
			 failure_reason, hidden, storage_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		file.ID, file.CaseID, file.Filename, file.ContentHash, file.SizeBytes,
		file.Format, file.Status, file.FailureReason, file.Hidden, file.StoragePath)
	if err != nil {
		return fmt.Errorf("failed to insert evidence file %s: %w", file.Filename, err)
	}

	return nil
}

// GetFile fetches one evidence file by id.
func (s *Store) GetFile(ctx context.Context, id uuid.UUID) (*models.EvidenceFile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM evidence_files WHERE id = $1`, id)

	return scanFile(row)
}

// FileExists reports whether a file with identical content and name is
// already recorded for the case. Re-submission is a duplicate, never a
// second record.
func (s *Store) FileExists(ctx context.Context, caseID int64, contentHash, filename string) (bool, error) {
	var exists bool

	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM evidence_files
			WHERE case_id = $1 AND content_hash = $2 AND filename = $3
		)`, caseID, contentHash, filename).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}

	return exists, nil
}

// UpdateFileStatus transitions a file's lifecycle status. The failure
// reason is cleared on non-failure transitions.
func (s *Store) UpdateFileStatus(ctx context.Context, id uuid.UUID, status models.FileStatus, reason string) error {
	if status != models.FileStatusFailed {
		reason = ""
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE evidence_files
		SET status = $2, failure_reason = $3, updated_at = now()
		WHERE id = $1`, id, status, reason)
	if err != nil {
		return fmt.Errorf("failed to update file status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// SetFileFormat records the sniffed format.
func (s *Store) SetFileFormat(ctx context.Context, id uuid.UUID, format models.FileFormat) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE evidence_files SET format = $2, updated_at = now() WHERE id = $1`,
		id, format)
	if err != nil {
		return fmt.Errorf("failed to set file format: %w", err)
	}

	return nil
}

// SetFileIndexCounts records how many records were parsed from the file
// and how many the index acknowledged.
func (s *Store) SetFileIndexCounts(ctx context.Context, id uuid.UUID, parsed, acknowledged int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE evidence_files
		SET parsed_count = $2, acknowledged_count = $3, updated_at = now()
		WHERE id = $1`, id, parsed, acknowledged)
	if err != nil {
		return fmt.Errorf("failed to set index counts: %w", err)
	}

	return nil
}

// SetFileViolationCount records the file's violation total.
func (s *Store) SetFileViolationCount(ctx context.Context, id uuid.UUID, count int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE evidence_files SET violation_count = $2, updated_at = now() WHERE id = $1`,
		id, count)
	if err != nil {
		return fmt.Errorf("failed to set violation count: %w", err)
	}

	return nil
}

// SetFileIOCMatchCount records the file's indicator match total.
func (s *Store) SetFileIOCMatchCount(ctx context.Context, id uuid.UUID, count int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE evidence_files SET ioc_match_count = $2, updated_at = now() WHERE id = $1`,
		id, count)
	if err != nil {
		return fmt.Errorf("failed to set ioc match count: %w", err)
	}

	return nil
}

// ListCaseFiles returns the case's evidence files, newest first. Hidden
// files are excluded unless includeHidden is set.
func (s *Store) ListCaseFiles(ctx context.Context, caseID int64, includeHidden bool) ([]*models.EvidenceFile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+fileColumns+`
		FROM evidence_files
		WHERE case_id = $1 AND (hidden = FALSE OR $2)
		ORDER BY created_at DESC`, caseID, includeHidden)
	if err != nil {
		return nil, fmt.Errorf("failed to list case files: %w", err)
	}
	defer rows.Close()

	var files []*models.EvidenceFile

	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}

		files = append(files, f)
	}

	return files, rows.Err()
}

// ResetFileForReprocess zeroes the pipeline counters and returns the
// file to Queued so status readers never observe a stale terminal state
// while the async re-run is pending.
func (s *Store) ResetFileForReprocess(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE evidence_files
		SET status = $2, failure_reason = '', parsed_count = 0,
			acknowledged_count = 0, violation_count = 0, ioc_match_count = 0,
			updated_at = now()
		WHERE id = $1`, id, models.FileStatusQueued)
	if err != nil {
		return fmt.Errorf("failed to reset file for reprocess: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// CountNonTerminalFiles counts files still moving through the pipeline
// for a case. Bulk operations wait until this reaches zero.
func (s *Store) CountNonTerminalFiles(ctx context.Context, caseID int64) (int64, error) {
	var count int64

	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM evidence_files
		WHERE case_id = $1 AND status NOT IN ($2, $3)`,
		caseID, models.FileStatusCompleted, models.FileStatusFailed).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count non-terminal files: %w", err)
	}

	return count, nil
}

// ListStaleFiles returns files stuck in a non-terminal status beyond the
// lease horizon. The reconciliation sweep requeues them.
func (s *Store) ListStaleFiles(ctx context.Context, horizon time.Duration) ([]*models.EvidenceFile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+fileColumns+`
		FROM evidence_files
		WHERE status NOT IN ($1, $2) AND updated_at < now() - make_interval(secs => $3)`,
		models.FileStatusCompleted, models.FileStatusFailed, horizon.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to list stale files: %w", err)
	}
	defer rows.Close()

	var files []*models.EvidenceFile

	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}

		files = append(files, f)
	}

	return files, rows.Err()
}
