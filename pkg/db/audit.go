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
	"fmt"

	"github.com/google/uuid"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
)

// InsertUploadAudit records a staging decision, including duplicates
// that never became evidence files.
func (s *Store) InsertUploadAudit(ctx context.Context, audit *models.UploadAudit) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO upload_audit (case_id, filename, content_hash, outcome, detail)
		VALUES ($1, $2, $3, $4, $5)`,
		audit.CaseID, audit.Filename, audit.ContentHash, audit.Outcome, audit.Detail)
	if err != nil {
		return fmt.Errorf("failed to insert upload audit: %w", err)
	}

	return nil
}

// DeleteTagsForFile removes operator annotations keyed by record id.
// Record ids do not survive a reindex, so the tags must not either.
func (s *Store) DeleteTagsForFile(ctx context.Context, fileID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM record_tags WHERE file_id = $1`, fileID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tags for file: %w", err)
	}

	return tag.RowsAffected(), nil
}
