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
	"github.com/jackc/pgx/v5"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
)

// GetOrCreateRule resolves a rule name to its id, creating the row on
// first sight. The upsert keeps concurrent workers from racing on the
// unique name constraint.
func (s *Store) GetOrCreateRule(ctx context.Context, name, severity string) (int64, error) {
	var id int64

	err := s.pool.QueryRow(ctx, `
		INSERT INTO detection_rules (name, severity)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, name, severity).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to get or create rule %q: %w", name, err)
	}

	return id, nil
}

// InsertViolations writes violation rows in one batch.
func (s *Store) InsertViolations(ctx context.Context, violations []*models.Violation) error {
	batch := &pgx.Batch{}

	for _, v := range violations {
		batch.Queue(`
			INSERT INTO violations (case_id, file_id, rule_id, record_id, severity)
			VALUES ($1, $2, $3, $4, $5)`,
			v.CaseID, v.FileID, v.RuleID, v.RecordID, v.Severity)
	}

	return s.sendBatchExecAll(ctx, batch, "insert violations")
}

// DeleteViolationsForFile clears a file's violations ahead of a
// re-detection run so rows never accumulate across runs.
func (s *Store) DeleteViolationsForFile(ctx context.Context, fileID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM violations WHERE file_id = $1`, fileID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete violations for file: %w", err)
	}

	return tag.RowsAffected(), nil
}
