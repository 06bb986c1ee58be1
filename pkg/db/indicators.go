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

// ListIndicators returns a case's indicators, optionally only active
// ones. Hunts run against active indicators; re-hunts use the full list
// to know which stale state to clear.
func (s *Store) ListIndicators(ctx context.Context, caseID int64, activeOnly bool) ([]*models.Indicator, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, case_id, ioc_type, value, active, created_at
		FROM indicators
		WHERE case_id = $1 AND (active = TRUE OR NOT $2)
		ORDER BY id`, caseID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list indicators: %w", err)
	}
	defer rows.Close()

	var indicators []*models.Indicator

	for rows.Next() {
		var ind models.Indicator

		if err := rows.Scan(&ind.ID, &ind.CaseID, &ind.Type, &ind.Value,
			&ind.Active, &ind.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan indicator: %w", err)
		}

		indicators = append(indicators, &ind)
	}

	return indicators, rows.Err()
}

// CreateIndicator stores a new indicator. Duplicate (case, type, value)
// submissions return the existing row.
func (s *Store) CreateIndicator(ctx context.Context, ind *models.Indicator) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO indicators (case_id, ioc_type, value, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (case_id, ioc_type, value)
		DO UPDATE SET active = EXCLUDED.active
		RETURNING id, created_at`,
		ind.CaseID, ind.Type, ind.Value, ind.Active).Scan(&ind.ID, &ind.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create indicator: %w", err)
	}

	return nil
}

// SetIndicatorActive toggles an indicator. Deactivation takes effect on
// the next hunt, which strictly removes the indicator's traces.
func (s *Store) SetIndicatorActive(ctx context.Context, id int64, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE indicators SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update indicator: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// InsertMatches writes match rows in one batch. Conflicts on
// (indicator, file, record) are ignored so retried hunts stay
// idempotent. Returns the number of rows queued.
func (s *Store) InsertMatches(ctx context.Context, matches []*models.IndicatorMatch) (int64, error) {
	batch := &pgx.Batch{}

	for _, m := range matches {
		batch.Queue(`
			INSERT INTO indicator_matches (indicator_id, file_id, record_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (indicator_id, file_id, record_id) DO NOTHING`,
			m.IndicatorID, m.FileID, m.RecordID)
	}

	if err := s.sendBatchExecAll(ctx, batch, "insert matches"); err != nil {
		return 0, err
	}

	return int64(len(matches)), nil
}

// DeleteMatchesForFile clears a file's match rows.
func (s *Store) DeleteMatchesForFile(ctx context.Context, fileID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM indicator_matches WHERE file_id = $1`, fileID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete matches for file: %w", err)
	}

	return tag.RowsAffected(), nil
}

// DeleteMatchesForCase clears every match row for a case ahead of a
// re-hunt. The caller must clear the index-side flags in the same
// logical operation.
func (s *Store) DeleteMatchesForCase(ctx context.Context, caseID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM indicator_matches
		USING indicators
		WHERE indicator_matches.indicator_id = indicators.id
		  AND indicators.case_id = $1`, caseID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete matches for case: %w", err)
	}

	return tag.RowsAffected(), nil
}

// CountMatchesForIndicator returns the authoritative match count for one
// indicator.
func (s *Store) CountMatchesForIndicator(ctx context.Context, indicatorID int64) (int64, error) {
	var count int64

	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM indicator_matches WHERE indicator_id = $1`,
		indicatorID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count matches for indicator: %w", err)
	}

	return count, nil
}

// CountMatchesForFile returns the number of match rows for one file.
func (s *Store) CountMatchesForFile(ctx context.Context, fileID uuid.UUID) (int64, error) {
	var count int64

	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM indicator_matches WHERE file_id = $1`,
		fileID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count matches for file: %w", err)
	}

	return count, nil
}
