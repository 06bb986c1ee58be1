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

	"github.com/jackc/pgx/v5"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
)

// CreateCase inserts a new case.
func (s *Store) CreateCase(ctx context.Context, name string) (*models.Case, error) {
	var c models.Case

	err := s.pool.QueryRow(ctx, `
		INSERT INTO cases (name) VALUES ($1)
		RETURNING id, name, file_count, event_count, violation_count,
			ioc_match_count, created_at, updated_at`, name).
		Scan(&c.ID, &c.Name, &c.FileCount, &c.EventCount, &c.ViolationCount,
			&c.IOCMatchCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create case: %w", err)
	}

	return &c, nil
}

// GetCase fetches one case by id.
func (s *Store) GetCase(ctx context.Context, id int64) (*models.Case, error) {
	var c models.Case

	err := s.pool.QueryRow(ctx, `
		SELECT id, name, file_count, event_count, violation_count,
			ioc_match_count, created_at, updated_at
		FROM cases WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.FileCount, &c.EventCount, &c.ViolationCount,
			&c.IOCMatchCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to get case %d: %w", id, err)
	}

	return &c, nil
}

// RefreshCaseAggregates recomputes the case counters from the file
// table. Recomputing instead of incrementing keeps the counters correct
// across retries and re-processing runs.
func (s *Store) RefreshCaseAggregates(ctx context.Context, caseID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE cases SET
			file_count = sub.files,
			event_count = sub.events,
			violation_count = sub.violations,
			ioc_match_count = sub.matches,
			updated_at = now()
		FROM (
			SELECT
				count(*) FILTER (WHERE NOT hidden) AS files,
				COALESCE(sum(acknowledged_count), 0) AS events,
				COALESCE(sum(violation_count), 0) AS violations,
				COALESCE(sum(ioc_match_count), 0) AS matches
			FROM evidence_files WHERE case_id = $1
		) sub
		WHERE cases.id = $1`, caseID)
	if err != nil {
		return fmt.Errorf("failed to refresh case aggregates: %w", err)
	}

	return nil
}
