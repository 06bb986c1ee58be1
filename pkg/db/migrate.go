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
)

// migrations are applied in order at startup; each statement is
// idempotent so restarts are safe.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS cases (
		id              BIGSERIAL PRIMARY KEY,
		name            TEXT NOT NULL,
		file_count      BIGINT NOT NULL DEFAULT 0,
		event_count     BIGINT NOT NULL DEFAULT 0,
		violation_count BIGINT NOT NULL DEFAULT 0,
		ioc_match_count BIGINT NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS evidence_files (
		id                 UUID PRIMARY KEY,
		case_id            BIGINT NOT NULL REFERENCES cases(id),
		filename           TEXT NOT NULL,
		content_hash       TEXT NOT NULL,
		size_bytes         BIGINT NOT NULL DEFAULT 0,
		format             TEXT NOT NULL DEFAULT 'unknown',
		status             TEXT NOT NULL DEFAULT 'queued',
		failure_reason     TEXT NOT NULL DEFAULT '',
		parsed_count       BIGINT NOT NULL DEFAULT 0,
		acknowledged_count BIGINT NOT NULL DEFAULT 0,
		violation_count    BIGINT NOT NULL DEFAULT 0,
		ioc_match_count    BIGINT NOT NULL DEFAULT 0,
		hidden             BOOLEAN NOT NULL DEFAULT FALSE,
		storage_path       TEXT NOT NULL DEFAULT '',
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (case_id, content_hash, filename)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_evidence_files_case_status
		ON evidence_files (case_id, status)`,
	`CREATE TABLE IF NOT EXISTS detection_rules (
		id         BIGSERIAL PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE,
		severity   TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS violations (
		id         BIGSERIAL PRIMARY KEY,
		case_id    BIGINT NOT NULL REFERENCES cases(id),
		file_id    UUID NOT NULL REFERENCES evidence_files(id) ON DELETE CASCADE,
		rule_id    BIGINT NOT NULL REFERENCES detection_rules(id),
		record_id  TEXT NOT NULL,
		severity   TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_violations_file ON violations (file_id)`,
	`CREATE TABLE IF NOT EXISTS indicators (
		id         BIGSERIAL PRIMARY KEY,
		case_id    BIGINT NOT NULL REFERENCES cases(id),
		ioc_type   TEXT NOT NULL,
		value      TEXT NOT NULL,
		active     BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (case_id, ioc_type, value)
	)`,
	`CREATE TABLE IF NOT EXISTS indicator_matches (
		id           BIGSERIAL PRIMARY KEY,
		indicator_id BIGINT NOT NULL REFERENCES indicators(id) ON DELETE CASCADE,
		file_id      UUID NOT NULL REFERENCES evidence_files(id) ON DELETE CASCADE,
		record_id    TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (indicator_id, file_id, record_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_indicator_matches_file
		ON indicator_matches (file_id)`,
	`CREATE TABLE IF NOT EXISTS upload_audit (
		id           BIGSERIAL PRIMARY KEY,
		case_id      BIGINT NOT NULL REFERENCES cases(id),
		filename     TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		outcome      TEXT NOT NULL,
		detail       TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS record_tags (
		id         BIGSERIAL PRIMARY KEY,
		case_id    BIGINT NOT NULL REFERENCES cases(id),
		file_id    UUID NOT NULL REFERENCES evidence_files(id) ON DELETE CASCADE,
		record_id  TEXT NOT NULL,
		tag        TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_record_tags_file ON record_tags (file_id)`,
}

// Migrate applies the schema migrations in order.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	s.logger.Debug().Int("count", len(migrations)).Msg("Schema migrations applied")

	return nil
}
