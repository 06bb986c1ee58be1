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

// Package db implements the relational metadata store for cases,
// evidence files, detection rules, violations, indicators, and matches.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/logger"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrCaseLocked indicates another bulk operation holds the case lock.
	ErrCaseLocked = errors.New("case is locked by another operation")
)

// UnlockFunc releases a previously acquired case lock.
type UnlockFunc func(ctx context.Context) error

// Service is the metadata-store interface consumed by the pipeline
// stages and the worker. Implemented by Store; faked in tests.
type Service interface {
	// Cases.
	CreateCase(ctx context.Context, name string) (*models.Case, error)
	GetCase(ctx context.Context, id int64) (*models.Case, error)
	RefreshCaseAggregates(ctx context.Context, caseID int64) error

	// Evidence files.
	CreateFile(ctx context.Context, file *models.EvidenceFile) error
	GetFile(ctx context.Context, id uuid.UUID) (*models.EvidenceFile, error)
	FileExists(ctx context.Context, caseID int64, contentHash, filename string) (bool, error)
	UpdateFileStatus(ctx context.Context, id uuid.UUID, status models.FileStatus, reason string) error
	SetFileFormat(ctx context.Context, id uuid.UUID, format models.FileFormat) error
	SetFileIndexCounts(ctx context.Context, id uuid.UUID, parsed, acknowledged int64) error
	SetFileViolationCount(ctx context.Context, id uuid.UUID, count int64) error
	SetFileIOCMatchCount(ctx context.Context, id uuid.UUID, count int64) error
	ListCaseFiles(ctx context.Context, caseID int64, includeHidden bool) ([]*models.EvidenceFile, error)
	ResetFileForReprocess(ctx context.Context, id uuid.UUID) error
	CountNonTerminalFiles(ctx context.Context, caseID int64) (int64, error)
	ListStaleFiles(ctx context.Context, horizon time.Duration) ([]*models.EvidenceFile, error)

	// Detection rules and violations.
	GetOrCreateRule(ctx context.Context, name, severity string) (int64, error)
	InsertViolations(ctx context.Context, violations []*models.Violation) error
	DeleteViolationsForFile(ctx context.Context, fileID uuid.UUID) (int64, error)

	// Indicators and matches.
	CreateIndicator(ctx context.Context, ind *models.Indicator) error
	SetIndicatorActive(ctx context.Context, id int64, active bool) error
	ListIndicators(ctx context.Context, caseID int64, activeOnly bool) ([]*models.Indicator, error)
	InsertMatches(ctx context.Context, matches []*models.IndicatorMatch) (int64, error)
	DeleteMatchesForFile(ctx context.Context, fileID uuid.UUID) (int64, error)
	DeleteMatchesForCase(ctx context.Context, caseID int64) (int64, error)
	CountMatchesForIndicator(ctx context.Context, indicatorID int64) (int64, error)
	CountMatchesForFile(ctx context.Context, fileID uuid.UUID) (int64, error)

	// Upload audit and record annotations.
	InsertUploadAudit(ctx context.Context, audit *models.UploadAudit) error
	DeleteTagsForFile(ctx context.Context, fileID uuid.UUID) (int64, error)

	// Case-scoped advisory lock for bulk clear-and-rewrite operations.
	AcquireCaseLock(ctx context.Context, caseID int64) (UnlockFunc, error)

	Close()
}

// Store is the pgx-backed implementation of Service.
type Store struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

// New connects to Postgres, applies migrations, and returns a Store.
func New(ctx context.Context, cfg *models.DatabaseConfig, log logger.Logger) (*Store, error) {
	pool, err := NewPool(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	store := &Store{pool: pool, logger: log}

	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

var _ Service = (*Store)(nil)
