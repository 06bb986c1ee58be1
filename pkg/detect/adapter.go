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

// Package detect runs the external rule-matching engine over a file's
// normalized record stream and persists the resulting violations to the
// metadata store and the search index together.
package detect

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/db"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/index"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/logger"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
)

const (
	// violationBatchSize bounds one metadata-store insert.
	violationBatchSize = 500
	// flagBatchSize bounds one index flag update.
	flagBatchSize = 1000
	// ruleCacheSize caps the rule-name to rule-id cache. The corpus has
	// a few thousand rules; a file rarely fires more than a fraction.
	ruleCacheSize = 4096

	defaultSeverity = "medium"
)

// Adapter ties the engine subprocess to the stores.
type Adapter struct {
	store   db.Service
	search  index.Service
	engine  *Engine
	ruleIDs *lru.Cache[string, int64]
	logger  logger.Logger
}

// NewAdapter builds an Adapter.
func NewAdapter(store db.Service, search index.Service, cfg *models.DetectionConfig, log logger.Logger) (*Adapter, error) {
	cache, err := lru.New[string, int64](ruleCacheSize)
	if err != nil {
		return nil, err
	}

	return &Adapter{
		store:   store,
		search:  search,
		engine:  NewEngine(cfg.EngineCommand, cfg.EngineArgs, cfg.Timeout),
		ruleIDs: cache,
		logger:  log,
	}, nil
}

// Run detects against one file's record stream and returns the number
// of violations recorded. Existing violation rows and index flags for
// the file are cleared first, so a re-detect under a changed corpus
// leaves no stale state; rows and flags are then rewritten together
// from the same engine output.
func (a *Adapter) Run(ctx context.Context, file *models.EvidenceFile, spoolPath, corpusDir string) (int64, error) {
	log := a.logger.WithComponent("detect")
	indexName := index.IndexName(file.CaseID)

	if _, err := a.store.DeleteViolationsForFile(ctx, file.ID); err != nil {
		return 0, fmt.Errorf("failed to clear violations: %w", err)
	}

	if _, err := a.search.ClearViolationFlags(ctx, indexName, file.ID.String()); err != nil {
		return 0, fmt.Errorf("failed to clear violation flags: %w", err)
	}

	var (
		total   int64
		pending []*models.Violation
		records []string
		seen    = make(map[string]struct{})
	)

	flushRows := func() error {
		if len(pending) == 0 {
			return nil
		}

		if err := a.store.InsertViolations(ctx, pending); err != nil {
			return fmt.Errorf("failed to insert violations: %w", err)
		}

		pending = pending[:0]

		return nil
	}

	flushFlags := func() error {
		if len(records) == 0 {
			return nil
		}

		if err := a.search.FlagViolations(ctx, indexName, file.ID.String(), records); err != nil {
			return fmt.Errorf("failed to flag violations: %w", err)
		}

		records = records[:0]

		return nil
	}

	err := a.engine.Run(ctx, spoolPath, corpusDir, func(result *models.DetectionResult) error {
		severity := result.Severity
		if severity == "" {
			severity = defaultSeverity
		}

		ruleID, err := a.resolveRule(ctx, result.RuleName, severity)
		if err != nil {
			return err
		}

		// The engine may report the same (rule, record) pair more than
		// once across rule variants.
		key := fmt.Sprintf("%d\x00%s", ruleID, result.RecordID)
		if _, dup := seen[key]; dup {
			return nil
		}

		seen[key] = struct{}{}
		total++

		pending = append(pending, &models.Violation{
			CaseID:   file.CaseID,
			FileID:   file.ID,
			RuleID:   ruleID,
			RecordID: result.RecordID,
			Severity: severity,
		})

		records = append(records, result.RecordID)

		if len(pending) >= violationBatchSize {
			if err := flushRows(); err != nil {
				return err
			}
		}

		if len(records) >= flagBatchSize {
			return flushFlags()
		}

		return nil
	})
	if err != nil {
		return total, err
	}

	if err := flushRows(); err != nil {
		return total, err
	}

	if err := flushFlags(); err != nil {
		return total, err
	}

	if err := a.store.SetFileViolationCount(ctx, file.ID, total); err != nil {
		return total, err
	}

	log.Info().
		Str("file_id", file.ID.String()).
		Int64("violations", total).
		Msg("Detection complete")

	return total, nil
}

func (a *Adapter) resolveRule(ctx context.Context, name, severity string) (int64, error) {
	if id, ok := a.ruleIDs.Get(name); ok {
		return id, nil
	}

	id, err := a.store.GetOrCreateRule(ctx, name, severity)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve rule %q: %w", name, err)
	}

	a.ruleIDs.Add(name, id)

	return id, nil
}
