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

// Package hunt matches operator-supplied indicators of compromise
// against a case's indexed records. Match rows in the metadata store and
// match flags on indexed documents are always rewritten together from
// the same enumeration, so the two stores cannot drift.
package hunt

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/db"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/index"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/logger"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
)

const (
	defaultScrollBatchSize = 1000
	// matchBatchSize bounds one combined row-insert and flag-update.
	matchBatchSize = 1000
)

// Hunter runs indicator hunts.
type Hunter struct {
	store       db.Service
	search      index.Service
	cfg         *models.HuntingConfig
	narrowTypes map[models.IndicatorType]bool
	logger      logger.Logger
}

// NewHunter builds a Hunter.
func NewHunter(store db.Service, search index.Service, cfg *models.HuntingConfig, log logger.Logger) *Hunter {
	narrow := make(map[models.IndicatorType]bool, len(cfg.NarrowFieldTypes))
	for _, t := range cfg.NarrowFieldTypes {
		narrow[t] = true
	}

	return &Hunter{
		store:       store,
		search:      search,
		cfg:         cfg,
		narrowTypes: narrow,
		logger:      log,
	}
}

// match is one enumerated hit pending persistence.
type match struct {
	docID  string
	fileID uuid.UUID
}

// HuntFile hunts every active indicator against one file's records.
// The file's existing matches and flags are cleared first, so a re-hunt
// reflects exactly the currently active indicator set. Returns the
// number of matches recorded.
func (h *Hunter) HuntFile(ctx context.Context, file *models.EvidenceFile) (int64, error) {
	indexName := index.IndexName(file.CaseID)

	if _, err := h.store.DeleteMatchesForFile(ctx, file.ID); err != nil {
		return 0, fmt.Errorf("failed to clear matches: %w", err)
	}

	if _, err := h.search.ClearIOCFlags(ctx, indexName, file.ID.String()); err != nil {
		return 0, fmt.Errorf("failed to clear match flags: %w", err)
	}

	indicators, err := h.store.ListIndicators(ctx, file.CaseID, true)
	if err != nil {
		return 0, err
	}

	var total int64

	for _, ind := range indicators {
		// Hidden files are hunted when addressed directly.
		matched, err := h.huntIndicator(ctx, indexName, ind, file.ID.String(), true)
		if err != nil {
			return total, fmt.Errorf("indicator %d: %w", ind.ID, err)
		}

		total += matched
	}

	if err := h.store.SetFileIOCMatchCount(ctx, file.ID, total); err != nil {
		return total, err
	}

	h.logger.WithComponent("hunt").Info().
		Str("file_id", file.ID.String()).
		Int("indicators", len(indicators)).
		Int64("matches", total).
		Msg("File hunt complete")

	return total, nil
}

// RehuntCase clears every match row and flag in the case and re-hunts
// with only the currently active indicators. Disabling an indicator and
// re-hunting strictly removes its traces. Returns the number of matches
// recorded.
func (h *Hunter) RehuntCase(ctx context.Context, caseID int64, includeHidden bool) (int64, error) {
	indexName := index.IndexName(caseID)

	if _, err := h.store.DeleteMatchesForCase(ctx, caseID); err != nil {
		return 0, fmt.Errorf("failed to clear matches: %w", err)
	}

	if _, err := h.search.ClearIOCFlags(ctx, indexName, ""); err != nil {
		return 0, fmt.Errorf("failed to clear match flags: %w", err)
	}

	// A case-wide hunt touches every segment; shed caches up front
	// instead of waiting for memory pressure to reject the scroll.
	if err := h.search.ClearCache(ctx, indexName); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to clear index caches before case hunt")
	}

	indicators, err := h.store.ListIndicators(ctx, caseID, true)
	if err != nil {
		return 0, err
	}

	var total int64

	for _, ind := range indicators {
		matched, err := h.huntIndicator(ctx, indexName, ind, "", includeHidden)
		if err != nil {
			return total, fmt.Errorf("indicator %d: %w", ind.ID, err)
		}

		total += matched
	}

	if err := h.refreshFileCounts(ctx, caseID); err != nil {
		return total, err
	}

	h.logger.WithComponent("hunt").Info().
		Int64("case_id", caseID).
		Int("indicators", len(indicators)).
		Int64("matches", total).
		Msg("Case hunt complete")

	return total, nil
}

// huntIndicator enumerates every record matching one indicator and
// persists the result. Enumeration is collected before any write: a
// backpressure retry restarts the scroll, and restarting after partial
// writes would duplicate match rows.
func (h *Hunter) huntIndicator(ctx context.Context, indexName string, ind *models.Indicator, fileID string, includeHidden bool) (int64, error) {
	query := h.buildQuery(ind, fileID, includeHidden)

	batchSize := h.cfg.ScrollBatchSize
	if batchSize <= 0 {
		batchSize = defaultScrollBatchSize
	}

	matches, err := h.enumerate(ctx, indexName, query, batchSize)
	if err != nil {
		return 0, err
	}

	for start := 0; start < len(matches); start += matchBatchSize {
		end := start + matchBatchSize
		if end > len(matches) {
			end = len(matches)
		}

		batch := matches[start:end]

		rows := make([]*models.IndicatorMatch, 0, len(batch))
		docIDs := make([]string, 0, len(batch))

		for _, m := range batch {
			rows = append(rows, &models.IndicatorMatch{
				IndicatorID: ind.ID,
				FileID:      m.fileID,
				RecordID:    m.docID,
			})
			docIDs = append(docIDs, m.docID)
		}

		if _, err := h.store.InsertMatches(ctx, rows); err != nil {
			return 0, fmt.Errorf("failed to insert matches: %w", err)
		}

		if err := h.search.FlagIOCMatches(ctx, indexName, ind.ID, docIDs); err != nil {
			return 0, fmt.Errorf("failed to flag matches: %w", err)
		}
	}

	return int64(len(matches)), nil
}

// enumerate scrolls the full result set. One backpressure rejection is
// absorbed by shedding index caches and restarting; a second is fatal.
func (h *Hunter) enumerate(ctx context.Context, indexName string, query map[string]interface{}, batchSize int) ([]match, error) {
	matches, err := h.scrollAll(ctx, indexName, query, batchSize)
	if !errors.Is(err, index.ErrBackpressure) {
		return matches, err
	}

	h.logger.Warn().Str("index", indexName).Msg("Hunt hit index backpressure, shedding caches and retrying")

	if cerr := h.search.ClearCache(ctx, indexName); cerr != nil {
		return nil, err
	}

	return h.scrollAll(ctx, indexName, query, batchSize)
}

func (h *Hunter) scrollAll(ctx context.Context, indexName string, query map[string]interface{}, batchSize int) ([]match, error) {
	var matches []match

	err := h.search.ScrollSearch(ctx, indexName, query, batchSize, func(hits []index.Hit) error {
		for _, hit := range hits {
			m := match{docID: hit.ID}

			if raw := gjson.GetBytes(hit.Source, "file_id").String(); raw != "" {
				id, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("malformed file_id on document %s: %w", hit.ID, err)
				}

				m.fileID = id
			}

			matches = append(matches, m)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return matches, nil
}

func (h *Hunter) refreshFileCounts(ctx context.Context, caseID int64) error {
	files, err := h.store.ListCaseFiles(ctx, caseID, true)
	if err != nil {
		return err
	}

	for _, file := range files {
		count, err := h.store.CountMatchesForFile(ctx, file.ID)
		if err != nil {
			return err
		}

		if err := h.store.SetFileIOCMatchCount(ctx, file.ID, count); err != nil {
			return err
		}
	}

	return nil
}
