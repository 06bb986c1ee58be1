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

// Package pipeline implements the conversion and indexing stage: format
// detection, external conversion of binary event logs, canonical field
// derivation, and acknowledged bulk writes to the search index.
package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/db"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/index"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/logger"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/sniff"
)

var (
	// ErrIndexShortfall indicates the index acknowledged fewer records
	// than were parsed. The file must fail rather than report success:
	// silently completing over a failed index write loses evidence.
	ErrIndexShortfall = errors.New("index acknowledged fewer records than parsed")
	// ErrNoRecordsAcknowledged is the degenerate shortfall: records were
	// parsed but the index confirmed none of them.
	ErrNoRecordsAcknowledged = errors.New("index acknowledged no records")
)

const defaultBatchSize = 500

// Processor runs the conversion/indexing stage for one file at a time.
type Processor struct {
	store     db.Service
	search    index.Service
	converter *Converter
	cfg       *models.PipelineConfig
	sniffers  []sniff.Sniffer
	logger    logger.Logger
}

// NewProcessor builds a Processor.
func NewProcessor(store db.Service, search index.Service, cfg *models.PipelineConfig, log logger.Logger) *Processor {
	return &Processor{
		store:     store,
		search:    search,
		converter: NewConverter(cfg.ConverterCommand, cfg.ConverterArgs, cfg.ConvertTimeout),
		cfg:       cfg,
		sniffers:  sniff.Default(),
		logger:    log,
	}
}

// Run converts and indexes one file. On success the file's parsed and
// acknowledged counts are recorded and equal; any shortfall is an
// error. Status transitions Converting and Indexing are written as the
// stage progresses; terminal transitions belong to the caller, which
// knows whether later stages still run.
func (p *Processor) Run(ctx context.Context, file *models.EvidenceFile) (parsed, acknowledged int64, err error) {
	log := p.logger.WithComponent("pipeline")

	if err := p.store.UpdateFileStatus(ctx, file.ID, models.FileStatusConverting, ""); err != nil {
		return 0, 0, err
	}

	format := file.Format
	if format == models.FormatUnknown {
		format, err = sniff.Detect(p.sniffers, file.StoragePath)
		if err != nil {
			return 0, 0, fmt.Errorf("format detection failed: %w", err)
		}

		if err := p.store.SetFileFormat(ctx, file.ID, format); err != nil {
			return 0, 0, err
		}
	}

	if format == models.FormatUnknown {
		// Nothing parseable; zero-event completion is legitimate here
		// and the ack invariant (0 == 0) holds.
		return 0, 0, p.store.SetFileIndexCounts(ctx, file.ID, 0, 0)
	}

	// Index creation failures abort before any bulk write: a write into
	// a missing index would be dropped without an error by the client.
	indexName := index.IndexName(file.CaseID)
	if err := p.search.EnsureIndex(ctx, indexName); err != nil {
		return 0, 0, err
	}

	spoolPath := SpoolPath(p.cfg.SpoolDir, file.ID)

	if err := p.convertToSpool(ctx, format, file.StoragePath, spoolPath); err != nil {
		return 0, 0, err
	}

	if err := p.store.UpdateFileStatus(ctx, file.ID, models.FileStatusIndexing, ""); err != nil {
		return 0, 0, err
	}

	// Delivery is at-least-once: a redelivered job re-runs this stage,
	// and appending to a previous attempt's documents would inflate
	// every downstream count. The file's documents are replaced.
	if err := p.search.DeleteFileDocs(ctx, indexName, file.ID.String()); err != nil {
		return 0, 0, err
	}

	parsed, acknowledged, err = p.indexSpool(ctx, file, format, indexName, spoolPath)
	if err != nil {
		return parsed, acknowledged, err
	}

	if err := p.store.SetFileIndexCounts(ctx, file.ID, parsed, acknowledged); err != nil {
		return parsed, acknowledged, err
	}

	if parsed > 0 && acknowledged == 0 {
		return parsed, acknowledged, fmt.Errorf("%w: parsed %d", ErrNoRecordsAcknowledged, parsed)
	}

	if acknowledged != parsed {
		return parsed, acknowledged,
			fmt.Errorf("%w: parsed %d, acknowledged %d", ErrIndexShortfall, parsed, acknowledged)
	}

	// Bulk writes are not searchable until the next index refresh, and
	// detection flagging and hunting run immediately after this stage.
	if err := p.search.Refresh(ctx, indexName); err != nil {
		return parsed, acknowledged, err
	}

	log.Info().
		Str("file_id", file.ID.String()).
		Str("format", string(format)).
		Int64("records", acknowledged).
		Msg("File indexed")

	return parsed, acknowledged, nil
}

func (p *Processor) convertToSpool(ctx context.Context, format models.FileFormat, src, dest string) error {
	switch format {
	case models.FormatEVTX:
		return p.converter.Convert(ctx, src, dest)
	case models.FormatEventNDJSON, models.FormatNDJSON:
		return spoolNDJSON(src, dest)
	case models.FormatJSON:
		return spoolJSON(src, dest)
	case models.FormatDelimited:
		return spoolDelimited(src, dest)
	default:
		return fmt.Errorf("%w: %s", errUnsupportedFormat, format)
	}
}

// indexSpool streams the normalized record stream into the search index
// in bounded batches, tracking parsed and acknowledged counts
// independently. Acknowledged comes only from per-document bulk
// responses.
func (p *Processor) indexSpool(ctx context.Context, file *models.EvidenceFile, format models.FileFormat, indexName, spoolPath string) (parsed, acknowledged int64, err error) {
	f, err := os.Open(spoolPath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open spool: %w", err)
	}
	defer f.Close()

	batchSize := p.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	// The spooled format family determines which canonical paths apply.
	// EVTX records were converted to the event envelope.
	fieldFormat := format
	if fieldFormat == models.FormatEVTX {
		fieldFormat = models.FormatEventNDJSON
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64<<10), maxLineBytes)

	batch := make([]*models.EventDocument, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		acked, err := p.search.BulkIndex(ctx, indexName, batch)
		if err != nil {
			return err
		}

		acknowledged += acked
		batch = batch[:0]

		return nil
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return parsed, acknowledged, ctx.Err()
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var payload map[string]interface{}

		if err := json.Unmarshal(line, &payload); err != nil {
			// A malformed record inside an otherwise good stream is
			// skipped, not counted as parsed.
			p.logger.Debug().Str("file_id", file.ID.String()).Msg("Skipping malformed record")
			continue
		}

		parsed++

		fields := ExtractCanonical(fieldFormat, line)
		if fields.SourceRecordID == "" {
			fields.SourceRecordID = fmt.Sprintf("%s-%d", file.ID, parsed)
		}

		batch = append(batch, &models.EventDocument{
			CaseID:         file.CaseID,
			FileID:         file.ID,
			Timestamp:      fields.Timestamp,
			Host:           fields.Host,
			SourceRecordID: fields.SourceRecordID,
			Hidden:         file.Hidden,
			Payload:        payload,
		})

		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return parsed, acknowledged, err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return parsed, acknowledged, fmt.Errorf("failed to read spool: %w", err)
	}

	if err := flush(); err != nil {
		return parsed, acknowledged, err
	}

	return parsed, acknowledged, nil
}
