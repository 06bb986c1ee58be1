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

// Package models defines the shared types for the evidence-processing
// pipeline: cases, evidence files, indexed events, detection rules,
// violations, indicators, and queue jobs.
package models

import (
	"time"

	"github.com/google/uuid"
)

// FileStatus is the lifecycle status of an evidence file as it moves
// through the pipeline.
type FileStatus string

const (
	FileStatusQueued     FileStatus = "queued"
	FileStatusConverting FileStatus = "converting"
	FileStatusIndexing   FileStatus = "indexing"
	FileStatusDetecting  FileStatus = "detecting"
	FileStatusHunting    FileStatus = "hunting"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusFailed     FileStatus = "failed"
)

// Terminal reports whether the status is an end state for a pipeline run.
func (s FileStatus) Terminal() bool {
	return s == FileStatusCompleted || s == FileStatusFailed
}

// FileFormat is the detected on-disk format of an evidence file.
type FileFormat string

const (
	FormatUnknown     FileFormat = "unknown"
	FormatEVTX        FileFormat = "evtx"
	FormatEventNDJSON FileFormat = "event_ndjson"
	FormatNDJSON      FileFormat = "ndjson"
	FormatJSON        FileFormat = "json"
	FormatDelimited   FileFormat = "delimited"
)

// Case groups evidence files and their derived state. Aggregate counters
// are maintained by the pipeline and read by external presentation layers.
type Case struct {
	ID             int64     `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	FileCount      int64     `json:"file_count" db:"file_count"`
	EventCount     int64     `json:"event_count" db:"event_count"`
	ViolationCount int64     `json:"violation_count" db:"violation_count"`
	IOCMatchCount  int64     `json:"ioc_match_count" db:"ioc_match_count"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// EvidenceFile is the metadata-store record for one staged file.
// (case_id, content_hash, filename) is unique: re-submission of identical
// content under the same name is a duplicate, not a new record.
type EvidenceFile struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	CaseID            int64      `json:"case_id" db:"case_id"`
	Filename          string     `json:"filename" db:"filename"`
	ContentHash       string     `json:"content_hash" db:"content_hash"`
	SizeBytes         int64      `json:"size_bytes" db:"size_bytes"`
	Format            FileFormat `json:"format" db:"format"`
	Status            FileStatus `json:"status" db:"status"`
	FailureReason     string     `json:"failure_reason,omitempty" db:"failure_reason"`
	ParsedCount       int64      `json:"parsed_count" db:"parsed_count"`
	AcknowledgedCount int64      `json:"acknowledged_count" db:"acknowledged_count"`
	ViolationCount    int64      `json:"violation_count" db:"violation_count"`
	IOCMatchCount     int64      `json:"ioc_match_count" db:"ioc_match_count"`
	Hidden            bool       `json:"hidden" db:"hidden"`
	StoragePath       string     `json:"storage_path" db:"storage_path"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// UploadOutcome classifies a staging decision for the upload audit trail.
type UploadOutcome string

const (
	UploadOutcomeAccepted  UploadOutcome = "accepted"
	UploadOutcomeDuplicate UploadOutcome = "duplicate"
	UploadOutcomeArtifact  UploadOutcome = "artifact"
	UploadOutcomeInvalid   UploadOutcome = "invalid"
)

// UploadAudit records what staging did with each candidate file,
// including duplicates that never became evidence files.
type UploadAudit struct {
	ID          int64         `json:"id" db:"id"`
	CaseID      int64         `json:"case_id" db:"case_id"`
	Filename    string        `json:"filename" db:"filename"`
	ContentHash string        `json:"content_hash" db:"content_hash"`
	Outcome     UploadOutcome `json:"outcome" db:"outcome"`
	Detail      string        `json:"detail,omitempty" db:"detail"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
}
