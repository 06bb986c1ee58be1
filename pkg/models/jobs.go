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

package models

import (
	"time"

	"github.com/google/uuid"
)

// Operation selects which pipeline stages a job runs.
type Operation string

const (
	// OperationFull runs convert+index, detect, and hunt for one file.
	OperationFull Operation = "full"
	// OperationDetectOnly re-runs detection for an already indexed file.
	OperationDetectOnly Operation = "detect-only"
	// OperationHuntOnly re-runs hunting for an already indexed file.
	OperationHuntOnly Operation = "hunt-only"

	// Case-scoped bulk variants: clear stale derived state under the case
	// lock, then fan out per-file jobs.
	OperationReindexCase Operation = "reindex-case"
	OperationDetectCase  Operation = "detect-case"
	OperationHuntCase    Operation = "hunt-case"
)

// CaseScoped reports whether the operation targets a whole case rather
// than a single file.
func (op Operation) CaseScoped() bool {
	switch op {
	case OperationReindexCase, OperationDetectCase, OperationHuntCase:
		return true
	case OperationFull, OperationDetectOnly, OperationHuntOnly:
		return false
	}

	return false
}

// Job is the unit of work carried on the task queue. FileID is zero for
// case-scoped operations.
type Job struct {
	ID            uuid.UUID `json:"id"`
	CaseID        int64     `json:"case_id"`
	FileID        uuid.UUID `json:"file_id,omitempty"`
	Operation     Operation `json:"operation"`
	IncludeHidden bool      `json:"include_hidden,omitempty"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}
