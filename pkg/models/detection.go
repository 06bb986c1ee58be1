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

// DetectionRule is a rule from the merged corpus, stored once by name and
// referenced by id from every violation row.
type DetectionRule struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Severity  string    `json:"severity" db:"severity"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Violation links a detection rule hit to the record it fired on.
type Violation struct {
	ID        int64     `json:"id" db:"id"`
	CaseID    int64     `json:"case_id" db:"case_id"`
	FileID    uuid.UUID `json:"file_id" db:"file_id"`
	RuleID    int64     `json:"rule_id" db:"rule_id"`
	RecordID  string    `json:"record_id" db:"record_id"`
	Severity  string    `json:"severity" db:"severity"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DetectionResult is one row of the external engine's tabular output
// before it is resolved against the rule table.
type DetectionResult struct {
	RuleName string
	Severity string
	RecordID string
}
