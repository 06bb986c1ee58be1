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

// IndicatorType classifies an operator-supplied IOC value.
type IndicatorType string

const (
	IndicatorTypeIP       IndicatorType = "ip"
	IndicatorTypeDomain   IndicatorType = "domain"
	IndicatorTypeHash     IndicatorType = "hash"
	IndicatorTypeUsername IndicatorType = "username"
	IndicatorTypeHostname IndicatorType = "hostname"
	IndicatorTypeFreeText IndicatorType = "free_text"
)

// Indicator is one indicator-of-compromise to hunt across a case's
// indexed corpus. Inactive indicators are skipped by hunts, and a re-hunt
// strictly removes their previously written flags.
type Indicator struct {
	ID        int64         `json:"id" db:"id"`
	CaseID    int64         `json:"case_id" db:"case_id"`
	Type      IndicatorType `json:"ioc_type" db:"ioc_type"`
	Value     string        `json:"value" db:"value"`
	Active    bool          `json:"active" db:"active"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

// IndicatorMatch is the authoritative record that an indicator currently
// matches one indexed event. The set of match rows for an indicator and
// the set of indexed records flagged for it must always agree.
type IndicatorMatch struct {
	ID          int64     `json:"id" db:"id"`
	IndicatorID int64     `json:"indicator_id" db:"indicator_id"`
	FileID      uuid.UUID `json:"file_id" db:"file_id"`
	RecordID    string    `json:"record_id" db:"record_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
