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

import "github.com/google/uuid"

// EventDocument is one log event as written to the search index. The
// original heterogeneous payload is preserved verbatim under Payload;
// the three canonical fields are derived by format-aware extraction.
// HasViolation, HasIOCMatch and IOCIDs are owned by the detection and
// hunting stages and are the only fields mutated after indexing.
type EventDocument struct {
	CaseID         int64                  `json:"case_id"`
	FileID         uuid.UUID              `json:"file_id"`
	Timestamp      string                 `json:"@timestamp,omitempty"`
	Host           string                 `json:"host,omitempty"`
	SourceRecordID string                 `json:"source_record_id,omitempty"`
	Hidden         bool                   `json:"hidden"`
	HasViolation   bool                   `json:"has_violation"`
	HasIOCMatch    bool                   `json:"has_ioc_match"`
	IOCIDs         []int64                `json:"ioc_ids,omitempty"`
	Payload        map[string]interface{} `json:"payload"`
}
