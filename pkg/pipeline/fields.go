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

package pipeline

import (
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
)

// Canonical field extraction tries an ordered list of source-specific
// paths until one resolves. The lists are data: supporting a new source
// variant means appending a path here, not touching parsing logic.
// Order matters; the most specific known variants come first.

var timestampPaths = map[models.FileFormat][]string{
	models.FormatEVTX: {
		"Event.System.TimeCreated.#attributes.SystemTime",
		"Event.System.TimeCreated.SystemTime",
		"Event.System.TimeCreated",
	},
	models.FormatEventNDJSON: {
		"Event.System.TimeCreated.#attributes.SystemTime",
		"Event.System.TimeCreated.SystemTime",
		"winlog.time_created",
		"@timestamp",
	},
	models.FormatNDJSON: {
		"@timestamp",
		"timestamp",
		"Timestamp",
		"time",
		"ts",
		"eventTime",
		"event_time",
		"date",
	},
	models.FormatJSON: {
		"@timestamp",
		"timestamp",
		"time",
		"LastWriteTime",
		"last_write_time",
	},
	models.FormatDelimited: {
		"timestamp",
		"Timestamp",
		"time",
		"ts",
		"date",
		"datetime",
	},
}

var hostPaths = map[models.FileFormat][]string{
	models.FormatEVTX: {
		"Event.System.Computer",
	},
	models.FormatEventNDJSON: {
		"Event.System.Computer",
		"winlog.computer_name",
		"host.name",
		"host",
	},
	models.FormatNDJSON: {
		"host.name",
		"host.hostname",
		"host",
		"hostname",
		"Hostname",
		"computer",
		"Computer",
		"agent.hostname",
	},
	models.FormatJSON: {
		"host",
		"hostname",
		"computer",
	},
	models.FormatDelimited: {
		"host",
		"hostname",
		"computer",
		"src_host",
	},
}

var recordIDPaths = map[models.FileFormat][]string{
	models.FormatEVTX: {
		"Event.System.EventRecordID",
	},
	models.FormatEventNDJSON: {
		"Event.System.EventRecordID",
		"winlog.record_id",
	},
	models.FormatNDJSON: {
		"record_id",
		"RecordID",
		"EventRecordID",
		"event.id",
		"id",
		"uid",
	},
	models.FormatJSON: {
		"id",
		"key",
		"name",
	},
	models.FormatDelimited: {
		"record_id",
		"id",
	},
}

// timestampLayouts are accepted on top of RFC3339; normalized output is
// always RFC3339Nano UTC. Unparseable values pass through raw so the
// index's lenient date mapping can still try them.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
	"01/02/2006 15:04:05",
}

// CanonicalFields holds the three pipeline-normalized fields.
type CanonicalFields struct {
	Timestamp      string
	Host           string
	SourceRecordID string
}

// ExtractCanonical derives the canonical fields from one raw record.
func ExtractCanonical(format models.FileFormat, raw []byte) CanonicalFields {
	return CanonicalFields{
		Timestamp:      normalizeTimestamp(firstPath(raw, timestampPaths[format])),
		Host:           firstPath(raw, hostPaths[format]),
		SourceRecordID: firstPath(raw, recordIDPaths[format]),
	}
}

func firstPath(raw []byte, paths []string) string {
	for _, path := range paths {
		value := gjson.GetBytes(raw, path)
		if !value.Exists() {
			continue
		}

		switch value.Type {
		case gjson.String:
			if value.Str != "" {
				return value.Str
			}
		case gjson.Number:
			return strconv.FormatFloat(value.Num, 'f', -1, 64)
		default:
			continue
		}
	}

	return ""
}

func normalizeTimestamp(value string) string {
	if value == "" {
		return ""
	}

	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC().Format(time.RFC3339Nano)
		}
	}

	return value
}
