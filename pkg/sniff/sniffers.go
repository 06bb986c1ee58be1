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

package sniff

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
)

// evtxMagic is the Windows event log file header.
var evtxMagic = []byte("ElfFile\x00")

type evtxSniffer struct{}

func (*evtxSniffer) Format() models.FileFormat { return models.FormatEVTX }

func (*evtxSniffer) Confidence(filename string, sample []byte) int {
	if bytes.HasPrefix(sample, evtxMagic) {
		return 100
	}

	// Extension alone is weak evidence: a renamed or truncated file
	// without the magic is not convertible.
	if strings.EqualFold(filepath.Ext(filename), ".evtx") {
		return 20
	}

	return 0
}

// eventEnvelopePaths are the field paths whose presence identifies a
// converted event-log record envelope. One hit is enough.
var eventEnvelopePaths = []string{
	"Event.System.EventID",
	"Event.System.Provider.#attributes.Name",
	"Event.System.TimeCreated.#attributes.SystemTime",
	"Event.EventData",
	"winlog.event_id",
}

type eventNDJSONSniffer struct{}

func (*eventNDJSONSniffer) Format() models.FileFormat { return models.FormatEventNDJSON }

func (*eventNDJSONSniffer) Confidence(_ string, sample []byte) int {
	lines := firstLines(sample, 5)
	if len(lines) == 0 {
		return 0
	}

	for _, line := range lines {
		if !gjson.Valid(line) {
			return 0
		}

		for _, path := range eventEnvelopePaths {
			if gjson.Get(line, path).Exists() {
				return 95
			}
		}
	}

	return 0
}

type ndjsonSniffer struct{}

func (*ndjsonSniffer) Format() models.FileFormat { return models.FormatNDJSON }

func (*ndjsonSniffer) Confidence(_ string, sample []byte) int {
	lines := firstLines(sample, 5)

	// A single JSON object is generic JSON, not a record stream.
	if len(lines) < 2 {
		return 0
	}

	for _, line := range lines {
		if !strings.HasPrefix(line, "{") || !gjson.Valid(line) {
			return 0
		}
	}

	return 80
}

type jsonSniffer struct{}

func (*jsonSniffer) Format() models.FileFormat { return models.FormatJSON }

func (*jsonSniffer) Confidence(_ string, sample []byte) int {
	trimmed := bytes.TrimSpace(sample)
	if len(trimmed) == 0 {
		return 0
	}

	if trimmed[0] != '{' && trimmed[0] != '[' {
		return 0
	}

	// The sample may cut the document short; validate when complete,
	// otherwise accept on the opening structure plus a quoted key.
	if gjson.ValidBytes(trimmed) {
		return 75
	}

	if len(trimmed) == sampleSize && bytes.Contains(trimmed[:64], []byte(`"`)) {
		return 60
	}

	return 0
}

type delimitedSniffer struct{}

func (*delimitedSniffer) Format() models.FileFormat { return models.FormatDelimited }

func (*delimitedSniffer) Confidence(_ string, sample []byte) int {
	if !isMostlyText(sample) {
		return 0
	}

	lines := firstLines(sample, 4)
	if len(lines) < 2 {
		return 0
	}

	for _, sep := range []string{",", "\t", ";"} {
		n := strings.Count(lines[0], sep)
		if n == 0 {
			continue
		}

		consistent := true

		for _, line := range lines[1:] {
			if strings.Count(line, sep) != n {
				consistent = false
				break
			}
		}

		if consistent {
			return 70
		}
	}

	return 0
}

func isMostlyText(sample []byte) bool {
	if len(sample) == 0 {
		return false
	}

	var control int

	for _, b := range sample {
		if b == 0 || (b < 0x09 && b != 0) {
			control++
		}
	}

	return control*100/len(sample) < 1
}
