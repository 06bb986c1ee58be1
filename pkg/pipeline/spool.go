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
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// maxLineBytes bounds one spooled record; converted event-log records
// with large blobs stay under this comfortably.
const maxLineBytes = 8 << 20

var errUnsupportedFormat = errors.New("unsupported file format")

// SpoolPath returns the deterministic location of a file's normalized
// record stream. The detection stage re-reads it, so re-detect runs do
// not need to re-convert.
func SpoolPath(spoolDir string, fileID uuid.UUID) string {
	return filepath.Join(spoolDir, fileID.String()+".ndjson")
}

// spoolNDJSON copies an already line-delimited source, dropping blank
// lines.
func spoolNDJSON(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create spool: %w", err)
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64<<10), maxLineBytes)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fmt.Fprintln(w, line)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read source: %w", err)
	}

	return w.Flush()
}

// spoolJSON flattens a generic JSON document into records: an array
// yields one record per element, an object yields one record.
func spoolJSON(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read source: %w", err)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create spool: %w", err)
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	parsed := gjson.ParseBytes(data)

	switch {
	case parsed.IsArray():
		for _, elem := range parsed.Array() {
			fmt.Fprintln(w, elem.Raw)
		}
	case parsed.IsObject():
		fmt.Fprintln(w, parsed.Raw)
	default:
		return fmt.Errorf("%w: not a JSON document", errUnsupportedFormat)
	}

	return w.Flush()
}

// spoolDelimited converts delimited text into JSON records keyed by the
// header row. The separator is re-sniffed from the header.
func spoolDelimited(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	header := bufio.NewReader(in)

	firstLine, err := header.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read header: %w", err)
	}

	sep := ','

	for _, candidate := range []rune{',', '\t', ';'} {
		if strings.ContainsRune(firstLine, candidate) {
			sep = candidate
			break
		}
	}

	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return err
	}

	r := csv.NewReader(in)
	r.Comma = sep
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	columns, err := r.Read()
	if err != nil {
		return fmt.Errorf("failed to parse delimited header: %w", err)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create spool: %w", err)
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return fmt.Errorf("failed to parse delimited row: %w", err)
		}

		record := make(map[string]string, len(columns))

		for i, value := range row {
			if i < len(columns) {
				record[columns[i]] = value
			} else {
				record[fmt.Sprintf("column_%d", i)] = value
			}
		}

		if err := enc.Encode(record); err != nil {
			return err
		}
	}

	return w.Flush()
}
