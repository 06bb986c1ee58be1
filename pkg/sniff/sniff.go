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

// Package sniff detects evidence file formats. Each sniffer implements
// one capability: score a sample of the file. Detection runs the
// sniffers in order and the first acceptable score wins, so per-format
// heuristics stay isolated and unit-testable.
package sniff

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
)

// sampleSize is how much of the file each sniffer sees.
const sampleSize = 64 << 10

// acceptThreshold is the minimum confidence for a sniffer to claim a
// file.
const acceptThreshold = 50

// Sniffer scores how confident it is that a sample is its format.
type Sniffer interface {
	Format() models.FileFormat
	// Confidence returns 0-100 for the sample. The filename extension
	// is advisory; content wins over extension.
	Confidence(filename string, sample []byte) int
}

// Default is the ordered sniffer list. More specific formats come
// first: the EVTX magic beats any text heuristic, and the event
// envelope beats plain NDJSON.
func Default() []Sniffer {
	return []Sniffer{
		&evtxSniffer{},
		&eventNDJSONSniffer{},
		&ndjsonSniffer{},
		&jsonSniffer{},
		&delimitedSniffer{},
	}
}

// Detect reads a sample from path and runs the sniffers in order.
func Detect(sniffers []Sniffer, path string) (models.FileFormat, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.FormatUnknown, err
	}
	defer f.Close()

	sample := make([]byte, sampleSize)

	n, err := io.ReadFull(f, sample)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return models.FormatUnknown, err
	}

	return DetectSample(sniffers, filepath.Base(path), sample[:n]), nil
}

// DetectSample runs the sniffers against an in-memory sample.
func DetectSample(sniffers []Sniffer, filename string, sample []byte) models.FileFormat {
	for _, s := range sniffers {
		if s.Confidence(filename, sample) >= acceptThreshold {
			return s.Format()
		}
	}

	return models.FormatUnknown
}

// firstLines splits up to n non-empty lines out of the sample.
func firstLines(sample []byte, n int) []string {
	var lines []string

	scanner := bufio.NewScanner(strings.NewReader(string(sample)))
	scanner.Buffer(make([]byte, sampleSize), sampleSize)

	for scanner.Scan() && len(lines) < n {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}

	return lines
}
