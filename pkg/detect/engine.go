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

package detect

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
)

// stderrTailBytes bounds retained engine stderr for the failure reason.
const stderrTailBytes = 4 << 10

var errMissingColumns = errors.New("engine output is missing required columns")

// Engine runs the external rule-matching subprocess. Input is the
// normalized record stream plus a rule corpus directory; output is CSV
// on stdout with at least a rule, severity, and record id column.
type Engine struct {
	command string
	args    []string
	timeout time.Duration
}

// NewEngine builds an Engine. Args may reference the record stream with
// {input} and the corpus directory with {rules}; missing placeholders
// append both paths in that order.
func NewEngine(command string, args []string, timeout time.Duration) *Engine {
	return &Engine{command: command, args: args, timeout: timeout}
}

// Run executes the engine and streams each output row to fn. A non-zero
// exit fails the run with the stderr tail as the reason.
func (e *Engine) Run(ctx context.Context, inputPath, corpusDir string, fn func(*models.DetectionResult) error) error {
	if e.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := make([]string, 0, len(e.args)+2)
	haveInput, haveRules := false, false

	for _, a := range e.args {
		if strings.Contains(a, "{input}") {
			a = strings.ReplaceAll(a, "{input}", inputPath)
			haveInput = true
		}

		if strings.Contains(a, "{rules}") {
			a = strings.ReplaceAll(a, "{rules}", corpusDir)
			haveRules = true
		}

		args = append(args, a)
	}

	if !haveInput {
		args = append(args, inputPath)
	}

	if !haveRules {
		args = append(args, corpusDir)
	}

	var stderr tailBuffer

	cmd := exec.CommandContext(ctx, e.command, args...)
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open engine stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	parseErr := parseResults(stdout, fn)
	if parseErr != nil {
		// Drain so the engine can exit instead of blocking on a full pipe.
		_, _ = io.Copy(io.Discard, stdout)
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("engine timed out: %w", ctx.Err())
		}

		return fmt.Errorf("engine failed: %w: %s", err, stderr.String())
	}

	return parseErr
}

// parseResults reads the engine's CSV stream. The header row names the
// columns; recognized aliases keep the adapter tolerant of engine
// version drift.
func parseResults(r io.Reader, fn func(*models.DetectionResult) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		// No detections at all; the engine emits nothing, not even a
		// header.
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to parse engine header: %w", err)
	}

	ruleCol, sevCol, recordCol := -1, -1, -1

	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "rule", "rule_name", "title", "detection":
			if ruleCol < 0 {
				ruleCol = i
			}
		case "severity", "level":
			if sevCol < 0 {
				sevCol = i
			}
		case "record_id", "recordid", "event_record_id", "record":
			if recordCol < 0 {
				recordCol = i
			}
		}
	}

	if ruleCol < 0 || recordCol < 0 {
		return fmt.Errorf("%w: %v", errMissingColumns, header)
	}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("failed to parse engine row: %w", err)
		}

		if ruleCol >= len(row) || recordCol >= len(row) {
			continue
		}

		result := &models.DetectionResult{
			RuleName: strings.TrimSpace(row[ruleCol]),
			RecordID: strings.TrimSpace(row[recordCol]),
		}

		if sevCol >= 0 && sevCol < len(row) {
			result.Severity = strings.TrimSpace(row[sevCol])
		}

		if result.RuleName == "" || result.RecordID == "" {
			continue
		}

		if err := fn(result); err != nil {
			return err
		}
	}
}

// tailBuffer keeps the last stderrTailBytes written to it.
type tailBuffer struct {
	data []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)

	if len(b.data) > stderrTailBytes {
		b.data = b.data[len(b.data)-stderrTailBytes:]
	}

	return len(p), nil
}

func (b *tailBuffer) String() string {
	return strings.TrimSpace(string(b.data))
}
