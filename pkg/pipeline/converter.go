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
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// stderrTailBytes bounds how much converter stderr is kept for the
// failure reason; full output stays in the subprocess logs.
const stderrTailBytes = 4 << 10

// Converter runs the external binary-log converter. Input is a binary
// event log path; output is line-delimited JSON on stdout; failure is
// signaled by exit code with diagnostics on stderr.
type Converter struct {
	command string
	args    []string
	timeout time.Duration
}

// NewConverter builds a Converter. Args may reference the input path
// with the {input} placeholder; otherwise the path is appended.
func NewConverter(command string, args []string, timeout time.Duration) *Converter {
	return &Converter{command: command, args: args, timeout: timeout}
}

// Convert runs the converter over inputPath, streaming stdout into
// outputPath.
func (c *Converter) Convert(ctx context.Context, inputPath, outputPath string) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := make([]string, 0, len(c.args)+1)
	replaced := false

	for _, a := range c.args {
		if strings.Contains(a, "{input}") {
			a = strings.ReplaceAll(a, "{input}", inputPath)
			replaced = true
		}

		args = append(args, a)
	}

	if !replaced {
		args = append(args, inputPath)
	}

	out, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create conversion output: %w", err)
	}
	defer out.Close()

	var stderr tailBuffer

	cmd := exec.CommandContext(ctx, c.command, args...)
	cmd.Stdout = out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("converter timed out: %w", ctx.Err())
		}

		return fmt.Errorf("converter failed: %w: %s", err, stderr.String())
	}

	return nil
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
