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

package index

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// classifyError turns an error response into a typed error so callers
// can distinguish retryable backpressure from malformed queries. The
// response body is consumed.
func classifyError(res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	text := string(body)

	switch {
	case res.StatusCode == http.StatusTooManyRequests,
		strings.Contains(text, "circuit_breaking_exception"):
		return fmt.Errorf("%w: %s", ErrBackpressure, summarize(text))
	case strings.Contains(text, "parsing_exception"),
		strings.Contains(text, "query_shard_exception"):
		return fmt.Errorf("%w: %s", ErrQueryParse, summarize(text))
	default:
		return fmt.Errorf("search index error (status %d): %s", res.StatusCode, summarize(text))
	}
}

const maxErrorSummary = 512

func summarize(body string) string {
	if len(body) > maxErrorSummary {
		return body[:maxErrorSummary] + "..."
	}

	return body
}
