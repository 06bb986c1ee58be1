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
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
)

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// BulkIndex writes documents in one _bulk request and returns how many
// the index acknowledged. The count comes from the per-item responses,
// never from the request size: a completion decision made on the request
// size would silently promote failed writes to success.
func (c *Client) BulkIndex(ctx context.Context, name string, docs []*models.EventDocument) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer

	for _, doc := range docs {
		buf.WriteString(`{"index":{}}`)
		buf.WriteByte('\n')

		line, err := json.Marshal(doc)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal event document: %w", err)
		}

		buf.Write(line)
		buf.WriteByte('\n')
	}

	req := esapi.BulkRequest{
		Index: name,
		Body:  &buf,
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return 0, fmt.Errorf("bulk write failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, classifyError(res)
	}

	var parsed bulkResponse

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("failed to decode bulk response: %w", err)
	}

	var acknowledged int64

	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Error == nil && result.Status >= 200 && result.Status < 300 {
				acknowledged++
			} else if result.Error != nil {
				c.logger.Warn().
					Str("index", name).
					Str("type", result.Error.Type).
					Str("reason", result.Error.Reason).
					Msg("Bulk item rejected")

				if result.Status == 429 || result.Error.Type == "circuit_breaking_exception" {
					// Backpressure fails the whole batch cleanly so the
					// caller retries it rather than committing a partial
					// write.
					return 0, fmt.Errorf("%w: %s", ErrBackpressure, result.Error.Reason)
				}
			}
		}
	}

	return acknowledged, nil
}
