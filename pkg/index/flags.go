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
)

// FlagIOCMatches marks the given documents as matched by an indicator:
// has_ioc_match is set and the indicator id is appended to ioc_ids so
// flag state stays attributable per indicator, not just in aggregate.
func (c *Client) FlagIOCMatches(ctx context.Context, name string, indicatorID int64, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{
			"ids": map[string]interface{}{"values": docIDs},
		},
		"script": map[string]interface{}{
			"lang": "painless",
			"source": `ctx._source.has_ioc_match = true;
				if (ctx._source.ioc_ids == null) { ctx._source.ioc_ids = []; }
				if (!ctx._source.ioc_ids.contains(params.ioc)) { ctx._source.ioc_ids.add(params.ioc); }`,
			"params": map[string]interface{}{"ioc": indicatorID},
		},
	}

	return c.updateByQuery(ctx, name, body, nil)
}

// ClearIOCFlags removes indicator-match flags, across the whole index
// or scoped to one file when fileID is non-empty. Run before a re-hunt:
// clearing only the metadata-store rows while leaving these flags set
// makes disabled indicators keep appearing as matched to any query
// filtering on the flag. Returns the number of documents updated.
func (c *Client) ClearIOCFlags(ctx context.Context, name, fileID string) (int64, error) {
	filters := []interface{}{
		map[string]interface{}{"term": map[string]interface{}{"has_ioc_match": true}},
	}

	if fileID != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"file_id": fileID},
		})
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"filter": filters},
		},
		"script": map[string]interface{}{
			"lang": "painless",
			"source": `ctx._source.has_ioc_match = false;
				ctx._source.ioc_ids = [];`,
		},
	}

	var updated int64

	if err := c.updateByQuery(ctx, name, body, &updated); err != nil {
		return 0, err
	}

	return updated, nil
}

// FlagViolations marks documents that a detection rule fired on. The
// engine reports source record ids, which are only unique within one
// file, so the query scopes by file_id as well.
func (c *Client) FlagViolations(ctx context.Context, name, fileID string, recordIDs []string) error {
	if len(recordIDs) == 0 {
		return nil
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"file_id": fileID}},
					map[string]interface{}{"terms": map[string]interface{}{"source_record_id": recordIDs}},
				},
			},
		},
		"script": map[string]interface{}{
			"lang":   "painless",
			"source": `ctx._source.has_violation = true;`,
		},
	}

	return c.updateByQuery(ctx, name, body, nil)
}

// ClearViolationFlags removes the violation flag from one file's
// documents. Run before a re-detect so stale flags cannot survive a rule
// corpus change.
func (c *Client) ClearViolationFlags(ctx context.Context, name, fileID string) (int64, error) {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"file_id": fileID}},
					map[string]interface{}{"term": map[string]interface{}{"has_violation": true}},
				},
			},
		},
		"script": map[string]interface{}{
			"lang":   "painless",
			"source": `ctx._source.has_violation = false;`,
		},
	}

	var updated int64

	if err := c.updateByQuery(ctx, name, body, &updated); err != nil {
		return 0, err
	}

	return updated, nil
}

func (c *Client) updateByQuery(ctx context.Context, name string, body map[string]interface{}, updated *int64) error {
	var buf bytes.Buffer

	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return fmt.Errorf("failed to encode update-by-query body: %w", err)
	}

	req := esapi.UpdateByQueryRequest{
		Index:     []string{name},
		Body:      &buf,
		Refresh:   boolPtr(true),
		Conflicts: "proceed",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("update-by-query failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return classifyError(res)
	}

	var parsed struct {
		Updated int64 `json:"updated"`
	}

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("failed to decode update-by-query response: %w", err)
	}

	if updated != nil {
		*updated = parsed.Updated
	}

	return nil
}
