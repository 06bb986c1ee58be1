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
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// eventMappings defines the per-case document schema. Canonical and
// pipeline-owned fields are typed; the original payload stays dynamic.
const eventMappings = `{
	"properties": {
		"case_id":          {"type": "long"},
		"file_id":          {"type": "keyword"},
		"@timestamp":       {"type": "date", "ignore_malformed": true},
		"host":             {"type": "keyword"},
		"source_record_id": {"type": "keyword"},
		"hidden":           {"type": "boolean"},
		"has_violation":    {"type": "boolean"},
		"has_ioc_match":    {"type": "boolean"},
		"ioc_ids":          {"type": "long"},
		"payload":          {"type": "object", "dynamic": true}
	}
}`

// EnsureIndex creates the index if it does not exist, applying the
// configured shard and replica counts. Creation failure is fatal for the
// calling stage: continuing to a bulk write against a missing index
// would be silently dropped.
func (c *Client) EnsureIndex(ctx context.Context, name string) error {
	exists, err := c.es.Indices.Exists([]string{name},
		c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: existence check for %s: %s", ErrIndexCreate, name, err)
	}
	defer exists.Body.Close()

	if exists.StatusCode == 200 {
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   c.shards,
			"number_of_replicas": c.replicas,
		},
		"mappings": json.RawMessage(eventMappings),
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %s", ErrIndexCreate, name, err)
	}

	res, err := c.es.Indices.Create(
		name,
		c.es.Indices.Create.WithBody(bytes.NewReader(body)),
		c.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("%w: %s: %s", ErrIndexCreate, name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if err := classifyError(res); err != nil {
			return fmt.Errorf("%w: %s: %s", ErrIndexCreate, name, err)
		}
	}

	c.logger.Info().Str("index", name).Msg("Created search index")

	return nil
}

// DeleteFileDocs removes every indexed record for one file. Reindex runs
// this before re-converting so indexed content is replaced, not patched.
func (c *Client) DeleteFileDocs(ctx context.Context, name, fileID string) error {
	body := fmt.Sprintf(`{"query":{"term":{"file_id":%q}}}`, fileID)

	req := esapi.DeleteByQueryRequest{
		Index:   []string{name},
		Body:    strings.NewReader(body),
		Refresh: boolPtr(true),
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("failed to delete docs for file %s: %w", fileID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if cerr := classifyError(res); cerr != nil {
			return fmt.Errorf("failed to delete docs for file %s: %w", fileID, cerr)
		}
	}

	return nil
}

// ClearCache sheds index-side caches. Run before case-wide batch
// operations to reduce the chance of tripping the circuit breaker.
func (c *Client) ClearCache(ctx context.Context, name string) error {
	res, err := c.es.Indices.ClearCache(
		c.es.Indices.ClearCache.WithIndex(name),
		c.es.Indices.ClearCache.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to clear index cache: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to clear index cache: %s", res.String())
	}

	return nil
}

// Refresh makes recent writes visible to search.
func (c *Client) Refresh(ctx context.Context, name string) error {
	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithIndex(name),
		c.es.Indices.Refresh.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to refresh index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("failed to refresh index: %s", res.String())
	}

	return nil
}

func boolPtr(b bool) *bool { return &b }
