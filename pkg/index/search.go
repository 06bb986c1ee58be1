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

type searchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string          `json:"_id"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// ScrollSearch walks the full result set of a query in batches, calling
// fn for each batch. Result enumeration is never capped at the single
// page size: indicators with tens of thousands of matches must yield
// every match.
func (c *Client) ScrollSearch(ctx context.Context, name string, query map[string]interface{}, batchSize int, fn func(hits []Hit) error) error {
	var buf bytes.Buffer

	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return fmt.Errorf("failed to encode query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(name),
		c.es.Search.WithBody(&buf),
		c.es.Search.WithSize(batchSize),
		c.es.Search.WithScroll(c.scrollKeepAlive),
	)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	page, err := decodeSearchResponse(res)
	if err != nil {
		return err
	}

	scrollID := page.ScrollID
	defer c.clearScroll(scrollID)

	for {
		hits := make([]Hit, 0, len(page.Hits.Hits))
		for _, h := range page.Hits.Hits {
			hits = append(hits, Hit{ID: h.ID, Source: h.Source})
		}

		if len(hits) == 0 {
			return nil
		}

		if err := fn(hits); err != nil {
			return err
		}

		res, err := c.es.Scroll(
			c.es.Scroll.WithContext(ctx),
			c.es.Scroll.WithScrollID(scrollID),
			c.es.Scroll.WithScroll(c.scrollKeepAlive),
		)
		if err != nil {
			return fmt.Errorf("scroll failed: %w", err)
		}

		page, err = decodeSearchResponse(res)
		if err != nil {
			return err
		}

		if page.ScrollID != "" {
			scrollID = page.ScrollID
		}
	}
}

// Count returns the number of documents matching a query.
func (c *Client) Count(ctx context.Context, name string, query map[string]interface{}) (int64, error) {
	var buf bytes.Buffer

	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return 0, fmt.Errorf("failed to encode query: %w", err)
	}

	res, err := c.es.Count(
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(name),
		c.es.Count.WithBody(&buf),
	)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, classifyError(res)
	}

	var parsed struct {
		Count int64 `json:"count"`
	}

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}

	return parsed.Count, nil
}

func decodeSearchResponse(res *esapi.Response) (*searchResponse, error) {
	defer res.Body.Close()

	if res.IsError() {
		return nil, classifyError(res)
	}

	var parsed searchResponse

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	return &parsed, nil
}

// clearScroll releases the server-side scroll context. Best effort: the
// context also expires on its own after the keep-alive.
func (c *Client) clearScroll(scrollID string) {
	if scrollID == "" {
		return
	}

	res, err := c.es.ClearScroll(c.es.ClearScroll.WithScrollID(scrollID))
	if err != nil {
		c.logger.Debug().Err(err).Msg("Failed to clear scroll context")
		return
	}

	res.Body.Close()
}
