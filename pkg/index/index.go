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

// Package index wraps the Elasticsearch client with the operations the
// pipeline needs: index lifecycle, acknowledged bulk writes, scroll
// search, and bulk flag mutation.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/logger"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
)

var (
	// ErrBackpressure indicates the index rejected the operation under
	// its memory-pressure guard. Retryable after a cache shed; distinct
	// from a malformed query.
	ErrBackpressure = errors.New("search index rejected operation under backpressure")
	// ErrQueryParse indicates the query itself was malformed.
	ErrQueryParse = errors.New("search index could not parse query")
	// ErrIndexCreate indicates the per-case index could not be created.
	// Fatal for the stage: a bulk write into a missing index would be
	// silently dropped by a lenient client.
	ErrIndexCreate = errors.New("failed to create index")
)

// Hit is one search result: document id plus raw source.
type Hit struct {
	ID     string
	Source json.RawMessage
}

// Service is the search-index interface consumed by the pipeline stages.
// Implemented by Client; faked in tests.
type Service interface {
	EnsureIndex(ctx context.Context, name string) error
	BulkIndex(ctx context.Context, name string, docs []*models.EventDocument) (acknowledged int64, err error)
	DeleteFileDocs(ctx context.Context, name string, fileID string) error
	ScrollSearch(ctx context.Context, name string, query map[string]interface{}, batchSize int, fn func(hits []Hit) error) error
	Count(ctx context.Context, name string, query map[string]interface{}) (int64, error)
	FlagIOCMatches(ctx context.Context, name string, indicatorID int64, docIDs []string) error
	ClearIOCFlags(ctx context.Context, name, fileID string) (int64, error)
	FlagViolations(ctx context.Context, name, fileID string, recordIDs []string) error
	ClearViolationFlags(ctx context.Context, name, fileID string) (int64, error)
	ClearCache(ctx context.Context, name string) error
	Refresh(ctx context.Context, name string) error
}

const (
	defaultShards          = 1
	defaultReplicas        = 0
	defaultScrollKeepAlive = 2 * time.Minute
)

// Client is the Elasticsearch-backed implementation of Service.
type Client struct {
	es              *elasticsearch.Client
	shards          int
	replicas        int
	scrollKeepAlive time.Duration
	logger          logger.Logger
}

// New builds a Client and verifies connectivity.
func New(cfg *models.SearchConfig, log logger.Logger) (*Client, error) {
	if cfg == nil || len(cfg.Addresses) == 0 {
		return nil, models.ErrSearchAddrRequired
	}

	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
		Transport: &http.Transport{
			ResponseHeaderTimeout: 30 * time.Second,
		},
	}

	if cfg.Username != "" && cfg.Password != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create search client: %w", err)
	}

	res, err := es.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to reach search index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search index returned error on connect: %s", res.String())
	}

	log.Info().Strs("addresses", cfg.Addresses).Msg("Connected to search index")

	client := &Client{
		es:              es,
		shards:          cfg.IndexShards,
		replicas:        cfg.IndexReplicas,
		scrollKeepAlive: cfg.ScrollKeepAlive,
		logger:          log,
	}
	client.applyDefaults()

	return client, nil
}

func (c *Client) applyDefaults() {
	if c.shards <= 0 {
		c.shards = defaultShards
	}

	if c.replicas < 0 {
		c.replicas = defaultReplicas
	}

	if c.scrollKeepAlive <= 0 {
		c.scrollKeepAlive = defaultScrollKeepAlive
	}
}

// NewWithTransport builds a Client over a custom transport. Used by
// tests to fake the index.
func NewWithTransport(rt http.RoundTripper, log logger.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{"http://fake:9200"},
		Transport: rt,
	})
	if err != nil {
		return nil, err
	}

	client := &Client{es: es, logger: log}
	client.applyDefaults()

	return client, nil
}

// IndexName returns the per-case index name.
func IndexName(caseID int64) string {
	return fmt.Sprintf("evidence-%d", caseID)
}

var _ Service = (*Client)(nil)
