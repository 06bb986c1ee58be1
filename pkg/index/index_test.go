package index

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/logger"
	"github.com/JustinTDCT/caseScope-2026-sub001/pkg/models"
)

// fakeTransport routes client requests to a test handler.
type fakeTransport struct {
	handler func(req *http.Request) (*http.Response, error)
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return f.handler(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header: http.Header{
			"Content-Type":      []string{"application/json"},
			"X-Elastic-Product": []string{"Elasticsearch"},
		},
	}
}

func newTestClient(t *testing.T, handler func(req *http.Request) (*http.Response, error)) *Client {
	t.Helper()

	client, err := NewWithTransport(&fakeTransport{handler: handler}, logger.NewTestLogger())
	require.NoError(t, err)

	return client
}

func TestBulkIndexCountsOnlyAcknowledged(t *testing.T) {
	client := newTestClient(t, func(_ *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{
			"errors": true,
			"items": [
				{"index": {"status": 201}},
				{"index": {"status": 201}},
				{"index": {"status": 400, "error": {"type": "mapper_parsing_exception", "reason": "bad field"}}}
			]
		}`), nil
	})

	docs := []*models.EventDocument{
		{Payload: map[string]interface{}{"a": 1}},
		{Payload: map[string]interface{}{"b": 2}},
		{Payload: map[string]interface{}{"c": 3}},
	}

	acked, err := client.BulkIndex(context.Background(), "evidence-1", docs)
	require.NoError(t, err)
	assert.Equal(t, int64(2), acked, "acknowledged must come from item responses, not request size")
}

func TestBulkIndexItemBackpressureFailsBatch(t *testing.T) {
	client := newTestClient(t, func(_ *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{
			"errors": true,
			"items": [
				{"index": {"status": 201}},
				{"index": {"status": 429, "error": {"type": "circuit_breaking_exception", "reason": "heap full"}}}
			]
		}`), nil
	})

	docs := []*models.EventDocument{
		{Payload: map[string]interface{}{"a": 1}},
		{Payload: map[string]interface{}{"b": 2}},
	}

	_, err := client.BulkIndex(context.Background(), "evidence-1", docs)
	require.ErrorIs(t, err, ErrBackpressure)
}

func TestBulkIndexTopLevelBackpressure(t *testing.T) {
	client := newTestClient(t, func(_ *http.Request) (*http.Response, error) {
		return jsonResponse(429, `{"error":{"type":"circuit_breaking_exception","reason":"heap full"}}`), nil
	})

	docs := []*models.EventDocument{{Payload: map[string]interface{}{"a": 1}}}

	_, err := client.BulkIndex(context.Background(), "evidence-1", docs)
	require.ErrorIs(t, err, ErrBackpressure)
}

func TestBulkIndexEmptyIsNoop(t *testing.T) {
	client := newTestClient(t, func(_ *http.Request) (*http.Response, error) {
		t.Fatal("no request expected for empty batch")
		return nil, nil
	})

	acked, err := client.BulkIndex(context.Background(), "evidence-1", nil)
	require.NoError(t, err)
	assert.Zero(t, acked)
}

func TestCountClassifiesParseError(t *testing.T) {
	client := newTestClient(t, func(_ *http.Request) (*http.Response, error) {
		return jsonResponse(400, `{"error":{"root_cause":[{"type":"parsing_exception","reason":"bad syntax"}]}}`), nil
	})

	_, err := client.Count(context.Background(), "evidence-1",
		map[string]interface{}{"query": map[string]interface{}{}})
	require.ErrorIs(t, err, ErrQueryParse)
}

func TestScrollSearchWalksAllPages(t *testing.T) {
	pages := []string{
		`{"_scroll_id":"s1","hits":{"total":{"value":5},"hits":[
			{"_id":"a","_source":{"n":1}},
			{"_id":"b","_source":{"n":2}}
		]}}`,
		`{"_scroll_id":"s1","hits":{"total":{"value":5},"hits":[
			{"_id":"c","_source":{"n":3}},
			{"_id":"d","_source":{"n":4}}
		]}}`,
		`{"_scroll_id":"s1","hits":{"total":{"value":5},"hits":[
			{"_id":"e","_source":{"n":5}}
		]}}`,
		`{"_scroll_id":"s1","hits":{"total":{"value":5},"hits":[]}}`,
	}

	var call int

	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, "_search/scroll") && req.Method == http.MethodDelete {
			return jsonResponse(200, `{"succeeded":true}`), nil
		}

		body := pages[call]
		call++

		return jsonResponse(200, body), nil
	})

	var got []string

	err := client.ScrollSearch(context.Background(), "evidence-1",
		map[string]interface{}{"query": map[string]interface{}{"match_all": map[string]interface{}{}}},
		2,
		func(hits []Hit) error {
			for _, h := range hits {
				got = append(got, h.ID)

				var src map[string]int
				require.NoError(t, json.Unmarshal(h.Source, &src))
			}

			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got,
		"enumeration must continue past the first page")
}

func TestFlagViolationsScopesByFile(t *testing.T) {
	var captured map[string]interface{}

	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))

		return jsonResponse(200, `{"updated":2}`), nil
	})

	err := client.FlagViolations(context.Background(), "evidence-1", "file-a", []string{"101", "102"})
	require.NoError(t, err)

	filters := captured["query"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]interface{})
	require.Len(t, filters, 2)
	assert.Equal(t, "file-a",
		filters[0].(map[string]interface{})["term"].(map[string]interface{})["file_id"])
}

func TestClearIOCFlagsReportsUpdated(t *testing.T) {
	client := newTestClient(t, func(_ *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"updated":7}`), nil
	})

	updated, err := client.ClearIOCFlags(context.Background(), "evidence-1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(7), updated)
}

func TestEnsureIndexAbortsOnCreateFailure(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.Method == http.MethodHead {
			return jsonResponse(404, ``), nil
		}

		return jsonResponse(400, `{"error":{"type":"validation_exception","reason":"this cluster currently has [3000]/[3000] maximum shards open"}}`), nil
	})

	err := client.EnsureIndex(context.Background(), "evidence-9")
	require.ErrorIs(t, err, ErrIndexCreate)
}

func TestEnsureIndexAppliesConfiguredSettings(t *testing.T) {
	var captured map[string]interface{}

	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.Method == http.MethodHead {
			return jsonResponse(404, ``), nil
		}

		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))

		return jsonResponse(200, `{"acknowledged":true}`), nil
	})
	client.shards = 3
	client.replicas = 2

	require.NoError(t, client.EnsureIndex(context.Background(), "evidence-5"))

	settings := captured["settings"].(map[string]interface{})
	assert.Equal(t, float64(3), settings["number_of_shards"])
	assert.Equal(t, float64(2), settings["number_of_replicas"])
}
