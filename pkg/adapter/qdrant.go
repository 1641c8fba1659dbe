package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
)

// Qdrant is a VectorIndex backed by a Qdrant server over its REST API.
type Qdrant struct {
	baseURL    string
	apiKey     string
	collection string
	dimension  int
	httpClient *http.Client
	maxRetries int
	retryBase  time.Duration
}

type QdrantOption func(*Qdrant)

func WithQdrantAPIKey(key string) QdrantOption {
	return func(q *Qdrant) {
		q.apiKey = key
	}
}

func WithQdrantCollection(name string) QdrantOption {
	return func(q *Qdrant) {
		q.collection = name
	}
}

func WithQdrantDimension(dim int) QdrantOption {
	return func(q *Qdrant) {
		q.dimension = dim
	}
}

func WithQdrantHTTPClient(c *http.Client) QdrantOption {
	return func(q *Qdrant) {
		q.httpClient = c
	}
}

// WithQdrantRetry bounds the exponential backoff applied to failed calls.
func WithQdrantRetry(maxRetries int, base time.Duration) QdrantOption {
	return func(q *Qdrant) {
		q.maxRetries = maxRetries
		q.retryBase = base
	}
}

func NewQdrant(baseURL string, opts ...QdrantOption) *Qdrant {
	q := &Qdrant{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: "textbook_content",
		dimension:  768,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		retryBase:  200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Init creates the collection and its payload indexes if missing.
func (q *Qdrant) Init(ctx context.Context) error {
	err := q.do(ctx, http.MethodGet, "/collections/"+q.collection, nil, nil)
	if err == nil {
		return nil
	}
	if statusOf(err) != http.StatusNotFound {
		return goerr.Wrap(err, "failed to check qdrant collection",
			goerr.V("collection", q.collection))
	}

	create := map[string]any{
		"vectors": map[string]any{
			"size":     q.dimension,
			"distance": "Cosine",
		},
	}
	if err := q.do(ctx, http.MethodPut, "/collections/"+q.collection, create, nil); err != nil {
		return goerr.Wrap(err, "failed to create qdrant collection",
			goerr.V("collection", q.collection))
	}

	for _, field := range []string{"sourceDocumentId", "pathPrefixes", "kind"} {
		idx := map[string]any{
			"field_name":   field,
			"field_schema": "keyword",
		}
		if err := q.do(ctx, http.MethodPut, "/collections/"+q.collection+"/index", idx, nil); err != nil {
			return goerr.Wrap(err, "failed to create payload index", goerr.V("field", field))
		}
	}
	return nil
}

func (q *Qdrant) Upsert(ctx context.Context, entries []*IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	points := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		if e.Chunk == nil || len(e.Vector) == 0 {
			return goerr.New("incomplete index entry")
		}
		points = append(points, map[string]any{
			"id":      string(e.Chunk.ID),
			"vector":  e.Vector,
			"payload": chunkPayload(e.Chunk),
		})
	}

	body := map[string]any{"points": points}
	err := q.withRetry(ctx, func() error {
		return q.do(ctx, http.MethodPut, "/collections/"+q.collection+"/points?wait=true", body, nil)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to upsert points", goerr.V("count", len(points)))
	}
	return nil
}

func (q *Qdrant) Search(ctx context.Context, input SearchInput) ([]*model.Evidence, error) {
	body := map[string]any{
		"vector":       input.Vector,
		"limit":        input.Limit,
		"with_payload": true,
	}
	if input.MinScore > 0 {
		body["score_threshold"] = input.MinScore
	}
	if must := filterConditions(input.Filters); len(must) > 0 {
		body["filter"] = map[string]any{"must": must}
	}

	var out struct {
		Result []struct {
			ID      string          `json:"id"`
			Score   float64         `json:"score"`
			Payload json.RawMessage `json:"payload"`
		} `json:"result"`
	}

	err := q.withRetry(ctx, func() error {
		return q.do(ctx, http.MethodPost, "/collections/"+q.collection+"/points/search", body, &out)
	})
	if err != nil {
		return nil, goerr.Wrap(model.ErrRetrievalUnavailable, "qdrant search failed",
			goerr.V("collection", q.collection), goerr.V("cause", err))
	}

	results := make([]*model.Evidence, 0, len(out.Result))
	for _, point := range out.Result {
		var payload struct {
			Text             string `json:"text"`
			SourceDocumentID string `json:"sourceDocumentId"`
			SectionPath      string `json:"sectionPath"`
			Kind             string `json:"kind"`
			Ordinal          int    `json:"ordinal"`
			TokenCount       int    `json:"tokenCount"`
		}
		if err := json.Unmarshal(point.Payload, &payload); err != nil {
			return nil, goerr.Wrap(err, "failed to decode point payload", goerr.V("id", point.ID))
		}
		results = append(results, &model.Evidence{
			Chunk: &model.Chunk{
				ID:               model.ChunkID(point.ID),
				Text:             payload.Text,
				SourceDocumentID: model.DocumentID(payload.SourceDocumentID),
				SectionPath:      payload.SectionPath,
				Kind:             model.ContentKind(payload.Kind),
				Ordinal:          payload.Ordinal,
				TokenCount:       payload.TokenCount,
			},
			Score:   point.Score,
			Filters: input.Filters,
		})
	}
	return results, nil
}

func (q *Qdrant) DeleteByDocument(ctx context.Context, docID model.DocumentID) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "sourceDocumentId", "match": map[string]any{"value": string(docID)}},
			},
		},
	}
	err := q.withRetry(ctx, func() error {
		return q.do(ctx, http.MethodPost, "/collections/"+q.collection+"/points/delete?wait=true", body, nil)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to delete points", goerr.V("document", docID))
	}
	return nil
}

func (q *Qdrant) Ping(ctx context.Context) error {
	if err := q.do(ctx, http.MethodGet, "/collections", nil, nil); err != nil {
		return goerr.Wrap(model.ErrRetrievalUnavailable, "qdrant is unreachable",
			goerr.V("cause", err))
	}
	return nil
}

func chunkPayload(c *model.Chunk) map[string]any {
	return map[string]any{
		"text":             c.Text,
		"sourceDocumentId": string(c.SourceDocumentID),
		"sectionPath":      c.SectionPath,
		"pathPrefixes":     pathPrefixes(c.SectionPath),
		"kind":             string(c.Kind),
		"ordinal":          c.Ordinal,
		"tokenCount":       c.TokenCount,
	}
}

// pathPrefixes expands a section path into all its ancestor paths so a
// scope filter matches any depth: "a/b/c" → ["a", "a/b", "a/b/c"].
func pathPrefixes(sectionPath string) []string {
	if sectionPath == "" {
		return nil
	}
	parts := strings.Split(sectionPath, "/")
	prefixes := make([]string, 0, len(parts))
	for i := range parts {
		prefixes = append(prefixes, strings.Join(parts[:i+1], "/"))
	}
	return prefixes
}

func filterConditions(f model.RetrievalFilters) []map[string]any {
	var must []map[string]any
	if f.SourceDocumentID != "" {
		must = append(must, map[string]any{
			"key": "sourceDocumentId", "match": map[string]any{"value": string(f.SourceDocumentID)},
		})
	}
	if f.SectionPath != "" {
		must = append(must, map[string]any{
			"key": "pathPrefixes", "match": map[string]any{"value": f.SectionPath},
		})
	}
	if f.Kind != "" {
		must = append(must, map[string]any{
			"key": "kind", "match": map[string]any{"value": string(f.Kind)},
		})
	}
	return must
}

// statusError carries the HTTP status of a failed qdrant call.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant returned status %d: %s", e.status, e.body)
}

func statusOf(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.status
	}
	return 0
}

func (q *Qdrant) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delay := q.retryBase
	for attempt := 0; attempt <= q.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return goerr.Wrap(ctx.Err(), "giving up retries")
			case <-time.After(delay):
			}
			delay *= 2
		}
		err = fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
	}
	return err
}

func retryable(err error) bool {
	status := statusOf(err)
	if status == 0 {
		return true // transport-level failure
	}
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func (q *Qdrant) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal request body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, reader)
	if err != nil {
		return goerr.Wrap(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "request failed", goerr.V("path", path))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return goerr.Wrap(err, "failed to decode response", goerr.V("path", path))
		}
	}
	return nil
}
