package adapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/adapter"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
)

func TestQdrantInit(t *testing.T) {
	var created atomic.Bool
	var indexed atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/textbook_content":
			if created.Load() {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusNotFound)
			}
		case r.Method == http.MethodPut && r.URL.Path == "/collections/textbook_content":
			var body map[string]any
			gt.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			vectors := body["vectors"].(map[string]any)
			gt.Equal[any](t, vectors["size"], float64(768))
			gt.Equal(t, vectors["distance"], "Cosine")
			created.Store(true)
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/textbook_content/index":
			indexed.Add(1)
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	q := adapter.NewQdrant(srv.URL)
	gt.NoError(t, q.Init(context.Background()))
	gt.True(t, created.Load())
	gt.Equal(t, indexed.Load(), int32(3))

	// Second call sees the collection and does nothing
	gt.NoError(t, q.Init(context.Background()))
	gt.Equal(t, indexed.Load(), int32(3))
}

func TestQdrantUpsertAndSearch(t *testing.T) {
	chunkID := model.NewChunkID("module-2/chapter-1", 0)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/textbook_content/points":
			gt.Equal(t, r.URL.Query().Get("wait"), "true")
			gt.Equal(t, r.Header.Get("api-key"), "qd-secret")

			var body struct {
				Points []struct {
					ID      string         `json:"id"`
					Vector  []float32      `json:"vector"`
					Payload map[string]any `json:"payload"`
				} `json:"points"`
			}
			gt.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			gt.A(t, body.Points).Length(1)
			gt.Equal(t, body.Points[0].ID, string(chunkID))
			gt.Equal(t, body.Points[0].Payload["sourceDocumentId"], "module-2/chapter-1")

			prefixes := body.Points[0].Payload["pathPrefixes"].([]any)
			gt.A(t, prefixes).Length(3)
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodPost && r.URL.Path == "/collections/textbook_content/points/search":
			var body map[string]any
			gt.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			gt.Equal[any](t, body["limit"], float64(15))
			gt.Equal(t, body["score_threshold"], 0.7)

			filter := body["filter"].(map[string]any)
			must := filter["must"].([]any)
			gt.A(t, must).Length(1)

			resp := map[string]any{
				"result": []map[string]any{
					{
						"id":    string(chunkID),
						"score": 0.91,
						"payload": map[string]any{
							"text":             "SLAM builds a map while localizing.",
							"sourceDocumentId": "module-2/chapter-1",
							"sectionPath":      "module-2/chapter-1/SLAM",
							"kind":             "narrative",
							"ordinal":          0,
							"tokenCount":       9,
						},
					},
				},
			}
			gt.NoError(t, json.NewEncoder(w).Encode(resp))

		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	q := adapter.NewQdrant(srv.URL, adapter.WithQdrantAPIKey("qd-secret"))

	gt.NoError(t, q.Upsert(ctx, []*adapter.IndexEntry{
		{
			Chunk: &model.Chunk{
				ID:               chunkID,
				Text:             "SLAM builds a map while localizing.",
				SourceDocumentID: "module-2/chapter-1",
				SectionPath:      "module-2/chapter-1/SLAM",
				Kind:             model.KindNarrative,
			},
			Vector: []float32{0.1, 0.2, 0.3},
		},
	}))

	results, err := q.Search(ctx, adapter.SearchInput{
		Vector:   []float32{0.1, 0.2, 0.3},
		Limit:    15,
		MinScore: 0.7,
		Filters:  model.RetrievalFilters{SectionPath: "module-2"},
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(1)
	gt.Equal(t, results[0].Chunk.ID, chunkID)
	gt.Equal(t, results[0].Score, 0.91)
	gt.Equal(t, results[0].Chunk.SectionPath, "module-2/chapter-1/SLAM")
}

func TestQdrantSearchRetries(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		gt.NoError(t, json.NewEncoder(w).Encode(map[string]any{"result": []any{}}))
	}))
	defer srv.Close()

	q := adapter.NewQdrant(srv.URL, adapter.WithQdrantRetry(3, time.Millisecond))
	results, err := q.Search(context.Background(), adapter.SearchInput{
		Vector: []float32{1}, Limit: 5,
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(0)
	gt.Equal(t, calls.Load(), int32(3))
}

func TestQdrantSearchUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	q := adapter.NewQdrant(srv.URL, adapter.WithQdrantRetry(2, time.Millisecond))
	_, err := q.Search(context.Background(), adapter.SearchInput{Vector: []float32{1}, Limit: 5})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrRetrievalUnavailable))
}

func TestQdrantDeleteByDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.Method, http.MethodPost)
		gt.Equal(t, r.URL.Path, "/collections/textbook_content/points/delete")

		var body map[string]any
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		filter := body["filter"].(map[string]any)
		must := filter["must"].([]any)
		cond := must[0].(map[string]any)
		gt.Equal(t, cond["key"], "sourceDocumentId")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q := adapter.NewQdrant(srv.URL)
	gt.NoError(t, q.DeleteByDocument(context.Background(), "module-2/chapter-1"))
}
