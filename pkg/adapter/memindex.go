package adapter

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
)

// MemoryIndex is an in-memory VectorIndex for development and tests.
// Cosine similarity, same filter and threshold semantics as the Qdrant
// backend.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[model.ChunkID]*IndexEntry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		entries: make(map[model.ChunkID]*IndexEntry),
	}
}

func (m *MemoryIndex) Init(ctx context.Context) error {
	return nil
}

func (m *MemoryIndex) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryIndex) Upsert(ctx context.Context, entries []*IndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		if e.Chunk == nil || e.Chunk.ID == "" {
			return goerr.New("index entry without chunk id")
		}
		if len(e.Vector) == 0 {
			return goerr.New("index entry without vector", goerr.V("chunk", e.Chunk.ID))
		}
		m.entries[e.Chunk.ID] = e
	}
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, input SearchInput) ([]*model.Evidence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []*model.Evidence
	for _, e := range m.entries {
		if !matchFilters(e.Chunk, input.Filters) {
			continue
		}
		score := cosineSimilarity(input.Vector, e.Vector)
		if score < input.MinScore {
			continue
		}
		results = append(results, &model.Evidence{
			Chunk:   e.Chunk,
			Score:   score,
			Filters: input.Filters,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.Ordinal < results[j].Chunk.Ordinal
	})

	if input.Limit > 0 && len(results) > input.Limit {
		results = results[:input.Limit]
	}
	return results, nil
}

func (m *MemoryIndex) DeleteByDocument(ctx context.Context, docID model.DocumentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, e := range m.entries {
		if e.Chunk.SourceDocumentID == docID {
			delete(m.entries, id)
		}
	}
	return nil
}

// Count returns the number of stored entries. Test helper.
func (m *MemoryIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func matchFilters(c *model.Chunk, f model.RetrievalFilters) bool {
	if f.SourceDocumentID != "" && c.SourceDocumentID != f.SourceDocumentID {
		return false
	}
	if f.SectionPath != "" && c.SectionPath != f.SectionPath &&
		!strings.HasPrefix(c.SectionPath, f.SectionPath+"/") {
		return false
	}
	if f.Kind != "" && c.Kind != f.Kind {
		return false
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
