package adapter

import (
	"context"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
)

// IndexEntry pairs a chunk with its document-task embedding for upsert.
type IndexEntry struct {
	Chunk  *model.Chunk
	Vector []float32
}

// SearchInput describes one nearest-neighbor query.
type SearchInput struct {
	Vector []float32
	// Limit is the maximum number of candidates returned. Callers
	// over-fetch beyond their final k to allow post-filtering.
	Limit int
	// MinScore drops candidates below this similarity.
	MinScore float64
	// Filters is a metadata conjunction applied by the index.
	Filters model.RetrievalFilters
}

// VectorIndex stores chunk vectors plus metadata and answers
// nearest-neighbor queries under optional metadata filters.
type VectorIndex interface {
	// Init prepares the backing collection. Safe to call repeatedly.
	Init(ctx context.Context) error
	// Upsert inserts or replaces entries by chunk ID.
	Upsert(ctx context.Context, entries []*IndexEntry) error
	// Search returns scored candidates, highest score first.
	Search(ctx context.Context, input SearchInput) ([]*model.Evidence, error)
	// DeleteByDocument removes every chunk of a source document.
	DeleteByDocument(ctx context.Context, docID model.DocumentID) error
	// Ping verifies the index is reachable.
	Ping(ctx context.Context) error
}
