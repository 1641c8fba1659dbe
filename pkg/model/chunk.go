package model

import (
	"fmt"

	"github.com/google/uuid"
)

type ChunkID string

// chunkNamespace is the fixed UUID namespace for deriving chunk IDs.
var chunkNamespace = uuid.MustParse("7c9e6a3b-01f4-4f52-9d8e-4b1a6f0c2d71")

// NewChunkID derives a stable chunk ID from the source document and the
// chunk's ordinal. Re-chunking the same document version yields identical
// IDs, so re-ingestion upserts instead of duplicating.
func NewChunkID(docID DocumentID, ordinal int) ChunkID {
	name := fmt.Sprintf("%s#%d", docID, ordinal)
	return ChunkID(uuid.NewSHA1(chunkNamespace, []byte(name)).String())
}

// Chunk is an immutable unit of indexed knowledge. Created at ingestion,
// replaced wholesale when the source document changes, never mutated.
type Chunk struct {
	ID               ChunkID     `json:"id"`
	Text             string      `json:"text"`
	SourceDocumentID DocumentID  `json:"sourceDocumentId"`
	SectionPath      string      `json:"sectionPath"`
	Kind             ContentKind `json:"kind"`
	Ordinal          int         `json:"ordinal"`
	TokenCount       int         `json:"tokenCount"`
}

// RetrievalFilters is a conjunction over chunk metadata. The zero value
// matches everything.
type RetrievalFilters struct {
	SourceDocumentID DocumentID  `json:"sourceDocumentId,omitempty"`
	SectionPath      string      `json:"sectionPath,omitempty"`
	Kind             ContentKind `json:"kind,omitempty"`
}

// Empty reports whether no filter fields are set.
func (f RetrievalFilters) Empty() bool {
	return f.SourceDocumentID == "" && f.SectionPath == "" && f.Kind == ""
}

// Evidence is a chunk admitted by retrieval for one query, with its
// similarity score and the filters that admitted it. Never persisted.
type Evidence struct {
	Chunk   *Chunk
	Score   float64
	Filters RetrievalFilters
}

// Ref returns the citation reference for this evidence.
func (e *Evidence) Ref() SourceRef {
	return SourceRef{
		ChunkID:     e.Chunk.ID,
		SectionPath: e.Chunk.SectionPath,
		Score:       e.Score,
	}
}
