package ingest

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/adapter"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/chunk"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/content"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/utils/logging"
)

// UseCase provides content ingestion operations
type UseCase struct {
	gemini    adapter.Gemini
	index     adapter.VectorIndex
	analytics adapter.Analytics
	chunker   *chunk.Chunker
	policy    *Policy
	batchSize int
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithPolicy sets the content admission policy
func WithPolicy(p *Policy) Option {
	return func(uc *UseCase) {
		uc.policy = p
	}
}

// WithChunker overrides the default chunking policies
func WithChunker(c *chunk.Chunker) Option {
	return func(uc *UseCase) {
		uc.chunker = c
	}
}

// WithAnalytics sets the usage event sink
func WithAnalytics(a adapter.Analytics) Option {
	return func(uc *UseCase) {
		uc.analytics = a
	}
}

// WithBatchSize sets how many chunk texts go into one embedding request
func WithBatchSize(n int) Option {
	return func(uc *UseCase) {
		uc.batchSize = n
	}
}

// New creates a new ingestion UseCase instance
func New(gemini adapter.Gemini, index adapter.VectorIndex, opts ...Option) *UseCase {
	uc := &UseCase{
		gemini:    gemini,
		index:     index,
		analytics: adapter.NewNopAnalytics(),
		chunker:   chunk.New(),
		batchSize: 32,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// DocumentError records one document that failed during a batch run.
type DocumentError struct {
	Path string
	Err  error
}

// Result summarizes one ingestion run over a source.
type Result struct {
	Ingested   int
	Skipped    int
	ChunkCount int
	Errors     []*DocumentError
}

// IngestSource ingests every content file the source lists. Documents fail
// independently: a malformed or rejected file is recorded in the result and
// the rest of the batch proceeds.
func (u *UseCase) IngestSource(ctx context.Context, src content.Source) (*Result, error) {
	paths, err := src.List(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, path := range paths {
		count, err := u.ingestPath(ctx, src, path)
		if err != nil {
			logging.From(ctx).Error("failed to ingest document", "path", path, "error", err)
			result.Errors = append(result.Errors, &DocumentError{Path: path, Err: err})
			continue
		}
		if count == 0 {
			result.Skipped++
			continue
		}
		result.Ingested++
		result.ChunkCount += count
	}
	return result, nil
}

func (u *UseCase) ingestPath(ctx context.Context, src content.Source, path string) (int, error) {
	raw, err := src.Read(ctx, path)
	if err != nil {
		return 0, err
	}
	doc, err := content.ParseDocument(path, raw)
	if err != nil {
		return 0, err
	}
	return u.IngestDocument(ctx, doc)
}

// IngestDocument chunks, embeds, and indexes one document, replacing all
// chunks of any prior version. Returns the number of chunks indexed; zero
// with a nil error means the document was withheld from the index.
func (u *UseCase) IngestDocument(ctx context.Context, doc *model.Document) (int, error) {
	if doc.Draft {
		logging.From(ctx).Info("skipping draft document", "id", doc.ID)
		return 0, nil
	}
	reasons, err := u.policy.Deny(ctx, doc)
	if err != nil {
		return 0, err
	}
	if len(reasons) > 0 {
		logging.From(ctx).Info("document withheld by policy", "id", doc.ID, "reasons", reasons)
		return 0, nil
	}

	chunks, err := u.chunker.Split(doc)
	if err != nil {
		return 0, err
	}

	vectors, err := u.embedAll(ctx, chunks)
	if err != nil {
		return 0, err
	}

	entries := make([]*adapter.IndexEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = &adapter.IndexEntry{Chunk: c, Vector: vectors[i]}
	}

	// Delete first so chunks of a shrunken document do not linger under
	// stale ordinals.
	if err := u.index.DeleteByDocument(ctx, doc.ID); err != nil {
		return 0, err
	}
	if err := u.index.Upsert(ctx, entries); err != nil {
		return 0, err
	}

	u.recordIngested(ctx, doc, len(chunks))
	return len(chunks), nil
}

func (u *UseCase) embedAll(ctx context.Context, chunks []*model.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += u.batchSize {
		end := min(start+u.batchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		batch, err := u.gemini.Embed(ctx, texts, adapter.TaskRetrievalDocument)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to embed chunk batch",
				goerr.V("offset", start), goerr.V("size", len(texts)))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (u *UseCase) recordIngested(ctx context.Context, doc *model.Document, chunkCount int) {
	event := &model.UsageEvent{
		Kind:       model.UsageIngested,
		DocumentID: doc.ID,
		ChunkCount: chunkCount,
		CreatedAt:  time.Now(),
	}
	if err := u.analytics.Insert(ctx, event); err != nil {
		logging.From(ctx).Warn("failed to record ingest event", "error", err)
	}
}
