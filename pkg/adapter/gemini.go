package adapter

import (
	"context"
	"iter"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// EmbeddingTask selects the embedding task type. Query and document
// embeddings of the same text are not comparable across tasks; only
// query-vs-document comparisons are meaningful.
type EmbeddingTask string

const (
	TaskRetrievalQuery    EmbeddingTask = "RETRIEVAL_QUERY"
	TaskRetrievalDocument EmbeddingTask = "RETRIEVAL_DOCUMENT"
)

type Gemini interface {
	GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	// GenerateStream returns a lazy, cancellable sequence of response
	// increments. The sequence is finite and not restartable.
	GenerateStream(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
	// Embed maps texts to fixed-length vectors under the given task.
	Embed(ctx context.Context, texts []string, task EmbeddingTask) ([][]float32, error)
}

type GeminiClient struct {
	client          *genai.Client
	generativeModel string
	embeddingModel  string
	dimension       int32
}

type GeminiOption func(*GeminiClient)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.generativeModel = model
	}
}

func WithEmbeddingModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.embeddingModel = model
	}
}

// WithEmbeddingDimension sets the output dimensionality of embeddings.
// Must match the vector index collection size.
func WithEmbeddingDimension(dim int32) GeminiOption {
	return func(g *GeminiClient) {
		g.dimension = dim
	}
}

// NewGemini creates a Gemini client on the Vertex AI backend.
func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}
	return newGeminiClient(client, opts...), nil
}

// NewGeminiWithAPIKey creates a Gemini client on the Gemini API backend.
func NewGeminiWithAPIKey(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}
	return newGeminiClient(client, opts...), nil
}

func newGeminiClient(client *genai.Client, opts ...GeminiOption) *GeminiClient {
	g := &GeminiClient{
		client:          client,
		generativeModel: "gemini-2.5-flash",
		embeddingModel:  "gemini-embedding-001",
		dimension:       768,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GeminiClient) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate content")
	}
	return resp, nil
}

func (g *GeminiClient) GenerateStream(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	return g.client.Models.GenerateContentStream(ctx, g.generativeModel, contents, config)
}

func (g *GeminiClient) Embed(ctx context.Context, texts []string, task EmbeddingTask) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, goerr.New("no texts to embed")
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	config := &genai.EmbedContentConfig{TaskType: string(task)}
	if g.dimension > 0 {
		config.OutputDimensionality = genai.Ptr(g.dimension)
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content", goerr.V("task", task))
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, goerr.New("embedding count mismatch",
			goerr.V("want", len(texts)), goerr.V("got", len(resp.Embeddings)))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, goerr.New("empty embedding returned", goerr.V("index", i))
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}
