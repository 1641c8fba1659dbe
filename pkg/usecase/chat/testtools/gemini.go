package testtools

import (
	"context"
	"iter"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/adapter"
)

// geminiStub is a scripted stand-in for the generator. Answers stream
// word by word in configuration order (the last answer repeats), and
// embeddings are a constant unit vector so similarity scores are fully
// controlled by the vectors tests seed into the index.
type geminiStub struct {
	mu sync.Mutex

	answers  []string
	failures int

	generateCalls int
	embedCalls    int

	lastConfig   *genai.GenerateContentConfig
	lastContents []*genai.Content
}

func NewGemini(answers ...string) *geminiStub {
	return &geminiStub{answers: answers}
}

// FailGenerations makes the next n generation attempts fail before any
// text is produced.
func (g *geminiStub) FailGenerations(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = n
}

func (g *geminiStub) GenerateCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generateCalls
}

func (g *geminiStub) EmbedCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.embedCalls
}

// LastSystemText returns the system instruction of the most recent
// generation request.
func (g *geminiStub) LastSystemText() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastConfig == nil || g.lastConfig.SystemInstruction == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range g.lastConfig.SystemInstruction.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// LastContents returns the contents of the most recent generation request.
func (g *geminiStub) LastContents() []*genai.Content {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastContents
}

func (g *geminiStub) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	answer, fail := g.begin(contents, config)
	if fail {
		return nil, goerr.New("scripted generator failure")
	}
	return textResponse(answer), nil
}

func (g *geminiStub) GenerateStream(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	answer, fail := g.begin(contents, config)

	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		if fail {
			yield(nil, goerr.New("scripted generator failure"))
			return
		}
		for _, part := range strings.SplitAfter(answer, " ") {
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}
			if !yield(textResponse(part), nil) {
				return
			}
		}
	}
}

func (g *geminiStub) Embed(ctx context.Context, texts []string, task adapter.EmbeddingTask) ([][]float32, error) {
	g.mu.Lock()
	g.embedCalls++
	g.mu.Unlock()

	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0, 0}
	}
	return vectors, nil
}

// begin records one generation call and picks its scripted outcome.
func (g *geminiStub) begin(contents []*genai.Content, config *genai.GenerateContentConfig) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.generateCalls++
	g.lastContents = contents
	g.lastConfig = config

	if g.failures > 0 {
		g.failures--
		return "", true
	}

	if len(g.answers) == 0 {
		return "no scripted answer", false
	}
	answer := g.answers[0]
	if len(g.answers) > 1 {
		g.answers = g.answers[1:]
	}
	return answer, false
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text}}}},
		},
	}
}
