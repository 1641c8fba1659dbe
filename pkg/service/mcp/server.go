package mcp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/usecase/chat"
)

// Server exposes the tutoring pipeline over the Model Context Protocol,
// so agent hosts can ask the textbook questions and search its index.
type Server struct {
	chat   *chat.UseCase
	server *mcp.Server
}

// NewInput contains the dependencies for the MCP server
type NewInput struct {
	Chat *chat.UseCase
}

// New creates a new MCP server instance
func New(input NewInput) (*Server, error) {
	if input.Chat == nil {
		return nil, goerr.New("chat usecase is required")
	}

	s := &Server{
		chat: input.Chat,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "physical-ai-textbook",
			Version: "0.1.0",
		}, nil),
	}
	s.registerTools()
	return s, nil
}

// Run serves over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "mcp server failed")
	}
	return nil
}

// HTTPHandler returns the streamable HTTP form of the server.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return s.server
	}, nil)
}

// RunHTTP serves the streamable HTTP form on addr until ctx is cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return goerr.Wrap(err, "mcp http server failed")
	}
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask_textbook",
		Description: "Ask the Physical AI & Humanoid Robotics textbook a question. Answers are grounded in course material and cite the passages they used.",
		InputSchema: askSchema,
	}, s.AskTextbook)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_textbook",
		Description: "Search the textbook index and return the matching passages without generating an answer.",
		InputSchema: searchSchema,
	}, s.SearchTextbook)
}

var askSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"question": {
			Type:        "string",
			Description: "The question to ask",
		},
		"sessionId": {
			Type:        "string",
			Description: "Session id to continue an earlier conversation",
		},
	},
	Required: []string{"question"},
}

var searchSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"query": {
			Type:        "string",
			Description: "The search query",
		},
		"k": {
			Type:        "integer",
			Description: "Maximum number of passages to return",
		},
		"kind": {
			Type:        "string",
			Description: "Restrict results to one content kind",
			Enum:        []any{"narrative", "code", "exercise", "summary"},
		},
		"sectionScope": {
			Type:        "string",
			Description: "Restrict results to a section subtree, e.g. module-2",
		},
	},
	Required: []string{"query"},
}

// AskInput is the ask_textbook parameter set.
type AskInput struct {
	Question  string `json:"question"`
	SessionID string `json:"sessionId,omitempty"`
}

// AskOutput is the ask_textbook result.
type AskOutput struct {
	Answer    string      `json:"answer"`
	SessionID string      `json:"sessionId"`
	Sources   []SourceRef `json:"sources"`
}

// SourceRef is one cited passage.
type SourceRef struct {
	ChunkID     string  `json:"chunkId"`
	SectionPath string  `json:"sectionPath"`
	Score       float64 `json:"score"`
}

// AskTextbook answers a question through the full pipeline. MCP callers
// are a single trusted principal; per-user identity is not modeled here.
func (s *Server) AskTextbook(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, AskOutput, error) {
	answer, err := s.chat.AskSync(ctx, &model.AskInput{
		Question:  input.Question,
		SessionID: model.SessionID(input.SessionID),
		UserID:    "mcp",
	})
	if err != nil {
		return nil, AskOutput{}, err
	}

	out := AskOutput{
		Answer:    answer.Answer,
		SessionID: string(answer.SessionID),
		Sources:   make([]SourceRef, 0, len(answer.Sources)),
	}
	for _, src := range answer.Sources {
		out.Sources = append(out.Sources, SourceRef{
			ChunkID:     string(src.ChunkID),
			SectionPath: src.SectionPath,
			Score:       src.Score,
		})
	}
	return nil, out, nil
}

// SearchInput is the search_textbook parameter set.
type SearchInput struct {
	Query        string `json:"query"`
	K            int    `json:"k,omitempty"`
	Kind         string `json:"kind,omitempty"`
	SectionScope string `json:"sectionScope,omitempty"`
}

// SearchOutput is the search_textbook result.
type SearchOutput struct {
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

// SearchResult is one matching passage.
type SearchResult struct {
	ChunkID     string  `json:"chunkId"`
	SectionPath string  `json:"sectionPath"`
	Kind        string  `json:"kind"`
	Score       float64 `json:"score"`
	Text        string  `json:"text"`
}

// SearchTextbook runs retrieval alone and returns the scored passages.
func (s *Server) SearchTextbook(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	var kind model.ContentKind
	if input.Kind != "" {
		parsed, err := model.ParseContentKind(input.Kind)
		if err != nil {
			return nil, SearchOutput{}, err
		}
		kind = parsed
	}

	results, err := s.chat.Search(ctx, chat.SearchInput{
		Query:        input.Query,
		Limit:        input.K,
		Kind:         kind,
		SectionScope: input.SectionScope,
	})
	if err != nil {
		return nil, SearchOutput{}, err
	}

	out := SearchOutput{
		Results: make([]SearchResult, 0, len(results)),
		Count:   len(results),
	}
	for _, ev := range results {
		out.Results = append(out.Results, SearchResult{
			ChunkID:     string(ev.Chunk.ID),
			SectionPath: ev.Chunk.SectionPath,
			Kind:        string(ev.Chunk.Kind),
			Score:       ev.Score,
			Text:        ev.Chunk.Text,
		})
	}
	return nil, out, nil
}
