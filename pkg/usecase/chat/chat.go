package chat

import (
	"sync"
	"time"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/adapter"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/repository"
)

// UseCase runs the retrieval-grounded conversation pipeline: retrieve
// evidence for a question, assemble a bounded prompt, stream the answer,
// and keep the session transcript consistent throughout.
type UseCase struct {
	repo      repository.Repository
	gemini    adapter.Gemini
	index     adapter.VectorIndex
	analytics adapter.Analytics

	topK              int
	overfetchFactor   int
	scoreThreshold    float64
	dedupeThreshold   float64
	promptBudget      int
	historyReserve    int
	retrievalTimeout  time.Duration
	generationTimeout time.Duration
	idleTTL           time.Duration

	gate *sessionGate
}

// NewInput contains the dependencies for the chat UseCase
type NewInput struct {
	Repo      repository.Repository
	Gemini    adapter.Gemini
	Index     adapter.VectorIndex
	Analytics adapter.Analytics
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithTopK sets how many evidence chunks one answer may use
func WithTopK(k int) Option {
	return func(uc *UseCase) {
		uc.topK = k
	}
}

// WithOverfetch sets the over-fetch multiplier applied before duplicate
// suppression
func WithOverfetch(factor int) Option {
	return func(uc *UseCase) {
		uc.overfetchFactor = factor
	}
}

// WithScoreThreshold sets the minimum similarity for admitted evidence
func WithScoreThreshold(v float64) Option {
	return func(uc *UseCase) {
		uc.scoreThreshold = v
	}
}

// WithDedupeThreshold sets the word-overlap ratio above which two chunks
// of the same document count as near-duplicates
func WithDedupeThreshold(v float64) Option {
	return func(uc *UseCase) {
		uc.dedupeThreshold = v
	}
}

// WithPromptBudget caps the estimated token size of an assembled prompt
func WithPromptBudget(tokens int) Option {
	return func(uc *UseCase) {
		uc.promptBudget = tokens
	}
}

// WithHistoryReserve keeps a slice of the prompt budget away from evidence
// so conversation history is never fully squeezed out
func WithHistoryReserve(tokens int) Option {
	return func(uc *UseCase) {
		uc.historyReserve = tokens
	}
}

// WithRetrievalTimeout bounds the embed+search stage
func WithRetrievalTimeout(d time.Duration) Option {
	return func(uc *UseCase) {
		uc.retrievalTimeout = d
	}
}

// WithGenerationTimeout bounds one generation attempt
func WithGenerationTimeout(d time.Duration) Option {
	return func(uc *UseCase) {
		uc.generationTimeout = d
	}
}

// WithIdleTTL sets how long an unarchived session survives without activity
func WithIdleTTL(d time.Duration) Option {
	return func(uc *UseCase) {
		uc.idleTTL = d
	}
}

// New creates a new chat UseCase instance
func New(input NewInput, opts ...Option) *UseCase {
	uc := &UseCase{
		repo:      input.Repo,
		gemini:    input.Gemini,
		index:     input.Index,
		analytics: input.Analytics,

		topK:              5,
		overfetchFactor:   3,
		scoreThreshold:    0.7,
		dedupeThreshold:   0.6,
		promptBudget:      6144,
		historyReserve:    1024,
		retrievalTimeout:  10 * time.Second,
		generationTimeout: 60 * time.Second,
		idleTTL:           30 * time.Minute,

		gate: newSessionGate(),
	}

	if uc.analytics == nil {
		uc.analytics = adapter.NewNopAnalytics()
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// sessionGate serializes pipeline runs per session while letting distinct
// sessions proceed independently. Entries are reference-counted so the map
// never grows with dead sessions.
type sessionGate struct {
	mu    sync.Mutex
	locks map[model.SessionID]*gateEntry
}

type gateEntry struct {
	mu   sync.Mutex
	refs int
}

func newSessionGate() *sessionGate {
	return &sessionGate{locks: map[model.SessionID]*gateEntry{}}
}

// acquire blocks until the session is free and returns the release func.
func (g *sessionGate) acquire(id model.SessionID) func() {
	g.mu.Lock()
	entry, ok := g.locks[id]
	if !ok {
		entry = &gateEntry{}
		g.locks[id] = entry
	}
	entry.refs++
	g.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		g.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(g.locks, id)
		}
		g.mu.Unlock()
	}
}
