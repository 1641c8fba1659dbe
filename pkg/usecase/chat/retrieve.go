package chat

import (
	"context"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/adapter"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
)

// retrieve embeds the question and searches the index. Candidates are
// over-fetched so deduplication still leaves enough distinct chunks.
func (u *UseCase) retrieve(ctx context.Context, input *model.AskInput) ([]*model.Evidence, error) {
	ctx, cancel := context.WithTimeout(ctx, u.retrievalTimeout)
	defer cancel()

	vectors, err := u.gemini.Embed(ctx, []string{input.Question}, adapter.TaskRetrievalQuery)
	if err != nil {
		return nil, goerr.Wrap(model.ErrRetrievalUnavailable, "failed to embed question",
			goerr.V("cause", err))
	}

	results, err := u.index.Search(ctx, adapter.SearchInput{
		Vector:   vectors[0],
		Limit:    u.topK * u.overfetchFactor,
		MinScore: u.scoreThreshold,
		Filters:  model.RetrievalFilters{SectionPath: input.SectionScope},
	})
	if err != nil {
		return nil, err
	}

	return u.prune(results, u.topK), nil
}

// SearchInput describes one standalone retrieval query.
type SearchInput struct {
	Query        string
	Limit        int
	Kind         model.ContentKind
	SectionScope string
}

// Search runs retrieval alone: embed the query, search the index, prune
// near-duplicates. No prompt is assembled and no session is touched. This
// is the path behind the search tooling.
func (u *UseCase) Search(ctx context.Context, input SearchInput) ([]*model.Evidence, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "query is required")
	}
	k := input.Limit
	if k <= 0 {
		k = u.topK
	}

	ctx, cancel := context.WithTimeout(ctx, u.retrievalTimeout)
	defer cancel()

	vectors, err := u.gemini.Embed(ctx, []string{input.Query}, adapter.TaskRetrievalQuery)
	if err != nil {
		return nil, goerr.Wrap(model.ErrRetrievalUnavailable, "failed to embed query",
			goerr.V("cause", err))
	}

	results, err := u.index.Search(ctx, adapter.SearchInput{
		Vector:   vectors[0],
		Limit:    k * u.overfetchFactor,
		MinScore: u.scoreThreshold,
		Filters: model.RetrievalFilters{
			SectionPath: input.SectionScope,
			Kind:        input.Kind,
		},
	})
	if err != nil {
		return nil, err
	}

	return u.prune(results, k), nil
}

// prune orders candidates by score, drops near-duplicates from the same
// document, and keeps the top k results.
func (u *UseCase) prune(results []*model.Evidence, k int) []*model.Evidence {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.Ordinal < results[j].Chunk.Ordinal
	})

	kept := make([]*model.Evidence, 0, k)
	for _, ev := range results {
		if duplicated(kept, ev, u.dedupeThreshold) {
			continue
		}
		kept = append(kept, ev)
		if len(kept) == k {
			break
		}
	}
	return kept
}

// duplicated reports whether ev repeats an already kept chunk of the same
// document. Adjacent window chunks share their overlap region, so a high
// word overlap means the reader would see the same passage twice.
func duplicated(kept []*model.Evidence, ev *model.Evidence, threshold float64) bool {
	for _, k := range kept {
		if k.Chunk.SourceDocumentID != ev.Chunk.SourceDocumentID {
			continue
		}
		if wordOverlap(k.Chunk.Text, ev.Chunk.Text) > threshold {
			return true
		}
	}
	return false
}

// wordOverlap is the Jaccard similarity of the two texts' word sets.
func wordOverlap(a, b string) float64 {
	sa, sb := wordSet(a), wordSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	var both int
	for w := range sa {
		if _, ok := sb[w]; ok {
			both++
		}
	}
	union := len(sa) + len(sb) - both
	return float64(both) / float64(union)
}

func wordSet(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = struct{}{}
	}
	return set
}
