package chunk

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
)

// Policy controls chunk sizing for one content kind.
type Policy struct {
	// TargetTokens is the preferred chunk size.
	TargetTokens int
	// OverlapRatio is the share of TargetTokens carried as trailing
	// sentences into the next chunk. Zero disables overlap.
	OverlapRatio float64
	// MinTokens keeps short self-contained units whole: a remainder
	// below this size is merged into the previous chunk instead of
	// becoming its own.
	MinTokens int
}

func defaultPolicies() map[model.ContentKind]Policy {
	return map[model.ContentKind]Policy{
		model.KindNarrative: {TargetTokens: 500, OverlapRatio: 0.15},
		model.KindCode:      {TargetTokens: 600, OverlapRatio: 0.20},
		model.KindExercise:  {TargetTokens: 500, MinTokens: 120},
		model.KindSummary:   {TargetTokens: 500, MinTokens: 120},
	}
}

// Chunker splits documents into retrievable units with type-aware sizing
// and stable, reproducible identifiers.
type Chunker struct {
	policies map[model.ContentKind]Policy
}

type Option func(*Chunker)

// WithPolicy overrides the sizing policy for a content kind.
func WithPolicy(kind model.ContentKind, p Policy) Option {
	return func(c *Chunker) {
		c.policies[kind] = p
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{policies: defaultPolicies()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Split chunks a document. The result is deterministic: re-running on an
// unchanged document yields identical ids, text, and ordinals.
func (c *Chunker) Split(doc *model.Document) ([]*model.Chunk, error) {
	if doc.ID == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "document id is required")
	}
	if strings.TrimSpace(doc.Body) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "document body is empty",
			goerr.V("document", doc.ID))
	}

	policy, ok := c.policies[doc.Kind]
	if !ok {
		policy = c.policies[model.KindNarrative]
	}

	var chunks []*model.Chunk
	ordinal := 0
	for _, sec := range splitSections(doc.Body) {
		sectionPath := doc.SectionPath
		if sec.title != "" {
			sectionPath = sectionPath + "/" + sec.title
		}

		units := segmentUnits(sec.body)
		if len(units) == 0 {
			continue
		}

		for _, text := range packUnits(units, policy) {
			chunks = append(chunks, &model.Chunk{
				ID:               model.NewChunkID(doc.ID, ordinal),
				Text:             text,
				SourceDocumentID: doc.ID,
				SectionPath:      sectionPath,
				Kind:             doc.Kind,
				Ordinal:          ordinal,
				TokenCount:       EstimateTokens(text),
			})
			ordinal++
		}
	}

	if len(chunks) == 0 {
		return nil, goerr.Wrap(model.ErrInvalidInput, "document produced no chunks",
			goerr.V("document", doc.ID))
	}
	return chunks, nil
}

// packUnits groups units into chunk texts under the policy. Code blocks
// stay atomic: a block at or above the target size becomes its own chunk.
// A lone unit with no sentence boundary within twice the target is
// emitted oversized rather than erroring.
func packUnits(units []unit, policy Policy) []string {
	var texts []string
	var cur []unit
	curTokens := 0
	fresh := 0 // units added since the last overlap seed

	render := func(us []unit) string {
		var b strings.Builder
		for i, u := range us {
			if i > 0 {
				if u.code || us[i-1].code {
					b.WriteString("\n\n")
				} else {
					b.WriteString(" ")
				}
			}
			b.WriteString(u.text)
		}
		return b.String()
	}

	overlapSeed := func(us []unit) []unit {
		if policy.OverlapRatio <= 0 {
			return nil
		}
		budget := int(float64(policy.TargetTokens) * policy.OverlapRatio)
		var seed []unit
		total := 0
		for i := len(us) - 1; i >= 0; i-- {
			u := us[i]
			if u.code {
				break
			}
			if total+u.tokens > budget && len(seed) > 0 {
				break
			}
			seed = append([]unit{u}, seed...)
			total += u.tokens
			if total >= budget {
				break
			}
		}
		return seed
	}

	flush := func(carry bool) {
		if len(cur) == 0 {
			return
		}
		texts = append(texts, render(cur))
		var seed []unit
		if carry {
			seed = overlapSeed(cur)
		}
		cur = cur[:0]
		curTokens = 0
		fresh = 0
		for _, u := range seed {
			cur = append(cur, u)
			curTokens += u.tokens
		}
	}

	for _, u := range units {
		if u.code && u.tokens >= policy.TargetTokens {
			flush(false)
			texts = append(texts, u.text)
			continue
		}
		if !u.code && u.tokens >= 2*policy.TargetTokens && fresh == 0 {
			flush(false)
			texts = append(texts, u.text)
			continue
		}
		if curTokens+u.tokens > policy.TargetTokens && fresh > 0 {
			flush(true)
		}
		cur = append(cur, u)
		curTokens += u.tokens
		fresh++
	}
	flush(false)

	// Keep short self-contained remainders whole instead of emitting a
	// fragment below the minimum size
	if policy.MinTokens > 0 && len(texts) > 1 {
		last := texts[len(texts)-1]
		if EstimateTokens(last) < policy.MinTokens {
			texts[len(texts)-2] = texts[len(texts)-2] + " " + last
			texts = texts[:len(texts)-1]
		}
	}

	return texts
}
