package chat

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/chunk"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
)

//go:embed prompt/system.md
var systemPromptRaw string

//go:embed prompt/selection.md
var selectionPromptRaw string

//go:embed prompt/evidence.md
var evidencePromptRaw string

//go:embed prompt/not_covered.md
var notCoveredAnswer string

var (
	selectionPromptTmpl = template.Must(template.New("selection").Parse(selectionPromptRaw))
	evidencePromptTmpl  = template.Must(template.New("evidence").Parse(evidencePromptRaw))
)

// prompt is one fully assembled generation request.
type prompt struct {
	system   string
	contents []*genai.Content
	tokens   int
	sources  []model.SourceRef
}

// assemble builds the generation request under the prompt token budget.
// The system text, the highlighted selection and the question itself are
// mandatory. Evidence fills the space below the history reserve in score
// order, and recent history takes whatever remains.
func (u *UseCase) assemble(input *model.AskInput, history []*model.Message, evidence []*model.Evidence) (*prompt, error) {
	var sys strings.Builder
	sys.WriteString(systemPromptRaw)

	if sel := input.Selection(); sel != nil {
		var buf bytes.Buffer
		if err := selectionPromptTmpl.Execute(&buf, sel); err != nil {
			return nil, goerr.Wrap(err, "failed to execute selection prompt template")
		}
		sys.WriteString("\n\n")
		sys.Write(buf.Bytes())
	}

	used := chunk.EstimateTokens(sys.String()) + chunk.EstimateTokens(input.Question)
	if used > u.promptBudget {
		return nil, goerr.Wrap(model.ErrPromptTooLarge, "question and selection exceed the prompt budget",
			goerr.V("tokens", used), goerr.V("budget", u.promptBudget))
	}

	var sources []model.SourceRef
	ceiling := u.promptBudget - u.historyReserve
	for _, ev := range evidence {
		var buf bytes.Buffer
		if err := evidencePromptTmpl.Execute(&buf, map[string]any{
			"ID":          ev.Chunk.ID,
			"SectionPath": ev.Chunk.SectionPath,
			"Text":        ev.Chunk.Text,
		}); err != nil {
			return nil, goerr.Wrap(err, "failed to execute evidence prompt template")
		}
		block := "\n\n" + buf.String()
		cost := chunk.EstimateTokens(block)
		if used+cost > ceiling {
			break
		}
		sys.WriteString(block)
		used += cost
		sources = append(sources, ev.Ref())
	}

	contents, used := u.recentHistory(history, used)
	contents = append(contents, genai.NewContentFromText(input.Question, genai.RoleUser))

	return &prompt{
		system:   sys.String(),
		contents: contents,
		tokens:   used,
		sources:  sources,
	}, nil
}

// recentHistory converts as many trailing messages as fit into the
// remaining budget, returned in chronological order. Messages are taken
// newest first so the tail of a long conversation survives.
func (u *UseCase) recentHistory(history []*model.Message, used int) ([]*genai.Content, int) {
	var picked []*model.Message
	for i := len(history) - 1; i >= 0; i-- {
		cost := chunk.EstimateTokens(history[i].Text)
		if used+cost > u.promptBudget {
			break
		}
		picked = append(picked, history[i])
		used += cost
	}

	contents := make([]*genai.Content, 0, len(picked)+1)
	for i := len(picked) - 1; i >= 0; i-- {
		msg := picked[i]
		role := genai.Role(genai.RoleUser)
		if msg.Role == model.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Text, role))
	}
	return contents, used
}

// generationConfig returns the tuned config for tutoring answers. Low
// temperature keeps answers anchored to the excerpts.
func (u *UseCase) generationConfig(system string) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, ""),
		Temperature:       genai.Ptr(float32(0.3)),
		TopP:              genai.Ptr(float32(0.95)),
		TopK:              genai.Ptr(float32(40)),
		MaxOutputTokens:   2048,
	}
}
