package ingest

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
)

// Policy gates which documents may enter the index. Rules live in Rego
// under `data.content.deny`: a set of reason strings, empty means admit.
type Policy struct {
	query *rego.PreparedEvalQuery
}

// LoadPolicy loads all Rego files from policyDir and prepares the deny
// query. An empty directory yields a nil policy, which admits everything.
func LoadPolicy(ctx context.Context, policyDir string) (*Policy, error) {
	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files")
	}
	if len(files) == 0 {
		return nil, nil
	}

	options := make([]func(*rego.Rego), 0, len(files)+1)
	options = append(options, rego.Query("data.content.deny"))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		options = append(options, rego.Module(file, string(data)))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare content policy")
	}

	return &Policy{query: &prepared}, nil
}

// Deny evaluates the policy for one document and returns the deny reasons.
// A nil policy denies nothing.
func (p *Policy) Deny(ctx context.Context, doc *model.Document) ([]string, error) {
	if p == nil || p.query == nil {
		return nil, nil
	}

	input := map[string]any{
		"id":          string(doc.ID),
		"sectionPath": doc.SectionPath,
		"title":       doc.Title,
		"kind":        string(doc.Kind),
		"draft":       doc.Draft,
	}

	rs, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate content policy", goerr.V("id", doc.ID))
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, nil
	}

	raw, ok := rs[0].Expressions[0].Value.([]any)
	if !ok {
		return nil, goerr.New("content policy deny is not a set",
			goerr.V("value", rs[0].Expressions[0].Value))
	}

	reasons := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			reasons = append(reasons, s)
		}
	}
	return reasons, nil
}
