package content

import (
	"errors"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
)

var titleRe = regexp.MustCompile(`(?m)^#\s+(.+?)\s*$`)

// ParseDocument decodes one content file into a Document. The frontmatter
// schema is closed: unknown fields are rejected so typos in authoring
// metadata surface at ingestion, not as silently dropped hints.
func ParseDocument(path string, raw []byte) (*model.Document, error) {
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")

	meta, body, ok := splitFrontmatter(text)
	var fm model.Frontmatter
	if ok {
		dec := yaml.NewDecoder(strings.NewReader(meta))
		dec.KnownFields(true)
		if err := dec.Decode(&fm); err != nil && !errors.Is(err, io.EOF) {
			return nil, goerr.Wrap(model.ErrInvalidInput, "malformed frontmatter",
				goerr.V("path", path), goerr.V("cause", err))
		}
	}

	kind, err := inferKind(path, fm, body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to classify document", goerr.V("path", path))
	}

	sectionPath := SectionPath(path)

	docID := model.DocumentID(fm.ID)
	if docID == "" {
		docID = model.DocumentID(sectionPath)
	}

	title := fm.Title
	if title == "" {
		if m := titleRe.FindStringSubmatch(body); m != nil {
			title = m[1]
		} else {
			title = filepath.Base(sectionPath)
		}
	}

	return &model.Document{
		ID:          docID,
		SectionPath: sectionPath,
		Title:       title,
		Kind:        kind,
		Draft:       fm.Draft,
		Body:        body,
	}, nil
}

// SectionPath derives the section path from a relative file path:
// extension stripped, index files collapse into their directory.
func SectionPath(path string) string {
	p := strings.TrimSuffix(path, filepath.Ext(path))
	for _, index := range []string{"/index", "/README"} {
		if strings.HasSuffix(p, index) {
			return strings.TrimSuffix(p, index)
		}
	}
	return p
}

func splitFrontmatter(text string) (meta, body string, ok bool) {
	rest, found := strings.CutPrefix(text, "---\n")
	if !found {
		return "", text, false
	}
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", text, false
	}
	meta = rest[:end]
	body = strings.TrimPrefix(rest[end+len("\n---"):], "\n")
	return meta, body, true
}

func inferKind(path string, fm model.Frontmatter, body string) (model.ContentKind, error) {
	if fm.Kind != "" {
		return model.ParseContentKind(fm.Kind)
	}

	base := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	switch {
	case strings.Contains(base, "exercise"), strings.Contains(base, "quiz"), strings.Contains(base, "assignment"):
		return model.KindExercise, nil
	case strings.Contains(base, "summary"), strings.Contains(base, "recap"):
		return model.KindSummary, nil
	}

	if fencedShare(body) > 0.5 {
		return model.KindCode, nil
	}
	return model.KindNarrative, nil
}

// fencedShare returns the fraction of non-blank lines that sit inside (or
// delimit) code fences.
func fencedShare(body string) float64 {
	var total, fenced int
	inFence := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			total++
			fenced++
			continue
		}
		if trimmed == "" {
			continue
		}
		total++
		if inFence {
			fenced++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(fenced) / float64(total)
}
