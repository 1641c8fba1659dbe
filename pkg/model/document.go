package model

import (
	"github.com/m-mizutani/goerr/v2"
)

type DocumentID string

// ContentKind classifies a document or chunk for retrieval policy purposes.
type ContentKind string

const (
	KindNarrative ContentKind = "narrative"
	KindCode      ContentKind = "code"
	KindExercise  ContentKind = "exercise"
	KindSummary   ContentKind = "summary"
)

// ParseContentKind validates a kind string against the closed set.
func ParseContentKind(s string) (ContentKind, error) {
	switch ContentKind(s) {
	case KindNarrative, KindCode, KindExercise, KindSummary:
		return ContentKind(s), nil
	}
	return "", goerr.Wrap(ErrInvalidInput, "unknown content kind", goerr.V("kind", s))
}

// Document is a unit of course content handed over by the authoring side:
// frontmatter metadata plus the raw MDX body.
type Document struct {
	ID          DocumentID
	SectionPath string
	Title       string
	Kind        ContentKind
	Draft       bool
	Body        string
}

// Frontmatter is the closed metadata schema accepted at the top of a
// content file. Unknown fields are rejected by the loader.
type Frontmatter struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
	Kind  string `yaml:"kind"`
	Draft bool   `yaml:"draft"`
}
