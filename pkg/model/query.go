package model

import (
	"strings"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
)

const (
	// MaxQuestionChars bounds the question length in characters.
	MaxQuestionChars = 2000
	// MaxSelectionChars bounds a highlighted excerpt. Enforced before the
	// assembler runs, so an oversized selection is an input error, not a
	// prompt budget error.
	MaxSelectionChars = 5000
)

// AskInput is one question to the assistant, with optional highlighted
// excerpt, section scope, and session continuity.
type AskInput struct {
	Question      string    `json:"question"`
	SelectedText  string    `json:"selectedText,omitempty"`
	SelectionPath string    `json:"selectionPath,omitempty"`
	SectionScope  string    `json:"sectionScope,omitempty"`
	SessionID     SessionID `json:"sessionId,omitempty"`

	// UserID comes from the verified token, never from the request body
	UserID string `json:"-"`
}

// Validate checks input bounds. Violations are ErrInvalidInput.
func (x *AskInput) Validate() error {
	if strings.TrimSpace(x.Question) == "" {
		return goerr.Wrap(ErrInvalidInput, "question is required")
	}
	if n := utf8.RuneCountInString(x.Question); n > MaxQuestionChars {
		return goerr.Wrap(ErrInvalidInput, "question is too long",
			goerr.V("length", n), goerr.V("max", MaxQuestionChars))
	}
	if n := utf8.RuneCountInString(x.SelectedText); n > MaxSelectionChars {
		return goerr.Wrap(ErrInvalidInput, "selected text is too long",
			goerr.V("length", n), goerr.V("max", MaxSelectionChars))
	}
	if x.SectionScope != "" && strings.ContainsAny(x.SectionScope, "\n\r") {
		return goerr.Wrap(ErrInvalidInput, "section scope must be a single line")
	}
	return nil
}

// Selection returns the pinned excerpt, or nil when none was supplied.
func (x *AskInput) Selection() *Selection {
	if x.SelectedText == "" {
		return nil
	}
	return &Selection{Text: x.SelectedText, SectionPath: x.SelectionPath}
}

// Selection is a user-highlighted excerpt: pinned, highest-priority
// evidence. It supplements retrieval, it does not replace it.
type Selection struct {
	Text        string
	SectionPath string
}
