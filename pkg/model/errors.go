package model

import (
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

// Error taxonomy. Callers branch with errors.Is; the wire representation
// comes from ErrorKind.
var (
	// ErrInvalidInput rejects malformed or out-of-bounds request input.
	ErrInvalidInput = goerr.New("invalid input")

	// ErrRetrievalUnavailable means the vector index (or query embedding)
	// could not serve the request after retries. Never reported as an
	// empty result: an empty result is indistinguishable from "nothing
	// relevant exists".
	ErrRetrievalUnavailable = goerr.New("retrieval unavailable")

	// ErrPromptTooLarge means the fixed instruction plus the question do
	// not fit the prompt budget. Fatal for the request, never retried.
	ErrPromptTooLarge = goerr.New("prompt too large")

	// ErrGeneratorUnavailable means the language model service failed.
	ErrGeneratorUnavailable = goerr.New("generator unavailable")

	// ErrGeneratorTimeout means generation exceeded its own deadline,
	// as opposed to a retrieval timeout: the remediation differs.
	ErrGeneratorTimeout = goerr.New("generator timed out")

	// ErrSessionNotFound is returned by session lookup operations.
	ErrSessionNotFound = goerr.New("session not found")
)

// ErrorKind maps an error to its wire kind string.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrRetrievalUnavailable):
		return "retrieval_unavailable"
	case errors.Is(err, ErrPromptTooLarge):
		return "prompt_too_large"
	case errors.Is(err, ErrGeneratorTimeout):
		return "generator_timeout"
	case errors.Is(err, ErrGeneratorUnavailable):
		return "generator_unavailable"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	default:
		return "internal"
	}
}
