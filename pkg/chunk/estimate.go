package chunk

import "unicode/utf8"

// charsPerToken is the heuristic ratio used for local token estimation.
// Assembly and chunk sizing must not suspend on a tokenizer service, so
// sizes are estimated, not exact.
const charsPerToken = 4

// EstimateTokens approximates the token count of a text.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	return (n + charsPerToken - 1) / charsPerToken
}
