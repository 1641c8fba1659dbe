package chunk

import (
	"regexp"
	"strings"
)

var sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]+`)

// splitSentences breaks prose into sentences on terminal punctuation.
// Trailing text without a terminator is kept as a final sentence.
func splitSentences(text string) []string {
	var sentences []string
	last := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		s := strings.TrimSpace(text[loc[0]:loc[1]])
		if s != "" {
			sentences = append(sentences, s)
		}
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// section is a heading-delimited region of a document body.
type section struct {
	title string
	body  string
}

var headingRe = regexp.MustCompile(`^#{1,3}\s+(.+?)\s*$`)

func isFenceLine(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " "), "```")
}

// splitSections divides a body into heading-delimited sections. Headings
// inside fenced code blocks do not start a section. Text before the first
// heading becomes an untitled leading section.
func splitSections(body string) []section {
	var sections []section
	var title string
	var buf []string
	inFence := false

	flush := func() {
		text := strings.TrimSpace(strings.Join(buf, "\n"))
		if text != "" || title != "" {
			sections = append(sections, section{title: title, body: text})
		}
		buf = buf[:0]
	}

	for _, line := range strings.Split(body, "\n") {
		if isFenceLine(line) {
			inFence = !inFence
			buf = append(buf, line)
			continue
		}
		if !inFence {
			if m := headingRe.FindStringSubmatch(line); m != nil {
				flush()
				title = m[1]
				continue
			}
		}
		buf = append(buf, line)
	}
	flush()

	if len(sections) == 0 {
		sections = append(sections, section{})
	}
	return sections
}

// unit is the smallest packing element: a sentence or an atomic fenced
// code block.
type unit struct {
	text   string
	tokens int
	code   bool
}

// segmentUnits breaks a section body into packing units. Fenced code
// blocks are single units and are never split.
func segmentUnits(body string) []unit {
	var units []unit
	var para []string
	var fence []string
	inFence := false

	flushPara := func() {
		text := strings.Join(para, "\n")
		para = para[:0]
		for _, s := range splitSentences(text) {
			units = append(units, unit{text: s, tokens: EstimateTokens(s)})
		}
	}

	for _, line := range strings.Split(body, "\n") {
		if isFenceLine(line) {
			if inFence {
				fence = append(fence, line)
				block := strings.Join(fence, "\n")
				units = append(units, unit{text: block, tokens: EstimateTokens(block), code: true})
				fence = fence[:0]
				inFence = false
			} else {
				flushPara()
				inFence = true
				fence = append(fence, line)
			}
			continue
		}
		if inFence {
			fence = append(fence, line)
			continue
		}
		if strings.TrimSpace(line) == "" {
			flushPara()
			continue
		}
		para = append(para, line)
	}

	// An unterminated fence is kept as a code unit rather than dropped
	if len(fence) > 0 {
		block := strings.Join(fence, "\n")
		units = append(units, unit{text: block, tokens: EstimateTokens(block), code: true})
	}
	flushPara()

	return units
}
