// Package chunker splits document text into overlapping segments sized for
// embedding and generation context limits.
//
// Splitting is deterministic: the same text with the same parameters always
// yields byte-identical chunks, which makes re-indexing after a document
// edit safe. Boundaries prefer sentence breaks over mid-word splits.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the target chunk size in estimated tokens.
	DefaultChunkSize = 400

	// DefaultOverlap is the token overlap carried between adjacent chunks so
	// context spanning a boundary is retrievable from either side.
	DefaultOverlap = 50
)

// EstimateTokens provides a rough token count for budget decisions.
// Uses rune count divided by 2 as a conservative estimate that works for
// both English (~4 chars/token) and CJK (~1.5 chars/token) text.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 2
}

// Chunker splits text into token-bounded segments.
// The zero value is not usable; construct with New.
type Chunker struct {
	size    int // target tokens per chunk
	overlap int // tokens repeated from the previous chunk
}

// New creates a Chunker with the given target size and overlap, both in
// estimated tokens. Non-positive size falls back to DefaultChunkSize; an
// overlap outside [0, size) falls back to DefaultOverlap (clamped below size).
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultOverlap
		if overlap >= size {
			overlap = size / 4
		}
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split divides text into chunks. Non-empty input yields at least one chunk;
// input shorter than one chunk yields exactly one. Whitespace-only input
// yields nil.
func (c *Chunker) Split(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if EstimateTokens(trimmed) <= c.size {
		return []string{trimmed}
	}

	var (
		chunks  []string
		current []string // sentence units in the chunk under construction
		tokens  int
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, " "))

		// Seed the next chunk with the tail of this one, newest sentences
		// first, until the overlap budget is spent.
		var carry []string
		carryTokens := 0
		for i := len(current) - 1; i >= 0; i-- {
			t := EstimateTokens(current[i])
			if carryTokens+t > c.overlap {
				break
			}
			carry = append([]string{current[i]}, carry...)
			carryTokens += t
		}
		current = carry
		tokens = carryTokens
	}

	for _, sentence := range splitSentences(trimmed) {
		for _, unit := range c.bound(sentence) {
			t := EstimateTokens(unit)
			if tokens+t > c.size && len(current) > 0 {
				flush()
			}
			current = append(current, unit)
			tokens += t
		}
	}
	if len(current) > 0 {
		// The final carry alone is a pure repeat of the previous chunk tail;
		// only emit when it contains new material.
		last := strings.Join(current, " ")
		if len(chunks) == 0 || !strings.HasSuffix(chunks[len(chunks)-1], last) {
			chunks = append(chunks, last)
		}
	}

	return chunks
}

// bound splits a single sentence that exceeds the chunk size into word
// windows. Sentences within budget pass through unchanged, so boundaries
// stay on sentence breaks wherever possible.
func (c *Chunker) bound(sentence string) []string {
	if EstimateTokens(sentence) <= c.size {
		return []string{sentence}
	}

	words := strings.Fields(sentence)
	var out []string
	var run []string
	runTokens := 0
	for _, w := range words {
		t := EstimateTokens(w) + 1
		if runTokens+t > c.size && len(run) > 0 {
			out = append(out, strings.Join(run, " "))
			run = run[:0]
			runTokens = 0
		}
		run = append(run, w)
		runTokens += t
	}
	if len(run) > 0 {
		out = append(out, strings.Join(run, " "))
	}
	return out
}

// splitSentences cuts text into sentence units. A unit ends after
// terminating punctuation followed by whitespace, or at a line break.
// Text without terminators comes back as a single unit.
func splitSentences(text string) []string {
	var (
		units []string
		start int
	)

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		terminal := r == '.' || r == '!' || r == '?'
		if r == '\n' || (terminal && (i+1 == len(runes) || unicode.IsSpace(runes[i+1]))) {
			end := i + 1
			if r == '\n' {
				end = i
			}
			unit := strings.TrimSpace(string(runes[start:end]))
			if unit != "" {
				units = append(units, unit)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		units = append(units, tail)
	}
	return units
}
