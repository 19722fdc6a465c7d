package chunking

import (
	"unicode"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
)

const DefaultMaxChars = 1500

// Splitter cuts text into chunks of at most MaxChars runes, preferring paragraph
// breaks, then sentence ends, then any whitespace. Words are never split.
type Splitter struct {
	MaxChars int
	Overlap  int
}

func NewSplitter(maxChars, overlap int) *Splitter {
	maxChars, overlap = normalize(maxChars, overlap)
	return &Splitter{
		MaxChars: maxChars,
		Overlap:  overlap,
	}
}

func (s *Splitter) Chunk(documentID, text string) []domain.Chunk {
	return Split(documentID, text, s.MaxChars, s.Overlap)
}

// Split is deterministic: identical input always yields the identical chunk sequence.
// A single word longer than maxChars becomes its own oversized chunk.
func Split(documentID, text string, maxChars, overlap int) []domain.Chunk {
	maxChars, overlap = normalize(maxChars, overlap)
	runes := []rune(text)

	var out []domain.Chunk
	start := skipSpace(runes, 0)
	for start < len(runes) {
		end := splitPoint(runes, start, maxChars)

		trimmed := end
		for trimmed > start && unicode.IsSpace(runes[trimmed-1]) {
			trimmed--
		}
		if trimmed > start {
			out = append(out, domain.Chunk{
				SourceDocumentID: documentID,
				SequenceIndex:    len(out),
				Text:             string(runes[start:trimmed]),
				CharOffset:       start,
			})
		}
		if end >= len(runes) {
			break
		}

		next := skipSpace(runes, end)
		if overlap > 0 {
			if back := overlapStart(runes, start, end, overlap); back < next {
				next = back
			}
		}
		start = next
	}
	return out
}

func normalize(maxChars, overlap int) (int, int) {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxChars {
		overlap = maxChars / 4
	}
	return maxChars, overlap
}

func splitPoint(runes []rune, start, maxChars int) int {
	limit := start + maxChars
	if limit >= len(runes) {
		return len(runes)
	}

	minSplit := start + maxChars/2
	if minSplit <= start {
		minSplit = start + 1
	}

	// paragraph break
	for i := limit - 1; i >= minSplit; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i
		}
	}
	// sentence end followed by whitespace
	for i := limit; i >= minSplit; i-- {
		if unicode.IsSpace(runes[i]) && isSentenceEnd(runes[i-1]) {
			return i
		}
	}
	if unicode.IsSpace(runes[limit]) {
		return limit
	}
	for i := limit - 1; i > start; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}

	// oversized word: emit it whole
	i := limit
	for i < len(runes) && !unicode.IsSpace(runes[i]) {
		i++
	}
	return i
}

// overlapStart steps back roughly overlap runes from end, snapped forward to a word start.
// The result is always past start so the loop makes progress.
func overlapStart(runes []rune, start, end, overlap int) int {
	candidate := end - overlap
	if candidate <= start {
		return end
	}
	for candidate < end && !unicode.IsSpace(runes[candidate-1]) {
		candidate++
	}
	candidate = skipSpace(runes, candidate)
	if candidate >= end {
		return skipSpace(runes, end)
	}
	return candidate
}

func skipSpace(runes []rune, i int) int {
	for i < len(runes) && unicode.IsSpace(runes[i]) {
		i++
	}
	return i
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', ';', ':':
		return true
	default:
		return false
	}
}
