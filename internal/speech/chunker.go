// Package speech prepares long text for text-to-speech providers: it splits
// input into provider-sized chunks, synthesizes them with bounded
// concurrency and joins the audio back together in order.
package speech

import (
	"strings"
	"unicode"
)

// DefaultChunkChars is the default maximum chunk length in characters.
const DefaultChunkChars = 4000

// Split divides text into ceil(runes/limit) chunks of at most limit
// characters (runes). Each cut moves back to the latest sentence boundary,
// then the latest whitespace, that still leaves the rest of the text
// fitting in the remaining chunks; otherwise it cuts inside a word.
// Chunks are trimmed. A limit <= 0 uses DefaultChunkChars.
func Split(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultChunkChars
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	total := (len(runes) + limit - 1) / limit
	chunks := make([]string, 0, total)
	start := 0
	for remaining := total; remaining > 0; remaining-- {
		for start < len(runes) && unicode.IsSpace(runes[start]) {
			start++
		}
		if start == len(runes) {
			break
		}
		end := cutPoint(runes, start, limit, remaining)
		if c := strings.TrimSpace(string(runes[start:end])); c != "" {
			chunks = append(chunks, c)
		}
		start = end
	}
	return chunks
}

// cutPoint returns the end of the chunk starting at start. The text after
// the cut must fit in remaining-1 chunks, which bounds how far back the cut
// may move.
func cutPoint(runes []rune, start, limit, remaining int) int {
	n := len(runes)
	hi := min(start+limit, n)
	if hi == n {
		return n
	}
	lo := max(n-(remaining-1)*limit, start+1)

	for p := hi; p >= lo; p-- {
		if sentenceEnd(runes, p) {
			return p
		}
	}
	for p := hi; p >= lo; p-- {
		if unicode.IsSpace(runes[p]) || unicode.IsSpace(runes[p-1]) {
			return p
		}
	}
	return hi
}

// sentenceEnd reports whether a cut before runes[p] ends a sentence or line.
func sentenceEnd(runes []rune, p int) bool {
	prev, next := runes[p-1], runes[p]
	if prev == '\n' || next == '\n' {
		return true
	}
	return (prev == '.' || prev == '!' || prev == '?') && unicode.IsSpace(next)
}
