package voice

import (
	"strings"
	"unicode/utf8"
)

// maxSegmentBytes is the per-request text limit both synthesis providers enforce.
const maxSegmentBytes = 1024

// splitForSynthesis cuts text into segments of at most maxBytes, preferring
// sentence ends, then commas, then whitespace, and never splitting a rune.
func splitForSynthesis(text string, maxBytes int) []string {
	text = normalizeSegment(text)
	if text == "" {
		return nil
	}
	if maxBytes <= 0 {
		maxBytes = maxSegmentBytes
	}
	var out []string
	for len(text) > maxBytes {
		cut := segmentBoundary(text, maxBytes)
		if seg := normalizeSegment(text[:cut]); seg != "" {
			out = append(out, seg)
		}
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

// segmentBoundary returns a byte offset in (0, maxBytes] at which to cut.
func segmentBoundary(text string, maxBytes int) int {
	window := text[:runeFloor(text, maxBytes)]
	if idx := lastIndexOfAny(window, sentenceEnds); idx > 0 {
		return idx
	}
	if idx := lastIndexOfAny(window, clauseEnds); idx > 0 {
		return idx
	}
	if idx := strings.LastIndexAny(window, " \t\n"); idx > 0 {
		return idx
	}
	if len(window) == 0 {
		_, size := utf8.DecodeRuneInString(text)
		return size
	}
	return len(window)
}

var (
	sentenceEnds = []string{".", "!", "?", ";", "\n", "。", "！", "？", "；"}
	clauseEnds   = []string{",", ":", "，", "、", "："}
)

// lastIndexOfAny returns the offset just past the last separator in s.
func lastIndexOfAny(s string, seps []string) int {
	best := -1
	for _, sep := range seps {
		if i := strings.LastIndex(s, sep); i >= 0 && i+len(sep) > best {
			best = i + len(sep)
		}
	}
	return best
}

// runeFloor moves n back to the start of a rune.
func runeFloor(s string, n int) int {
	if n >= len(s) {
		return len(s)
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

func normalizeSegment(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return strings.Join(strings.Fields(raw), " ")
}
