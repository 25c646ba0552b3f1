package knowledge

// chunker.go splits source documents into overlapping chunks sized for
// embedding. Splitting is deterministic: the same input always produces
// the same chunk sequence, which keeps chunk IDs stable across re-indexing.

import "strings"

// Chunking defaults, sized for ~2K-token embedding models.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// SplitText splits text into chunks of at most size runes with overlap
// runes repeated between consecutive chunks. Break points prefer, in
// order: paragraph boundary, sentence end, whitespace; a hard cut only
// happens in pathological unbroken text.
//
// size <= 0 falls back to DefaultChunkSize; overlap is clamped to size/2.
func SplitText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap > size/2 {
		overlap = size / 2
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakPoint(runes, start, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end == len(runes) {
			break
		}
		start = end - overlap
		if start < 0 {
			start = 0
		}
	}

	return chunks
}

// breakPoint finds the best split position in runes[start:limit], searching
// backwards from limit within the final third of the window.
func breakPoint(runes []rune, start, limit int) int {
	floor := start + (limit-start)*2/3

	// Paragraph boundary first.
	for i := limit - 1; i > floor; i-- {
		if runes[i] == '\n' && i > 0 && runes[i-1] == '\n' {
			return i + 1
		}
	}
	// Then sentence end.
	for i := limit - 1; i > floor; i-- {
		if isSentenceEnd(runes[i]) && i+1 < len(runes) && isSpace(runes[i+1]) {
			return i + 1
		}
	}
	// Then any whitespace.
	for i := limit - 1; i > floor; i-- {
		if isSpace(runes[i]) {
			return i + 1
		}
	}
	// Unbroken text: hard cut.
	return limit
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
