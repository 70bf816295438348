// Package textsplit splits plain text into overlapping fixed-size passages
// suitable for embedding and retrieval.
package textsplit

const (
	// DefaultChunkSize is the maximum passage length in characters.
	DefaultChunkSize = 1000

	// DefaultOverlap is how far each passage reaches back into its predecessor.
	DefaultOverlap = 100
)

// separators is the boundary cascade, tried in order. A passage is cut at
// the last occurrence of the first separator found inside the window;
// when none matches, the cut falls on a raw character boundary.
var separators = []string{"\n\n", "\n", ". ", " "}

// Splitter produces overlapping chunks of at most chunkSize characters,
// preferring natural boundaries. Splitting is deterministic: the same
// input always yields the same chunk boundaries.
type Splitter struct {
	chunkSize int
	overlap   int
}

// New creates a Splitter. Non-positive arguments fall back to defaults;
// the overlap is clamped to at most half the chunk size.
func New(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	// A cut always lands past the window midpoint, so an overlap of at
	// most half the chunk size keeps every step moving forward with a
	// constant overlap.
	if overlap > chunkSize/2 {
		overlap = chunkSize / 2
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}
}

// Split cuts text into chunks of at most chunkSize characters where each
// chunk after the first starts overlap characters before the end of the
// previous one. Every chunk is an exact substring of the input, so
// concatenating the non-overlapping prefixes reconstructs the original
// text. Empty input yields no chunks.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for {
		end := start + s.chunkSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			return chunks
		}

		end = s.cut(runes, start, end)
		chunks = append(chunks, string(runes[start:end]))

		// end is past the window midpoint and overlap is at most half
		// the window, so the next start strictly advances.
		start = end - s.overlap
	}
}

// cut finds the boundary to end a chunk at, scanning the window
// [start, limit) backwards for each separator in cascade order. A boundary
// in the first half of the window is skipped in favor of the next
// separator, so an early paragraph break cannot shrink the chunk to a
// fragment. The chunk keeps the separator so that substring concatenation
// stays lossless.
func (s *Splitter) cut(runes []rune, start, limit int) int {
	min := start + (limit-start)/2
	for _, sep := range separators {
		if pos := lastIndex(runes, []rune(sep), start+1, limit); pos >= 0 {
			if end := pos + len([]rune(sep)); end > min {
				return end
			}
		}
	}
	return limit
}

// lastIndex returns the highest index i in [from, to) such that sep starts
// at i and ends at or before to. Returns -1 when sep does not occur.
func lastIndex(runes, sep []rune, from, to int) int {
	for i := to - len(sep); i >= from; i-- {
		match := true
		for j := range sep {
			if runes[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
