package textsplit

import (
	"strings"
	"testing"
)

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	s := New(1000, 100)

	chunks := s.Split("just a short paragraph")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "just a short paragraph" {
		t.Errorf("chunk content altered: %q", chunks[0])
	}
}

func TestSplit_EmptyTextNoChunks(t *testing.T) {
	s := New(1000, 100)

	if chunks := s.Split(""); chunks != nil {
		t.Errorf("expected no chunks for empty text, got %d", len(chunks))
	}
}

// TestSplit_FixedOverlapWindows checks the 1500-char page scenario:
// chunk size 1000 / overlap 100 must yield exactly two chunks, the second
// starting 100 characters before the end of the first.
func TestSplit_FixedOverlapWindows(t *testing.T) {
	text := strings.Repeat("a", 1500)
	s := New(1000, 100)

	chunks := s.Split(text)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 1000 {
		t.Errorf("chunk 0 length: got %d, want 1000", len(chunks[0]))
	}
	if len(chunks[1]) != 600 {
		t.Errorf("chunk 1 length: got %d, want 600", len(chunks[1]))
	}
}

func TestSplit_MaxSizeRespected(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet. ", 200)
	s := New(250, 30)

	for i, chunk := range s.Split(text) {
		if n := len([]rune(chunk)); n > 250 {
			t.Errorf("chunk %d exceeds max size: %d", i, n)
		}
	}
}

func TestSplit_PrefersParagraphBoundary(t *testing.T) {
	para1 := strings.Repeat("x", 400)
	para2 := strings.Repeat("y", 400)
	text := para1 + "\n\n" + para2

	s := New(500, 50)
	chunks := s.Split(text)

	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], "\n\n") {
		t.Errorf("chunk 0 should end at the paragraph break, got suffix %q",
			chunks[0][len(chunks[0])-5:])
	}
}

func TestSplit_FallsBackToSentenceBoundary(t *testing.T) {
	text := strings.Repeat("w", 300) + ". " + strings.Repeat("v", 300)

	s := New(400, 40)
	chunks := s.Split(text)

	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], ". ") {
		t.Errorf("chunk 0 should end at the sentence break")
	}
}

// TestSplit_RoundTrip verifies the reconstruction property: concatenating
// the non-overlapping prefixes of successive chunks yields the input.
func TestSplit_RoundTrip(t *testing.T) {
	cases := map[string]struct {
		text    string
		size    int
		overlap int
	}{
		"plain runs":   {strings.Repeat("abcdefghij", 500), 1000, 100},
		"sentences":    {strings.Repeat("The quick brown fox jumps over the lazy dog. ", 120), 700, 80},
		"paragraphs":   {strings.Repeat(strings.Repeat("word ", 60)+"\n\n", 30), 500, 50},
		"tiny overlap": {strings.Repeat("z y x w ", 400), 200, 1},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s := New(tc.size, tc.overlap)
			chunks := s.Split(tc.text)
			if len(chunks) == 0 {
				t.Fatal("no chunks produced")
			}

			var b strings.Builder
			for i, chunk := range chunks {
				runes := []rune(chunk)
				if i == len(chunks)-1 {
					b.WriteString(chunk)
					break
				}
				b.WriteString(string(runes[:len(runes)-tc.overlap]))
			}

			if b.String() != tc.text {
				t.Errorf("round trip failed: got %d chars, want %d chars",
					b.Len(), len(tc.text))
			}
		})
	}
}

// TestSplit_LargeOverlapClamped: an overlap above half the chunk size is
// clamped to half, so a boundary cut just past the window midpoint still
// advances and the reconstruction property holds with the clamped overlap.
func TestSplit_LargeOverlapClamped(t *testing.T) {
	s := New(400, 300)
	if s.overlap != 200 {
		t.Fatalf("overlap not clamped to half the chunk size: got %d", s.overlap)
	}

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 60)
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	var b strings.Builder
	for i, chunk := range chunks {
		runes := []rune(chunk)
		if i == len(chunks)-1 {
			b.WriteString(chunk)
			break
		}
		if len(runes) <= s.overlap {
			t.Fatalf("chunk %d not longer than the overlap: %d", i, len(runes))
		}
		b.WriteString(string(runes[:len(runes)-s.overlap]))
	}
	if b.String() != text {
		t.Errorf("round trip failed: got %d chars, want %d chars", b.Len(), len(text))
	}
}

func TestSplit_Deterministic(t *testing.T) {
	text := strings.Repeat("Some sentence here. Another one follows.\n\n", 100)
	s := New(300, 30)

	first := s.Split(text)
	second := s.Split(text)

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}
