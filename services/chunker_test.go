package services

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/seehafer/fda-guidance-navigator/models"
)

func guidancePages(pages, wordsPerPage int) []models.PageText {
	out := make([]models.PageText, pages)
	for p := 0; p < pages; p++ {
		var b strings.Builder
		for w := 0; w < wordsPerPage; w++ {
			fmt.Fprintf(&b, "word%d_%d ", p+1, w)
		}
		out[p] = models.PageText{Page: p + 1, Text: b.String()}
	}
	return out
}

func TestChunkOrdinalsContiguous(t *testing.T) {
	chunker := NewChunker(128, 16)
	chunks := chunker.Chunk(guidancePages(5, 300))

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.Ordinal != i {
			t.Errorf("chunk %d has ordinal %d", i, chunk.Ordinal)
		}
	}
}

func TestChunkPageRangesNonDecreasing(t *testing.T) {
	chunker := NewChunker(128, 16)
	chunks := chunker.Chunk(guidancePages(6, 250))

	for i, chunk := range chunks {
		if chunk.PageStart < 1 || chunk.PageEnd < chunk.PageStart {
			t.Errorf("chunk %d has invalid page range %d-%d", i, chunk.PageStart, chunk.PageEnd)
		}
		if i > 0 {
			prev := chunks[i-1]
			if chunk.PageStart < prev.PageStart {
				t.Errorf("chunk %d page_start %d precedes chunk %d page_start %d",
					i, chunk.PageStart, i-1, prev.PageStart)
			}
		}
	}
}

func TestChunkDeterministic(t *testing.T) {
	pages := guidancePages(4, 400)
	chunker := NewChunker(256, 32)

	first := chunker.Chunk(pages)
	second := chunker.Chunk(pages)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("chunking the same pages twice produced different chunk sets")
	}
}

func TestChunkOverlapSharesText(t *testing.T) {
	chunker := NewChunker(128, 32)
	chunks := chunker.Chunk(guidancePages(3, 300))
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		prevWords := strings.Fields(chunks[i-1].Text)
		curWords := strings.Fields(chunks[i].Text)
		// The next chunk must open with words the previous chunk ended on
		if prevWords[len(prevWords)-1] == curWords[0] ||
			containsWord(prevWords, curWords[0]) {
			continue
		}
		t.Errorf("chunk %d does not overlap chunk %d", i, i-1)
	}
}

func containsWord(words []string, w string) bool {
	for _, candidate := range words {
		if candidate == w {
			return true
		}
	}
	return false
}

func TestChunkTokenBudget(t *testing.T) {
	chunker := NewChunker(100, 10)
	chunks := chunker.Chunk(guidancePages(2, 500))

	for i, chunk := range chunks {
		if chunk.TokenCount == 0 {
			t.Errorf("chunk %d has zero token count", i)
		}
		// Budget may be exceeded by at most the final word's cost
		if chunk.TokenCount > 100+10 {
			t.Errorf("chunk %d token count %d far exceeds budget", i, chunk.TokenCount)
		}
	}
}

func TestChunkSectionHeadings(t *testing.T) {
	pages := []models.PageText{
		{Page: 1, Text: "III. Labeling Requirements\n" + strings.Repeat("the labeling rule applies broadly here ", 40)},
	}
	chunker := NewChunker(64, 8)
	chunks := chunker.Chunk(pages)
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	if chunks[0].Section != "III. Labeling Requirements" {
		t.Errorf("expected section heading, got %q", chunks[0].Section)
	}
}

func TestChunkEmptyInput(t *testing.T) {
	chunker := NewChunker(128, 16)
	if chunks := chunker.Chunk(nil); chunks != nil {
		t.Fatalf("expected no chunks for empty input, got %d", len(chunks))
	}
	if chunks := chunker.Chunk([]models.PageText{{Page: 1, Text: "   \n  "}}); chunks != nil {
		t.Fatalf("expected no chunks for whitespace input, got %d", len(chunks))
	}
}
